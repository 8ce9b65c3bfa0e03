package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// SimulateConfig holds configuration for the in-memory simulation.
type SimulateConfig struct {
	Supply       string
	DecimalsA    uint8
	DecimalsB    uint8
	LiquidityA   string
	LiquidityB   string
	SwapAmount   string
	FailWithdraw bool
	LogLevel     string
}

// LoadSimulate merges config file, environment variables, and flags into
// SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("supply", "100000")
		v.SetDefault("decimals-a", 3)
		v.SetDefault("decimals-b", 3)
		v.SetDefault("liquidity-a", "50000")
		v.SetDefault("liquidity-b", "10000")
		v.SetDefault("swap-amount", "10000")
		v.SetDefault("fail-withdraw", false)
		v.SetDefault("log-level", "info")
	})
	if err != nil {
		return SimulateConfig{}, err
	}

	decA, decB := v.GetUint("decimals-a"), v.GetUint("decimals-b")
	if decA > 255 || decB > 255 {
		return SimulateConfig{}, fmt.Errorf("decimals out of range: %d, %d", decA, decB)
	}

	return SimulateConfig{
		Supply:       v.GetString("supply"),
		DecimalsA:    uint8(decA),
		DecimalsB:    uint8(decB),
		LiquidityA:   v.GetString("liquidity-a"),
		LiquidityB:   v.GetString("liquidity-b"),
		SwapAmount:   v.GetString("swap-amount"),
		FailWithdraw: v.GetBool("fail-withdraw"),
		LogLevel:     v.GetString("log-level"),
	}, nil
}
