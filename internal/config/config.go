package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"ammpool/internal/retry"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	PoolID          string
	StateFile       string
	EventsOut       string
	PGDSN           string
	OpenLiquidity   bool
	RPCURL          string
	TokenA          string
	TokenB          string
	CustodyAddress  string
	Gas             uint64
	MaxRetries      int
	RetryBackoff    time.Duration
	ReceiptMaxDelay time.Duration
	LogLevel        string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("pool-id", "amm")
		v.SetDefault("state-file", "./data/pool.json")
		v.SetDefault("events-out", "./data/events.jsonl")
		v.SetDefault("open-liquidity", false)
		v.SetDefault("max-retries", 5)
		v.SetDefault("retry-backoff", 500*time.Millisecond)
		v.SetDefault("receipt-max-delay", 10*time.Second)
		v.SetDefault("log-level", "info")
	})
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		PoolID:          strings.TrimSpace(v.GetString("pool-id")),
		StateFile:       v.GetString("state-file"),
		EventsOut:       v.GetString("events-out"),
		PGDSN:           v.GetString("pg-dsn"),
		OpenLiquidity:   v.GetBool("open-liquidity"),
		RPCURL:          v.GetString("rpc"),
		TokenA:          strings.TrimSpace(v.GetString("token-a")),
		TokenB:          strings.TrimSpace(v.GetString("token-b")),
		CustodyAddress:  strings.TrimSpace(v.GetString("custody-address")),
		Gas:             v.GetUint64("gas"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		ReceiptMaxDelay: v.GetDuration("receipt-max-delay"),
		LogLevel:        v.GetString("log-level"),
	}
	if cfg.PoolID == "" {
		return Config{}, fmt.Errorf("pool id is required")
	}
	return cfg, nil
}

// ReceiptPolicy is the backoff used while waiting for transfer receipts.
func (c Config) ReceiptPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries: c.MaxRetries,
		BaseDelay:  c.RetryBackoff,
		MaxDelay:   c.ReceiptMaxDelay,
	}
}

// OnChain reports whether the pooled assets are ERC-20 tokens reached over
// RPC.
func (c Config) OnChain() bool {
	return c.RPCURL != ""
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults func(*viper.Viper)) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("AMMPOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if defaults != nil {
		defaults(v)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}
