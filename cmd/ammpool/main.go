package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ammpool",
		Short:        "Two-asset constant-product pool",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("pool-id", "amm", "pool account id (custody account and share asset id)")
	flags.String("state-file", "./data/pool.json", "pool snapshot file")
	flags.String("events-out", "./data/events.jsonl", "event journal JSONL path")
	flags.String("pg-dsn", "", "Postgres DSN; stores snapshot and events in Postgres instead of the state file")
	flags.Bool("open-liquidity", false, "let any account add or remove liquidity (set at init)")
	flags.String("rpc", "", "Ethereum JSON-RPC URL; binds both assets as ERC-20 tokens")
	flags.String("token-a", "", "default asset a for init")
	flags.String("token-b", "", "default asset b for init")
	flags.String("custody-address", "", "address holding the pool's tokens (node-managed account)")
	flags.Uint64("gas", 0, "gas limit for transfers, 0 lets the node estimate")
	flags.Int("max-retries", 5, "maximum receipt polling attempts")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial receipt polling backoff")
	flags.Duration("receipt-max-delay", 10*time.Second, "maximum receipt polling backoff")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newInitCmd(),
		newMetadataCmd(),
		newRegisterCmd(),
		newUnregisterCmd(),
		newDepositCmd(),
		newAddLiquidityCmd(),
		newRemoveLiquidityCmd(),
		newSwapCmd(),
		newQuoteCmd(),
		newBalanceCmd(),
		newTransferSharesCmd(),
		newWithdrawCmd(),
		newWithdrawalsCmd(),
		newReconcileCmd(),
		newEventsCmd(),
		newSimulateCmd(),
	)
	return root
}

// withPool opens the pool state, runs fn and commits the result. The commit
// also runs when fn fails, since a failed withdrawal records its outcome.
func withPool(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	opErr := fn(ctx, a)
	if err := a.commit(ctx); err != nil {
		if opErr != nil {
			return fmt.Errorf("%w (commit: %v)", opErr, err)
		}
		return err
	}
	return opErr
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
