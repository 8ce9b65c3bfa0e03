package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammpool/internal/config"
	"ammpool/internal/fixedpoint"
	"ammpool/internal/model"
	"ammpool/internal/pool"
	"ammpool/internal/token"
)

const (
	simPool     = model.AccountID("amm")
	simProvider = model.AccountID("provider")
	simTrader   = model.AccountID("trader")
	simTokenA   = model.AssetID("token_a")
	simTokenB   = model.AssetID("token_b")
)

var errSimulatedTransfer = errors.New("simulated transfer failure")

type simulationReport struct {
	Quote      string            `json:"quote"`
	AmountOut  string            `json:"amount_out"`
	Withdrawal model.Withdrawal  `json:"withdrawal"`
	Error      string            `json:"error,omitempty"`
	Balances   map[string]string `json:"balances"`
	Reconciled []reconcileOutput `json:"reconciled"`
	Events     int               `json:"events"`
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run liquidity, a swap and a withdrawal against in-memory tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, err := runSimulation(ctx, cfg, logger)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
	cmd.Flags().String("supply", "100000", "initial supply of each token, minted to the provider")
	cmd.Flags().Uint8("decimals-a", 3, "decimals of token a")
	cmd.Flags().Uint8("decimals-b", 3, "decimals of token b")
	cmd.Flags().String("liquidity-a", "50000", "token a liquidity added by the provider")
	cmd.Flags().String("liquidity-b", "10000", "token b liquidity added by the provider")
	cmd.Flags().String("swap-amount", "10000", "token a sold by the trader")
	cmd.Flags().Bool("fail-withdraw", false, "make the withdrawal transfer fail")
	return cmd
}

// runSimulation wires two in-memory tokens to an open-liquidity pool: the
// provider funds both reserves, the trader sells token a and withdraws the
// token b it bought.
func runSimulation(ctx context.Context, cfg config.SimulateConfig, logger *zap.Logger) (simulationReport, error) {
	var report simulationReport
	amounts := make(map[string]*uint256.Int, 4)
	for name, raw := range map[string]string{
		"supply":      cfg.Supply,
		"liquidity-a": cfg.LiquidityA,
		"liquidity-b": cfg.LiquidityB,
		"swap-amount": cfg.SwapAmount,
	} {
		v, err := parseAmount(raw)
		if err != nil {
			return report, fmt.Errorf("%s: %w", name, err)
		}
		amounts[name] = v
	}

	p := pool.New(pool.Config{ID: simPool, OpenLiquidity: true}, logger)
	if err := p.Initialize(simProvider, simTokenA, simTokenB); err != nil {
		return report, err
	}
	tokens := [2]*token.Token{
		token.New(simTokenA, model.TokenMeta{Name: "Simulated A", Symbol: "SIMA", Decimals: cfg.DecimalsA}, logger),
		token.New(simTokenB, model.TokenMeta{Name: "Simulated B", Symbol: "SIMB", Decimals: cfg.DecimalsB}, logger),
	}
	for i, tok := range tokens {
		slot := model.Slots[i]
		for _, account := range []model.AccountID{simProvider, simTrader, simPool} {
			if err := tok.Register(ctx, account); err != nil {
				return report, err
			}
		}
		if err := tok.Mint(simProvider, amounts["supply"]); err != nil {
			return report, err
		}
		if err := p.SetMetadata(slot, tok.Metadata()); err != nil {
			return report, err
		}
		if err := p.BindAsset(slot, tok); err != nil {
			return report, err
		}
	}
	tokA, tokB := tokens[model.SlotA], tokens[model.SlotB]

	for i, liquidity := range []*uint256.Int{amounts["liquidity-a"], amounts["liquidity-b"]} {
		tok := tokens[i]
		if _, err := tok.TransferCall(ctx, simProvider, simPool, p, liquidity, "liquidity"); err != nil {
			return report, fmt.Errorf("fund %s: %w", tok.ID(), err)
		}
		if err := p.AddLiquidity(simProvider, tok.ID(), liquidity, "simulation"); err != nil {
			return report, err
		}
	}

	sell := amounts["swap-amount"]
	if err := tokA.Transfer(ctx, simProvider, simTrader, sell, "fund trader"); err != nil {
		return report, err
	}
	if _, err := tokA.TransferCall(ctx, simTrader, simPool, p, sell, "swap"); err != nil {
		return report, fmt.Errorf("trader deposit: %w", err)
	}
	quote, err := p.Quote(simTokenA, simTokenB, sell)
	if err != nil {
		return report, err
	}
	report.Quote = quote.Dec()
	out, err := p.Swap(simTrader, simTokenA, simTokenB, sell)
	if err != nil {
		return report, err
	}
	report.AmountOut = out.Dec()

	if cfg.FailWithdraw {
		tokB.SetTransferHook(func(from, to model.AccountID, amount *uint256.Int) error {
			return errSimulatedTransfer
		})
	}
	ticket, err := p.Withdraw(ctx, simTrader, simTokenB, out)
	if err != nil {
		return report, err
	}
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	record, err := ticket.Wait(waitCtx)
	switch {
	case err == nil:
	case errors.Is(err, pool.ErrExternalTransferFailed):
		report.Error = err.Error()
	default:
		return report, err
	}
	report.Withdrawal = record
	tokB.SetTransferHook(nil)

	report.Balances = make(map[string]string)
	for _, tok := range tokens {
		for _, account := range []model.AccountID{simProvider, simTrader, simPool} {
			local, err := p.BalanceOf(tok.ID(), account)
			if err != nil {
				return report, err
			}
			external, err := tok.BalanceOf(ctx, account)
			if err != nil {
				return report, err
			}
			meta := tok.Metadata()
			report.Balances[fmt.Sprintf("%s/%s/local", tok.ID(), account)] = fixedpoint.FormatUnits(local, meta.Decimals)
			report.Balances[fmt.Sprintf("%s/%s/external", tok.ID(), account)] = fixedpoint.FormatUnits(external, meta.Decimals)
		}
	}

	reports, err := p.Reconcile(ctx)
	if err != nil {
		return report, err
	}
	for _, r := range reports {
		report.Reconciled = append(report.Reconciled, reconcileOutput{
			Slot:     r.Slot.String(),
			Asset:    r.Asset,
			Issued:   r.Issued.Dec(),
			External: r.External.Dec(),
			Covered:  r.Covered(),
		})
	}
	report.Events = len(p.DrainEvents())
	return report, nil
}
