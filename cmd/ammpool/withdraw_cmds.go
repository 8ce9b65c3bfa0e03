package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"ammpool/internal/config"
	"ammpool/internal/model"
	"ammpool/internal/storage"
)

type reconcileOutput struct {
	Slot     string        `json:"slot"`
	Asset    model.AssetID `json:"asset"`
	Issued   string        `json:"issued"`
	External string        `json:"external"`
	Covered  bool          `json:"covered"`
}

func newWithdrawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw <requester> <asset> <amount>",
		Short: "Withdraw asset from custody to requester",
		Long: "With rpc configured the token transfer is sent and its receipt awaited. " +
			"Otherwise the request is recorded and its amount held until " +
			"'withdrawals resolve' reports the transfer outcome.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			wait, _ := cmd.Flags().GetDuration("wait")
			requester, asset := model.AccountID(args[0]), model.AssetID(args[1])
			return withPool(cmd, func(ctx context.Context, a *app) error {
				if !a.cfg.OnChain() {
					record, err := a.pool.RequestWithdrawal(requester, asset, amount)
					if err != nil {
						return err
					}
					return printJSON(cmd, record)
				}

				ticket, err := a.pool.Withdraw(ctx, requester, asset, amount)
				if err != nil {
					return err
				}
				waitCtx := ctx
				if wait > 0 {
					var cancel context.CancelFunc
					waitCtx, cancel = context.WithTimeout(ctx, wait)
					defer cancel()
				}
				record, err := ticket.Wait(waitCtx)
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					record, _ = a.pool.Withdrawal(ticket.ID)
					if perr := printJSON(cmd, record); perr != nil {
						return perr
					}
					return fmt.Errorf("withdrawal %s still pending: %w", ticket.ID, err)
				}
				if perr := printJSON(cmd, record); perr != nil {
					return perr
				}
				return err
			})
		},
	}
	cmd.Flags().Duration("wait", 0, "how long to wait for the transfer, 0 waits until it settles")
	return cmd
}

func newWithdrawalsCmd() *cobra.Command {
	withdrawalsCmd := &cobra.Command{
		Use:   "withdrawals",
		Short: "Inspect and resolve withdrawals",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List withdrawals in request order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pendingOnly, _ := cmd.Flags().GetBool("pending")
			return withPool(cmd, func(ctx context.Context, a *app) error {
				records := a.pool.Withdrawals()
				if pendingOnly {
					filtered := records[:0]
					for _, record := range records {
						if !record.Status.Terminal() {
							filtered = append(filtered, record)
						}
					}
					records = filtered
				}
				return printJSON(cmd, records)
			})
		},
	}
	listCmd.Flags().Bool("pending", false, "only unresolved withdrawals")

	resolveCmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Report the outcome of a withdrawal's external transfer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outcome, _ := cmd.Flags().GetString("outcome")
			reason, _ := cmd.Flags().GetString("reason")
			result, err := parseResult(outcome, reason)
			if err != nil {
				return err
			}
			return withPool(cmd, func(ctx context.Context, a *app) error {
				err := a.pool.CompleteWithdrawal(args[0], result)
				if record, ok := a.pool.Withdrawal(args[0]); ok {
					if perr := printJSON(cmd, record); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
	resolveCmd.Flags().String("outcome", "", "succeeded or failed")
	resolveCmd.Flags().String("reason", "", "failure reason")

	withdrawalsCmd.AddCommand(listCmd, resolveCmd)
	return withdrawalsCmd
}

func parseResult(outcome, reason string) (model.TransferResult, error) {
	switch outcome {
	case model.TransferSucceeded.String():
		return model.TransferResult{Outcome: model.TransferSucceeded}, nil
	case model.TransferFailed.String():
		result := model.TransferResult{Outcome: model.TransferFailed}
		if reason != "" {
			result.Err = errors.New(reason)
		}
		return result, nil
	default:
		return model.TransferResult{}, fmt.Errorf("%w: outcome must be succeeded or failed, got %q", model.ErrValidation, outcome)
	}
}

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Compare issued balances with the custody balance of each token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd, func(ctx context.Context, a *app) error {
				reports, err := a.pool.Reconcile(ctx)
				if err != nil {
					return err
				}
				out := make([]reconcileOutput, 0, len(reports))
				for _, r := range reports {
					out = append(out, reconcileOutput{
						Slot:     r.Slot.String(),
						Asset:    r.Asset,
						Issued:   r.Issued.Dec(),
						External: r.External.Dec(),
						Covered:  r.Covered(),
					})
				}
				return printJSON(cmd, out)
			})
		},
	}
}

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print the event journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			cfgFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			records, err := storage.ReadEvents(cfg.EventsOut)
			if err != nil {
				return err
			}
			out := make([]model.PoolEventRecord, 0, len(records))
			for _, record := range records {
				if name == "" || record.EventName == name {
					out = append(out, record)
				}
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().String("name", "", "only events with this name")
	return cmd
}
