package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"ammpool/internal/erc20"
	"ammpool/internal/fixedpoint"
	"ammpool/internal/model"
)

type balanceOutput struct {
	Asset   model.AssetID   `json:"asset"`
	Account model.AccountID `json:"account"`
	Balance string          `json:"balance"`
	Units   string          `json:"units,omitempty"`
	Total   string          `json:"total_supply"`
}

type swapOutput struct {
	SellAsset model.AssetID `json:"sell_asset"`
	BuyAsset  model.AssetID `json:"buy_asset"`
	AmountIn  string        `json:"amount_in"`
	AmountOut string        `json:"amount_out"`
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <owner> [asset-a asset-b]",
		Short: "Initialize the pool with its owner and two assets",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd, func(ctx context.Context, a *app) error {
				assetA, assetB := a.cfg.TokenA, a.cfg.TokenB
				if len(args) == 3 {
					assetA, assetB = args[1], args[2]
				} else if len(args) == 2 {
					return fmt.Errorf("both assets are required")
				}
				if a.cfg.OnChain() && (!common.IsHexAddress(assetA) || !common.IsHexAddress(assetB)) {
					return fmt.Errorf("assets must be token addresses with rpc: %q, %q", assetA, assetB)
				}
				if err := a.pool.Initialize(model.AccountID(args[0]), model.AssetID(assetA), model.AssetID(assetB)); err != nil {
					return err
				}
				return printJSON(cmd, a.pool.Meta())
			})
		},
	}
}

func newMetadataCmd() *cobra.Command {
	metadataCmd := &cobra.Command{
		Use:   "metadata",
		Short: "Manage the write-once token metadata of each slot",
	}

	setCmd := &cobra.Command{
		Use:   "set <slot>",
		Short: "Set the metadata of slot a or b",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := model.ParseSlot(args[0])
			if err != nil {
				return err
			}
			name, _ := cmd.Flags().GetString("name")
			symbol, _ := cmd.Flags().GetString("symbol")
			decimals, _ := cmd.Flags().GetUint8("decimals")
			address, _ := cmd.Flags().GetString("address")
			meta := model.TokenMeta{Address: address, Name: name, Symbol: symbol, Decimals: decimals}
			return withPool(cmd, func(ctx context.Context, a *app) error {
				if err := a.pool.SetMetadata(slot, meta); err != nil {
					return err
				}
				return printJSON(cmd, meta)
			})
		},
	}
	setCmd.Flags().String("name", "", "token name")
	setCmd.Flags().String("symbol", "", "token symbol")
	setCmd.Flags().Uint8("decimals", 0, "token decimals")
	setCmd.Flags().String("address", "", "informational token address")

	getCmd := &cobra.Command{
		Use:   "get <slot>",
		Short: "Show the metadata of slot a or b",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := model.ParseSlot(args[0])
			if err != nil {
				return err
			}
			return withPool(cmd, func(ctx context.Context, a *app) error {
				meta, err := a.pool.GetMetadata(slot)
				if err != nil {
					return err
				}
				return printJSON(cmd, meta)
			})
		},
	}

	fetchCmd := &cobra.Command{
		Use:   "fetch <slot>",
		Short: "Read name, symbol and decimals from the token contract and set them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := model.ParseSlot(args[0])
			if err != nil {
				return err
			}
			return withPool(cmd, func(ctx context.Context, a *app) error {
				if a.client == nil {
					return fmt.Errorf("rpc url is required")
				}
				token := common.HexToAddress(string(a.pool.Meta().Asset(slot)))
				meta, err := erc20.FetchTokenMeta(ctx, a.client, token, a.logger)
				if err != nil {
					return err
				}
				if err := a.pool.SetMetadata(slot, meta); err != nil {
					return err
				}
				return printJSON(cmd, meta)
			})
		},
	}

	metadataCmd.AddCommand(setCmd, getCmd, fetchCmd)
	return metadataCmd
}

func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <account>",
		Short: "Register an account in every table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd, func(ctx context.Context, a *app) error {
				added, err := a.pool.RegisterAccount(model.AccountID(args[0]))
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]interface{}{"account": args[0], "added": added})
			})
		},
	}
}

func newUnregisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unregister <account>",
		Short: "Remove an account from every table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			return withPool(cmd, func(ctx context.Context, a *app) error {
				return a.pool.UnregisterAccount(model.AccountID(args[0]), force)
			})
		},
	}
	cmd.Flags().Bool("force", false, "burn remaining balances")
	return cmd
}

func newDepositCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deposit <asset> <sender> <amount>",
		Short: "Credit an inbound transfer of asset to sender",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			msg, _ := cmd.Flags().GetString("msg")
			return withPool(cmd, func(ctx context.Context, a *app) error {
				unused, err := a.pool.OnDepositNotification(ctx, model.AssetID(args[0]), model.AccountID(args[1]), amount, msg)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]string{"unused": unused.Dec()})
			})
		},
	}
	cmd.Flags().String("msg", "", "message attached to the transfer")
	return cmd
}

func newAddLiquidityCmd() *cobra.Command {
	return newLiquidityCmd("add-liquidity", "Move asset into custody and mint pool shares", true)
}

func newRemoveLiquidityCmd() *cobra.Command {
	return newLiquidityCmd("remove-liquidity", "Burn pool shares and move asset out of custody", false)
}

func newLiquidityCmd(use, short string, add bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <caller> <asset> <amount>",
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			memo, _ := cmd.Flags().GetString("memo")
			caller, asset := model.AccountID(args[0]), model.AssetID(args[1])
			return withPool(cmd, func(ctx context.Context, a *app) error {
				var opErr error
				if add {
					opErr = a.pool.AddLiquidity(caller, asset, amount, memo)
				} else {
					opErr = a.pool.RemoveLiquidity(caller, asset, amount, memo)
				}
				if opErr != nil {
					return opErr
				}
				shares, err := a.pool.BalanceOf(model.AssetID(a.pool.ID()), caller)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]string{"shares": shares.Dec()})
			})
		},
	}
	cmd.Flags().String("memo", "", "memo recorded with the event")
	return cmd
}

func newSwapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "swap <trader> <sell-asset> <buy-asset> <amount>",
		Short: "Sell amount of one asset for the other",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[3])
			if err != nil {
				return err
			}
			sell, buy := model.AssetID(args[1]), model.AssetID(args[2])
			return withPool(cmd, func(ctx context.Context, a *app) error {
				out, err := a.pool.Swap(model.AccountID(args[0]), sell, buy, amount)
				if err != nil {
					return err
				}
				return printJSON(cmd, swapOutput{SellAsset: sell, BuyAsset: buy, AmountIn: amount.Dec(), AmountOut: out.Dec()})
			})
		},
	}
}

func newQuoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quote <sell-asset> <buy-asset> <amount>",
		Short: "Show the output of a swap without executing it",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			sell, buy := model.AssetID(args[0]), model.AssetID(args[1])
			return withPool(cmd, func(ctx context.Context, a *app) error {
				out, err := a.pool.Quote(sell, buy, amount)
				if err != nil {
					return err
				}
				return printJSON(cmd, swapOutput{SellAsset: sell, BuyAsset: buy, AmountIn: amount.Dec(), AmountOut: out.Dec()})
			})
		},
	}
}

func newBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <asset> <account>",
		Short: "Show the balance of account in an asset table or the share table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			asset, account := model.AssetID(args[0]), model.AccountID(args[1])
			return withPool(cmd, func(ctx context.Context, a *app) error {
				bal, err := a.pool.BalanceOf(asset, account)
				if err != nil {
					return err
				}
				total, err := a.pool.TotalSupply(asset)
				if err != nil {
					return err
				}
				out := balanceOutput{Asset: asset, Account: account, Balance: bal.Dec(), Total: total.Dec()}
				meta := a.pool.Meta()
				for _, slot := range model.Slots {
					if meta.Asset(slot) != asset {
						continue
					}
					if tm, err := a.pool.GetMetadata(slot); err == nil {
						out.Units = fixedpoint.FormatUnits(bal, tm.Decimals)
					}
				}
				return printJSON(cmd, out)
			})
		},
	}
}

func newTransferSharesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer-shares <from> <to> <amount>",
		Short: "Move pool shares between accounts",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			memo, _ := cmd.Flags().GetString("memo")
			return withPool(cmd, func(ctx context.Context, a *app) error {
				return a.pool.TransferShares(model.AccountID(args[0]), model.AccountID(args[1]), amount, memo)
			})
		},
	}
	cmd.Flags().String("memo", "", "memo recorded with the event")
	return cmd
}
