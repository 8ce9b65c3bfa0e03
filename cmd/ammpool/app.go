package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammpool/internal/chain"
	"ammpool/internal/config"
	"ammpool/internal/erc20"
	"ammpool/internal/fixedpoint"
	"ammpool/internal/model"
	"ammpool/internal/pool"
	"ammpool/internal/storage"
	"ammpool/internal/storage/postgres"
)

// app is the state one CLI invocation works on.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	pool   *pool.Pool
	store  storage.SnapshotStore
	sink   storage.EventSink
	client *chain.Client

	closers []func()
}

func openApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		pool: pool.New(pool.Config{
			ID:            model.AccountID(cfg.PoolID),
			OpenLiquidity: cfg.OpenLiquidity,
		}, logger),
	}
	if err := a.open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) open(ctx context.Context) error {
	var sinks storage.MultiSink
	if a.cfg.EventsOut != "" {
		sinks = append(sinks, storage.NewJsonlSink(a.cfg.EventsOut))
	}
	a.store = &storage.FileSnapshotStore{Path: a.cfg.StateFile}

	if a.cfg.PGDSN != "" {
		pg, err := postgres.NewStore(ctx, a.cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		a.store = &postgres.SnapshotStore{Store: pg, PoolID: model.AccountID(a.cfg.PoolID)}
		sinks = append(sinks, pg)
	}
	a.sink = sinks

	snap, ok, err := a.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if ok {
		if err := a.pool.Restore(snap); err != nil {
			return err
		}
	}

	if a.cfg.OnChain() {
		client, err := chain.NewClient(ctx, a.cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		a.client = client
		chainID, err := client.GetChainID(ctx)
		if err != nil {
			return fmt.Errorf("get chain id: %w", err)
		}
		a.logger.Info("rpc connected", zap.String("chain_id", chainID.String()))
		if a.pool.Initialized() {
			if err := a.bindTokens(); err != nil {
				return err
			}
		}
	}

	a.logger.Debug("pool opened",
		zap.String("pool", a.cfg.PoolID),
		zap.Bool("restored", ok),
		zap.Bool("on_chain", a.cfg.OnChain()),
		zap.Bool("postgres", a.cfg.PGDSN != ""),
	)
	return nil
}

// bindTokens binds both pooled assets as ERC-20 tokens whose ids are their
// contract addresses.
func (a *app) bindTokens() error {
	if !common.IsHexAddress(a.cfg.CustodyAddress) {
		return fmt.Errorf("custody address is required with rpc, got %q", a.cfg.CustodyAddress)
	}
	meta := a.pool.Meta()
	for _, slot := range model.Slots {
		id := meta.Asset(slot)
		if !common.IsHexAddress(string(id)) {
			return fmt.Errorf("asset %s of slot %s is not a token address", id, slot)
		}
		asset := erc20.NewAsset(erc20.Config{
			ID:             id,
			Token:          common.HexToAddress(string(id)),
			Custody:        meta.PoolID,
			CustodyAddress: common.HexToAddress(a.cfg.CustodyAddress),
			Gas:            a.cfg.Gas,
			Receipt:        a.cfg.ReceiptPolicy(),
		}, a.client, a.logger)
		if err := a.pool.BindAsset(slot, asset); err != nil {
			return err
		}
	}
	return nil
}

// commit saves the snapshot, then journals the events drained from the
// pool.
func (a *app) commit(ctx context.Context) error {
	snap, events := a.pool.Checkpoint()
	if err := a.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := a.sink.PutEvents(ctx, events); err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	a.logger.Debug("pool committed", zap.Int("events", len(events)))
	return nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}

func parseAmount(input string) (*uint256.Int, error) {
	if input == "" {
		return nil, fmt.Errorf("%w: amount is required", model.ErrValidation)
	}
	return fixedpoint.Parse(input)
}
