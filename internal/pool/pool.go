// Package pool implements a two-asset constant-product pool: three balance
// tables (asset A, asset B and the pool share), write-once asset metadata,
// swaps, liquidity and a two-phase withdrawal protocol.
//
// A Pool serialises every operation behind one mutex. The only work done
// outside the lock is the external transfer leg of a withdrawal.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ammpool/internal/fixedpoint"
	"ammpool/internal/ledger"
	"ammpool/internal/metadata"
	"ammpool/internal/model"
)

// Asset is an external fungible asset the pool holds custody of.
type Asset interface {
	ID() model.AssetID
	Register(ctx context.Context, account model.AccountID) error
	Transfer(ctx context.Context, from, to model.AccountID, amount *uint256.Int, memo string) error
	BalanceOf(ctx context.Context, account model.AccountID) (*uint256.Int, error)
}

// Config controls pool identity and behavior.
type Config struct {
	// ID is the custody account and the pool-share asset id.
	ID model.AccountID
	// OpenLiquidity lets any account add or remove liquidity. By default
	// only the custody account may.
	OpenLiquidity bool
	Now           func() time.Time
}

// Pool is the pool aggregate.
type Pool struct {
	mu     sync.Mutex
	cfg    Config
	logger *zap.Logger

	initialized bool
	meta        model.PoolMeta
	guard       *metadata.Guard
	tables      [2]*ledger.Ledger
	shares      *ledger.Ledger
	assets      [2]Asset

	withdrawals map[string]*pendingWithdrawal
	order       []string
	holds       [2]map[model.AccountID]*uint256.Int

	events []model.PoolEvent
	seq    uint64
}

func New(cfg Config, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	p := &Pool{
		cfg:    cfg,
		logger: logger.With(zap.String("pool", string(cfg.ID))),
	}
	p.reset()
	return p
}

func (p *Pool) reset() {
	p.initialized = false
	p.meta = model.PoolMeta{PoolID: p.cfg.ID}
	p.guard = &metadata.Guard{}
	p.tables = [2]*ledger.Ledger{ledger.New("a"), ledger.New("b")}
	p.shares = ledger.New("shares")
	p.withdrawals = make(map[string]*pendingWithdrawal)
	p.order = nil
	p.holds = [2]map[model.AccountID]*uint256.Int{{}, {}}
}

// ID returns the custody account of the pool.
func (p *Pool) ID() model.AccountID {
	return p.cfg.ID
}

// Meta returns the pool identity.
func (p *Pool) Meta() model.PoolMeta {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.meta
}

// Initialized reports whether Initialize has run.
func (p *Pool) Initialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized
}

// Initialize fixes the owner and the two pooled assets. It runs once.
func (p *Pool) Initialize(owner model.AccountID, assetA, assetB model.AssetID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return ErrAlreadyInitialized
	}
	if p.cfg.ID == "" {
		return fmt.Errorf("%w: pool id is required", model.ErrConfiguration)
	}
	if err := p.checkIdentity(owner, assetA, assetB); err != nil {
		return err
	}

	p.meta = model.PoolMeta{PoolID: p.cfg.ID, Owner: owner, AssetA: assetA, AssetB: assetB}
	p.tables = [2]*ledger.Ledger{ledger.New(string(assetA)), ledger.New(string(assetB))}
	p.shares = ledger.New(string(p.cfg.ID))
	p.registerAll(owner)
	p.registerAll(p.cfg.ID)
	p.initialized = true

	p.emit(model.EventInitialized, model.InitializedEventData{Owner: owner, AssetA: assetA, AssetB: assetB})
	p.logger.Info("pool initialized",
		zap.String("owner", string(owner)),
		zap.String("asset_a", string(assetA)),
		zap.String("asset_b", string(assetB)),
		zap.Bool("open_liquidity", p.cfg.OpenLiquidity),
	)
	return nil
}

// checkIdentity validates the owner and asset pair of the pool.
func (p *Pool) checkIdentity(owner model.AccountID, assetA, assetB model.AssetID) error {
	if owner == "" || assetA == "" || assetB == "" {
		return fmt.Errorf("%w: owner and both assets are required", ErrInvalidAssets)
	}
	if assetA == assetB {
		return fmt.Errorf("%w: asset a and asset b are both %s", ErrInvalidAssets, assetA)
	}
	pid := model.AssetID(p.cfg.ID)
	if assetA == pid || assetB == pid {
		return fmt.Errorf("%w: pool id %s cannot be a pooled asset", ErrInvalidAssets, pid)
	}
	return nil
}

// BindAsset attaches the external collaborator for a slot. Its id must match
// the asset configured for the slot.
func (p *Pool) BindAsset(slot model.Slot, asset Asset) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireInitialized(); err != nil {
		return err
	}
	if !slot.Valid() {
		return fmt.Errorf("%w: invalid slot %s", model.ErrValidation, slot)
	}
	if asset.ID() != p.meta.Asset(slot) {
		return fmt.Errorf("bind %s to slot %s: %w", asset.ID(), slot, ErrNotSupported)
	}
	p.assets[slot] = asset
	return nil
}

// SetMetadata writes the descriptor of a slot once.
func (p *Pool) SetMetadata(slot model.Slot, meta model.TokenMeta) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireInitialized(); err != nil {
		return err
	}
	if err := p.guard.Set(slot, meta); err != nil {
		return fmt.Errorf("set metadata: %w", err)
	}
	p.emit(model.EventMetadataSet, model.MetadataSetEventData{Slot: slot.String(), Meta: meta})
	p.logger.Info("metadata set",
		zap.String("slot", slot.String()),
		zap.String("symbol", meta.Symbol),
		zap.Uint8("decimals", meta.Decimals),
	)
	return nil
}

// GetMetadata returns the descriptor of a slot.
func (p *Pool) GetMetadata(slot model.Slot) (model.TokenMeta, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.guard.Get(slot)
}

// BalanceOf returns the balance of account in the table of asset. The pool
// id selects the pool-share table.
func (p *Pool) BalanceOf(asset model.AssetID, account model.AccountID) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	table, err := p.tableOf(asset)
	if err != nil {
		return nil, err
	}
	return table.BalanceOf(account), nil
}

// TotalSupply returns the issued total of the table of asset.
func (p *Pool) TotalSupply(asset model.AssetID) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	table, err := p.tableOf(asset)
	if err != nil {
		return nil, err
	}
	return table.TotalSupply(), nil
}

// RegisterAccount opens account in all three tables. It reports false if
// the account was already registered everywhere.
func (p *Pool) RegisterAccount(account model.AccountID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireInitialized(); err != nil {
		return false, err
	}
	if account == "" {
		return false, fmt.Errorf("%w: empty account", model.ErrValidation)
	}
	if !p.registerAll(account) {
		return false, nil
	}
	p.emit(model.EventAccountRegistered, model.AccountEventData{Account: account})
	p.logger.Info("account registered", zap.String("account", string(account)))
	return true, nil
}

// UnregisterAccount closes account in all three tables. Positive balances
// are refused unless force is set, in which case they are burned.
func (p *Pool) UnregisterAccount(account model.AccountID, force bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireInitialized(); err != nil {
		return err
	}
	if account == p.cfg.ID || account == p.meta.Owner {
		return fmt.Errorf("close %s: %w", account, ErrPermissionDenied)
	}
	all := p.allTables()
	registered := false
	for _, table := range all {
		if !table.IsRegistered(account) {
			continue
		}
		registered = true
		if !force && !table.BalanceOf(account).IsZero() {
			return fmt.Errorf("close %s in %s: %w", account, table.Name(), ledger.ErrNonZeroBalance)
		}
	}
	if !registered {
		return fmt.Errorf("close %s: %w", account, ledger.ErrNotRegistered)
	}
	for _, slot := range model.Slots {
		if p.holds[slot][account] != nil {
			return fmt.Errorf("close %s: %w", account, ErrPendingWithdrawal)
		}
	}

	burned := make(map[string]string)
	for _, table := range all {
		if !table.IsRegistered(account) {
			continue
		}
		amount, err := table.Unregister(account, force)
		if err != nil {
			p.logger.DPanic("unregister after validation", zap.Error(err))
			return fmt.Errorf("%w: close %s: %v", model.ErrInvariant, account, err)
		}
		if !amount.IsZero() {
			burned[table.Name()] = amount.Dec()
			p.logger.Info("tokens burned",
				zap.String("account", string(account)),
				zap.String("table", table.Name()),
				zap.Stringer("amount", amount),
			)
		}
	}
	data := model.AccountEventData{Account: account}
	if len(burned) > 0 {
		data.Burned = burned
	}
	p.emit(model.EventAccountClosed, data)
	p.logger.Info("account closed", zap.String("account", string(account)), zap.Bool("forced", force))
	return nil
}

// TransferShares moves pool shares between accounts.
func (p *Pool) TransferShares(from, to model.AccountID, amount *uint256.Int, memo string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireInitialized(); err != nil {
		return err
	}
	if amount.IsZero() {
		return ErrZeroAmount
	}
	if err := p.shares.Transfer(from, to, amount); err != nil {
		return fmt.Errorf("transfer shares: %w", err)
	}
	p.emit(model.EventSharesTransferred, model.SharesTransferEventData{
		From:   from,
		To:     to,
		Amount: amount.Dec(),
		Memo:   memo,
	})
	p.logger.Info("shares transferred",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Stringer("amount", amount),
	)
	return nil
}

// DrainEvents returns the events recorded since the last call.
func (p *Pool) DrainEvents() []model.PoolEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.drainEvents()
}

func (p *Pool) drainEvents() []model.PoolEvent {
	events := p.events
	p.events = nil
	return events
}

func (p *Pool) emit(name string, data interface{}) {
	p.seq++
	p.events = append(p.events, model.PoolEvent{
		PoolID:    p.cfg.ID,
		Seq:       p.seq,
		EventName: name,
		Timestamp: p.cfg.Now().UTC(),
		Data:      data,
	})
}

func (p *Pool) requireInitialized() error {
	if !p.initialized {
		return ErrNotInitialized
	}
	return nil
}

// slotOf maps an asset id to its slot.
func (p *Pool) slotOf(asset model.AssetID) (model.Slot, error) {
	if !p.initialized {
		return 0, ErrNotInitialized
	}
	switch asset {
	case p.meta.AssetA:
		return model.SlotA, nil
	case p.meta.AssetB:
		return model.SlotB, nil
	default:
		return 0, fmt.Errorf("asset %s: %w", asset, ErrNotSupported)
	}
}

func (p *Pool) tableOf(asset model.AssetID) (*ledger.Ledger, error) {
	if p.initialized && asset == model.AssetID(p.cfg.ID) {
		return p.shares, nil
	}
	slot, err := p.slotOf(asset)
	if err != nil {
		return nil, err
	}
	return p.tables[slot], nil
}

func (p *Pool) allTables() []*ledger.Ledger {
	return []*ledger.Ledger{p.tables[model.SlotA], p.tables[model.SlotB], p.shares}
}

func (p *Pool) registerAll(account model.AccountID) bool {
	created := false
	for _, table := range p.allTables() {
		if table.Register(account) {
			created = true
		}
	}
	return created
}

// available is the balance not reserved by in-flight withdrawals.
func (p *Pool) available(slot model.Slot, account model.AccountID) *uint256.Int {
	balance := p.tables[slot].BalanceOf(account)
	held := p.holds[slot][account]
	if held == nil {
		return balance
	}
	if balance.Lt(held) {
		return new(uint256.Int)
	}
	return balance.Sub(balance, held)
}

func (p *Pool) requireAvailable(slot model.Slot, account model.AccountID, amount *uint256.Int) error {
	table := p.tables[slot]
	if !table.IsRegistered(account) {
		return ledgerError(table, account, ledger.ErrNotRegistered)
	}
	if p.available(slot, account).Lt(amount) {
		return ledgerError(table, account, ledger.ErrInsufficientBalance)
	}
	return nil
}

func ledgerError(table *ledger.Ledger, account model.AccountID, err error) error {
	return fmt.Errorf("%s ledger, account %s: %w", table.Name(), account, err)
}

func (p *Pool) requireRoom(table *ledger.Ledger, amount *uint256.Int) error {
	total, overflow := new(uint256.Int).AddOverflow(table.TotalSupply(), amount)
	if overflow || !fixedpoint.Fits(total) {
		return fmt.Errorf("%s ledger: %w", table.Name(), ledger.ErrOverflow)
	}
	return nil
}

func (p *Pool) decimals() ([2]uint8, error) {
	return p.guard.Decimals()
}
