package pool

import (
	"fmt"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ammpool/internal/fixedpoint"
	"ammpool/internal/ledger"
	"ammpool/internal/model"
)

// AddLiquidity moves amount of asset from caller into custody and credits
// caller with the same amount of pool shares. Unless the pool runs with
// open liquidity, caller must be the custody account, in which case no
// asset units move but custody must still hold amount. With open
// liquidity the custody account cannot add or remove liquidity.
func (p *Pool) AddLiquidity(caller model.AccountID, asset model.AssetID, amount *uint256.Int, memo string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	slot, err := p.checkLiquidity(caller, asset, amount)
	if err != nil {
		return fmt.Errorf("add liquidity: %w", err)
	}
	table := p.tables[slot]
	custody := p.cfg.ID
	if err := p.requireAvailable(slot, caller, amount); err != nil {
		return fmt.Errorf("add liquidity: %w", err)
	}
	if !p.shares.IsRegistered(caller) {
		return fmt.Errorf("add liquidity: %w", ledgerError(p.shares, caller, ledger.ErrNotRegistered))
	}
	if err := p.requireRoom(p.shares, amount); err != nil {
		return fmt.Errorf("add liquidity: %w", err)
	}

	if caller != custody {
		if err := table.Transfer(caller, custody, amount); err != nil {
			return p.invariant("add liquidity", err)
		}
	}
	if err := p.shares.Deposit(caller, amount); err != nil {
		return p.invariant("add liquidity", err)
	}

	meta, _ := p.guard.Get(slot)
	p.emit(model.EventLiquidityAdded, model.LiquidityEventData{
		Asset:    asset,
		Provider: caller,
		Amount:   amount.Dec(),
		Shares:   amount.Dec(),
		Memo:     memo,
	})
	p.logger.Info("liquidity added",
		zap.String("provider", string(caller)),
		zap.String("asset", string(asset)),
		zap.String("symbol", meta.Symbol),
		zap.Stringer("amount", amount),
		zap.String("units", fixedpoint.FormatUnits(amount, meta.Decimals)),
	)
	return nil
}

// RemoveLiquidity moves amount of asset from custody back to caller and
// burns the same amount of caller's pool shares.
func (p *Pool) RemoveLiquidity(caller model.AccountID, asset model.AssetID, amount *uint256.Int, memo string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	slot, err := p.checkLiquidity(caller, asset, amount)
	if err != nil {
		return fmt.Errorf("remove liquidity: %w", err)
	}
	table := p.tables[slot]
	custody := p.cfg.ID
	if p.shares.BalanceOf(caller).Lt(amount) {
		return fmt.Errorf("remove liquidity: %w", ledgerError(p.shares, caller, ledger.ErrInsufficientBalance))
	}
	if !table.IsRegistered(caller) {
		return fmt.Errorf("remove liquidity: %w", ledgerError(table, caller, ledger.ErrNotRegistered))
	}
	if err := p.requireAvailable(slot, custody, amount); err != nil {
		return fmt.Errorf("remove liquidity: %w", err)
	}

	if caller != custody {
		if err := table.Transfer(custody, caller, amount); err != nil {
			return p.invariant("remove liquidity", err)
		}
	}
	if err := p.shares.Withdraw(caller, amount); err != nil {
		return p.invariant("remove liquidity", err)
	}

	meta, _ := p.guard.Get(slot)
	p.emit(model.EventLiquidityRemoved, model.LiquidityEventData{
		Asset:    asset,
		Provider: caller,
		Amount:   amount.Dec(),
		Shares:   amount.Dec(),
		Memo:     memo,
	})
	p.logger.Info("liquidity removed",
		zap.String("provider", string(caller)),
		zap.String("asset", string(asset)),
		zap.String("symbol", meta.Symbol),
		zap.Stringer("amount", amount),
	)
	return nil
}

func (p *Pool) checkLiquidity(caller model.AccountID, asset model.AssetID, amount *uint256.Int) (model.Slot, error) {
	if err := p.requireInitialized(); err != nil {
		return 0, err
	}
	slot, err := p.slotOf(asset)
	if err != nil {
		return 0, err
	}
	if err := p.guard.RequireBoth(); err != nil {
		return 0, err
	}
	if p.cfg.OpenLiquidity == (caller == p.cfg.ID) {
		return 0, fmt.Errorf("caller %s: %w", caller, ErrPermissionDenied)
	}
	if amount.IsZero() {
		return 0, ErrZeroAmount
	}
	return slot, nil
}

// invariant reports a mutation that failed after every precondition held.
func (p *Pool) invariant(op string, err error) error {
	p.logger.DPanic("mutation failed after validation", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %s: %v", model.ErrInvariant, op, err)
}
