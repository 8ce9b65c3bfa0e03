package pool

import (
	"fmt"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ammpool/internal/curve"
	"ammpool/internal/ledger"
	"ammpool/internal/model"
)

type swapPlan struct {
	sell, buy  model.Slot
	reserveIn  *uint256.Int
	reserveOut *uint256.Int
	amountOut  *uint256.Int
}

// Swap sells amount of sellAsset for buyAsset on behalf of trader and
// returns the amount bought. Reserves are the custody balances at entry.
// The swap either applies completely or not at all.
func (p *Pool) Swap(trader model.AccountID, sellAsset, buyAsset model.AssetID, amount *uint256.Int) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	plan, err := p.planSwap(sellAsset, buyAsset, amount)
	if err != nil {
		return nil, fmt.Errorf("swap: %w", err)
	}
	custody := p.cfg.ID
	if trader == custody {
		return nil, fmt.Errorf("swap: trader %s: %w", trader, ErrPermissionDenied)
	}
	if err := p.requireAvailable(plan.sell, trader, amount); err != nil {
		return nil, fmt.Errorf("swap: %w", err)
	}
	if !p.tables[plan.buy].IsRegistered(trader) {
		return nil, fmt.Errorf("swap: %w", ledgerError(p.tables[plan.buy], trader, ledger.ErrNotRegistered))
	}
	if err := p.requireAvailable(plan.buy, custody, plan.amountOut); err != nil {
		return nil, fmt.Errorf("swap: %w", err)
	}

	if err := p.tables[plan.sell].Transfer(trader, custody, amount); err != nil {
		return nil, p.invariant("swap", err)
	}
	if err := p.tables[plan.buy].Transfer(custody, trader, plan.amountOut); err != nil {
		return nil, p.invariant("swap", err)
	}

	p.emit(model.EventSwap, model.SwapEventData{
		Trader:     trader,
		SellAsset:  sellAsset,
		BuyAsset:   buyAsset,
		AmountIn:   amount.Dec(),
		AmountOut:  plan.amountOut.Dec(),
		ReserveIn:  plan.reserveIn.Dec(),
		ReserveOut: plan.reserveOut.Dec(),
	})
	p.logger.Info("swap",
		zap.String("trader", string(trader)),
		zap.String("sell", string(sellAsset)),
		zap.String("buy", string(buyAsset)),
		zap.Stringer("amount_in", amount),
		zap.Stringer("amount_out", plan.amountOut),
	)
	return plan.amountOut, nil
}

// Quote prices a swap against the current reserves without applying it.
func (p *Pool) Quote(sellAsset, buyAsset model.AssetID, amount *uint256.Int) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	plan, err := p.planSwap(sellAsset, buyAsset, amount)
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}
	return plan.amountOut, nil
}

func (p *Pool) planSwap(sellAsset, buyAsset model.AssetID, amount *uint256.Int) (swapPlan, error) {
	if err := p.requireInitialized(); err != nil {
		return swapPlan{}, err
	}
	if sellAsset == buyAsset {
		return swapPlan{}, ErrSameAsset
	}
	sell, err := p.slotOf(sellAsset)
	if err != nil {
		return swapPlan{}, err
	}
	buy, err := p.slotOf(buyAsset)
	if err != nil {
		return swapPlan{}, err
	}
	decimals, err := p.decimals()
	if err != nil {
		return swapPlan{}, err
	}
	if amount.IsZero() {
		return swapPlan{}, ErrZeroAmount
	}

	custody := p.cfg.ID
	plan := swapPlan{
		sell:       sell,
		buy:        buy,
		reserveIn:  p.tables[sell].BalanceOf(custody),
		reserveOut: p.tables[buy].BalanceOf(custody),
	}
	dy, err := curve.QuoteScaled(
		curve.Side{Reserve: plan.reserveIn, Decimals: decimals[sell]},
		curve.Side{Reserve: plan.reserveOut, Decimals: decimals[buy]},
		amount,
	)
	if err != nil {
		return swapPlan{}, err
	}
	if dy.IsZero() {
		return swapPlan{}, fmt.Errorf("sell %s %s: %w", amount.Dec(), sellAsset, ErrZeroOutput)
	}
	plan.amountOut = dy
	return plan, nil
}
