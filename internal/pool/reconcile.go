package pool

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ammpool/internal/model"
)

// Reconciliation compares one asset table with the custody balance the
// external asset reports for the pool account.
type Reconciliation struct {
	Slot     model.Slot
	Asset    model.AssetID
	Issued   *uint256.Int
	External *uint256.Int
}

// Covered reports whether external custody backs every issued unit.
func (r Reconciliation) Covered() bool {
	return !r.External.Lt(r.Issued)
}

// Reconcile checks each bound asset. Slots without a bound asset are
// skipped.
func (p *Pool) Reconcile(ctx context.Context) ([]Reconciliation, error) {
	p.mu.Lock()
	if err := p.requireInitialized(); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	var pending []Reconciliation
	var assets []Asset
	for _, slot := range model.Slots {
		if p.assets[slot] == nil {
			continue
		}
		pending = append(pending, Reconciliation{
			Slot:   slot,
			Asset:  p.meta.Asset(slot),
			Issued: p.tables[slot].TotalSupply(),
		})
		assets = append(assets, p.assets[slot])
	}
	p.mu.Unlock()

	for i := range pending {
		balance, err := assets[i].BalanceOf(ctx, p.cfg.ID)
		if err != nil {
			return nil, fmt.Errorf("reconcile %s: %w", pending[i].Asset, err)
		}
		pending[i].External = balance
		fields := []zap.Field{
			zap.String("asset", string(pending[i].Asset)),
			zap.Stringer("issued", pending[i].Issued),
			zap.Stringer("external", balance),
		}
		if pending[i].Covered() {
			p.logger.Info("custody reconciled", fields...)
		} else {
			p.logger.Warn("custody below issued balance", fields...)
		}
	}
	return pending, nil
}
