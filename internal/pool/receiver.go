package pool

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ammpool/internal/model"
)

// OnDepositNotification credits sender with an inbound transfer of asset.
// The sender is registered on first deposit. The whole amount is always
// accepted, so the unused amount returned is zero.
func (p *Pool) OnDepositNotification(ctx context.Context, asset model.AssetID, sender model.AccountID, amount *uint256.Int, msg string) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireInitialized(); err != nil {
		return nil, err
	}
	slot, err := p.slotOf(asset)
	if err != nil {
		return nil, fmt.Errorf("deposit: %w", err)
	}
	if sender == "" {
		return nil, fmt.Errorf("deposit: %w: empty sender", model.ErrValidation)
	}
	if amount.IsZero() {
		return nil, fmt.Errorf("deposit: %w", ErrZeroAmount)
	}
	table := p.tables[slot]
	if err := p.requireRoom(table, amount); err != nil {
		return nil, fmt.Errorf("deposit: %w", err)
	}

	if p.registerAll(sender) {
		p.emit(model.EventAccountRegistered, model.AccountEventData{Account: sender})
	}
	if err := table.Deposit(sender, amount); err != nil {
		return nil, p.invariant("deposit", err)
	}

	p.emit(model.EventDeposit, model.DepositEventData{
		Asset:  asset,
		Sender: sender,
		Amount: amount.Dec(),
		Msg:    msg,
	})
	p.logger.Info("deposit received",
		zap.String("asset", string(asset)),
		zap.String("sender", string(sender)),
		zap.Stringer("amount", amount),
	)
	return new(uint256.Int), nil
}
