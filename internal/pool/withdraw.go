package pool

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ammpool/internal/fixedpoint"
	"ammpool/internal/model"
)

type pendingWithdrawal struct {
	record model.Withdrawal
	slot   model.Slot
	amount *uint256.Int
}

// WithdrawalTicket tracks a withdrawal whose external leg runs in the
// background.
type WithdrawalTicket struct {
	ID string

	done   chan struct{}
	record model.Withdrawal
	err    error
}

// Wait blocks until the withdrawal is resolved or ctx is done. Cancelling
// ctx does not cancel the withdrawal.
func (t *WithdrawalTicket) Wait(ctx context.Context) (model.Withdrawal, error) {
	select {
	case <-t.done:
		return t.record, t.err
	case <-ctx.Done():
		return model.Withdrawal{}, ctx.Err()
	}
}

// Withdraw returns amount of asset from custody to requester through the
// bound external asset. The requester's local balance is debited only
// after the external transfer succeeds; until then the amount is held.
func (p *Pool) Withdraw(ctx context.Context, requester model.AccountID, asset model.AssetID, amount *uint256.Int) (*WithdrawalTicket, error) {
	amount = new(uint256.Int).Set(amount)
	record, external, err := p.startWithdrawal(requester, asset, amount)
	if err != nil {
		return nil, err
	}

	ticket := &WithdrawalTicket{ID: record.ID, done: make(chan struct{})}
	legCtx := context.WithoutCancel(ctx)
	go func() {
		defer close(ticket.done)
		err := external.Transfer(legCtx, p.cfg.ID, requester, amount, "withdraw "+record.ID)
		ticket.err = p.CompleteWithdrawal(record.ID, model.ResultOf(err))
		ticket.record, _ = p.Withdrawal(record.ID)
	}()
	return ticket, nil
}

func (p *Pool) startWithdrawal(requester model.AccountID, asset model.AssetID, amount *uint256.Int) (model.Withdrawal, Asset, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	slot, err := p.checkWithdrawal(requester, asset, amount)
	if err != nil {
		return model.Withdrawal{}, nil, fmt.Errorf("withdraw: %w", err)
	}
	external := p.assets[slot]
	if external == nil {
		return model.Withdrawal{}, nil, fmt.Errorf("withdraw %s: %w", asset, ErrAssetNotBound)
	}
	pending := p.recordWithdrawal(requester, slot, amount)
	pending.record.Status = model.WithdrawalAwaiting
	return pending.record, external, nil
}

// RequestWithdrawal records a withdrawal and holds its amount without
// issuing the external transfer. The caller reports the transfer outcome
// with CompleteWithdrawal.
func (p *Pool) RequestWithdrawal(requester model.AccountID, asset model.AssetID, amount *uint256.Int) (model.Withdrawal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	slot, err := p.checkWithdrawal(requester, asset, amount)
	if err != nil {
		return model.Withdrawal{}, fmt.Errorf("request withdrawal: %w", err)
	}
	return p.recordWithdrawal(requester, slot, amount).record, nil
}

// CompleteWithdrawal applies the outcome of the external transfer of a
// pending withdrawal. Balances are re-read here; only the asset, amount and
// requester bound at request time are reused.
func (p *Pool) CompleteWithdrawal(id string, result model.TransferResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pending, ok := p.withdrawals[id]
	if !ok {
		return fmt.Errorf("complete withdrawal %s: %w", id, ErrUnknownWithdrawal)
	}
	if pending.record.Status.Terminal() {
		return fmt.Errorf("complete withdrawal %s: %w", id, ErrWithdrawalResolved)
	}
	log := p.logger.With(
		zap.String("request_id", id),
		zap.String("asset", string(pending.record.Asset)),
		zap.String("requester", string(pending.record.Requester)),
		zap.Stringer("amount", pending.amount),
	)
	data := model.WithdrawalEventData{
		RequestID: id,
		Asset:     pending.record.Asset,
		Requester: pending.record.Requester,
		Amount:    pending.record.Amount,
	}

	switch result.Outcome {
	case model.TransferSucceeded:
		table := p.tables[pending.slot]
		if table.BalanceOf(pending.record.Requester).Lt(pending.amount) {
			log.DPanic("held balance missing at finalization")
			return fmt.Errorf("%w: withdrawal %s exceeds the balance of %s", model.ErrInvariant, id, pending.record.Requester)
		}
		p.release(pending)
		if err := table.Withdraw(pending.record.Requester, pending.amount); err != nil {
			return p.invariant("finalize withdrawal", err)
		}
		p.resolve(pending, model.WithdrawalFinalized, "")
		p.emit(model.EventWithdrawalFinalized, data)
		log.Info("withdrawal finalized")
		return nil

	case model.TransferFailed:
		reason := "external transfer failed"
		if result.Err != nil {
			reason = result.Err.Error()
		}
		p.release(pending)
		p.resolve(pending, model.WithdrawalFailed, reason)
		data.Reason = reason
		p.emit(model.EventWithdrawalFailed, data)
		log.Warn("withdrawal failed, balance kept", zap.String("reason", reason))
		if result.Err != nil {
			return fmt.Errorf("withdrawal %s: %w: %w", id, ErrExternalTransferFailed, result.Err)
		}
		return fmt.Errorf("withdrawal %s: %w", id, ErrExternalTransferFailed)

	default:
		log.DPanic("withdrawal completed without a transfer result", zap.Error(result.Err))
		return fmt.Errorf("%w: withdrawal %s completed without a transfer result", model.ErrInvariant, id)
	}
}

// Withdrawal returns the record of one withdrawal.
func (p *Pool) Withdrawal(id string) (model.Withdrawal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pending, ok := p.withdrawals[id]
	if !ok {
		return model.Withdrawal{}, false
	}
	return pending.record, true
}

// Withdrawals lists every withdrawal in request order.
func (p *Pool) Withdrawals() []model.Withdrawal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listWithdrawals()
}

func (p *Pool) listWithdrawals() []model.Withdrawal {
	out := make([]model.Withdrawal, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.withdrawals[id].record)
	}
	return out
}

func (p *Pool) checkWithdrawal(requester model.AccountID, asset model.AssetID, amount *uint256.Int) (model.Slot, error) {
	if err := p.requireInitialized(); err != nil {
		return 0, err
	}
	slot, err := p.slotOf(asset)
	if err != nil {
		return 0, err
	}
	if amount.IsZero() {
		return 0, ErrZeroAmount
	}
	if requester == p.cfg.ID {
		return 0, fmt.Errorf("requester %s: %w", requester, ErrPermissionDenied)
	}
	if err := p.requireAvailable(slot, requester, amount); err != nil {
		return 0, err
	}
	return slot, nil
}

func (p *Pool) recordWithdrawal(requester model.AccountID, slot model.Slot, amount *uint256.Int) *pendingWithdrawal {
	pending := &pendingWithdrawal{
		record: model.Withdrawal{
			ID:          uuid.NewString(),
			Asset:       p.meta.Asset(slot),
			Requester:   requester,
			Amount:      amount.Dec(),
			Status:      model.WithdrawalRequested,
			RequestedAt: p.cfg.Now().UTC(),
		},
		slot:   slot,
		amount: new(uint256.Int).Set(amount),
	}
	p.withdrawals[pending.record.ID] = pending
	p.order = append(p.order, pending.record.ID)
	p.hold(pending)

	p.emit(model.EventWithdrawalRequested, model.WithdrawalEventData{
		RequestID: pending.record.ID,
		Asset:     pending.record.Asset,
		Requester: requester,
		Amount:    pending.record.Amount,
	})
	p.logger.Info("withdrawal requested",
		zap.String("request_id", pending.record.ID),
		zap.String("asset", string(pending.record.Asset)),
		zap.String("requester", string(requester)),
		zap.Stringer("amount", amount),
	)
	return pending
}

func (p *Pool) hold(pending *pendingWithdrawal) {
	holds := p.holds[pending.slot]
	requester := pending.record.Requester
	if held, ok := holds[requester]; ok {
		held.Add(held, pending.amount)
		return
	}
	holds[requester] = new(uint256.Int).Set(pending.amount)
}

func (p *Pool) release(pending *pendingWithdrawal) {
	holds := p.holds[pending.slot]
	requester := pending.record.Requester
	held, ok := holds[requester]
	if !ok {
		return
	}
	if held.Cmp(pending.amount) <= 0 {
		delete(holds, requester)
		return
	}
	held.Sub(held, pending.amount)
}

func (p *Pool) resolve(pending *pendingWithdrawal, status model.WithdrawalStatus, reason string) {
	now := p.cfg.Now().UTC()
	pending.record.Status = status
	pending.record.Reason = reason
	pending.record.ResolvedAt = &now
}

// restoreWithdrawals rebuilds pending records and holds from a snapshot.
func (p *Pool) restoreWithdrawals(records []model.Withdrawal) error {
	sorted := append([]model.Withdrawal(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RequestedAt.Before(sorted[j].RequestedAt)
	})
	for _, record := range sorted {
		if _, dup := p.withdrawals[record.ID]; dup {
			return fmt.Errorf("%w: duplicate withdrawal %s", model.ErrInvariant, record.ID)
		}
		slot, err := p.slotOf(record.Asset)
		if err != nil {
			return fmt.Errorf("restore withdrawal %s: %w", record.ID, err)
		}
		amount, err := fixedpoint.Parse(record.Amount)
		if err != nil {
			return fmt.Errorf("restore withdrawal %s: %w", record.ID, err)
		}
		pending := &pendingWithdrawal{record: record, slot: slot, amount: amount}
		p.withdrawals[record.ID] = pending
		p.order = append(p.order, record.ID)
		if !record.Status.Terminal() {
			p.hold(pending)
			if p.tables[slot].BalanceOf(record.Requester).Lt(p.holds[slot][record.Requester]) {
				return fmt.Errorf("%w: withdrawals of %s exceed its %s balance", model.ErrInvariant, record.Requester, record.Asset)
			}
		}
	}
	return nil
}

