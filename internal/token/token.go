// Package token is an in-memory fungible token. It backs simulations and
// tests of the pool as the external asset collaborator.
package token

import (
	"context"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ammpool/internal/ledger"
	"ammpool/internal/model"
)

// Receiver is notified when tokens are sent to it with TransferCall. It
// returns the amount it did not use, which is refunded to the sender.
type Receiver interface {
	OnDepositNotification(ctx context.Context, asset model.AssetID, sender model.AccountID, amount *uint256.Int, msg string) (*uint256.Int, error)
}

// TransferHook runs before every transfer. A non-nil error aborts the
// transfer.
type TransferHook func(from, to model.AccountID, amount *uint256.Int) error

// Token is a single fungible asset.
type Token struct {
	mu     sync.Mutex
	id     model.AssetID
	meta   model.TokenMeta
	ledger *ledger.Ledger
	hook   TransferHook
	logger *zap.Logger
}

func New(id model.AssetID, meta model.TokenMeta, logger *zap.Logger) *Token {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Token{
		id:     id,
		meta:   meta,
		ledger: ledger.New(string(id)),
		logger: logger.With(zap.String("token", string(id))),
	}
}

func (t *Token) ID() model.AssetID {
	return t.id
}

func (t *Token) Metadata() model.TokenMeta {
	return t.meta
}

// SetTransferHook installs h; nil removes it.
func (t *Token) SetTransferHook(h TransferHook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hook = h
}

// Register opens account. Registering twice is a no-op.
func (t *Token) Register(ctx context.Context, account model.AccountID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ledger.Register(account)
	return nil
}

// Mint creates amount new tokens for account.
func (t *Token) Mint(account model.AccountID, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ledger.Deposit(account, amount); err != nil {
		return fmt.Errorf("mint %s: %w", t.id, err)
	}
	return nil
}

func (t *Token) Transfer(ctx context.Context, from, to model.AccountID, amount *uint256.Int, memo string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transfer(from, to, amount, memo)
}

func (t *Token) transfer(from, to model.AccountID, amount *uint256.Int, memo string) error {
	if amount.IsZero() {
		return fmt.Errorf("transfer %s: %w: amount must be positive", t.id, model.ErrValidation)
	}
	if t.hook != nil {
		if err := t.hook(from, to, amount); err != nil {
			return fmt.Errorf("transfer %s: %w", t.id, err)
		}
	}
	if err := t.ledger.Transfer(from, to, amount); err != nil {
		return fmt.Errorf("transfer %s: %w", t.id, err)
	}
	t.logger.Debug("transfer",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Stringer("amount", amount),
		zap.String("memo", memo),
	)
	return nil
}

// TransferCall sends amount to receiverID and notifies receiver. Whatever
// the receiver reports as unused is sent back; if the receiver fails the
// whole amount is. It returns the amount the receiver kept.
func (t *Token) TransferCall(ctx context.Context, from, receiverID model.AccountID, receiver Receiver, amount *uint256.Int, msg string) (*uint256.Int, error) {
	t.mu.Lock()
	err := t.transfer(from, receiverID, amount, msg)
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}

	unused, notifyErr := receiver.OnDepositNotification(ctx, t.id, from, amount, msg)
	if notifyErr != nil || unused == nil {
		unused = amount
	}
	if unused.Gt(amount) {
		unused = amount
	}
	used := new(uint256.Int).Sub(amount, unused)

	if !unused.IsZero() {
		t.mu.Lock()
		// refunds bypass the hook
		refundErr := t.ledger.Transfer(receiverID, from, unused)
		t.mu.Unlock()
		if refundErr != nil {
			t.logger.Error("refund failed", zap.Stringer("amount", unused), zap.Error(refundErr))
			return used, fmt.Errorf("refund %s: %w", t.id, refundErr)
		}
	}
	if notifyErr != nil {
		return used, fmt.Errorf("notify %s: %w", receiverID, notifyErr)
	}
	return used, nil
}

func (t *Token) BalanceOf(ctx context.Context, account model.AccountID) (*uint256.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ledger.BalanceOf(account), nil
}

func (t *Token) TotalSupply() *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ledger.TotalSupply()
}
