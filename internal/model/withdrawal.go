package model

import (
	"errors"
	"fmt"
	"time"
)

// WithdrawalStatus is the state of a pending withdrawal.
type WithdrawalStatus string

const (
	WithdrawalRequested WithdrawalStatus = "requested"
	WithdrawalAwaiting  WithdrawalStatus = "awaiting_external_result"
	WithdrawalFinalized WithdrawalStatus = "finalized"
	WithdrawalFailed    WithdrawalStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalFinalized || s == WithdrawalFailed
}

// Withdrawal correlates a request with the outcome of its external transfer.
type Withdrawal struct {
	ID          string           `json:"id"`
	Asset       AssetID          `json:"asset"`
	Requester   AccountID        `json:"requester"`
	Amount      string           `json:"amount"`
	Status      WithdrawalStatus `json:"status"`
	Reason      string           `json:"reason,omitempty"`
	RequestedAt time.Time        `json:"requested_at"`
	ResolvedAt  *time.Time       `json:"resolved_at,omitempty"`
}

// TransferOutcome tags the result of an external transfer.
type TransferOutcome uint8

const (
	TransferNotReady TransferOutcome = iota
	TransferSucceeded
	TransferFailed
)

func (o TransferOutcome) String() string {
	switch o {
	case TransferSucceeded:
		return "succeeded"
	case TransferFailed:
		return "failed"
	default:
		return "not_ready"
	}
}

// TransferResult is what a withdrawal continuation receives.
type TransferResult struct {
	Outcome TransferOutcome
	Err     error
}

// ErrTransferNotReady is returned by an external asset that gave up waiting
// for a transfer to settle. The transfer may still land.
var ErrTransferNotReady = fmt.Errorf("%w: transfer result not ready", ErrExternal)

// ResultOf classifies the error returned by an external transfer.
func ResultOf(err error) TransferResult {
	switch {
	case err == nil:
		return TransferResult{Outcome: TransferSucceeded}
	case errors.Is(err, ErrTransferNotReady):
		return TransferResult{Outcome: TransferNotReady, Err: err}
	default:
		return TransferResult{Outcome: TransferFailed, Err: err}
	}
}
