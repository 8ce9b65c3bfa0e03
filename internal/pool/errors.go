package pool

import (
	"fmt"

	"ammpool/internal/curve"
	"ammpool/internal/model"
)

var (
	ErrNotInitialized     = fmt.Errorf("%w: pool is not initialized", model.ErrConfiguration)
	ErrAlreadyInitialized = fmt.Errorf("%w: already initialized", model.ErrConfiguration)
	ErrAssetNotBound      = fmt.Errorf("%w: no external asset bound", model.ErrConfiguration)

	ErrNotSupported     = fmt.Errorf("%w: not supported", model.ErrValidation)
	ErrSameAsset        = fmt.Errorf("%w: tokens can't be equal", model.ErrValidation)
	ErrInvalidAssets    = fmt.Errorf("%w: invalid pool assets", model.ErrValidation)
	ErrPermissionDenied = fmt.Errorf("%w: permission denied", model.ErrValidation)
	ErrZeroOutput       = fmt.Errorf("%w: zero output", model.ErrValidation)
	ErrZeroAmount       = curve.ErrZeroAmount

	ErrUnknownWithdrawal  = fmt.Errorf("%w: unknown withdrawal", model.ErrValidation)
	ErrWithdrawalResolved = fmt.Errorf("%w: withdrawal already resolved", model.ErrValidation)
	ErrPendingWithdrawal  = fmt.Errorf("%w: account has pending withdrawals", model.ErrLedger)

	ErrExternalTransferFailed = fmt.Errorf("%w: external transfer failed", model.ErrExternal)
)
