package model

import "errors"

// Error categories. Concrete errors wrap exactly one of these.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrValidation    = errors.New("validation error")
	ErrLedger        = errors.New("ledger error")
	ErrExternal      = errors.New("external transfer error")
	ErrInvariant     = errors.New("invariant violation")
)
