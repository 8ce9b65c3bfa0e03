// Package curve prices swaps on a constant-product curve.
package curve

import (
	"fmt"

	"github.com/holiman/uint256"

	"ammpool/internal/fixedpoint"
	"ammpool/internal/model"
)

var (
	ErrEmptyReserves         = fmt.Errorf("%w: pool reserves are empty", model.ErrValidation)
	ErrZeroAmount            = fmt.Errorf("%w: amount must be positive", model.ErrValidation)
	ErrInsufficientLiquidity = fmt.Errorf("%w: insufficient liquidity", model.ErrValidation)
)

// Quote returns the output amount dy = y - (x*y)/(x+dx) for selling dx
// against reserves x (sell side) and y (buy side). Inputs must fit in 128
// bits; the product is computed in 256 bits.
func Quote(x, y, dx *uint256.Int) (*uint256.Int, error) {
	if x.IsZero() || y.IsZero() {
		return nil, ErrEmptyReserves
	}
	if dx.IsZero() {
		return nil, ErrZeroAmount
	}
	for _, v := range []*uint256.Int{x, y, dx} {
		if !fixedpoint.Fits(v) {
			return nil, fmt.Errorf("quote input %s: %w", v.Dec(), fixedpoint.ErrOverflow)
		}
	}

	// x*y < 2^256 and x+dx < 2^129 for 128-bit inputs.
	k := new(uint256.Int).Mul(x, y)
	denom := new(uint256.Int).Add(x, dx)
	yAfter := new(uint256.Int).Div(k, denom)
	if yAfter.IsZero() {
		return nil, fmt.Errorf("sell %s against reserve %s: %w", dx.Dec(), y.Dec(), ErrInsufficientLiquidity)
	}
	return new(uint256.Int).Sub(y, yAfter), nil
}

// Side is one reserve and its asset precision.
type Side struct {
	Reserve  *uint256.Int
	Decimals uint8
}

// QuoteScaled lifts both reserves and dx to the common precision of the two
// assets, quotes, and scales dy back down to the buy asset's precision.
func QuoteScaled(sell, buy Side, dx *uint256.Int) (*uint256.Int, error) {
	scale := fixedpoint.CommonScale(sell.Decimals, buy.Decimals)
	x, err := fixedpoint.Normalize(sell.Reserve, sell.Decimals, scale)
	if err != nil {
		return nil, fmt.Errorf("normalize sell reserve: %w", err)
	}
	y, err := fixedpoint.Normalize(buy.Reserve, buy.Decimals, scale)
	if err != nil {
		return nil, fmt.Errorf("normalize buy reserve: %w", err)
	}
	in, err := fixedpoint.Normalize(dx, sell.Decimals, scale)
	if err != nil {
		return nil, fmt.Errorf("normalize input: %w", err)
	}
	dy, err := Quote(x, y, in)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Denormalize(dy, scale, buy.Decimals)
}
