// Package fixedpoint converts amounts between decimal precisions.
//
// All amounts are unsigned and bounded to 128 bits. Scaling down truncates,
// so a converted amount never exceeds its exact value.
package fixedpoint

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"ammpool/internal/model"
)

// MaxPow10 is the largest exponent with 10^n below 2^128.
const MaxPow10 = 38

// AmountBits is the width every stored amount must fit in.
const AmountBits = 128

// ErrOverflow is returned when a result does not fit in 128 bits.
var ErrOverflow = fmt.Errorf("%w: amount overflow", model.ErrValidation)

var pow10 [MaxPow10 + 1]uint256.Int

func init() {
	ten := uint256.NewInt(10)
	pow10[0].SetUint64(1)
	for i := 1; i <= MaxPow10; i++ {
		pow10[i].Mul(&pow10[i-1], ten)
	}
}

// Fits reports whether v fits in 128 bits.
func Fits(v *uint256.Int) bool {
	return v.BitLen() <= AmountBits
}

// Pow10 returns 10^n, failing when it does not fit in 128 bits.
func Pow10(n uint8) (*uint256.Int, error) {
	if int(n) > MaxPow10 {
		return nil, fmt.Errorf("10^%d: %w", n, ErrOverflow)
	}
	return new(uint256.Int).Set(&pow10[n]), nil
}

// ScaleUp returns value * 10^extra.
func ScaleUp(value *uint256.Int, extra uint8) (*uint256.Int, error) {
	if value.IsZero() {
		return new(uint256.Int), nil
	}
	factor, err := Pow10(extra)
	if err != nil {
		return nil, err
	}
	out, overflow := new(uint256.Int).MulOverflow(value, factor)
	if overflow || !Fits(out) {
		return nil, fmt.Errorf("scale %s by 10^%d: %w", value.Dec(), extra, ErrOverflow)
	}
	return out, nil
}

// ScaleDown returns value / 10^decimals, truncating.
func ScaleDown(value *uint256.Int, decimals uint8) *uint256.Int {
	if int(decimals) > MaxPow10 {
		// value < 2^128 < 10^39
		return new(uint256.Int)
	}
	return new(uint256.Int).Div(value, &pow10[decimals])
}

// CommonScale is the precision two assets are compared at.
func CommonScale(a, b uint8) uint8 {
	return max(a, b)
}

// Normalize lifts value from precision `from` to precision `to`. It only
// scales up; `to` must not be below `from`.
func Normalize(value *uint256.Int, from, to uint8) (*uint256.Int, error) {
	if to < from {
		return nil, fmt.Errorf("%w: cannot normalize from %d to %d decimals", model.ErrInvariant, from, to)
	}
	return ScaleUp(value, to-from)
}

// Denormalize brings value from precision `from` down to precision `to`,
// truncating.
func Denormalize(value *uint256.Int, from, to uint8) (*uint256.Int, error) {
	if to > from {
		return nil, fmt.Errorf("%w: cannot denormalize from %d to %d decimals", model.ErrInvariant, from, to)
	}
	return ScaleDown(value, from-to), nil
}

// Parse reads a base-10 amount and checks the 128-bit bound.
func Parse(input string) (*uint256.Int, error) {
	if input == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(input)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid amount %q", model.ErrValidation, input)
	}
	if !Fits(v) {
		return nil, fmt.Errorf("parse %s: %w", input, ErrOverflow)
	}
	return v, nil
}

// FormatUnits renders value with the given number of decimals, e.g.
// FormatUnits(25400, 3) == "25.400".
func FormatUnits(value *uint256.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.Dec()
	}
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat := new(big.Rat).SetFrac(value.ToBig(), denom)
	return rat.FloatString(int(decimals))
}
