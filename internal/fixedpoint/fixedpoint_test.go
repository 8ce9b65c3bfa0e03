package fixedpoint

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func TestScaleUp(t *testing.T) {
	got, err := ScaleUp(uint256.NewInt(86), 3)
	if err != nil {
		t.Fatalf("scale up: %v", err)
	}
	if got.Uint64() != 86_000 {
		t.Fatalf("scale up = %s, want 86000", got.Dec())
	}
}

func TestScaleDownTruncates(t *testing.T) {
	if got := ScaleDown(uint256.NewInt(25400), 3); got.Uint64() != 25 {
		t.Fatalf("scale down = %s, want 25", got.Dec())
	}
	if got := ScaleDown(uint256.NewInt(999), 3); !got.IsZero() {
		t.Fatalf("scale down = %s, want 0", got.Dec())
	}
	if got := ScaleDown(uint256.NewInt(12345), 200); !got.IsZero() {
		t.Fatalf("scale down by huge exponent = %s, want 0", got.Dec())
	}
}

func TestScaleUpOverflow(t *testing.T) {
	max128 := new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
	if _, err := ScaleUp(max128, 1); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := ScaleUp(uint256.NewInt(1), 39); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow for 10^39, got %v", err)
	}
	got, err := ScaleUp(new(uint256.Int), 255)
	if err != nil || !got.IsZero() {
		t.Fatalf("zero should scale to zero, got %v %v", got, err)
	}
	got, err = ScaleUp(uint256.NewInt(3), 38)
	if err != nil {
		t.Fatalf("3*10^38 fits in 128 bits: %v", err)
	}
	if got.Dec() != "300000000000000000000000000000000000000" {
		t.Fatalf("unexpected value %s", got.Dec())
	}
}

func TestNormalizeRoundTrip(t *testing.T) {
	scale := CommonScale(6, 18)
	if scale != 18 {
		t.Fatalf("common scale = %d", scale)
	}
	up, err := Normalize(uint256.NewInt(1_500_000), 6, scale)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	down, err := Denormalize(up, scale, 6)
	if err != nil {
		t.Fatalf("denormalize: %v", err)
	}
	if down.Uint64() != 1_500_000 {
		t.Fatalf("round trip = %s", down.Dec())
	}
	if _, err := Normalize(up, 18, 6); err == nil {
		t.Fatalf("expected error when normalizing downwards")
	}
}

func TestParseAndFormat(t *testing.T) {
	v, err := Parse("25400")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := FormatUnits(v, 3); got != "25.400" {
		t.Fatalf("format = %s", got)
	}
	if got := FormatUnits(v, 0); got != "25400" {
		t.Fatalf("format = %s", got)
	}
	if _, err := Parse("-1"); err == nil {
		t.Fatalf("expected error for negative amount")
	}
	if _, err := Parse("340282366920938463463374607431768211456"); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow for 2^128, got %v", err)
	}
}
