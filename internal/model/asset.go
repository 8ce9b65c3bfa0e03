package model

import (
	"fmt"
	"strings"
)

// AccountID identifies a ledger account.
type AccountID string

// AssetID identifies a fungible asset.
type AssetID string

// Slot selects one of the two pooled assets.
type Slot uint8

const (
	SlotA Slot = iota
	SlotB
)

// Slots lists both slots in order.
var Slots = [2]Slot{SlotA, SlotB}

// Other returns the opposite slot.
func (s Slot) Other() Slot {
	if s == SlotA {
		return SlotB
	}
	return SlotA
}

// Valid reports whether s is SlotA or SlotB.
func (s Slot) Valid() bool {
	return s == SlotA || s == SlotB
}

func (s Slot) String() string {
	switch s {
	case SlotA:
		return "a"
	case SlotB:
		return "b"
	default:
		return fmt.Sprintf("slot(%d)", uint8(s))
	}
}

// ParseSlot parses "a" or "b" (case-insensitive).
func ParseSlot(input string) (Slot, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "a":
		return SlotA, nil
	case "b":
		return SlotB, nil
	default:
		return 0, fmt.Errorf("%w: invalid slot %q", ErrValidation, input)
	}
}
