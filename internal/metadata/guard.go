package metadata

import (
	"fmt"

	"ammpool/internal/model"
)

var (
	ErrAlreadySet   = fmt.Errorf("%w: the token has metadata already set", model.ErrConfiguration)
	ErrSameToken    = fmt.Errorf("%w: same token is not acceptable", model.ErrConfiguration)
	ErrNoMetadata   = fmt.Errorf("%w: there is no metadata", model.ErrConfiguration)
	ErrNotInitiated = fmt.Errorf("%w: please init metadata of tokens", model.ErrConfiguration)
)

// Guard holds at most one write-once descriptor per slot.
type Guard struct {
	slots [2]*model.TokenMeta
}

// Set stores meta in slot. It fails if the slot is taken or if the other
// slot already holds a structurally equal descriptor.
func (g *Guard) Set(slot model.Slot, meta model.TokenMeta) error {
	if !slot.Valid() {
		return fmt.Errorf("%w: invalid slot %s", model.ErrValidation, slot)
	}
	if g.slots[slot] != nil {
		return fmt.Errorf("slot %s: %w", slot, ErrAlreadySet)
	}
	if other := g.slots[slot.Other()]; other != nil && other.SameToken(meta) {
		return fmt.Errorf("slot %s: %w", slot, ErrSameToken)
	}
	stored := meta
	g.slots[slot] = &stored
	return nil
}

// Get returns the descriptor of slot.
func (g *Guard) Get(slot model.Slot) (model.TokenMeta, error) {
	if !slot.Valid() {
		return model.TokenMeta{}, fmt.Errorf("%w: invalid slot %s", model.ErrValidation, slot)
	}
	if g.slots[slot] == nil {
		return model.TokenMeta{}, fmt.Errorf("slot %s: %w", slot, ErrNoMetadata)
	}
	return *g.slots[slot], nil
}

// IsSet reports whether slot holds a descriptor.
func (g *Guard) IsSet(slot model.Slot) bool {
	return slot.Valid() && g.slots[slot] != nil
}

// RequireBoth is the precondition of every liquidity and swap operation.
func (g *Guard) RequireBoth() error {
	if g.slots[model.SlotA] == nil || g.slots[model.SlotB] == nil {
		return ErrNotInitiated
	}
	return nil
}

// Decimals returns the decimal count of both slots.
func (g *Guard) Decimals() ([2]uint8, error) {
	if err := g.RequireBoth(); err != nil {
		return [2]uint8{}, err
	}
	return [2]uint8{g.slots[model.SlotA].Decimals, g.slots[model.SlotB].Decimals}, nil
}

// Export returns copies of both slots; nil means unset.
func (g *Guard) Export() (a, b *model.TokenMeta) {
	if g.slots[model.SlotA] != nil {
		m := *g.slots[model.SlotA]
		a = &m
	}
	if g.slots[model.SlotB] != nil {
		m := *g.slots[model.SlotB]
		b = &m
	}
	return a, b
}

// Restore rebuilds a guard from persisted slots, re-checking the
// duplicate-descriptor rule.
func Restore(a, b *model.TokenMeta) (*Guard, error) {
	g := &Guard{}
	if a != nil {
		if err := g.Set(model.SlotA, *a); err != nil {
			return nil, err
		}
	}
	if b != nil {
		if err := g.Set(model.SlotB, *b); err != nil {
			return nil, err
		}
	}
	return g, nil
}
