package model

// PoolMeta captures the immutable identity of a pool.
type PoolMeta struct {
	PoolID AccountID `json:"pool_id"`
	Owner  AccountID `json:"owner"`
	AssetA AssetID   `json:"asset_a"`
	AssetB AssetID   `json:"asset_b"`
}

// Asset returns the asset configured for a slot.
func (m PoolMeta) Asset(slot Slot) AssetID {
	if slot == SlotB {
		return m.AssetB
	}
	return m.AssetA
}
