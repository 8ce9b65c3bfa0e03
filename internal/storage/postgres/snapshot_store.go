package postgres

import (
	"context"

	"ammpool/internal/model"
)

// SnapshotStore stores one pool's snapshot in the pool_snapshots table.
type SnapshotStore struct {
	Store  *Store
	PoolID model.AccountID
}

func (s *SnapshotStore) Load(ctx context.Context) (model.PoolSnapshot, bool, error) {
	if s == nil || s.Store == nil {
		return model.PoolSnapshot{}, false, nil
	}
	return s.Store.LoadSnapshot(ctx, s.PoolID)
}

func (s *SnapshotStore) Save(ctx context.Context, snap model.PoolSnapshot) error {
	if s == nil || s.Store == nil {
		return nil
	}
	if snap.Meta.PoolID == "" {
		snap.Meta.PoolID = s.PoolID
	}
	return s.Store.SaveSnapshot(ctx, snap)
}
