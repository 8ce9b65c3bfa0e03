package storage

import (
	"context"

	"ammpool/internal/model"
)

// SnapshotStore persists the state of one pool.
type SnapshotStore interface {
	Load(ctx context.Context) (model.PoolSnapshot, bool, error)
	Save(ctx context.Context, snap model.PoolSnapshot) error
}

// EventSink receives journal events in sequence order.
type EventSink interface {
	PutEvents(ctx context.Context, events []model.PoolEvent) error
}

// MultiSink writes to every sink in order and stops at the first error.
type MultiSink []EventSink

func (m MultiSink) PutEvents(ctx context.Context, events []model.PoolEvent) error {
	for _, sink := range m {
		if err := sink.PutEvents(ctx, events); err != nil {
			return err
		}
	}
	return nil
}
