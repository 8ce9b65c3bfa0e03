package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ammpool/internal/model"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS pool_snapshots (
	pool_id    TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	event_seq  BIGINT NOT NULL,
	snapshot   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS pool_events (
	pool_id    TEXT NOT NULL,
	seq        BIGINT NOT NULL,
	event_name TEXT NOT NULL,
	event_ts   TIMESTAMPTZ NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (pool_id, seq)
);
`

// Store provides Postgres persistence for pool snapshots and events.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// LoadSnapshot returns the snapshot stored for poolID.
func (s *Store) LoadSnapshot(ctx context.Context, poolID model.AccountID) (model.PoolSnapshot, bool, error) {
	if poolID == "" {
		return model.PoolSnapshot{}, false, fmt.Errorf("pool id required")
	}
	var raw []byte
	row := s.pool.QueryRow(ctx, `SELECT snapshot FROM pool_snapshots WHERE pool_id=$1`, string(poolID))
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PoolSnapshot{}, false, nil
		}
		return model.PoolSnapshot{}, false, err
	}
	var snap model.PoolSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return model.PoolSnapshot{}, false, fmt.Errorf("parse snapshot: %w", err)
	}
	return snap, true, nil
}

// SaveSnapshot upserts the snapshot of its pool.
func (s *Store) SaveSnapshot(ctx context.Context, snap model.PoolSnapshot) error {
	if snap.Meta.PoolID == "" {
		return fmt.Errorf("pool id required")
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO pool_snapshots (pool_id, version, event_seq, snapshot, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (pool_id) DO UPDATE
		SET version = EXCLUDED.version,
			event_seq = EXCLUDED.event_seq,
			snapshot = EXCLUDED.snapshot,
			updated_at = now()
	`, string(snap.Meta.PoolID), snap.Version, int64(snap.EventSeq), raw)
	return err
}

// PutEvents inserts events in one batch. Events already stored are
// skipped.
func (s *Store) PutEvents(ctx context.Context, events []model.PoolEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, event := range events {
		args, err := eventArgs(event)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO pool_events (pool_id, seq, event_name, event_ts, data, created_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (pool_id, seq) DO NOTHING
		`, args...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func eventArgs(event model.PoolEvent) ([]interface{}, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event %d: %w", event.EventName, event.Seq, err)
	}
	return []interface{}{
		string(event.PoolID),
		int64(event.Seq),
		event.EventName,
		event.Timestamp,
		data,
	}, nil
}
