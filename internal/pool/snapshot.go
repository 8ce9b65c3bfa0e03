package pool

import (
	"fmt"

	"go.uber.org/zap"

	"ammpool/internal/ledger"
	"ammpool/internal/metadata"
	"ammpool/internal/model"
)

// Snapshot returns the persisted form of the pool. Pending events are not
// part of it.
func (p *Pool) Snapshot() model.PoolSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot()
}

// Checkpoint returns the snapshot together with the events drained since the
// last drain. The last drained event carries the snapshot's EventSeq.
func (p *Pool) Checkpoint() (model.PoolSnapshot, []model.PoolEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot(), p.drainEvents()
}

func (p *Pool) snapshot() model.PoolSnapshot {
	metaA, metaB := p.guard.Export()
	return model.PoolSnapshot{
		Version:       model.SnapshotVersion,
		Initialized:   p.initialized,
		Meta:          p.meta,
		OpenLiquidity: p.cfg.OpenLiquidity,
		MetadataA:     metaA,
		MetadataB:     metaB,
		LedgerA:       p.tables[model.SlotA].Export(),
		LedgerB:       p.tables[model.SlotB].Export(),
		Shares:        p.shares.Export(),
		Withdrawals:   p.listWithdrawals(),
		EventSeq:      p.seq,
	}
}

// Restore replaces the state of an uninitialized pool with snap. On error
// the pool is left uninitialized.
func (p *Pool) Restore(snap model.PoolSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return fmt.Errorf("restore: %w", ErrAlreadyInitialized)
	}
	if snap.Version != model.SnapshotVersion {
		return fmt.Errorf("%w: snapshot version %d, want %d", model.ErrConfiguration, snap.Version, model.SnapshotVersion)
	}
	if !snap.Initialized {
		p.seq = snap.EventSeq
		return nil
	}
	if snap.Meta.PoolID != p.cfg.ID {
		return fmt.Errorf("%w: snapshot of pool %s loaded into %s", model.ErrConfiguration, snap.Meta.PoolID, p.cfg.ID)
	}

	if err := p.restore(snap); err != nil {
		p.reset()
		return fmt.Errorf("restore: %w", err)
	}
	p.logger.Debug("pool restored",
		zap.Int("withdrawals", len(p.order)),
		zap.Uint64("event_seq", p.seq),
	)
	return nil
}

func (p *Pool) restore(snap model.PoolSnapshot) error {
	if err := p.checkIdentity(snap.Meta.Owner, snap.Meta.AssetA, snap.Meta.AssetB); err != nil {
		return fmt.Errorf("snapshot identity: %w", err)
	}
	guard, err := metadata.Restore(snap.MetadataA, snap.MetadataB)
	if err != nil {
		return err
	}
	tableA, err := ledger.Import(string(snap.Meta.AssetA), snap.LedgerA)
	if err != nil {
		return err
	}
	tableB, err := ledger.Import(string(snap.Meta.AssetB), snap.LedgerB)
	if err != nil {
		return err
	}
	shares, err := ledger.Import(string(snap.Meta.PoolID), snap.Shares)
	if err != nil {
		return err
	}

	p.meta = snap.Meta
	p.cfg.OpenLiquidity = snap.OpenLiquidity
	p.guard = guard
	p.tables = [2]*ledger.Ledger{tableA, tableB}
	p.shares = shares
	p.seq = snap.EventSeq
	p.initialized = true
	return p.restoreWithdrawals(snap.Withdrawals)
}
