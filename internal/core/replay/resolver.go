// Package replay resolves declarative replay ranges into concrete ledger
// bounds against the event and checkpoint stores.
package replay

import (
	"context"
	"fmt"

	"github.com/vietddude/replayer/internal/core/domain"
	"github.com/vietddude/replayer/internal/infra/storage"
)

// Bounds is an inclusive ledger range. Empty is set when there is nothing
// to replay (an empty store or a checkpoint past the latest ledger).
type Bounds struct {
	Start      uint64
	End        uint64
	Empty      bool
	Checkpoint *domain.Checkpoint // the checkpoint resumed from, if any
}

// Resolver computes replay bounds.
type Resolver struct {
	events      storage.EventRepository
	checkpoints storage.CheckpointRepository
}

func NewResolver(events storage.EventRepository, checkpoints storage.CheckpointRepository) *Resolver {
	return &Resolver{events: events, checkpoints: checkpoints}
}

// Resolve loads the latest ledger, and the checkpoint for FromCheckpoint
// ranges, and resolves r. A missing checkpoint yields ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, rng domain.Range) (Bounds, error) {
	var (
		cp               *domain.Checkpoint
		checkpointLedger *uint64
	)
	if rng.Kind == domain.RangeFromCheckpoint {
		loaded, err := r.checkpoints.Load(ctx, rng.CheckpointID)
		if err != nil {
			return Bounds{}, domain.StorageError("load checkpoint", err)
		}
		if loaded == nil {
			return Bounds{}, domain.NotFoundError("checkpoint", rng.CheckpointID)
		}
		cp = loaded
		checkpointLedger = &loaded.LastLedger
	}

	latest, ok, err := r.events.GetLatestLedger(ctx)
	if err != nil {
		return Bounds{}, domain.StorageError("get latest ledger", err)
	}

	start, found := rng.StartLedger(latest, checkpointLedger)
	if !found {
		return Bounds{}, fmt.Errorf("cannot resolve start ledger for range %s", rng)
	}
	end, found := rng.EndLedger(latest)
	if !found {
		return Bounds{}, fmt.Errorf("cannot resolve end ledger for range %s", rng)
	}

	// A checkpoint records the last ledger it fully covered.
	if cp != nil {
		start = cp.LastLedger + 1
	}

	bounds := Bounds{Start: start, End: end, Checkpoint: cp}
	if start > end {
		bounds.Empty = true
	}
	if !ok && rangeNeedsLatest(rng.Kind) {
		bounds.Empty = true
	}
	return bounds, nil
}

// rangeNeedsLatest reports whether the range end depends on the latest ledger.
func rangeNeedsLatest(kind domain.RangeKind) bool {
	switch kind {
	case domain.RangeTo, domain.RangeFromTo:
		return false
	default:
		return true
	}
}
