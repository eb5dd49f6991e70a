package storage

import (
	"context"

	"github.com/vietddude/replayer/internal/core/domain"
)

// EventRepository is the append-only contract event log. Reads are ordered
// by (ledger_sequence, id), which is what makes replays deterministic.
type EventRepository interface {
	// StoreEvent inserts the event unless its id already exists
	StoreEvent(ctx context.Context, event *domain.ContractEvent) error

	// StoreEvents inserts a batch with the same insert-or-ignore rule
	StoreEvents(ctx context.Context, events []*domain.ContractEvent) error

	// GetEvent retrieves an event by id, nil if absent
	GetEvent(ctx context.Context, id string) (*domain.ContractEvent, error)

	// GetEventsInRange returns matching events with start <= ledger <= end,
	// at most limit of them (limit <= 0 means no cap)
	GetEventsInRange(
		ctx context.Context,
		start, end uint64,
		filter domain.EventFilter,
		limit int,
	) ([]*domain.ContractEvent, error)

	// GetEventsAfter continues a range read: matching events that sort
	// strictly after the position, with ledger <= end, at most limit
	GetEventsAfter(
		ctx context.Context,
		after domain.EventPosition,
		end uint64,
		filter domain.EventFilter,
		limit int,
	) ([]*domain.ContractEvent, error)

	// CountEventsInRange counts matching events without loading them
	CountEventsInRange(
		ctx context.Context,
		start, end uint64,
		filter domain.EventFilter,
	) (uint64, error)

	// GetLatestLedger returns the highest stored ledger; ok is false when empty
	GetLatestLedger(ctx context.Context) (ledger uint64, ok bool, err error)
}

// CheckpointRepository handles checkpoint persistence
type CheckpointRepository interface {
	// Save upserts a checkpoint by id
	Save(ctx context.Context, cp *domain.Checkpoint) error

	// Load retrieves a checkpoint by id, nil if absent
	Load(ctx context.Context, id string) (*domain.Checkpoint, error)

	// GetLatest returns the most recently created checkpoint of a session
	GetLatest(ctx context.Context, sessionID string) (*domain.Checkpoint, error)

	// ListForSession returns a session's checkpoints, newest first
	ListForSession(ctx context.Context, sessionID string) ([]*domain.Checkpoint, error)

	// Delete removes one checkpoint
	Delete(ctx context.Context, id string) error

	// DeleteForSession removes all checkpoints of a session
	DeleteForSession(ctx context.Context, sessionID string) error

	// CleanupOld removes checkpoints created more than days ago, across sessions
	CleanupOld(ctx context.Context, days int) (int64, error)
}

// SessionRepository handles replay session metadata
type SessionRepository interface {
	// SaveMetadata upserts session metadata by session id
	SaveMetadata(ctx context.Context, meta *domain.ReplayMetadata) error

	// LoadMetadata retrieves session metadata, nil if absent
	LoadMetadata(ctx context.Context, sessionID string) (*domain.ReplayMetadata, error)

	// ListSessions returns up to limit sessions, most recently started first
	ListSessions(ctx context.Context, limit int) ([]*domain.ReplayMetadata, error)

	// DeleteSession removes session metadata
	DeleteSession(ctx context.Context, sessionID string) error
}

// CheckpointStore is the combined checkpoint and session store.
type CheckpointStore interface {
	CheckpointRepository
	SessionRepository
}

// MarkerRepository keeps the "already handled" markers processors use for
// idempotency. Markers are scoped by processor name.
type MarkerRepository interface {
	// IsProcessed reports whether the processor already handled the event key
	IsProcessed(ctx context.Context, processor, eventKey string) (bool, error)

	// MarkProcessed records the marker; marking twice is a no-op
	MarkProcessed(ctx context.Context, processor, eventKey string, ledger uint64) error
}

// SnapshotRepository stores snapshot records written by the snapshot processor
type SnapshotRepository interface {
	// GetSnapshot retrieves a snapshot by epoch, nil if absent
	GetSnapshot(ctx context.Context, epoch int64) (*domain.Snapshot, error)

	// SaveSnapshot inserts a snapshot
	SaveSnapshot(ctx context.Context, snapshot *domain.Snapshot) error
}

// FailedEventRepository journals events that failed after all retries
type FailedEventRepository interface {
	// Add records a failed event
	Add(ctx context.Context, fe *domain.FailedEvent) error

	// ListForSession returns a session's failures ordered by ledger
	ListForSession(ctx context.Context, sessionID string) ([]*domain.FailedEvent, error)

	// Count returns the number of failures for a session
	Count(ctx context.Context, sessionID string) (int, error)
}

// StateRepository stores materialized state documents by name
type StateRepository interface {
	// Write replaces the named document
	Write(ctx context.Context, name string, doc []byte) error

	// Read returns the named document, nil if absent
	Read(ctx context.Context, name string) ([]byte, error)
}
