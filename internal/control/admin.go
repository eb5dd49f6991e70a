package control

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/vietddude/replayer/internal/core/config"
	"github.com/vietddude/replayer/internal/core/domain"
	"github.com/vietddude/replayer/internal/core/worker"
)

const importBatchSize = 500

// Session loads the metadata of one session.
func (r *Replayer) Session(ctx context.Context, sessionID string) (*domain.ReplayMetadata, error) {
	meta, err := r.stores.Checkpoints.LoadMetadata(ctx, sessionID)
	if err != nil {
		return nil, domain.StorageError("load session", err)
	}
	if meta == nil {
		return nil, domain.NotFoundError("session", sessionID)
	}
	return meta, nil
}

// ListSessions returns up to limit sessions, most recent first.
func (r *Replayer) ListSessions(ctx context.Context, limit int) ([]*domain.ReplayMetadata, error) {
	sessions, err := r.stores.Checkpoints.ListSessions(ctx, limit)
	if err != nil {
		return nil, domain.StorageError("list sessions", err)
	}
	return sessions, nil
}

// Checkpoints returns a session's checkpoints, newest first.
func (r *Replayer) Checkpoints(ctx context.Context, sessionID string) ([]*domain.Checkpoint, error) {
	cps, err := r.stores.Checkpoints.ListForSession(ctx, sessionID)
	if err != nil {
		return nil, domain.StorageError("list checkpoints", err)
	}
	return cps, nil
}

// DeleteSession removes a session and all of its checkpoints.
func (r *Replayer) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := r.Session(ctx, sessionID); err != nil {
		return err
	}
	if err := r.stores.Checkpoints.DeleteForSession(ctx, sessionID); err != nil {
		return domain.StorageError("delete checkpoints", err)
	}
	if err := r.stores.Checkpoints.DeleteSession(ctx, sessionID); err != nil {
		return domain.StorageError("delete session", err)
	}
	r.log.Info("Deleted session", "session", sessionID)
	return nil
}

// FailedEvents lists the events a session gave up on.
func (r *Replayer) FailedEvents(ctx context.Context, sessionID string) ([]*domain.FailedEvent, error) {
	failed, err := r.stores.Failures.ListForSession(ctx, sessionID)
	if err != nil {
		return nil, domain.StorageError("list failed events", err)
	}
	return failed, nil
}

// Cleanup removes checkpoints older than retention across sessions.
func (r *Replayer) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, domain.ConfigError("retention must be positive, got %s", retention)
	}
	cfg := config.CheckpointsConfig{Retention: retention}
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	pruner := worker.NewPruner(cfg, r.stores.Checkpoints)
	deleted, err := pruner.Cleanup(ctx)
	if err != nil {
		return 0, domain.StorageError("cleanup checkpoints", err)
	}
	return deleted, nil
}

// ImportEvents reads newline-delimited JSON contract events and stores
// them in batches. Events whose id already exists are ignored by the store.
func (r *Replayer) ImportEvents(ctx context.Context, in io.Reader) (int, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		batch []*domain.ContractEvent
		total int
		line  int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := r.stores.Events.StoreEvents(ctx, batch); err != nil {
			return domain.StorageError("store events", err)
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev domain.ContractEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return total, fmt.Errorf("line %d: %w", line, err)
		}
		if ev.ID == "" {
			return total, fmt.Errorf("line %d: event id is required", line)
		}
		batch = append(batch, &ev)
		if len(batch) >= importBatchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return total, fmt.Errorf("failed to read events: %w", err)
	}
	if err := flush(); err != nil {
		return total, err
	}
	r.log.Info("Imported events", "count", total)
	return total, nil
}
