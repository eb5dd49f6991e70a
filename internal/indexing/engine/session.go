package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/replayer/internal/core/domain"
	"github.com/vietddude/replayer/internal/core/session"
	"github.com/vietddude/replayer/internal/indexing/metrics"
	"github.com/vietddude/replayer/internal/indexing/processor"
)

// run is the mutable state of one session, owned by the Start call.
type run struct {
	tracker        *session.Tracker
	start, end     uint64
	current        uint64
	processed      uint64
	failed         uint64
	lastCheckpoint *domain.Checkpoint
	startedAt      time.Time
	pctx           *processor.Context
	log            *slog.Logger
}

func (r *run) inProgress() domain.SessionStatus {
	return domain.StatusInProgress(r.current, r.processed, r.failed)
}

// lastLedger is the last ledger fully processed, or the start ledger when
// nothing was processed yet.
func (r *run) lastLedger() uint64 {
	if r.current > r.start {
		return r.current - 1
	}
	return r.start
}

// checkpoint saves a checkpoint covering everything up to ledger. A final
// checkpoint on the same ledger as the previous one replaces it.
func (e *Engine) checkpoint(ctx context.Context, r *run, ledger uint64, final bool) error {
	cp := domain.NewCheckpoint(r.tracker.SessionID(), ledger).
		WithStats(r.processed, r.failed).
		WithMetadata(domain.MetaMode, string(e.cfg.Mode))
	if e.cfg.Filter.Network != "" {
		cp.WithMetadata(domain.MetaNetwork, string(e.cfg.Filter.Network))
	}

	snapshot, err := e.builder.Snapshot()
	if err != nil {
		return err
	}
	cp.WithState(snapshot)

	kind := "periodic"
	if final {
		kind = "final"
		cp.WithMetadata(domain.MetaFinal, "true")
		if prev := r.lastCheckpoint; prev != nil && prev.LastLedger == ledger {
			cp.ID = prev.ID
			cp.CreatedAt = prev.CreatedAt
		}
		if e.cfg.Mode == domain.ModeVerification {
			if err := e.verify(ctx, r, cp); err != nil {
				return err
			}
		}
	}

	if err := e.store.Save(ctx, cp); err != nil {
		return domain.StorageError("save checkpoint", err)
	}
	r.lastCheckpoint = cp
	r.tracker.AttachCheckpoint(cp)
	metrics.CheckpointsSaved.WithLabelValues(kind).Inc()

	r.log.Info("Checkpoint saved",
		"checkpoint", cp.ID,
		"kind", kind,
		"last_ledger", ledger,
		"processed", r.processed,
		"failed", r.failed,
	)
	return nil
}

// stateReader is implemented by builders that can read back the state
// already persisted in their sink.
type stateReader interface {
	Stored(ctx context.Context) ([]byte, error)
}

// verify compares the replayed state with the persisted one and records
// the outcome in the checkpoint metadata.
func (e *Engine) verify(ctx context.Context, r *run, cp *domain.Checkpoint) error {
	reader, ok := e.builder.(stateReader)
	if !ok {
		cp.WithMetadata(domain.MetaVerification, "unsupported")
		return nil
	}

	stored, err := reader.Stored(ctx)
	if err != nil {
		return domain.StorageError("read persisted state", err)
	}

	outcome := "match"
	switch {
	case stored == nil:
		outcome = "missing"
	case domain.HashState(stored) != cp.StateHash():
		outcome = "mismatch"
		metrics.VerificationMismatches.Inc()
	}
	cp.WithMetadata(domain.MetaVerification, outcome)

	level := slog.LevelInfo
	if outcome != "match" {
		level = slog.LevelWarn
	}
	r.log.Log(ctx, level, "State verification finished",
		"result", outcome,
		"replayed_hash", cp.StateHash(),
	)
	return nil
}

// finish writes the final checkpoint, persists the state and completes
// the session.
func (e *Engine) finish(ctx context.Context, r *run) error {
	if err := e.checkpoint(ctx, r, r.end, true); err != nil {
		return err
	}

	if e.cfg.CommitsState() && e.cfg.Mode == domain.ModeFull {
		if err := e.builder.PersistState(ctx); err != nil {
			return domain.StorageError("persist state", err)
		}
	}

	duration := time.Since(r.startedAt)
	status := domain.StatusCompleted(r.processed, r.failed, duration)
	if err := r.tracker.Transition(ctx, status, "range replayed"); err != nil {
		return domain.StorageError("persist session", err)
	}
	e.notify(r.tracker)
	metrics.SessionCurrentLedger.DeleteLabelValues(r.tracker.SessionID())

	r.log.Info("Replay completed",
		"processed", r.processed,
		"failed", r.failed,
		"duration", duration,
	)
	return nil
}

// fail persists the Failed status and returns cause. The status is saved
// even when ctx is already canceled.
func (e *Engine) fail(ctx context.Context, r *run, cause error) (*domain.ReplayMetadata, error) {
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	last := r.lastLedger()
	r.log.Error("Replay failed", "last_ledger", last, "error", cause)

	status := domain.StatusFailed(cause, last)
	status.EventsProcessed = r.processed
	status.EventsFailed = r.failed
	if err := r.tracker.Transition(persistCtx, status, "replay failed"); err != nil {
		if errors.Is(err, session.ErrInvalidTransition) {
			return r.tracker.Metadata(), cause
		}
		return r.tracker.Metadata(), fmt.Errorf("%w (also failed to persist status: %v)", cause, err)
	}
	e.notify(r.tracker)
	metrics.SessionCurrentLedger.DeleteLabelValues(r.tracker.SessionID())
	return r.tracker.Metadata(), cause
}

// waitIfPaused blocks at a batch boundary while a pause is requested.
func (e *Engine) waitIfPaused(ctx context.Context, r *run) error {
	paused, resumed := e.pause.state()
	if !paused {
		return nil
	}

	status := domain.StatusPaused(r.lastLedger(), r.processed, r.failed)
	if err := r.tracker.Transition(ctx, status, "pause requested"); err != nil {
		return domain.StorageError("persist session", err)
	}
	e.notify(r.tracker)
	r.log.Info("Replay paused", "last_ledger", status.LastLedger)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-resumed:
	}

	if err := r.tracker.Transition(ctx, r.inProgress(), "resumed"); err != nil {
		return domain.StorageError("persist session", err)
	}
	e.notify(r.tracker)
	r.log.Info("Replay resumed", "ledger", r.current)
	return nil
}

// pauseFlag is the cooperative pause signal checked between batches.
type pauseFlag struct {
	mu      sync.Mutex
	paused  bool
	resumed chan struct{}
}

func newPauseFlag() *pauseFlag {
	return &pauseFlag{resumed: make(chan struct{})}
}

func (f *pauseFlag) set() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.paused {
		f.paused = true
		f.resumed = make(chan struct{})
	}
}

func (f *pauseFlag) clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.paused {
		f.paused = false
		close(f.resumed)
	}
}

func (f *pauseFlag) state() (bool, <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused, f.resumed
}
