// Package engine drives replay sessions: it resolves the ledger range,
// processes events batch by batch, writes checkpoints and persists the
// session state machine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/replayer/internal/core/domain"
	"github.com/vietddude/replayer/internal/core/replay"
	"github.com/vietddude/replayer/internal/core/session"
	"github.com/vietddude/replayer/internal/indexing/metrics"
	"github.com/vietddude/replayer/internal/indexing/processor"
	"github.com/vietddude/replayer/internal/indexing/recovery"
	"github.com/vietddude/replayer/internal/indexing/state"
	"github.com/vietddude/replayer/internal/infra/storage"
)

// ErrAlreadyRunning is returned by Start while another session runs.
var ErrAlreadyRunning = errors.New("replay session already running")

const persistTimeout = 10 * time.Second

// Deps are the collaborators of an Engine.
type Deps struct {
	Events     storage.EventRepository
	Store      storage.CheckpointStore
	Dispatcher *processor.Dispatcher
	State      state.Builder
	Failures   *recovery.Handler            // optional failed-event journal
	OnSession  func(sessionID string)       // optional, called once the session is persisted
	OnStatus   func(*domain.ReplayMetadata) // optional, called after each persisted change
}

// Engine runs replay sessions for one config. Sessions run one at a time;
// each Start call creates a new session id.
type Engine struct {
	cfg        domain.ReplayConfig
	events     storage.EventRepository
	store      storage.CheckpointStore
	resolver   *replay.Resolver
	dispatcher *processor.Dispatcher
	builder    state.Builder
	failures   *recovery.Handler
	onSession  func(string)
	onStatus   func(*domain.ReplayMetadata)
	pause      *pauseFlag
	log        *slog.Logger

	mu        sync.Mutex
	running   bool
	sessionID string
	tracker   *session.Tracker
}

// New validates cfg and creates an engine.
func New(cfg domain.ReplayConfig, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Events == nil || deps.Store == nil || deps.Dispatcher == nil {
		return nil, fmt.Errorf("engine requires an event store, a checkpoint store and a dispatcher")
	}
	builder := deps.State
	if builder == nil {
		builder = state.NewLedgerState(nil)
	}

	return &Engine{
		cfg:        cfg,
		events:     deps.Events,
		store:      deps.Store,
		resolver:   replay.NewResolver(deps.Events, deps.Store),
		dispatcher: deps.Dispatcher,
		builder:    builder,
		failures:   deps.Failures,
		onSession:  deps.OnSession,
		onStatus:   deps.OnStatus,
		pause:      newPauseFlag(),
		log:        slog.Default().With("component", "replay", "mode", cfg.Mode),
	}, nil
}

// Config returns the session config.
func (e *Engine) Config() domain.ReplayConfig {
	return e.cfg
}

// SessionID returns the id of the current or most recent session.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

// Pause asks the running session to pause at the next batch boundary.
func (e *Engine) Pause() {
	e.pause.set()
	e.log.Info("Pause requested", "session", e.SessionID())
}

// Resume releases a paused session. It also cancels a pause request that
// has not taken effect yet.
func (e *Engine) Resume() {
	e.pause.clear()
	e.log.Info("Resume requested", "session", e.SessionID())
}

// IsPauseRequested reports whether a pause is pending or in effect.
func (e *Engine) IsPauseRequested() bool {
	paused, _ := e.pause.state()
	return paused
}

// GetStatus loads the persisted metadata of the current session.
func (e *Engine) GetStatus(ctx context.Context) (*domain.ReplayMetadata, error) {
	id := e.SessionID()
	if id == "" {
		return nil, domain.NotFoundError("session", id)
	}
	meta, err := e.store.LoadMetadata(ctx, id)
	if err != nil {
		return nil, domain.StorageError("load session", err)
	}
	if meta == nil {
		return nil, domain.NotFoundError("session", id)
	}
	return meta, nil
}

// Start runs a new session to completion and returns its final metadata.
// Event failures are counted and journaled; storage failures and context
// cancellation end the session as Failed and are returned.
func (e *Engine) Start(ctx context.Context) (*domain.ReplayMetadata, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	e.running = true
	sessionID := uuid.NewString()
	tracker := session.NewTracker(e.store, sessionID, e.cfg)
	e.sessionID = sessionID
	e.tracker = tracker
	e.mu.Unlock()

	defer func() {
		// A pause requested too late for this session must not hold the next one.
		e.pause.clear()
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()

	log := e.log.With("session", sessionID)
	tracker.SetStateChangeCallback(func(id string, t session.Transition) {
		metrics.SessionTransitions.WithLabelValues(string(t.From), string(t.To)).Inc()
		log.Info("Session state changed", "from", t.From, "to", t.To, "reason", t.Reason)
	})

	if err := tracker.Begin(ctx); err != nil {
		return nil, domain.StorageError("persist pending session", err)
	}
	e.notify(tracker)
	if e.onSession != nil {
		e.onSession(sessionID)
	}

	r := &run{
		tracker:   tracker,
		startedAt: time.Now(),
		pctx:      processor.ForReplay(sessionID, !e.cfg.CommitsState(), e.cfg.EventTimeout),
		log:       log,
	}

	if err := e.execute(ctx, r); err != nil {
		return e.fail(ctx, r, err)
	}
	return tracker.Metadata(), nil
}

func (e *Engine) execute(ctx context.Context, r *run) error {
	bounds, err := e.resolver.Resolve(ctx, e.cfg.Range)
	if err != nil {
		return err
	}
	r.start, r.end, r.current = bounds.Start, bounds.End, bounds.Start

	// Every session builds its state from scratch or from its checkpoint.
	var seed []byte
	if cp := bounds.Checkpoint; cp != nil {
		seed = cp.StateSnapshot
	}
	if err := e.builder.Restore(seed); err != nil {
		return fmt.Errorf("failed to seed state: %w", err)
	}
	if cp := bounds.Checkpoint; cp != nil {
		r.log.Info("Resuming from checkpoint", "checkpoint", cp.ID, "last_ledger", cp.LastLedger)
	}

	if err := r.tracker.Transition(ctx, domain.StatusInProgress(r.start, 0, 0), "range resolved"); err != nil {
		return domain.StorageError("persist session", err)
	}
	e.notify(r.tracker)

	r.log.Info("Replay started",
		"start", r.start,
		"end", r.end,
		"empty", bounds.Empty,
		"batch_size", e.cfg.BatchSize,
		"dry_run", r.pctx.DryRun,
	)

	if !bounds.Empty {
		if err := e.loop(ctx, r); err != nil {
			return err
		}
	}

	return e.finish(ctx, r)
}

func (e *Engine) loop(ctx context.Context, r *run) error {
	batchSize := uint64(e.cfg.BatchSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batchEnd := r.end
		if r.end-r.current >= batchSize-1 {
			batchEnd = r.current + batchSize - 1
		}

		events, err := e.fetchBatch(ctx, r.current, batchEnd)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if err := e.processEvent(ctx, r, ev); err != nil {
				return err
			}
		}

		batchStart := r.current
		r.current = batchEnd + 1
		if err := r.tracker.Progress(r.inProgress()); err != nil {
			return err
		}
		metrics.BatchesProcessed.WithLabelValues(string(e.cfg.Mode)).Inc()
		metrics.SessionCurrentLedger.WithLabelValues(r.tracker.SessionID()).Set(float64(r.current))
		r.log.Info("Batch processed",
			"from", batchStart,
			"to", batchEnd,
			"events", len(events),
			"processed", r.processed,
			"failed", r.failed,
		)

		if r.current%e.cfg.CheckpointInterval == 0 {
			if err := e.checkpoint(ctx, r, batchEnd, false); err != nil {
				return err
			}
		}

		if err := r.tracker.Save(ctx); err != nil {
			return domain.StorageError("persist session", err)
		}
		e.notify(r.tracker)

		if batchEnd >= r.end {
			return nil
		}

		if err := e.waitIfPaused(ctx, r); err != nil {
			return err
		}
	}
}

// processEvent runs one event through the dispatcher. Event failures are
// counted; only context cancellation is returned.
func (e *Engine) processEvent(ctx context.Context, r *run, ev *domain.ContractEvent) error {
	r.pctx.CurrentLedger = ev.LedgerSequence
	r.pctx.EventsProcessed = r.processed
	mode := string(e.cfg.Mode)

	res := e.dispatcher.ProcessWithRetry(ctx, ev, r.pctx, e.cfg.MaxRetries)
	if !res.Success && ctx.Err() != nil {
		return ctx.Err()
	}

	if res.Success && e.cfg.Mode.AppliesState() {
		if err := e.builder.ApplyEvent(ev); err != nil {
			res = processor.Failure(fmt.Errorf("apply state: %w", err))
			res.Attempts = 1
		}
	}

	if res.Success {
		r.processed++
		metrics.EventsProcessed.WithLabelValues(mode).Inc()
		if res.Skipped {
			metrics.EventsSkipped.WithLabelValues(mode).Inc()
		}
		if e.cfg.Verbose || e.cfg.Mode == domain.ModeDebug {
			r.log.Debug("Event processed",
				"event", ev.UniqueID(),
				"skipped", res.Skipped,
				"changes", len(res.Changes),
				"attempts", res.Attempts,
			)
		}
		return nil
	}

	r.failed++
	metrics.EventsFailed.WithLabelValues(mode).Inc()
	r.log.Warn("Event failed",
		"event", ev.UniqueID(),
		"ledger", ev.LedgerSequence,
		"attempts", res.Attempts,
		"error", res.Error,
	)
	if e.failures != nil && e.cfg.CommitsState() {
		if err := e.failures.HandleFailure(ctx, r.tracker.SessionID(), ev, res.Attempts, res.Error); err != nil {
			r.log.Error("Failed to journal failed event", "event", ev.ID, "error", err)
		}
	}
	return nil
}

// fetchBatch loads every matching event in [from, to], paging by
// BatchSize. Later pages continue strictly after the last (ledger, id)
// seen, compared by the store itself.
func (e *Engine) fetchBatch(ctx context.Context, from, to uint64) ([]*domain.ContractEvent, error) {
	limit := e.cfg.BatchSize
	page, err := e.events.GetEventsInRange(ctx, from, to, e.cfg.Filter, limit)
	if err != nil {
		return nil, domain.StorageError("fetch events", err)
	}

	out := page
	for len(page) == limit {
		last := page[len(page)-1]
		after := domain.EventPosition{Ledger: last.LedgerSequence, ID: last.ID}
		page, err = e.events.GetEventsAfter(ctx, after, to, e.cfg.Filter, limit)
		if err != nil {
			return nil, domain.StorageError("fetch events", err)
		}
		out = append(out, page...)
	}
	return out, nil
}

func (e *Engine) notify(t *session.Tracker) {
	if e.onStatus != nil {
		e.onStatus(t.Metadata())
	}
}
