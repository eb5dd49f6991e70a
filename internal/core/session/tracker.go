package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/replayer/internal/core/domain"
	"github.com/vietddude/replayer/internal/infra/storage"
)

const historySize = 10

// Tracker owns the metadata of one replay session and persists it through
// a SessionRepository. It is safe for concurrent readers; the engine is the
// only writer.
type Tracker struct {
	repo          storage.SessionRepository
	mu            sync.RWMutex
	meta          *domain.ReplayMetadata
	history       []Transition
	stateCallback func(sessionID string, t Transition)
}

// NewTracker creates a Pending session. Nothing is persisted until Begin.
func NewTracker(repo storage.SessionRepository, sessionID string, cfg domain.ReplayConfig) *Tracker {
	return &Tracker{
		repo: repo,
		meta: &domain.ReplayMetadata{
			SessionID: sessionID,
			Config:    cfg,
			Status:    domain.StatusPending(),
			StartedAt: time.Now().UTC(),
		},
	}
}

// SessionID returns the id of the tracked session.
func (t *Tracker) SessionID() string {
	return t.meta.SessionID
}

// Begin persists the initial Pending metadata.
func (t *Tracker) Begin(ctx context.Context) error {
	return t.Save(ctx)
}

// Transition moves the session to a new state and persists it.
func (t *Tracker) Transition(ctx context.Context, status domain.SessionStatus, reason string) error {
	t.mu.Lock()
	from := t.meta.Status.State
	if !CanTransition(from, status.State) {
		t.mu.Unlock()
		return fmt.Errorf(
			"%w: cannot transition from %s to %s",
			ErrInvalidTransition,
			from,
			status.State,
		)
	}

	transition := NewTransition(from, status.State, reason)
	t.meta.Status = status
	if status.IsTerminal() {
		ended := time.Now().UTC()
		t.meta.EndedAt = &ended
	}
	if len(t.history) >= historySize {
		copy(t.history, t.history[1:])
		t.history[len(t.history)-1] = transition
	} else {
		t.history = append(t.history, transition)
	}
	callback := t.stateCallback
	t.mu.Unlock()

	if callback != nil {
		callback(t.meta.SessionID, transition)
	}
	return t.Save(ctx)
}

// Progress updates an InProgress status in memory without persisting it.
func (t *Tracker) Progress(status domain.SessionStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.meta.Status.State != domain.SessionInProgress || status.State != domain.SessionInProgress {
		return fmt.Errorf(
			"%w: progress update from %s to %s",
			ErrInvalidTransition,
			t.meta.Status.State,
			status.State,
		)
	}
	t.meta.Status = status
	return nil
}

// AttachCheckpoint records cp as the session's most recent checkpoint.
func (t *Tracker) AttachCheckpoint(cp *domain.Checkpoint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.meta.LastCheckpoint = cp.Clone()
}

// Save persists the current metadata.
func (t *Tracker) Save(ctx context.Context) error {
	snapshot := t.Metadata()
	if err := t.repo.SaveMetadata(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to save session metadata: %w", err)
	}
	return nil
}

// Metadata returns a copy of the current metadata.
func (t *Tracker) Metadata() *domain.ReplayMetadata {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.meta.Clone()
}

// Status returns the current status.
func (t *Tracker) Status() domain.SessionStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.meta.Status
}

// History returns the most recent transitions, oldest first.
func (t *Tracker) History() []Transition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Transition, len(t.history))
	copy(out, t.history)
	return out
}

// SetStateChangeCallback registers callback for state changes.
func (t *Tracker) SetStateChangeCallback(fn func(sessionID string, t Transition)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stateCallback = fn
}
