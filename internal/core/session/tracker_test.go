package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/replayer/internal/core/domain"
	"github.com/vietddude/replayer/internal/infra/storage"
)

// =============================================================================
// Mock Repository
// =============================================================================

type mockSessionRepo struct {
	storage.SessionRepository
	mu      sync.Mutex
	saved   []*domain.ReplayMetadata
	saveErr error
}

func (r *mockSessionRepo) SaveMetadata(ctx context.Context, meta *domain.ReplayMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saved = append(r.saved, meta.Clone())
	return nil
}

func (r *mockSessionRepo) last() *domain.ReplayMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.saved) == 0 {
		return nil
	}
	return r.saved[len(r.saved)-1]
}

func (r *mockSessionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

// =============================================================================
// State Transition Tests
// =============================================================================

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     State
		to       State
		expected bool
	}{
		{"pending to in progress", domain.SessionPending, domain.SessionInProgress, true},
		{"pending to failed", domain.SessionPending, domain.SessionFailed, true},
		{"pending to completed", domain.SessionPending, domain.SessionCompleted, false},
		{"in progress to paused", domain.SessionInProgress, domain.SessionPaused, true},
		{"in progress to completed", domain.SessionInProgress, domain.SessionCompleted, true},
		{"in progress to failed", domain.SessionInProgress, domain.SessionFailed, true},
		{"paused to in progress", domain.SessionPaused, domain.SessionInProgress, true},
		{"paused to completed", domain.SessionPaused, domain.SessionCompleted, false},
		{"completed to in progress", domain.SessionCompleted, domain.SessionInProgress, false},
		{"failed to in progress", domain.SessionFailed, domain.SessionInProgress, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CanTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
			if NewTransition(tt.from, tt.to, "test").IsValid() != tt.expected {
				t.Errorf("Transition.IsValid disagrees with CanTransition for %s -> %s", tt.from, tt.to)
			}
		})
	}
}

func TestStateDescription(t *testing.T) {
	for _, s := range []State{
		domain.SessionPending,
		domain.SessionInProgress,
		domain.SessionPaused,
		domain.SessionCompleted,
		domain.SessionFailed,
	} {
		if StateDescription(s) == "Unknown state" {
			t.Errorf("missing description for %s", s)
		}
	}
	if StateDescription("bogus") != "Unknown state" {
		t.Error("expected unknown description for bogus state")
	}
}

// =============================================================================
// Tracker Tests
// =============================================================================

func TestTracker_Lifecycle(t *testing.T) {
	repo := &mockSessionRepo{}
	tracker := NewTracker(repo, "s1", domain.DefaultReplayConfig())
	ctx := context.Background()

	if err := tracker.Begin(ctx); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if got := repo.last(); got == nil || got.Status.State != domain.SessionPending {
		t.Fatalf("expected pending metadata persisted, got %v", got)
	}

	if err := tracker.Transition(ctx, domain.StatusInProgress(100, 0, 0), "range resolved"); err != nil {
		t.Fatalf("Transition to in progress failed: %v", err)
	}
	if err := tracker.Progress(domain.StatusInProgress(150, 20, 1)); err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if repo.count() != 2 {
		t.Errorf("expected Progress not to persist, got %d saves", repo.count())
	}
	if err := tracker.Save(ctx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if got := repo.last().Status; got.CurrentLedger != 150 || got.EventsProcessed != 20 {
		t.Errorf("expected saved progress, got %s", got)
	}

	if err := tracker.Transition(ctx, domain.StatusCompleted(20, 1, time.Second), "done"); err != nil {
		t.Fatalf("Transition to completed failed: %v", err)
	}
	meta := repo.last()
	if meta.Status.State != domain.SessionCompleted || meta.EndedAt == nil {
		t.Errorf("expected completed with end time, got %s ended=%v", meta.Status, meta.EndedAt)
	}

	history := tracker.History()
	if len(history) != 2 || history[1].To != domain.SessionCompleted {
		t.Errorf("unexpected history: %v", history)
	}
}

func TestTracker_RejectsInvalidTransition(t *testing.T) {
	repo := &mockSessionRepo{}
	tracker := NewTracker(repo, "s1", domain.DefaultReplayConfig())
	ctx := context.Background()

	err := tracker.Transition(ctx, domain.StatusCompleted(0, 0, 0), "skip ahead")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if tracker.Status().State != domain.SessionPending {
		t.Errorf("expected state unchanged, got %s", tracker.Status())
	}
	if repo.count() != 0 {
		t.Errorf("expected nothing persisted, got %d saves", repo.count())
	}

	if err := tracker.Progress(domain.StatusInProgress(1, 0, 0)); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected progress on a pending session to fail, got %v", err)
	}
}

func TestTracker_TerminalIsFinal(t *testing.T) {
	tracker := NewTracker(&mockSessionRepo{}, "s1", domain.DefaultReplayConfig())
	ctx := context.Background()

	_ = tracker.Transition(ctx, domain.StatusFailed(errors.New("boom"), 0), "failed")
	if err := tracker.Transition(ctx, domain.StatusInProgress(1, 0, 0), "retry"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected failed session to stay failed, got %v", err)
	}
}

func TestTracker_SaveError(t *testing.T) {
	repo := &mockSessionRepo{saveErr: errors.New("db down")}
	tracker := NewTracker(repo, "s1", domain.DefaultReplayConfig())

	if err := tracker.Begin(context.Background()); err == nil {
		t.Fatal("expected save error")
	}
}

func TestTracker_StateChangeCallback(t *testing.T) {
	tracker := NewTracker(&mockSessionRepo{}, "s1", domain.DefaultReplayConfig())
	ctx := context.Background()

	var mu sync.Mutex
	var seen []Transition
	tracker.SetStateChangeCallback(func(sessionID string, tr Transition) {
		mu.Lock()
		defer mu.Unlock()
		if sessionID != "s1" {
			t.Errorf("unexpected session id %s", sessionID)
		}
		seen = append(seen, tr)
	})

	_ = tracker.Transition(ctx, domain.StatusInProgress(1, 0, 0), "start")
	_ = tracker.Transition(ctx, domain.StatusPaused(0, 0, 0), "pause")
	_ = tracker.Transition(ctx, domain.StatusInProgress(1, 0, 0), "resume")

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Fatalf("expected 3 transitions, got %d", len(seen))
	}
	if seen[1].From != domain.SessionInProgress || seen[1].To != domain.SessionPaused || seen[1].Reason != "pause" {
		t.Errorf("unexpected pause transition: %+v", seen[1])
	}
}

func TestTracker_HistoryBounded(t *testing.T) {
	tracker := NewTracker(&mockSessionRepo{}, "s1", domain.DefaultReplayConfig())
	ctx := context.Background()

	_ = tracker.Transition(ctx, domain.StatusInProgress(1, 0, 0), "start")
	for i := 0; i < 2*historySize; i++ {
		_ = tracker.Transition(ctx, domain.StatusPaused(0, 0, 0), "pause")
		_ = tracker.Transition(ctx, domain.StatusInProgress(1, 0, 0), "resume")
	}

	history := tracker.History()
	if len(history) != historySize {
		t.Fatalf("expected %d transitions kept, got %d", historySize, len(history))
	}
	if last := history[len(history)-1]; last.Reason != "resume" {
		t.Errorf("expected newest transition last, got %+v", last)
	}
}
