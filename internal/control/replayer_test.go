package control

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/replayer/internal/core/config"
	"github.com/vietddude/replayer/internal/core/domain"
)

// =============================================================================
// Fixtures
// =============================================================================

const eventLog = `{"id":"e1","ledger_sequence":1,"contract_id":"C1","event_type":"transfer","payload":{"amount":"10"},"network":"testnet"}
{"id":"e2","ledger_sequence":2,"contract_id":"C1","event_type":"snapshot_submitted","payload":{"epoch":7,"hash":"abc"},"network":"testnet"}

{"id":"e3","ledger_sequence":3,"contract_id":"C2","event_type":"transfer","payload":{"amount":5},"network":"testnet"}
`

func newTestReplayer(t *testing.T) *Replayer {
	t.Helper()
	cfg := config.Default()
	cfg.Sink.Path = t.TempDir()
	cfg.Replay.RetryBaseDelay = time.Millisecond

	r, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(r.Close)

	n, err := r.ImportEvents(context.Background(), strings.NewReader(eventLog))
	if err != nil {
		t.Fatalf("ImportEvents failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 imported events, got %d", n)
	}
	return r
}

func replayConfig(t *testing.T, mode domain.Mode) domain.ReplayConfig {
	t.Helper()
	rc := domain.DefaultReplayConfig()
	rc.Mode = mode
	rc.EventTimeout = time.Second
	rc.MaxRetries = 1
	return rc
}

// =============================================================================
// Run
// =============================================================================

func TestReplayer_RunFull(t *testing.T) {
	r := newTestReplayer(t)
	ctx := context.Background()

	var seen string
	meta, err := r.Run(ctx, replayConfig(t, domain.ModeFull), RunOptions{
		OnSession: func(id string) { seen = id },
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if meta.Status.State != domain.SessionCompleted {
		t.Fatalf("expected completed, got %s", meta.Status)
	}
	if meta.Status.EventsProcessed != 3 || meta.Status.EventsFailed != 0 {
		t.Errorf("expected 3/0, got %d/%d", meta.Status.EventsProcessed, meta.Status.EventsFailed)
	}
	if seen != meta.SessionID {
		t.Errorf("OnSession got %q, session is %q", seen, meta.SessionID)
	}

	snap, err := r.Stores().Snapshots.GetSnapshot(ctx, 7)
	if err != nil || snap == nil {
		t.Fatalf("expected snapshot for epoch 7, got %v (%v)", snap, err)
	}

	cps, err := r.Checkpoints(ctx, meta.SessionID)
	if err != nil {
		t.Fatalf("Checkpoints failed: %v", err)
	}
	if len(cps) == 0 || cps[0].LastLedger != 3 {
		t.Fatalf("expected final checkpoint at ledger 3, got %v", cps)
	}

	doc, err := r.Sink().Read(ctx)
	if err != nil || doc == nil {
		t.Fatalf("expected persisted state, got %v", err)
	}

	if got := r.sessions.Sessions(); len(got) != 0 {
		t.Errorf("expected finished session to be forgotten, got %d", len(got))
	}
}

func TestReplayer_RunIsIdempotent(t *testing.T) {
	r := newTestReplayer(t)
	ctx := context.Background()

	first, err := r.Run(ctx, replayConfig(t, domain.ModeFull), RunOptions{})
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	firstDoc, _ := r.Sink().Read(ctx)

	second, err := r.Run(ctx, replayConfig(t, domain.ModeFull), RunOptions{})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	secondDoc, _ := r.Sink().Read(ctx)

	if first.SessionID == second.SessionID {
		t.Error("expected a new session id per run")
	}
	if second.Status.EventsProcessed != 3 {
		t.Errorf("expected skipped events to count as processed, got %d", second.Status.EventsProcessed)
	}
	if domain.HashState(firstDoc) != domain.HashState(secondDoc) {
		t.Error("expected identical state after replaying the same range twice")
	}
}

func TestReplayer_RunVerification(t *testing.T) {
	r := newTestReplayer(t)
	ctx := context.Background()

	if _, err := r.Run(ctx, replayConfig(t, domain.ModeFull), RunOptions{}); err != nil {
		t.Fatalf("full run failed: %v", err)
	}
	meta, err := r.Run(ctx, replayConfig(t, domain.ModeVerification), RunOptions{})
	if err != nil {
		t.Fatalf("verification run failed: %v", err)
	}
	if meta.LastCheckpoint == nil {
		t.Fatal("expected a final checkpoint")
	}
	if got := meta.LastCheckpoint.Metadata["verification"]; got != "match" {
		t.Errorf("expected verification=match, got %q", got)
	}
}

func TestReplayer_RunUnknownProcessor(t *testing.T) {
	r := newTestReplayer(t)
	r.cfg.Processors = []string{"nope"}

	if _, err := r.Run(context.Background(), replayConfig(t, domain.ModeFull), RunOptions{}); err == nil {
		t.Fatal("expected unknown processor error")
	}
}

// =============================================================================
// Admin
// =============================================================================

func TestReplayer_DeleteSession(t *testing.T) {
	r := newTestReplayer(t)
	ctx := context.Background()

	meta, err := r.Run(ctx, replayConfig(t, domain.ModeFull), RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if err := r.DeleteSession(ctx, meta.SessionID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if _, err := r.Session(ctx, meta.SessionID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found after delete, got %v", err)
	}
	cps, _ := r.Checkpoints(ctx, meta.SessionID)
	if len(cps) != 0 {
		t.Errorf("expected checkpoints removed, got %d", len(cps))
	}
	if err := r.DeleteSession(ctx, meta.SessionID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}

func TestReplayer_Cleanup(t *testing.T) {
	r := newTestReplayer(t)

	for _, retention := range []time.Duration{0, 12 * time.Hour} {
		if _, err := r.Cleanup(context.Background(), retention); !errors.Is(err, domain.ErrInvalidConfig) {
			t.Errorf("retention %s: expected invalid config, got %v", retention, err)
		}
	}
	deleted, err := r.Cleanup(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("expected nothing to prune, got %d", deleted)
	}
}

func TestReplayer_ImportInvalid(t *testing.T) {
	r := newTestReplayer(t)

	tests := []struct {
		name  string
		input string
	}{
		{"bad json", `{"id":`},
		{"missing id", `{"ledger_sequence":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.ImportEvents(context.Background(), strings.NewReader(tt.input)); err == nil {
				t.Error("expected import error")
			}
		})
	}
}

func TestReplayer_PauseWithoutRedis(t *testing.T) {
	r := newTestReplayer(t)

	if err := r.Pause(context.Background(), "s1"); !errors.Is(err, ErrNoRedis) {
		t.Errorf("expected ErrNoRedis, got %v", err)
	}
	if err := r.Resume(context.Background(), "s1"); !errors.Is(err, ErrNoRedis) {
		t.Errorf("expected ErrNoRedis, got %v", err)
	}
}

// =============================================================================
// Pause watcher
// =============================================================================

type flagSource struct {
	mu     sync.Mutex
	paused bool
}

func (f *flagSource) set(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = v
}

func (f *flagSource) IsPaused(ctx context.Context, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused, nil
}

type recordingTarget struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingTarget) Pause()  { r.record("pause") }
func (r *recordingTarget) Resume() { r.record("resume") }

func (r *recordingTarget) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recordingTarget) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func waitForCalls(t *testing.T, target *recordingTarget, n int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if calls := target.snapshot(); len(calls) >= n {
			return calls
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d calls, got %v", n, target.snapshot())
	return nil
}

func TestWatchPause(t *testing.T) {
	src := &flagSource{}
	target := &recordingTarget{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		watchPause(ctx, src, target, "s1")
		close(done)
	}()

	src.set(true)
	waitForCalls(t, target, 1)
	src.set(false)
	calls := waitForCalls(t, target, 2)

	cancel()
	<-done

	if calls[0] != "pause" || calls[1] != "resume" {
		t.Errorf("expected [pause resume], got %v", calls)
	}
}

func TestSessionSet(t *testing.T) {
	s := newSessionSet()
	s.update(&domain.ReplayMetadata{SessionID: "b", Status: domain.StatusPending()})
	s.update(&domain.ReplayMetadata{SessionID: "a", Status: domain.StatusInProgress(5, 1, 0)})
	s.update(&domain.ReplayMetadata{SessionID: "b", Status: domain.StatusInProgress(9, 2, 0)})

	got := s.Sessions()
	if len(got) != 2 || got[0].SessionID != "a" || got[1].SessionID != "b" {
		t.Fatalf("unexpected sessions: %v", got)
	}
	if got[1].Status.CurrentLedger != 9 {
		t.Errorf("expected latest status for b, got %s", got[1].Status)
	}

	s.forget("a")
	if got := s.Sessions(); len(got) != 1 {
		t.Errorf("expected 1 session after forget, got %d", len(got))
	}
}
