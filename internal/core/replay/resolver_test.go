package replay

import (
	"context"
	"errors"
	"testing"

	"github.com/vietddude/replayer/internal/core/domain"
	"github.com/vietddude/replayer/internal/infra/storage/memory"
)

func setup(t *testing.T, ledgers ...uint64) (*Resolver, *memory.CheckpointRepo) {
	t.Helper()
	store := memory.NewMemoryStorage()
	events := memory.NewEventRepo(store)
	for i, l := range ledgers {
		ev := &domain.ContractEvent{
			ID:             string(rune('a' + i)),
			LedgerSequence: l,
			ContractID:     "C",
			EventType:      "transfer",
		}
		if err := events.StoreEvent(context.Background(), ev); err != nil {
			t.Fatalf("StoreEvent failed: %v", err)
		}
	}
	checkpoints := memory.NewCheckpointRepo(store)
	return NewResolver(events, checkpoints), checkpoints
}

func TestResolve(t *testing.T) {
	resolver, _ := setup(t, 10, 500, 1000)

	tests := []struct {
		name      string
		rng       domain.Range
		wantStart uint64
		wantEnd   uint64
		wantEmpty bool
	}{
		{"all", domain.AllLedgers(), 0, 1000, false},
		{"from", domain.FromLedger(200), 200, 1000, false},
		{"to", domain.ToLedger(300), 0, 300, false},
		{"span", domain.LedgerSpan(100, 200), 100, 200, false},
		{"last", domain.LastLedgers(100), 900, 1000, false},
		{"last saturates", domain.LastLedgers(5000), 0, 1000, false},
		{"from past latest", domain.FromLedger(2000), 2000, 1000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := resolver.Resolve(context.Background(), tt.rng)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if b.Start != tt.wantStart || b.End != tt.wantEnd || b.Empty != tt.wantEmpty {
				t.Errorf("expected %d-%d empty=%v, got %d-%d empty=%v",
					tt.wantStart, tt.wantEnd, tt.wantEmpty, b.Start, b.End, b.Empty)
			}
		})
	}
}

func TestResolve_FromCheckpoint(t *testing.T) {
	resolver, checkpoints := setup(t, 10, 500, 1000)
	ctx := context.Background()

	cp := domain.NewCheckpoint("s1", 499)
	if err := checkpoints.Save(ctx, cp); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	b, err := resolver.Resolve(ctx, domain.FromCheckpoint(cp.ID))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if b.Start != 500 || b.End != 1000 {
		t.Errorf("expected 500-1000, got %d-%d", b.Start, b.End)
	}
	if b.Checkpoint == nil || b.Checkpoint.ID != cp.ID {
		t.Error("expected resolved checkpoint to be returned")
	}
}

func TestResolve_CheckpointNotFound(t *testing.T) {
	resolver, _ := setup(t, 10)

	_, err := resolver.Resolve(context.Background(), domain.FromCheckpoint("missing"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestResolve_EmptyStore(t *testing.T) {
	resolver, _ := setup(t)

	b, err := resolver.Resolve(context.Background(), domain.AllLedgers())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !b.Empty {
		t.Error("expected empty bounds for an empty store")
	}

	b, _ = resolver.Resolve(context.Background(), domain.LedgerSpan(5, 8))
	if b.Empty || b.Start != 5 || b.End != 8 {
		t.Errorf("explicit span should not depend on the store, got %+v", b)
	}
}
