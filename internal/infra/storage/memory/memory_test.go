package memory

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/vietddude/replayer/internal/core/domain"
)

func event(id string, ledger uint64, contract, typ string) *domain.ContractEvent {
	return &domain.ContractEvent{
		ID:             id,
		LedgerSequence: ledger,
		ContractID:     contract,
		EventType:      typ,
		Payload:        []byte(`{}`),
		Timestamp:      time.Unix(1700000000, 0).UTC(),
		Network:        domain.NetworkTestnet,
	}
}

func TestEventRepo_OrderingAndLimit(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepo(NewMemoryStorage())

	_ = repo.StoreEvents(ctx, []*domain.ContractEvent{
		event("b", 2, "C1", "transfer"),
		event("a", 2, "C1", "transfer"),
		event("z", 1, "C2", "mint"),
		event("c", 3, "C1", "transfer"),
	})

	got, err := repo.GetEventsInRange(ctx, 1, 3, domain.EventFilter{}, 3)
	if err != nil {
		t.Fatalf("GetEventsInRange failed: %v", err)
	}
	var ids []string
	for _, ev := range got {
		ids = append(ids, ev.ID)
	}
	if !reflect.DeepEqual(ids, []string{"z", "a", "b"}) {
		t.Errorf("unexpected order: %v", ids)
	}

	count, _ := repo.CountEventsInRange(ctx, 1, 3, domain.EventFilter{ContractIDs: []string{"C1"}})
	if count != 3 {
		t.Errorf("expected 3 C1 events, got %d", count)
	}

	latest, ok, _ := repo.GetLatestLedger(ctx)
	if !ok || latest != 3 {
		t.Errorf("expected latest 3, got %d (ok=%v)", latest, ok)
	}
}

func TestEventRepo_GetEventsAfter(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepo(NewMemoryStorage())

	_ = repo.StoreEvents(ctx, []*domain.ContractEvent{
		event("a", 4, "C1", "transfer"),
		event("B", 4, "C1", "transfer"),
		event("c", 4, "C2", "mint"),
		event("d", 5, "C1", "transfer"),
		event("e", 6, "C1", "transfer"),
	})

	tests := []struct {
		name   string
		after  domain.EventPosition
		end    uint64
		filter domain.EventFilter
		limit  int
		want   []string
	}{
		{"same ledger continues by id", domain.EventPosition{Ledger: 4, ID: "B"}, 6, domain.EventFilter{}, 0, []string{"a", "c", "d", "e"}},
		{"limited", domain.EventPosition{Ledger: 4, ID: "B"}, 6, domain.EventFilter{}, 2, []string{"a", "c"}},
		{"end inclusive", domain.EventPosition{Ledger: 4, ID: "c"}, 5, domain.EventFilter{}, 0, []string{"d"}},
		{"filtered", domain.EventPosition{Ledger: 4, ID: "B"}, 6, domain.EventFilter{ContractIDs: []string{"C1"}}, 0, []string{"a", "d", "e"}},
		{"exhausted", domain.EventPosition{Ledger: 6, ID: "e"}, 6, domain.EventFilter{}, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.GetEventsAfter(ctx, tt.after, tt.end, tt.filter, tt.limit)
			if err != nil {
				t.Fatalf("GetEventsAfter failed: %v", err)
			}
			var ids []string
			for _, ev := range got {
				ids = append(ids, ev.ID)
			}
			if !reflect.DeepEqual(ids, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, ids)
			}
		})
	}
}

func TestEventRepo_InsertOrIgnore(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepo(NewMemoryStorage())

	_ = repo.StoreEvent(ctx, event("a", 1, "C1", "transfer"))
	_ = repo.StoreEvent(ctx, event("a", 9, "C9", "mint"))

	got, _ := repo.GetEvent(ctx, "a")
	if got == nil || got.LedgerSequence != 1 || got.ContractID != "C1" {
		t.Errorf("existing event was overwritten: %+v", got)
	}
}

func TestEventRepo_EmptyLatest(t *testing.T) {
	_, ok, err := NewEventRepo(NewMemoryStorage()).GetLatestLedger(context.Background())
	if err != nil || ok {
		t.Errorf("expected no latest ledger, got ok=%v err=%v", ok, err)
	}
}

func TestCheckpointRepo_RoundTripAndUpsert(t *testing.T) {
	ctx := context.Background()
	repo := NewCheckpointRepo(NewMemoryStorage())

	cp := domain.NewCheckpoint("s1", 100).
		WithStats(10, 1).
		WithState([]byte(`{"k":"v"}`)).
		WithMetadata(domain.MetaMode, "full")
	if err := repo.Save(ctx, cp); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, _ := repo.Load(ctx, cp.ID)
	if !reflect.DeepEqual(loaded, cp) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, cp)
	}

	cp.EventsProcessed = 20
	_ = repo.Save(ctx, cp)
	list, _ := repo.ListForSession(ctx, "s1")
	if len(list) != 1 || list[0].EventsProcessed != 20 {
		t.Errorf("expected single upserted checkpoint, got %+v", list)
	}
}

func TestCheckpointRepo_LatestAndCleanup(t *testing.T) {
	ctx := context.Background()
	repo := NewCheckpointRepo(NewMemoryStorage())

	old := domain.NewCheckpoint("s1", 10)
	old.CreatedAt = time.Now().UTC().AddDate(0, 0, -40)
	recent := domain.NewCheckpoint("s1", 20)
	other := domain.NewCheckpoint("s2", 30)
	for _, cp := range []*domain.Checkpoint{old, recent, other} {
		_ = repo.Save(ctx, cp)
	}

	latest, _ := repo.GetLatest(ctx, "s1")
	if latest == nil || latest.ID != recent.ID {
		t.Errorf("expected latest %s, got %+v", recent.ID, latest)
	}

	deleted, err := repo.CleanupOld(ctx, 30)
	if err != nil || deleted != 1 {
		t.Errorf("expected 1 deleted, got %d (%v)", deleted, err)
	}

	_ = repo.DeleteForSession(ctx, "s1")
	if cp, _ := repo.GetLatest(ctx, "s1"); cp != nil {
		t.Error("expected no checkpoints for s1")
	}
	if cp, _ := repo.Load(ctx, other.ID); cp == nil {
		t.Error("s2 checkpoint should survive")
	}
}

func TestSessionRepo_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepo(NewMemoryStorage())

	base := time.Now().UTC()
	for i, id := range []string{"a", "b", "c"} {
		_ = repo.SaveMetadata(ctx, &domain.ReplayMetadata{
			SessionID: id,
			Config:    domain.DefaultReplayConfig(),
			Status:    domain.StatusPending(),
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	list, _ := repo.ListSessions(ctx, 2)
	if len(list) != 2 || list[0].SessionID != "c" || list[1].SessionID != "b" {
		t.Errorf("unexpected session order: %+v", list)
	}

	_ = repo.DeleteSession(ctx, "c")
	if meta, _ := repo.LoadMetadata(ctx, "c"); meta != nil {
		t.Error("expected session c to be deleted")
	}
}

func TestMarkerRepo_ScopedByProcessor(t *testing.T) {
	ctx := context.Background()
	repo := NewMarkerRepo(NewMemoryStorage())

	_ = repo.MarkProcessed(ctx, "snapshot", "1:C:t:e", 1)

	if ok, _ := repo.IsProcessed(ctx, "snapshot", "1:C:t:e"); !ok {
		t.Error("expected marker for snapshot processor")
	}
	if ok, _ := repo.IsProcessed(ctx, "passthrough", "1:C:t:e"); ok {
		t.Error("marker should not leak across processors")
	}
}
