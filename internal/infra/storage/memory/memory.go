package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/replayer/internal/core/domain"
	"github.com/vietddude/replayer/internal/infra/storage"
)

// MemoryStorage backs every repository with maps. It is used when no
// database is configured and in tests.
type MemoryStorage struct {
	events      map[string]*domain.ContractEvent
	checkpoints map[string]*domain.Checkpoint
	sessions    map[string][]byte
	markers     map[string]uint64
	snapshots   map[int64]*domain.Snapshot
	failed      map[string][]*domain.FailedEvent
	states      map[string][]byte
	mu          sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		events:      make(map[string]*domain.ContractEvent),
		checkpoints: make(map[string]*domain.Checkpoint),
		sessions:    make(map[string][]byte),
		markers:     make(map[string]uint64),
		snapshots:   make(map[int64]*domain.Snapshot),
		failed:      make(map[string][]*domain.FailedEvent),
		states:      make(map[string][]byte),
	}
}

// -----------------------------------------------------------------------------
// Event Repository
// -----------------------------------------------------------------------------

type EventRepo struct {
	store *MemoryStorage
}

var _ storage.EventRepository = (*EventRepo)(nil)

func NewEventRepo(store *MemoryStorage) *EventRepo {
	return &EventRepo{store: store}
}

func (r *EventRepo) StoreEvent(ctx context.Context, event *domain.ContractEvent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.events[event.ID]; ok {
		return nil
	}
	ev := *event
	r.store.events[event.ID] = &ev
	return nil
}

func (r *EventRepo) StoreEvents(ctx context.Context, events []*domain.ContractEvent) error {
	for _, ev := range events {
		if err := r.StoreEvent(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (r *EventRepo) GetEvent(ctx context.Context, id string) (*domain.ContractEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	ev, ok := r.store.events[id]
	if !ok {
		return nil, nil
	}
	out := *ev
	return &out, nil
}

func (r *EventRepo) GetEventsInRange(
	ctx context.Context,
	start, end uint64,
	filter domain.EventFilter,
	limit int,
) ([]*domain.ContractEvent, error) {
	return page(r.match(start, end, filter), limit), nil
}

func (r *EventRepo) GetEventsAfter(
	ctx context.Context,
	after domain.EventPosition,
	end uint64,
	filter domain.EventFilter,
	limit int,
) ([]*domain.ContractEvent, error) {
	var matched []*domain.ContractEvent
	for _, ev := range r.match(after.Ledger, end, filter) {
		if after.Before(ev) {
			matched = append(matched, ev)
		}
	}
	return page(matched, limit), nil
}

// page orders events by (ledger, id) in byte order and applies limit.
func page(events []*domain.ContractEvent, limit int) []*domain.ContractEvent {
	sort.Slice(events, func(i, j int) bool {
		if events[i].LedgerSequence != events[j].LedgerSequence {
			return events[i].LedgerSequence < events[j].LedgerSequence
		}
		return events[i].ID < events[j].ID
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events
}

func (r *EventRepo) CountEventsInRange(
	ctx context.Context,
	start, end uint64,
	filter domain.EventFilter,
) (uint64, error) {
	return uint64(len(r.match(start, end, filter))), nil
}

func (r *EventRepo) GetLatestLedger(ctx context.Context) (uint64, bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var latest uint64
	found := false
	for _, ev := range r.store.events {
		if !found || ev.LedgerSequence > latest {
			latest = ev.LedgerSequence
			found = true
		}
	}
	return latest, found, nil
}

func (r *EventRepo) match(start, end uint64, filter domain.EventFilter) []*domain.ContractEvent {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.ContractEvent
	for _, ev := range r.store.events {
		if ev.LedgerSequence < start || ev.LedgerSequence > end || !filter.Matches(ev) {
			continue
		}
		cp := *ev
		out = append(out, &cp)
	}
	return out
}

// -----------------------------------------------------------------------------
// Checkpoint Repository
// -----------------------------------------------------------------------------

type CheckpointRepo struct {
	store *MemoryStorage
}

var _ storage.CheckpointRepository = (*CheckpointRepo)(nil)

func NewCheckpointRepo(store *MemoryStorage) *CheckpointRepo {
	return &CheckpointRepo{store: store}
}

func (r *CheckpointRepo) Save(ctx context.Context, cp *domain.Checkpoint) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if existing, ok := r.store.checkpoints[cp.ID]; ok {
		// Identity and creation time are immutable once saved.
		updated := cp.Clone()
		updated.SessionID = existing.SessionID
		updated.CreatedAt = existing.CreatedAt
		r.store.checkpoints[cp.ID] = updated
		return nil
	}
	r.store.checkpoints[cp.ID] = cp.Clone()
	return nil
}

func (r *CheckpointRepo) Load(ctx context.Context, id string) (*domain.Checkpoint, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.checkpoints[id].Clone(), nil
}

func (r *CheckpointRepo) GetLatest(ctx context.Context, sessionID string) (*domain.Checkpoint, error) {
	list, err := r.ListForSession(ctx, sessionID)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (r *CheckpointRepo) ListForSession(ctx context.Context, sessionID string) ([]*domain.Checkpoint, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.Checkpoint
	for _, cp := range r.store.checkpoints {
		if cp.SessionID == sessionID {
			out = append(out, cp.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].LastLedger > out[j].LastLedger
	})
	return out, nil
}

func (r *CheckpointRepo) Delete(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.checkpoints, id)
	return nil
}

func (r *CheckpointRepo) DeleteForSession(ctx context.Context, sessionID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for id, cp := range r.store.checkpoints {
		if cp.SessionID == sessionID {
			delete(r.store.checkpoints, id)
		}
	}
	return nil
}

func (r *CheckpointRepo) CleanupOld(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var deleted int64
	for id, cp := range r.store.checkpoints {
		if cp.CreatedAt.Before(cutoff) {
			delete(r.store.checkpoints, id)
			deleted++
		}
	}
	return deleted, nil
}

// -----------------------------------------------------------------------------
// Session Repository
// -----------------------------------------------------------------------------

// SessionRepo stores metadata as JSON so callers never share pointers with
// the store.
type SessionRepo struct {
	store *MemoryStorage
}

var _ storage.SessionRepository = (*SessionRepo)(nil)

func NewSessionRepo(store *MemoryStorage) *SessionRepo {
	return &SessionRepo{store: store}
}

func (r *SessionRepo) SaveMetadata(ctx context.Context, meta *domain.ReplayMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode session metadata: %w", err)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.sessions[meta.SessionID] = data
	return nil
}

func (r *SessionRepo) LoadMetadata(ctx context.Context, sessionID string) (*domain.ReplayMetadata, error) {
	r.store.mu.RLock()
	data, ok := r.store.sessions[sessionID]
	r.store.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var meta domain.ReplayMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode session metadata: %w", err)
	}
	return &meta, nil
}

func (r *SessionRepo) ListSessions(ctx context.Context, limit int) ([]*domain.ReplayMetadata, error) {
	r.store.mu.RLock()
	ids := make([]string, 0, len(r.store.sessions))
	for id := range r.store.sessions {
		ids = append(ids, id)
	}
	r.store.mu.RUnlock()

	out := make([]*domain.ReplayMetadata, 0, len(ids))
	for _, id := range ids {
		meta, err := r.LoadMetadata(ctx, id)
		if err != nil {
			return nil, err
		}
		if meta != nil {
			out = append(out, meta)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *SessionRepo) DeleteSession(ctx context.Context, sessionID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.sessions, sessionID)
	return nil
}

// CheckpointStore joins the checkpoint and session repos.
type CheckpointStore struct {
	*CheckpointRepo
	*SessionRepo
}

var _ storage.CheckpointStore = (*CheckpointStore)(nil)

func NewCheckpointStore(store *MemoryStorage) *CheckpointStore {
	return &CheckpointStore{
		CheckpointRepo: NewCheckpointRepo(store),
		SessionRepo:    NewSessionRepo(store),
	}
}

// -----------------------------------------------------------------------------
// Marker Repository
// -----------------------------------------------------------------------------

type MarkerRepo struct {
	store *MemoryStorage
}

var _ storage.MarkerRepository = (*MarkerRepo)(nil)

func NewMarkerRepo(store *MemoryStorage) *MarkerRepo {
	return &MarkerRepo{store: store}
}

func markerKey(processor, eventKey string) string {
	return processor + "|" + eventKey
}

func (r *MarkerRepo) IsProcessed(ctx context.Context, processor, eventKey string) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	_, ok := r.store.markers[markerKey(processor, eventKey)]
	return ok, nil
}

func (r *MarkerRepo) MarkProcessed(ctx context.Context, processor, eventKey string, ledger uint64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	key := markerKey(processor, eventKey)
	if _, ok := r.store.markers[key]; !ok {
		r.store.markers[key] = ledger
	}
	return nil
}

// -----------------------------------------------------------------------------
// Snapshot Repository
// -----------------------------------------------------------------------------

type SnapshotRepo struct {
	store *MemoryStorage
}

var _ storage.SnapshotRepository = (*SnapshotRepo)(nil)

func NewSnapshotRepo(store *MemoryStorage) *SnapshotRepo {
	return &SnapshotRepo{store: store}
}

func (r *SnapshotRepo) GetSnapshot(ctx context.Context, epoch int64) (*domain.Snapshot, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	s, ok := r.store.snapshots[epoch]
	if !ok {
		return nil, nil
	}
	out := *s
	return &out, nil
}

func (r *SnapshotRepo) SaveSnapshot(ctx context.Context, snapshot *domain.Snapshot) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.snapshots[snapshot.Epoch]; ok {
		return fmt.Errorf("snapshot for epoch %d already exists", snapshot.Epoch)
	}
	s := *snapshot
	r.store.snapshots[snapshot.Epoch] = &s
	return nil
}

// -----------------------------------------------------------------------------
// Failed Event Repository
// -----------------------------------------------------------------------------

type FailedEventRepo struct {
	store *MemoryStorage
}

var _ storage.FailedEventRepository = (*FailedEventRepo)(nil)

func NewFailedEventRepo(store *MemoryStorage) *FailedEventRepo {
	return &FailedEventRepo{store: store}
}

func (r *FailedEventRepo) Add(ctx context.Context, fe *domain.FailedEvent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	f := *fe
	r.store.failed[fe.SessionID] = append(r.store.failed[fe.SessionID], &f)
	return nil
}

func (r *FailedEventRepo) ListForSession(ctx context.Context, sessionID string) ([]*domain.FailedEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := slices.Clone(r.store.failed[sessionID])
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LedgerSequence < out[j].LedgerSequence
	})
	return out, nil
}

func (r *FailedEventRepo) Count(ctx context.Context, sessionID string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.failed[sessionID]), nil
}

// -----------------------------------------------------------------------------
// State Repository
// -----------------------------------------------------------------------------

type StateRepo struct {
	store *MemoryStorage
}

var _ storage.StateRepository = (*StateRepo)(nil)

func NewStateRepo(store *MemoryStorage) *StateRepo {
	return &StateRepo{store: store}
}

func (r *StateRepo) Write(ctx context.Context, name string, doc []byte) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.states[name] = slices.Clone(doc)
	return nil
}

func (r *StateRepo) Read(ctx context.Context, name string) ([]byte, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	doc, ok := r.store.states[name]
	if !ok {
		return nil, nil
	}
	return slices.Clone(doc), nil
}
