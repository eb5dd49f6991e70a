// Package state accumulates derived state from replayed contract events.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/vietddude/replayer/internal/core/domain"
	"github.com/vietddude/replayer/internal/infra/sink"
)

// Builder accumulates state from events applied in ledger order.
type Builder interface {
	// ApplyEvent folds one successfully processed event into the state
	ApplyEvent(event *domain.ContractEvent) error

	// Snapshot serializes the state deterministically
	Snapshot() (json.RawMessage, error)

	// Restore replaces the state with a snapshot taken earlier
	Restore(doc json.RawMessage) error

	// PersistState writes the current snapshot to the sink
	PersistState(ctx context.Context) error
}

// ContractState aggregates the events of one contract.
type ContractState struct {
	Events      uint64            `json:"events"`
	EventTypes  map[string]uint64 `json:"event_types"`
	FirstLedger uint64            `json:"first_ledger"`
	LastLedger  uint64            `json:"last_ledger"`
	TotalAmount string            `json:"total_amount,omitempty"`
}

// Document is the serialized ledger state. Maps marshal with sorted keys,
// which keeps snapshots byte-identical across replays.
type Document struct {
	LastLedger uint64                    `json:"last_ledger"`
	EventCount uint64                    `json:"event_count"`
	Contracts  map[string]*ContractState `json:"contracts"`
	Snapshots  map[string]string         `json:"snapshots"`
}

func newDocument() *Document {
	return &Document{
		Contracts: make(map[string]*ContractState),
		Snapshots: make(map[string]string),
	}
}

// LedgerState is the default Builder: per-contract event counts and
// amounts plus the epoch to hash index of submitted snapshots.
type LedgerState struct {
	mu   sync.Mutex
	doc  *Document
	sink sink.Sink
}

var _ Builder = (*LedgerState)(nil)

// NewLedgerState creates an empty state. A nil sink makes PersistState a no-op.
func NewLedgerState(s sink.Sink) *LedgerState {
	return &LedgerState{doc: newDocument(), sink: s}
}

func (s *LedgerState) ApplyEvent(event *domain.ContractEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.doc.Contracts[event.ContractID]
	if !ok {
		cs = &ContractState{
			EventTypes:  make(map[string]uint64),
			FirstLedger: event.LedgerSequence,
		}
		s.doc.Contracts[event.ContractID] = cs
	}
	cs.Events++
	cs.EventTypes[event.EventType]++
	if event.LedgerSequence > cs.LastLedger {
		cs.LastLedger = event.LedgerSequence
	}
	if event.LedgerSequence < cs.FirstLedger {
		cs.FirstLedger = event.LedgerSequence
	}

	if amount := gjson.GetBytes(event.Payload, "amount"); amount.Exists() {
		total, err := addAmount(cs.TotalAmount, amount)
		if err != nil {
			return fmt.Errorf("event %s: %w", event.ID, err)
		}
		cs.TotalAmount = total
	}

	if event.EventType == "snapshot_submitted" {
		epoch := gjson.GetBytes(event.Payload, "epoch")
		hash := gjson.GetBytes(event.Payload, "hash")
		if epoch.Exists() && hash.Exists() {
			s.doc.Snapshots[strconv.FormatInt(epoch.Int(), 10)] = hash.String()
		}
	}

	s.doc.EventCount++
	if event.LedgerSequence > s.doc.LastLedger {
		s.doc.LastLedger = event.LedgerSequence
	}
	return nil
}

func (s *LedgerState) Snapshot() (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(s.doc)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize state: %w", err)
	}
	return data, nil
}

func (s *LedgerState) Restore(doc json.RawMessage) error {
	restored := newDocument()
	if len(doc) > 0 {
		if err := json.Unmarshal(doc, restored); err != nil {
			return fmt.Errorf("failed to restore state: %w", err)
		}
		if restored.Contracts == nil {
			restored.Contracts = make(map[string]*ContractState)
		}
		if restored.Snapshots == nil {
			restored.Snapshots = make(map[string]string)
		}
		for _, cs := range restored.Contracts {
			if cs.EventTypes == nil {
				cs.EventTypes = make(map[string]uint64)
			}
		}
	}

	s.mu.Lock()
	s.doc = restored
	s.mu.Unlock()
	return nil
}

func (s *LedgerState) PersistState(ctx context.Context) error {
	if s.sink == nil {
		return nil
	}
	doc, err := s.Snapshot()
	if err != nil {
		return err
	}
	if err := s.sink.Write(ctx, doc); err != nil {
		return fmt.Errorf("failed to persist state: %w", err)
	}
	return nil
}

// Stored returns the document currently held by the sink, nil if none.
func (s *LedgerState) Stored(ctx context.Context) ([]byte, error) {
	if s.sink == nil {
		return nil, nil
	}
	return s.sink.Read(ctx)
}

// Contract returns a copy of one contract's aggregate.
func (s *LedgerState) Contract(contractID string) (ContractState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.doc.Contracts[contractID]
	if !ok {
		return ContractState{}, false
	}
	out := *cs
	out.EventTypes = make(map[string]uint64, len(cs.EventTypes))
	for k, v := range cs.EventTypes {
		out.EventTypes[k] = v
	}
	return out, true
}

// addAmount adds an integer amount given as a JSON number or decimal string.
func addAmount(total string, amount gjson.Result) (string, error) {
	sum := new(big.Int)
	if total != "" {
		if _, ok := sum.SetString(total, 10); !ok {
			return "", fmt.Errorf("invalid stored amount %q", total)
		}
	}

	raw := amount.Raw
	if amount.Type == gjson.String {
		raw = amount.Str
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return "", fmt.Errorf("invalid amount %q", raw)
	}
	return sum.Add(sum, value).String(), nil
}
