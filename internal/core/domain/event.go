package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// ContractEvent is an immutable smart-contract event captured by the live
// ingestion path. Replay only reads it.
type ContractEvent struct {
	ID              string          `json:"id"`
	LedgerSequence  uint64          `json:"ledger_sequence"`
	TransactionHash string          `json:"transaction_hash"`
	ContractID      string          `json:"contract_id"`
	EventType       string          `json:"event_type"`
	Payload         json.RawMessage `json:"payload"`
	Timestamp       time.Time       `json:"timestamp"`
	Network         Network         `json:"network"`
}

// UniqueID identifies the event across ledgers, contracts and event types.
// Processed markers are keyed by it.
func (e *ContractEvent) UniqueID() string {
	return fmt.Sprintf("%d:%s:%s:%s", e.LedgerSequence, e.ContractID, e.EventType, e.ID)
}

// EventFilter narrows the events a replay session sees. Every non-empty
// dimension must match; an empty dimension matches everything.
type EventFilter struct {
	ContractIDs []string `json:"contract_ids,omitempty" yaml:"contract_ids"`
	EventTypes  []string `json:"event_types,omitempty"  yaml:"event_types"`
	Network     Network  `json:"network,omitempty"      yaml:"network"`
}

// Matches reports whether the event passes the filter.
func (f EventFilter) Matches(e *ContractEvent) bool {
	if len(f.ContractIDs) > 0 && !slices.Contains(f.ContractIDs, e.ContractID) {
		return false
	}
	if len(f.EventTypes) > 0 && !slices.Contains(f.EventTypes, e.EventType) {
		return false
	}
	if f.Network != "" && f.Network != e.Network {
		return false
	}
	return true
}

// IsEmpty returns true when the filter matches every event.
func (f EventFilter) IsEmpty() bool {
	return len(f.ContractIDs) == 0 && len(f.EventTypes) == 0 && f.Network == ""
}

// EventPosition is a place in the (ledger_sequence, id) order of the event
// log. Ids compare by their bytes.
type EventPosition struct {
	Ledger uint64
	ID     string
}

// Before reports whether the event sorts strictly after p.
func (p EventPosition) Before(e *ContractEvent) bool {
	if e.LedgerSequence != p.Ledger {
		return e.LedgerSequence > p.Ledger
	}
	return e.ID > p.ID
}
