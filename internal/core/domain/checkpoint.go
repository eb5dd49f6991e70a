package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Checkpoint metadata keys written by the replay engine.
const (
	MetaMode         = "mode"
	MetaStateHash    = "state_hash"
	MetaNetwork      = "network"
	MetaVerification = "verification"
	MetaFinal        = "final"
)

// Checkpoint is a durable snapshot of replay progress and derived state.
// A session resumes from its LastLedger via a FromCheckpoint range.
type Checkpoint struct {
	ID              string            `json:"id"`
	SessionID       string            `json:"session_id"`
	LastLedger      uint64            `json:"last_ledger"`
	EventsProcessed uint64            `json:"events_processed"`
	EventsFailed    uint64            `json:"events_failed"`
	StateSnapshot   json.RawMessage   `json:"state_snapshot,omitempty"`
	Metadata        map[string]string `json:"metadata"`
	CreatedAt       time.Time         `json:"created_at"`
}

// NewCheckpoint creates an empty checkpoint for the session at lastLedger.
// CreatedAt is truncated to milliseconds, the precision of the SQL stores.
func NewCheckpoint(sessionID string, lastLedger uint64) *Checkpoint {
	return &Checkpoint{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		LastLedger: lastLedger,
		Metadata:   make(map[string]string),
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
}

// WithStats sets the event counters.
func (c *Checkpoint) WithStats(processed, failed uint64) *Checkpoint {
	c.EventsProcessed = processed
	c.EventsFailed = failed
	return c
}

// WithState attaches a serialized state snapshot and records its hash.
func (c *Checkpoint) WithState(snapshot json.RawMessage) *Checkpoint {
	c.StateSnapshot = snapshot
	c.Metadata[MetaStateHash] = c.StateHash()
	return c
}

// WithMetadata sets a single metadata entry.
func (c *Checkpoint) WithMetadata(key, value string) *Checkpoint {
	if c.Metadata == nil {
		c.Metadata = make(map[string]string)
	}
	c.Metadata[key] = value
	return c
}

// StateHash returns the hex SHA-256 of the state snapshot.
func (c *Checkpoint) StateHash() string {
	return HashState(c.StateSnapshot)
}

// Clone returns a deep copy.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	out := *c
	if c.StateSnapshot != nil {
		out.StateSnapshot = append(json.RawMessage(nil), c.StateSnapshot...)
	}
	out.Metadata = maps.Clone(c.Metadata)
	if out.Metadata == nil {
		out.Metadata = make(map[string]string)
	}
	return &out
}

// HashState returns the hex SHA-256 of a serialized state document.
func HashState(doc []byte) string {
	sum := sha256.Sum256(doc)
	return hex.EncodeToString(sum[:])
}
