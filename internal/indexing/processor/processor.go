// Package processor defines the event processor capability and the
// dispatcher that runs processors with idempotency checks, validation,
// per-event timeouts and retry with exponential backoff.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vietddude/replayer/internal/core/domain"
	"github.com/vietddude/replayer/internal/infra/storage"
)

// Processor handles contract events of the types it understands.
type Processor interface {
	// Name identifies the processor in logs, metrics and marker keys
	Name() string

	// ProcessEvent applies the event. It returns ErrUnsupportedEvent for
	// event types it does not handle.
	ProcessEvent(ctx context.Context, event *domain.ContractEvent, pctx *Context) (*Result, error)

	// IsProcessed checks the durable "already handled" marker
	IsProcessed(ctx context.Context, event *domain.ContractEvent) (bool, error)

	// MarkProcessed writes the marker
	MarkProcessed(ctx context.Context, event *domain.ContractEvent) error

	// ValidateEvent rejects events the processor must not see
	ValidateEvent(event *domain.ContractEvent) error
}

// Context carries per-event processing parameters.
type Context struct {
	SessionID       string // empty for live, non-replay processing
	DryRun          bool
	CurrentLedger   uint64
	EventsProcessed uint64
	Timeout         time.Duration
}

// NewContext returns a live processing context.
func NewContext() *Context {
	return &Context{Timeout: 30 * time.Second}
}

// ForReplay returns a context bound to a replay session.
func ForReplay(sessionID string, dryRun bool, timeout time.Duration) *Context {
	return &Context{
		SessionID: sessionID,
		DryRun:    dryRun,
		Timeout:   timeout,
	}
}

// IsReplay reports whether the context belongs to a replay session.
func (c *Context) IsReplay() bool {
	return c.SessionID != ""
}

// StateChange describes one mutation made while processing an event.
type StateChange struct {
	ChangeType    string          `json:"change_type"`
	EntityType    string          `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	PreviousValue json.RawMessage `json:"previous_value,omitempty"`
	NewValue      json.RawMessage `json:"new_value,omitempty"`
}

// Result is the outcome of processing one event.
type Result struct {
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Changes  []StateChange `json:"state_changes"`
	Duration time.Duration `json:"duration"`
	Skipped  bool          `json:"skipped"`
	Attempts int           `json:"attempts"`

	// Cause is the error behind a failure, used for retry classification.
	Cause error `json:"-"`
}

// Success returns a successful result.
func Success(changes ...StateChange) *Result {
	return &Result{Success: true, Changes: changes}
}

// Skipped returns the idempotency short-circuit result.
func Skipped() *Result {
	return &Result{Success: true, Skipped: true}
}

// Failure returns a failed result carrying err.
func Failure(err error) *Result {
	return &Result{Error: err.Error(), Cause: err}
}

// WithChange appends a state change.
func (r *Result) WithChange(change StateChange) *Result {
	r.Changes = append(r.Changes, change)
	return r
}

// DefaultValidate rejects events without a contract id or event type.
func DefaultValidate(event *domain.ContractEvent) error {
	if event.ContractID == "" {
		return fmt.Errorf("%w: contract_id is empty (event %s)", ErrValidation, event.ID)
	}
	if event.EventType == "" {
		return fmt.Errorf("%w: event_type is empty (event %s)", ErrValidation, event.ID)
	}
	return nil
}

// Markers implements IsProcessed and MarkProcessed on a MarkerRepository,
// scoped by processor name. A nil repository never reports an event as
// processed.
type Markers struct {
	name string
	repo storage.MarkerRepository
}

// NewMarkers creates markers for the named processor.
func NewMarkers(name string, repo storage.MarkerRepository) Markers {
	return Markers{name: name, repo: repo}
}

func (m Markers) IsProcessed(ctx context.Context, event *domain.ContractEvent) (bool, error) {
	if m.repo == nil {
		return false, nil
	}
	return m.repo.IsProcessed(ctx, m.name, event.UniqueID())
}

func (m Markers) MarkProcessed(ctx context.Context, event *domain.ContractEvent) error {
	if m.repo == nil {
		return nil
	}
	return m.repo.MarkProcessed(ctx, m.name, event.UniqueID(), event.LedgerSequence)
}
