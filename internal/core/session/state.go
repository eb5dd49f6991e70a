package session

import (
	"errors"
	"time"

	"github.com/vietddude/replayer/internal/core/domain"
)

// State is an alias for domain.SessionState for internal use.
type State = domain.SessionState

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
var ValidTransitions = map[State][]State{
	domain.SessionPending: {domain.SessionInProgress, domain.SessionFailed},
	domain.SessionInProgress: {
		domain.SessionPaused,
		domain.SessionCompleted,
		domain.SessionFailed,
	},
	domain.SessionPaused: {domain.SessionInProgress, domain.SessionFailed},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	validTargets, ok := ValidTransitions[from]
	if !ok {
		return false
	}

	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}

// Transition represents a state change with metadata.
type Transition struct {
	From      State
	To        State
	Reason    string
	Timestamp time.Time
}

// NewTransition creates a new transition record.
func NewTransition(from, to State, reason string) Transition {
	return Transition{
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// IsValid returns true if this transition is allowed by the state machine.
func (t Transition) IsValid() bool {
	return CanTransition(t.From, t.To)
}

// StateDescription returns a human-readable description of a state.
func StateDescription(s State) string {
	switch s {
	case domain.SessionPending:
		return "Pending - session created, range not yet resolved"
	case domain.SessionInProgress:
		return "In progress - replaying ledger batches"
	case domain.SessionPaused:
		return "Paused - stopped at a batch boundary by operator"
	case domain.SessionCompleted:
		return "Completed - range fully replayed"
	case domain.SessionFailed:
		return "Failed - aborted by a storage error or cancellation"
	default:
		return "Unknown state"
	}
}
