package domain

import (
	"fmt"
	"time"
)

// SessionState is the state of a replay session.
type SessionState string

const (
	SessionPending    SessionState = "pending"
	SessionInProgress SessionState = "in_progress"
	SessionPaused     SessionState = "paused"
	SessionCompleted  SessionState = "completed"
	SessionFailed     SessionState = "failed"
)

// SessionStatus carries the state and the fields relevant to it:
// InProgress uses CurrentLedger, Paused and Failed use LastLedger,
// Completed uses Duration and Failed uses Error.
type SessionStatus struct {
	State           SessionState  `json:"state"`
	CurrentLedger   uint64        `json:"current_ledger,omitempty"`
	LastLedger      uint64        `json:"last_ledger,omitempty"`
	EventsProcessed uint64        `json:"events_processed"`
	EventsFailed    uint64        `json:"events_failed"`
	Duration        time.Duration `json:"duration,omitempty"`
	Error           string        `json:"error,omitempty"`
}

func StatusPending() SessionStatus {
	return SessionStatus{State: SessionPending}
}

func StatusInProgress(current, processed, failed uint64) SessionStatus {
	return SessionStatus{
		State:           SessionInProgress,
		CurrentLedger:   current,
		EventsProcessed: processed,
		EventsFailed:    failed,
	}
}

func StatusPaused(last, processed, failed uint64) SessionStatus {
	return SessionStatus{
		State:           SessionPaused,
		LastLedger:      last,
		EventsProcessed: processed,
		EventsFailed:    failed,
	}
}

func StatusCompleted(processed, failed uint64, d time.Duration) SessionStatus {
	return SessionStatus{
		State:           SessionCompleted,
		EventsProcessed: processed,
		EventsFailed:    failed,
		Duration:        d,
	}
}

func StatusFailed(err error, last uint64) SessionStatus {
	return SessionStatus{
		State:      SessionFailed,
		LastLedger: last,
		Error:      err.Error(),
	}
}

// IsTerminal returns true for Completed and Failed.
func (s SessionStatus) IsTerminal() bool {
	return s.State == SessionCompleted || s.State == SessionFailed
}

func (s SessionStatus) String() string {
	switch s.State {
	case SessionInProgress:
		return fmt.Sprintf("in_progress(ledger=%d processed=%d failed=%d)",
			s.CurrentLedger, s.EventsProcessed, s.EventsFailed)
	case SessionPaused:
		return fmt.Sprintf("paused(ledger=%d processed=%d failed=%d)",
			s.LastLedger, s.EventsProcessed, s.EventsFailed)
	case SessionCompleted:
		return fmt.Sprintf("completed(processed=%d failed=%d duration=%s)",
			s.EventsProcessed, s.EventsFailed, s.Duration)
	case SessionFailed:
		return fmt.Sprintf("failed(ledger=%d error=%s)", s.LastLedger, s.Error)
	default:
		return string(s.State)
	}
}

// ReplayMetadata is the persisted record of one replay session.
type ReplayMetadata struct {
	SessionID      string        `json:"session_id"`
	Config         ReplayConfig  `json:"config"`
	Status         SessionStatus `json:"status"`
	StartedAt      time.Time     `json:"started_at"`
	EndedAt        *time.Time    `json:"ended_at,omitempty"`
	LastCheckpoint *Checkpoint   `json:"last_checkpoint,omitempty"`
}

// Clone returns a copy that shares nothing mutable with m.
func (m *ReplayMetadata) Clone() *ReplayMetadata {
	if m == nil {
		return nil
	}
	out := *m
	if m.EndedAt != nil {
		t := *m.EndedAt
		out.EndedAt = &t
	}
	out.LastCheckpoint = m.LastCheckpoint.Clone()
	return &out
}
