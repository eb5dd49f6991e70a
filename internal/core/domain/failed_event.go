package domain

import "time"

// FailedEvent records an event that still failed after all retries in a
// replay session. The session keeps going; this is the audit trail.
type FailedEvent struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	EventID        string    `json:"event_id"`
	LedgerSequence uint64    `json:"ledger_sequence"`
	Error          string    `json:"error_msg"`
	Attempts       int       `json:"attempts"`
	CreatedAt      time.Time `json:"created_at"`
}
