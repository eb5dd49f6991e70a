// Package session tracks the lifecycle of a single replay session.
//
// # Purpose
//
// A replay session is single-use: it is created Pending, runs, and ends in
// exactly one terminal state. The tracker owns the session's metadata,
// enforces the state machine and persists every meaningful change so that
// get_status reflects the truth even when the caller crashed:
//   - Pending: created, range not yet resolved
//   - InProgress: batch loop running, current ledger and counters advance
//   - Paused: stopped at a batch boundary by an operator
//   - Completed / Failed: terminal, never left again
//
// # State Machine
//
//	PENDING → IN_PROGRESS → COMPLETED (valid)
//	IN_PROGRESS ⇄ PAUSED (valid)
//	COMPLETED → IN_PROGRESS (invalid - sessions are single-use)
//
// # Quick Start
//
//	tracker := session.NewTracker(sessionRepo, uuid.NewString(), cfg)
//	tracker.Begin(ctx)
//	tracker.Transition(ctx, domain.StatusInProgress(start, 0, 0), "range resolved")
//	tracker.Progress(domain.StatusInProgress(next, processed, failed))
//	tracker.Transition(ctx, domain.StatusCompleted(processed, failed, d), "done")
//
// # Package Structure
//
//   - state.go   - State machine definitions and valid transitions
//   - tracker.go - Tracker owning and persisting ReplayMetadata
package session
