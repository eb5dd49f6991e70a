package sqldb

import (
	"context"
	"fmt"

	"github.com/vietddude/replayer/internal/core/domain"
)

// FailedEventRepo implements storage.FailedEventRepository.
type FailedEventRepo struct {
	db *DB
}

// NewFailedEventRepo creates a new SQL failed event repository.
func NewFailedEventRepo(db *DB) *FailedEventRepo {
	return &FailedEventRepo{db: db}
}

// Add records a failed event.
func (r *FailedEventRepo) Add(ctx context.Context, fe *domain.FailedEvent) error {
	query := `
		INSERT INTO failed_events (id, session_id, event_id, ledger_sequence, error_msg, attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(
		ctx,
		r.db.Rebind(query),
		fe.ID,
		fe.SessionID,
		fe.EventID,
		int64(fe.LedgerSequence),
		fe.Error,
		fe.Attempts,
		toMillis(fe.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to add failed event: %w", err)
	}
	return nil
}

// ListForSession returns a session's failed events ordered by ledger.
func (r *FailedEventRepo) ListForSession(
	ctx context.Context,
	sessionID string,
) ([]*domain.FailedEvent, error) {
	query := `
		SELECT id, session_id, event_id, ledger_sequence, error_msg, attempts, created_at
		FROM failed_events
		WHERE session_id = ?
		ORDER BY ledger_sequence ASC, created_at ASC
	`

	var rows []struct {
		ID             string `db:"id"`
		SessionID      string `db:"session_id"`
		EventID        string `db:"event_id"`
		LedgerSequence int64  `db:"ledger_sequence"`
		ErrorMsg       string `db:"error_msg"`
		Attempts       int    `db:"attempts"`
		CreatedAt      int64  `db:"created_at"`
	}

	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), sessionID); err != nil {
		return nil, fmt.Errorf("failed to list failed events: %w", err)
	}

	var failed []*domain.FailedEvent
	for _, row := range rows {
		failed = append(failed, &domain.FailedEvent{
			ID:             row.ID,
			SessionID:      row.SessionID,
			EventID:        row.EventID,
			LedgerSequence: uint64(row.LedgerSequence),
			Error:          row.ErrorMsg,
			Attempts:       row.Attempts,
			CreatedAt:      fromMillis(row.CreatedAt),
		})
	}
	return failed, nil
}

// Count returns the number of failed events for a session.
func (r *FailedEventRepo) Count(ctx context.Context, sessionID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM failed_events
		WHERE session_id = ?
	`
	var count int
	if err := r.db.GetContext(ctx, &count, r.db.Rebind(query), sessionID); err != nil {
		return 0, fmt.Errorf("failed to count failed events: %w", err)
	}
	return count, nil
}
