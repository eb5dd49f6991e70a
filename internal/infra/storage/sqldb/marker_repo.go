package sqldb

import (
	"context"
	"fmt"
	"time"
)

// MarkerRepo implements storage.MarkerRepository on the processed_events table.
type MarkerRepo struct {
	db *DB
}

// NewMarkerRepo creates a new SQL processed-marker repository.
func NewMarkerRepo(db *DB) *MarkerRepo {
	return &MarkerRepo{db: db}
}

// IsProcessed reports whether the processor already handled the event key.
func (r *MarkerRepo) IsProcessed(ctx context.Context, processor, eventKey string) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM processed_events
		WHERE processor = ? AND event_key = ?
	`
	var count int
	if err := r.db.GetContext(ctx, &count, r.db.Rebind(query), processor, eventKey); err != nil {
		return false, fmt.Errorf("failed to check processed marker: %w", err)
	}
	return count > 0, nil
}

// MarkProcessed records the marker, keeping the first one written.
func (r *MarkerRepo) MarkProcessed(ctx context.Context, processor, eventKey string, ledger uint64) error {
	query := `
		INSERT INTO processed_events (processor, event_key, ledger_sequence, processed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (processor, event_key) DO NOTHING
	`
	_, err := r.db.ExecContext(
		ctx,
		r.db.Rebind(query),
		processor,
		eventKey,
		int64(ledger),
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}
