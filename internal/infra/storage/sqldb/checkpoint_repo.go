package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/replayer/internal/core/domain"
)

// CheckpointRepo implements storage.CheckpointRepository.
type CheckpointRepo struct {
	db *DB
}

// NewCheckpointRepo creates a new SQL checkpoint repository.
func NewCheckpointRepo(db *DB) *CheckpointRepo {
	return &CheckpointRepo{db: db}
}

type checkpointRow struct {
	ID              string         `db:"id"`
	SessionID       string         `db:"session_id"`
	LastLedger      int64          `db:"last_ledger"`
	EventsProcessed int64          `db:"events_processed"`
	EventsFailed    int64          `db:"events_failed"`
	StateSnapshot   sql.NullString `db:"state_snapshot"`
	Metadata        string         `db:"metadata"`
	CreatedAt       int64          `db:"created_at"`
}

func (row checkpointRow) toDomain() (*domain.Checkpoint, error) {
	cp := &domain.Checkpoint{
		ID:              row.ID,
		SessionID:       row.SessionID,
		LastLedger:      uint64(row.LastLedger),
		EventsProcessed: uint64(row.EventsProcessed),
		EventsFailed:    uint64(row.EventsFailed),
		Metadata:        make(map[string]string),
		CreatedAt:       fromMillis(row.CreatedAt),
	}
	if row.StateSnapshot.Valid {
		cp.StateSnapshot = json.RawMessage(row.StateSnapshot.String)
	}
	if err := json.Unmarshal([]byte(row.Metadata), &cp.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint metadata: %w", err)
	}
	return cp, nil
}

const selectCheckpointColumns = `
	SELECT id, session_id, last_ledger, events_processed, events_failed, state_snapshot, metadata, created_at
	FROM replay_checkpoints
`

// Save upserts a checkpoint. Session and creation time keep their first values.
func (r *CheckpointRepo) Save(ctx context.Context, cp *domain.Checkpoint) error {
	metadata := cp.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint metadata: %w", err)
	}

	var snapshot sql.NullString
	if cp.StateSnapshot != nil {
		snapshot = sql.NullString{String: string(cp.StateSnapshot), Valid: true}
	}

	query := `
		INSERT INTO replay_checkpoints
			(id, session_id, last_ledger, events_processed, events_failed, state_snapshot, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			last_ledger = EXCLUDED.last_ledger,
			events_processed = EXCLUDED.events_processed,
			events_failed = EXCLUDED.events_failed,
			state_snapshot = EXCLUDED.state_snapshot,
			metadata = EXCLUDED.metadata
	`
	_, err = r.db.ExecContext(
		ctx,
		r.db.Rebind(query),
		cp.ID,
		cp.SessionID,
		int64(cp.LastLedger),
		int64(cp.EventsProcessed),
		int64(cp.EventsFailed),
		snapshot,
		string(metaJSON),
		toMillis(cp.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Load retrieves a checkpoint by id.
func (r *CheckpointRepo) Load(ctx context.Context, id string) (*domain.Checkpoint, error) {
	var row checkpointRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(selectCheckpointColumns+" WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return row.toDomain()
}

// GetLatest returns the most recent checkpoint of a session.
func (r *CheckpointRepo) GetLatest(ctx context.Context, sessionID string) (*domain.Checkpoint, error) {
	query := selectCheckpointColumns + `
		WHERE session_id = ?
		ORDER BY created_at DESC, last_ledger DESC
		LIMIT 1
	`
	var row checkpointRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(query), sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest checkpoint: %w", err)
	}
	return row.toDomain()
}

// ListForSession returns a session's checkpoints, newest first.
func (r *CheckpointRepo) ListForSession(ctx context.Context, sessionID string) ([]*domain.Checkpoint, error) {
	query := selectCheckpointColumns + `
		WHERE session_id = ?
		ORDER BY created_at DESC, last_ledger DESC
	`
	var rows []checkpointRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), sessionID); err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	checkpoints := make([]*domain.Checkpoint, 0, len(rows))
	for _, row := range rows {
		cp, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, nil
}

// Delete removes a checkpoint.
func (r *CheckpointRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind("DELETE FROM replay_checkpoints WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// DeleteForSession removes all checkpoints of a session.
func (r *CheckpointRepo) DeleteForSession(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(
		ctx,
		r.db.Rebind("DELETE FROM replay_checkpoints WHERE session_id = ?"),
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session checkpoints: %w", err)
	}
	return nil
}

// CleanupOld removes checkpoints created more than days ago.
func (r *CheckpointRepo) CleanupOld(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	res, err := r.db.ExecContext(
		ctx,
		r.db.Rebind("DELETE FROM replay_checkpoints WHERE created_at < ?"),
		toMillis(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup checkpoints: %w", err)
	}
	return res.RowsAffected()
}
