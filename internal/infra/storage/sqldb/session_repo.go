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

// SessionRepo implements storage.SessionRepository. The metadata document is
// stored as JSON; state and started_at are copied out for listing.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo creates a new SQL session repository.
func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// SaveMetadata upserts session metadata.
func (r *SessionRepo) SaveMetadata(ctx context.Context, meta *domain.ReplayMetadata) error {
	doc, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode session metadata: %w", err)
	}

	query := `
		INSERT INTO replay_sessions (session_id, state, metadata, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			state = EXCLUDED.state,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
	`
	_, err = r.db.ExecContext(
		ctx,
		r.db.Rebind(query),
		meta.SessionID,
		string(meta.Status.State),
		string(doc),
		toMillis(meta.StartedAt),
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save session metadata: %w", err)
	}
	return nil
}

// LoadMetadata retrieves session metadata.
func (r *SessionRepo) LoadMetadata(ctx context.Context, sessionID string) (*domain.ReplayMetadata, error) {
	var doc string
	err := r.db.GetContext(
		ctx,
		&doc,
		r.db.Rebind("SELECT metadata FROM replay_sessions WHERE session_id = ?"),
		sessionID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session metadata: %w", err)
	}
	return decodeMetadata(doc)
}

// ListSessions returns up to limit sessions, most recently started first.
func (r *SessionRepo) ListSessions(ctx context.Context, limit int) ([]*domain.ReplayMetadata, error) {
	query := "SELECT metadata FROM replay_sessions ORDER BY started_at DESC, session_id ASC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var docs []string
	if err := r.db.SelectContext(ctx, &docs, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]*domain.ReplayMetadata, 0, len(docs))
	for _, doc := range docs {
		meta, err := decodeMetadata(doc)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, meta)
	}
	return sessions, nil
}

// DeleteSession removes session metadata.
func (r *SessionRepo) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(
		ctx,
		r.db.Rebind("DELETE FROM replay_sessions WHERE session_id = ?"),
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func decodeMetadata(doc string) (*domain.ReplayMetadata, error) {
	var meta domain.ReplayMetadata
	if err := json.Unmarshal([]byte(doc), &meta); err != nil {
		return nil, fmt.Errorf("failed to decode session metadata: %w", err)
	}
	return &meta, nil
}

// CheckpointStore joins the checkpoint and session repos over one DB.
type CheckpointStore struct {
	*CheckpointRepo
	*SessionRepo
}

// NewCheckpointStore creates the combined checkpoint and session store.
func NewCheckpointStore(db *DB) *CheckpointStore {
	return &CheckpointStore{
		CheckpointRepo: NewCheckpointRepo(db),
		SessionRepo:    NewSessionRepo(db),
	}
}
