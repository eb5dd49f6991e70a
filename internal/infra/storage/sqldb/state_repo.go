package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/replayer/internal/core/domain"
)

// StateRepo implements storage.StateRepository on the state_documents table.
type StateRepo struct {
	db *DB
}

// NewStateRepo creates a new SQL state document repository.
func NewStateRepo(db *DB) *StateRepo {
	return &StateRepo{db: db}
}

// Write replaces the named document.
func (r *StateRepo) Write(ctx context.Context, name string, doc []byte) error {
	query := `
		INSERT INTO state_documents (name, document, hash, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			document = EXCLUDED.document,
			hash = EXCLUDED.hash,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(
		ctx,
		r.db.Rebind(query),
		name,
		string(doc),
		domain.HashState(doc),
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to write state document: %w", err)
	}
	return nil
}

// Read returns the named document, nil if absent.
func (r *StateRepo) Read(ctx context.Context, name string) ([]byte, error) {
	var doc string
	err := r.db.GetContext(
		ctx,
		&doc,
		r.db.Rebind("SELECT document FROM state_documents WHERE name = ?"),
		name,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state document: %w", err)
	}
	return []byte(doc), nil
}
