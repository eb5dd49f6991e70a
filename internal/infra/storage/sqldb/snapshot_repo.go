package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/replayer/internal/core/domain"
)

// SnapshotRepo implements storage.SnapshotRepository.
type SnapshotRepo struct {
	db *DB
}

// NewSnapshotRepo creates a new SQL snapshot repository.
func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// GetSnapshot retrieves a snapshot by epoch.
func (r *SnapshotRepo) GetSnapshot(ctx context.Context, epoch int64) (*domain.Snapshot, error) {
	query := `
		SELECT epoch, hash, contract_id, ledger_sequence, transaction_hash, created_at
		FROM snapshots
		WHERE epoch = ?
	`
	var dest struct {
		Epoch           int64  `db:"epoch"`
		Hash            string `db:"hash"`
		ContractID      string `db:"contract_id"`
		LedgerSequence  int64  `db:"ledger_sequence"`
		TransactionHash string `db:"transaction_hash"`
		CreatedAt       int64  `db:"created_at"`
	}
	err := r.db.GetContext(ctx, &dest, r.db.Rebind(query), epoch)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	return &domain.Snapshot{
		Epoch:           dest.Epoch,
		Hash:            dest.Hash,
		ContractID:      dest.ContractID,
		LedgerSequence:  uint64(dest.LedgerSequence),
		TransactionHash: dest.TransactionHash,
		CreatedAt:       fromMillis(dest.CreatedAt),
	}, nil
}

// SaveSnapshot inserts a snapshot record.
func (r *SnapshotRepo) SaveSnapshot(ctx context.Context, s *domain.Snapshot) error {
	query := `
		INSERT INTO snapshots (epoch, hash, contract_id, ledger_sequence, transaction_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(
		ctx,
		r.db.Rebind(query),
		s.Epoch,
		s.Hash,
		s.ContractID,
		int64(s.LedgerSequence),
		s.TransactionHash,
		toMillis(s.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}
