package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/replayer/internal/core/domain"
)

// EventRepo implements storage.EventRepository.
type EventRepo struct {
	db *DB
}

// NewEventRepo creates a new SQL event repository.
func NewEventRepo(db *DB) *EventRepo {
	return &EventRepo{db: db}
}

type eventRow struct {
	ID              string `db:"id"`
	LedgerSequence  int64  `db:"ledger_sequence"`
	TransactionHash string `db:"transaction_hash"`
	ContractID      string `db:"contract_id"`
	EventType       string `db:"event_type"`
	Payload         string `db:"payload"`
	TimestampMs     int64  `db:"timestamp_ms"`
	Network         string `db:"network"`
}

func (row eventRow) toDomain() *domain.ContractEvent {
	return &domain.ContractEvent{
		ID:              row.ID,
		LedgerSequence:  uint64(row.LedgerSequence),
		TransactionHash: row.TransactionHash,
		ContractID:      row.ContractID,
		EventType:       row.EventType,
		Payload:         json.RawMessage(row.Payload),
		Timestamp:       fromMillis(row.TimestampMs),
		Network:         domain.Network(row.Network),
	}
}

const insertEventQuery = `
	INSERT INTO contract_events
		(id, ledger_sequence, transaction_hash, contract_id, event_type, payload, timestamp_ms, network)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO NOTHING
`

const selectEventColumns = `
	SELECT id, ledger_sequence, transaction_hash, contract_id, event_type, payload, timestamp_ms, network
	FROM contract_events
`

func eventArgs(ev *domain.ContractEvent) []any {
	payload := string(ev.Payload)
	if payload == "" {
		payload = "null"
	}
	return []any{
		ev.ID,
		int64(ev.LedgerSequence),
		ev.TransactionHash,
		ev.ContractID,
		ev.EventType,
		payload,
		toMillis(ev.Timestamp),
		string(ev.Network),
	}
}

// StoreEvent inserts an event, ignoring duplicates by id.
func (r *EventRepo) StoreEvent(ctx context.Context, event *domain.ContractEvent) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(insertEventQuery), eventArgs(event)...)
	if err != nil {
		return fmt.Errorf("failed to store event: %w", err)
	}
	return nil
}

// StoreEvents inserts a batch of events in one transaction.
func (r *EventRepo) StoreEvents(ctx context.Context, events []*domain.ContractEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(insertEventQuery))
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx, eventArgs(ev)...); err != nil {
			return fmt.Errorf("failed to store event %s: %w", ev.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}
	return nil
}

// GetEvent retrieves an event by id.
func (r *EventRepo) GetEvent(ctx context.Context, id string) (*domain.ContractEvent, error) {
	var row eventRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(selectEventColumns+" WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return row.toDomain(), nil
}

// GetEventsInRange returns matching events ordered by ledger then id.
func (r *EventRepo) GetEventsInRange(
	ctx context.Context,
	start, end uint64,
	filter domain.EventFilter,
	limit int,
) ([]*domain.ContractEvent, error) {
	where, args := rangeClause(start, end, filter)
	return r.selectEvents(ctx, where, args, limit)
}

// GetEventsAfter returns the next page after a (ledger, id) position. The
// comparison runs in SQL so it follows the same collation as ORDER BY.
func (r *EventRepo) GetEventsAfter(
	ctx context.Context,
	after domain.EventPosition,
	end uint64,
	filter domain.EventFilter,
	limit int,
) ([]*domain.ContractEvent, error) {
	where, args := rangeClause(after.Ledger, end, filter)
	where += " AND (ledger_sequence > ? OR (ledger_sequence = ? AND id > ?))"
	ledger := clampLedger(after.Ledger)
	args = append(args, ledger, ledger, after.ID)
	return r.selectEvents(ctx, where, args, limit)
}

func (r *EventRepo) selectEvents(ctx context.Context, where string, args []any, limit int) ([]*domain.ContractEvent, error) {
	query := selectEventColumns + where + " ORDER BY ledger_sequence ASC, id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to expand event filter: %w", err)
	}

	var rows []eventRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get events in range: %w", err)
	}

	events := make([]*domain.ContractEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.toDomain())
	}
	return events, nil
}

// CountEventsInRange counts matching events.
func (r *EventRepo) CountEventsInRange(
	ctx context.Context,
	start, end uint64,
	filter domain.EventFilter,
) (uint64, error) {
	where, args := rangeClause(start, end, filter)
	query, args, err := sqlx.In("SELECT COUNT(*) FROM contract_events"+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to expand event filter: %w", err)
	}

	var count int64
	if err := r.db.GetContext(ctx, &count, r.db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return uint64(count), nil
}

// GetLatestLedger returns the highest stored ledger sequence.
func (r *EventRepo) GetLatestLedger(ctx context.Context) (uint64, bool, error) {
	var latest sql.NullInt64
	err := r.db.GetContext(ctx, &latest, "SELECT MAX(ledger_sequence) FROM contract_events")
	if err != nil {
		return 0, false, fmt.Errorf("failed to get latest ledger: %w", err)
	}
	if !latest.Valid {
		return 0, false, nil
	}
	return uint64(latest.Int64), true, nil
}

// rangeClause builds the WHERE clause for a ledger range and filter. IN
// lists use a single ? per slice for sqlx.In to expand.
func rangeClause(start, end uint64, filter domain.EventFilter) (string, []any) {
	conds := []string{"ledger_sequence >= ?", "ledger_sequence <= ?"}
	args := []any{clampLedger(start), clampLedger(end)}

	if len(filter.ContractIDs) > 0 {
		conds = append(conds, "contract_id IN (?)")
		args = append(args, filter.ContractIDs)
	}
	if len(filter.EventTypes) > 0 {
		conds = append(conds, "event_type IN (?)")
		args = append(args, filter.EventTypes)
	}
	if filter.Network != "" {
		conds = append(conds, "network = ?")
		args = append(args, string(filter.Network))
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// clampLedger maps a uint64 ledger onto the signed BIGINT column.
func clampLedger(ledger uint64) int64 {
	const maxLedger = uint64(1<<63 - 1)
	if ledger > maxLedger {
		return int64(maxLedger)
	}
	return int64(ledger)
}
