package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/replayer/internal/core/domain"
	"github.com/vietddude/replayer/internal/infra/storage"
)

const failedEventTTL = 7 * 24 * time.Hour

// FailedEventRepo implements storage.FailedEventRepository using Redis.
// Each session has a sorted set of failure ids scored by ledger.
type FailedEventRepo struct {
	rdb *redis.Client
}

var _ storage.FailedEventRepository = (*FailedEventRepo)(nil)

// NewFailedEventRepo creates a new Redis-backed failed event repository.
func NewFailedEventRepo(client *Client) *FailedEventRepo {
	return &FailedEventRepo{rdb: client.rdb}
}

// Add records a failed event.
func (r *FailedEventRepo) Add(ctx context.Context, fe *domain.FailedEvent) error {
	data, err := json.Marshal(fe)
	if err != nil {
		return fmt.Errorf("failed to marshal failed event: %w", err)
	}

	if err := r.rdb.Set(ctx, failedEventKey(fe.SessionID, fe.ID), data, failedEventTTL).Err(); err != nil {
		return fmt.Errorf("failed to set failed event: %w", err)
	}

	if err := r.rdb.ZAdd(ctx, failedQueueKey(fe.SessionID), redis.Z{
		Score:  float64(fe.LedgerSequence),
		Member: fe.ID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to queue: %w", err)
	}
	r.rdb.Expire(ctx, failedQueueKey(fe.SessionID), failedEventTTL)

	return nil
}

// ListForSession retrieves a session's failed events ordered by ledger.
func (r *FailedEventRepo) ListForSession(ctx context.Context, sessionID string) ([]*domain.FailedEvent, error) {
	ids, err := r.rdb.ZRange(ctx, failedQueueKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}

	events := make([]*domain.FailedEvent, 0, len(ids))
	for _, id := range ids {
		data, err := r.rdb.Get(ctx, failedEventKey(sessionID, id)).Bytes()
		if err == redis.Nil {
			// Data expired but ID still in queue, remove it
			r.rdb.ZRem(ctx, failedQueueKey(sessionID), id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get failed event: %w", err)
		}

		var fe domain.FailedEvent
		if err := json.Unmarshal(data, &fe); err != nil {
			continue
		}
		events = append(events, &fe)
	}

	return events, nil
}

// Count returns the count of failed events for a session.
func (r *FailedEventRepo) Count(ctx context.Context, sessionID string) (int, error) {
	count, err := r.rdb.ZCard(ctx, failedQueueKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(count), nil
}
