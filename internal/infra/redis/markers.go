package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/vietddude/replayer/internal/infra/storage"
)

// MarkerRepo implements storage.MarkerRepository with one key per marker.
type MarkerRepo struct {
	client *Client
	ttl    time.Duration
}

var _ storage.MarkerRepository = (*MarkerRepo)(nil)

// NewMarkerRepo creates a Redis marker store. A zero ttl keeps markers forever.
func NewMarkerRepo(client *Client, ttl time.Duration) *MarkerRepo {
	return &MarkerRepo{client: client, ttl: ttl}
}

func (r *MarkerRepo) IsProcessed(ctx context.Context, processor, eventKey string) (bool, error) {
	n, err := r.client.rdb.Exists(ctx, markerKey(processor, eventKey)).Result()
	if err != nil {
		return false, fmt.Errorf("exists failed: %w", err)
	}
	return n > 0, nil
}

func (r *MarkerRepo) MarkProcessed(ctx context.Context, processor, eventKey string, ledger uint64) error {
	key := markerKey(processor, eventKey)
	if err := r.client.rdb.SetNX(ctx, key, strconv.FormatUint(ledger, 10), r.ttl).Err(); err != nil {
		return fmt.Errorf("setnx failed: %w", err)
	}
	return nil
}
