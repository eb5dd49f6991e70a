package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "replay"

// Client wraps Redis operations shared by replay processes: processed
// markers, session leases and remote pause flags.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key helpers
func leaseKey(sessionID string) string {
	return fmt.Sprintf("%s:lease:%s", keyPrefix, sessionID)
}

func pauseKey(sessionID string) string {
	return fmt.Sprintf("%s:pause:%s", keyPrefix, sessionID)
}

func markerKey(processor, eventKey string) string {
	return fmt.Sprintf("%s:processed:%s:%s", keyPrefix, processor, eventKey)
}

func failedQueueKey(sessionID string) string {
	return fmt.Sprintf("%s:failed:%s", keyPrefix, sessionID)
}

func failedEventKey(sessionID, id string) string {
	return fmt.Sprintf("%s:failed_event:%s:%s", keyPrefix, sessionID, id)
}

// AcquireLease takes the session lease for owner. It returns false when
// another process holds it.
func (c *Client) AcquireLease(ctx context.Context, sessionID, owner string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, leaseKey(sessionID), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// RefreshLease extends the TTL of a lease.
func (c *Client) RefreshLease(ctx context.Context, sessionID string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, leaseKey(sessionID), ttl).Err()
}

// ReleaseLease releases a session lease.
func (c *Client) ReleaseLease(ctx context.Context, sessionID string) error {
	return c.rdb.Del(ctx, leaseKey(sessionID)).Err()
}

// LeaseOwner returns the current lease holder, empty if the session is not leased.
func (c *Client) LeaseOwner(ctx context.Context, sessionID string) (string, error) {
	owner, err := c.rdb.Get(ctx, leaseKey(sessionID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get failed: %w", err)
	}
	return owner, nil
}

// SetPause asks the process running the session to pause.
func (c *Client) SetPause(ctx context.Context, sessionID string) error {
	return c.rdb.Set(ctx, pauseKey(sessionID), time.Now().UTC().Format(time.RFC3339), 0).Err()
}

// ClearPause lets a paused session continue.
func (c *Client) ClearPause(ctx context.Context, sessionID string) error {
	return c.rdb.Del(ctx, pauseKey(sessionID)).Err()
}

// IsPaused reports whether a pause was requested for the session.
func (c *Client) IsPaused(ctx context.Context, sessionID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, pauseKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("exists failed: %w", err)
	}
	return n > 0, nil
}
