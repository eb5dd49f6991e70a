package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrLeaseHeld is returned when another process holds the session lease.
var ErrLeaseHeld = errors.New("session lease held by another process")

// Lease keeps a session lease alive while a session runs.
type Lease struct {
	client    *Client
	sessionID string
	owner     string
	ttl       time.Duration
	log       *slog.Logger
}

// NewLease creates a lease for the session. Nothing is acquired yet.
func (c *Client) NewLease(sessionID, owner string, ttl time.Duration) *Lease {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Lease{
		client:    c,
		sessionID: sessionID,
		owner:     owner,
		ttl:       ttl,
		log:       slog.Default().With("component", "lease", "session", sessionID),
	}
}

// Hold acquires the lease and refreshes it every ttl/3 until ctx is done,
// then releases it.
func (l *Lease) Hold(ctx context.Context) error {
	ok, err := l.client.AcquireLease(ctx, l.sessionID, l.owner, l.ttl)
	if err != nil {
		return fmt.Errorf("failed to acquire lease: %w", err)
	}
	if !ok {
		return ErrLeaseHeld
	}
	l.log.Debug("Lease acquired", "owner", l.owner, "ttl", l.ttl)

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := l.client.ReleaseLease(releaseCtx, l.sessionID); err != nil {
				l.log.Warn("Failed to release lease", "error", err)
			}
			return nil
		case <-ticker.C:
			if err := l.client.RefreshLease(ctx, l.sessionID, l.ttl); err != nil {
				l.log.Warn("Failed to refresh lease", "error", err)
			}
		}
	}
}
