package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/replayer/internal/core/config"
	"github.com/vietddude/replayer/internal/indexing/metrics"
	"github.com/vietddude/replayer/internal/infra/storage"
)

// Pruner deletes checkpoints older than the retention period.
type Pruner struct {
	cfg         config.CheckpointsConfig
	checkpoints storage.CheckpointRepository
}

// NewPruner creates a new Pruner worker.
func NewPruner(cfg config.CheckpointsConfig, checkpoints storage.CheckpointRepository) *Pruner {
	return &Pruner{
		cfg:         cfg,
		checkpoints: checkpoints,
	}
}

// Interval returns how often the pruner runs: the configured cleanup
// interval, or 10% of the retention period clamped to [1m, 1h].
func (p *Pruner) Interval() time.Duration {
	if p.cfg.CleanupInterval > 0 {
		return p.cfg.CleanupInterval
	}
	interval := min(p.cfg.Retention/10, 1*time.Hour)
	return max(interval, 1*time.Minute)
}

// RetentionDays converts the retention period to whole days, at least one.
func (p *Pruner) RetentionDays() int {
	days := int(p.cfg.Retention / (24 * time.Hour))
	return max(days, 1)
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.cfg.Retention <= 0 {
		return // Retention disabled
	}

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	// Initial prune
	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune runs one cleanup pass and returns the number of checkpoints
// removed. Errors are logged.
func (p *Pruner) Prune(ctx context.Context) int64 {
	deleted, err := p.Cleanup(ctx)
	if err != nil {
		slog.Error("Failed to prune checkpoints", "error", err)
		return 0
	}
	return deleted
}

// Cleanup runs one cleanup pass.
func (p *Pruner) Cleanup(ctx context.Context) (int64, error) {
	deleted, err := p.checkpoints.CleanupOld(ctx, p.RetentionDays())
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		metrics.CheckpointsPruned.Add(float64(deleted))
		slog.Info("Pruned old checkpoints", "deleted", deleted, "retention_days", p.RetentionDays())
	}
	return deleted, nil
}
