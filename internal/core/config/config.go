package config

import (
	"fmt"
	"time"

	"github.com/vietddude/replayer/internal/core/domain"
	redisclient "github.com/vietddude/replayer/internal/infra/redis"
	"github.com/vietddude/replayer/internal/infra/sink"
	"github.com/vietddude/replayer/internal/infra/storage/sqldb"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server      ServerConfig       `yaml:"server"`
	Logging     LoggingConfig      `yaml:"logging"`
	Database    sqldb.Config       `yaml:"database"`
	Redis       redisclient.Config `yaml:"redis"`
	Replay      ReplayConfig       `yaml:"replay"`
	Checkpoints CheckpointsConfig  `yaml:"checkpoints"`
	Sink        sink.Config        `yaml:"sink"`
	Processors  []string           `yaml:"processors"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ReplayConfig holds the defaults for replay sessions. Command line flags
// override individual fields.
type ReplayConfig struct {
	Mode               string         `yaml:"mode"`
	BatchSize          int            `yaml:"batch_size"`
	MaxWorkers         int            `yaml:"max_workers"`
	CheckpointInterval uint64         `yaml:"checkpoint_interval"`
	EventTimeout       time.Duration  `yaml:"event_timeout"`
	MaxRetries         *int           `yaml:"max_retries"` // nil = default, 0 = no retries
	RetryBaseDelay     time.Duration  `yaml:"retry_base_delay"`
	DryRun             bool           `yaml:"dry_run"`
	Verbose            bool           `yaml:"verbose"`
	Network            domain.Network `yaml:"network"`
	ContractIDs        []string       `yaml:"contract_ids"`
	EventTypes         []string       `yaml:"event_types"`
}

// MinCheckpointRetention is the shortest retention the pruner accepts.
// Retention is applied in whole days.
const MinCheckpointRetention = 24 * time.Hour

// CheckpointsConfig holds checkpoint retention settings.
type CheckpointsConfig struct {
	Retention       time.Duration `yaml:"retention"` // 0 = keep forever
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// Validate rejects a retention the pruner would round to a whole day.
func (c CheckpointsConfig) Validate() error {
	if c.Retention < 0 {
		return domain.ConfigError("checkpoint retention must not be negative, got %s", c.Retention)
	}
	if c.Retention > 0 && c.Retention < MinCheckpointRetention {
		return domain.ConfigError("checkpoint retention must be at least %s, got %s", MinCheckpointRetention, c.Retention)
	}
	if c.CleanupInterval < 0 {
		return domain.ConfigError("checkpoint cleanup interval must not be negative, got %s", c.CleanupInterval)
	}
	return nil
}

// ToDomain builds a session config for the given range.
func (c ReplayConfig) ToDomain(rng domain.Range) (domain.ReplayConfig, error) {
	mode, err := domain.ParseMode(c.Mode)
	if err != nil {
		return domain.ReplayConfig{}, domain.ConfigError("%v", err)
	}

	cfg := domain.DefaultReplayConfig()
	cfg.Mode = mode
	cfg.Range = rng
	cfg.Filter = domain.EventFilter{
		ContractIDs: c.ContractIDs,
		EventTypes:  c.EventTypes,
		Network:     c.Network,
	}
	cfg.DryRun = c.DryRun
	cfg.Verbose = c.Verbose
	if c.BatchSize != 0 {
		cfg.BatchSize = c.BatchSize
	}
	if c.MaxWorkers != 0 {
		cfg.MaxWorkers = c.MaxWorkers
	}
	if c.CheckpointInterval != 0 {
		cfg.CheckpointInterval = c.CheckpointInterval
	}
	if c.EventTimeout != 0 {
		cfg.EventTimeout = c.EventTimeout
	}
	if c.MaxRetries != nil {
		cfg.MaxRetries = *c.MaxRetries
	}

	if err := cfg.Validate(); err != nil {
		return domain.ReplayConfig{}, fmt.Errorf("replay config: %w", err)
	}
	return cfg, nil
}
