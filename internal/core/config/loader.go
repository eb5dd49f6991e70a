package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/replayer/internal/indexing/processor"
	"github.com/vietddude/replayer/internal/infra/sink"
	"github.com/vietddude/replayer/internal/infra/storage/sqldb"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Checkpoints.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given: in-memory
// stores and a file sink under ./state.
func Default() *AppConfig {
	cfg := &AppConfig{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields.
func (c *AppConfig) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 9090
	}
	if c.Database.Driver == "" {
		c.Database.Driver = sqldb.DriverPgx
	}
	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = 30 * time.Second
	}
	if c.Replay.RetryBaseDelay == 0 {
		c.Replay.RetryBaseDelay = 100 * time.Millisecond
	}
	if c.Sink.Type == "" {
		if c.Database.URL != "" {
			c.Sink.Type = sink.TypeDatabase
		} else {
			c.Sink.Type = sink.TypeFile
			if c.Sink.Path == "" {
				c.Sink.Path = "state"
			}
		}
	}
	if c.Sink.Name == "" {
		c.Sink.Name = sink.DefaultName
	}
	if len(c.Processors) == 0 {
		c.Processors = []string{processor.SnapshotProcessorName, processor.PassthroughProcessorName}
	}
}
