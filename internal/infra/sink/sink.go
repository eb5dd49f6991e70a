// Package sink persists the final materialized state document of a replay
// session and reads it back for verification.
package sink

import (
	"context"
	"fmt"
	"path"

	"github.com/vietddude/replayer/internal/infra/storage"
)

// Sink types accepted in configuration.
const (
	TypeDatabase = "database"
	TypeFile     = "file"
	TypeS3       = "s3"
	TypeGCS      = "gcs"
	TypeNone     = "none"
)

// DefaultName is the document name used when none is configured.
const DefaultName = "ledger_state"

// Sink stores one named state document.
type Sink interface {
	// Write replaces the stored document
	Write(ctx context.Context, doc []byte) error

	// Read returns the stored document, nil if nothing was written yet
	Read(ctx context.Context) ([]byte, error)

	// Close releases clients held by the sink
	Close() error
}

// Config selects and configures a sink.
type Config struct {
	Type            string `yaml:"type"`
	Name            string `yaml:"name"`
	Path            string `yaml:"path"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	CredentialsFile string `yaml:"credentials_file"`
}

func (c Config) name() string {
	if c.Name == "" {
		return DefaultName
	}
	return c.Name
}

// objectKey is the object name used by the bucket sinks.
func (c Config) objectKey() string {
	return path.Join(c.Prefix, c.name()+".json")
}

// New builds the configured sink. states is used by the database sink and
// may be nil for the others.
func New(ctx context.Context, cfg Config, states storage.StateRepository) (Sink, error) {
	switch cfg.Type {
	case TypeDatabase:
		if states == nil {
			return nil, fmt.Errorf("database sink requires a configured database")
		}
		return NewDatabaseSink(states, cfg.name()), nil
	case TypeFile, "":
		s, err := NewFileSink(cfg.Path, cfg.name())
		if err != nil {
			return nil, err
		}
		return s, nil
	case TypeS3:
		s, err := NewS3Sink(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case TypeGCS:
		s, err := NewGCSSink(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case TypeNone:
		return Discard{}, nil
	default:
		return nil, fmt.Errorf("unsupported sink type: %s", cfg.Type)
	}
}

// Discard drops every document.
type Discard struct{}

func (Discard) Write(ctx context.Context, doc []byte) error { return nil }
func (Discard) Read(ctx context.Context) ([]byte, error)    { return nil, nil }
func (Discard) Close() error                                { return nil }

// DatabaseSink stores the document through a StateRepository.
type DatabaseSink struct {
	repo storage.StateRepository
	name string
}

func NewDatabaseSink(repo storage.StateRepository, name string) *DatabaseSink {
	return &DatabaseSink{repo: repo, name: name}
}

func (s *DatabaseSink) Write(ctx context.Context, doc []byte) error {
	if err := s.repo.Write(ctx, s.name, doc); err != nil {
		return fmt.Errorf("failed to write state %s: %w", s.name, err)
	}
	return nil
}

func (s *DatabaseSink) Read(ctx context.Context) ([]byte, error) {
	return s.repo.Read(ctx, s.name)
}

func (s *DatabaseSink) Close() error { return nil }
