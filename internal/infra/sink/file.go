package sink

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileSink writes the document to <dir>/<name>.json atomically.
type FileSink struct {
	path string
}

// NewFileSink creates the directory if needed. An empty dir means ./state.
func NewFileSink(dir, name string) (*FileSink, error) {
	if dir == "" {
		dir = "state"
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", abs, err)
	}
	return &FileSink{path: filepath.Join(abs, name+".json")}, nil
}

// Path returns the file the document is written to.
func (s *FileSink) Path() string { return s.path }

func (s *FileSink) Write(ctx context.Context, doc []byte) error {
	return writeAtomic(s.path, doc)
}

func (s *FileSink) Read(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	return data, nil
}

func (s *FileSink) Close() error { return nil }

// writeAtomic writes to a temp file, syncs it and renames it over path so
// readers never see a partial document.
func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	tmpFile, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}
	return nil
}
