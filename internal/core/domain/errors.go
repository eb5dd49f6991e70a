package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned when a replay config fails validation.
	ErrInvalidConfig = errors.New("invalid replay config")

	// ErrStorage marks failures of the event, checkpoint or session stores.
	// They abort a running session.
	ErrStorage = errors.New("storage error")

	// ErrProcessing marks failures raised inside an event processor.
	ErrProcessing = errors.New("processing error")

	// ErrTimeout is returned when an event exceeds its processing timeout.
	ErrTimeout = errors.New("processing timeout")

	// ErrNotFound is returned for unknown session or checkpoint ids.
	ErrNotFound = errors.New("not found")
)

// ConfigError wraps a validation message with ErrInvalidConfig.
func ConfigError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// StorageError wraps err with ErrStorage and the failed operation.
func StorageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// NotFoundError wraps ErrNotFound with the kind and id that were looked up.
func NotFoundError(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}
