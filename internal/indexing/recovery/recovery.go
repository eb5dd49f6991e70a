// Package recovery decides how event processing failures are retried and
// journals the ones that never succeed.
package recovery

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/vietddude/replayer/internal/core/domain"
)

// FailureCategory splits failures into retryable and non-retryable.
type FailureCategory int

const (
	// CategoryTransient failures may succeed on a later attempt
	// (timeouts, dropped connections, server-side errors).
	CategoryTransient FailureCategory = iota
	// CategoryPermanent failures will fail the same way again
	// (malformed payloads, validation errors, unhandled event types).
	CategoryPermanent
)

func (c FailureCategory) String() string {
	if c == CategoryPermanent {
		return "permanent"
	}
	return "transient"
}

// Classifier maps an error to a failure category.
type Classifier func(err error) FailureCategory

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// DefaultClassifier treats timeouts and unknown errors as transient, and
// marked, validation and decoding errors as permanent.
func DefaultClassifier(err error) FailureCategory {
	if err == nil {
		return CategoryTransient
	}
	if IsPermanent(err) || errors.Is(err, domain.ErrInvalidConfig) {
		return CategoryPermanent
	}
	if errors.Is(err, domain.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return CategoryPermanent
	}
	return CategoryTransient
}

// StorageAwareClassifier extends DefaultClassifier: errors wrapped with
// domain.ErrStorage are only retried when isTransient says so.
func StorageAwareClassifier(isTransient func(error) bool) Classifier {
	return func(err error) FailureCategory {
		if category := DefaultClassifier(err); category == CategoryPermanent {
			return category
		}
		if errors.Is(err, domain.ErrStorage) && isTransient != nil && !isTransient(err) {
			return CategoryPermanent
		}
		return CategoryTransient
	}
}
