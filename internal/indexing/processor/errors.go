package processor

import (
	"errors"

	"github.com/vietddude/replayer/internal/indexing/recovery"
)

var (
	// ErrUnsupportedEvent tells the dispatcher to try the next processor.
	ErrUnsupportedEvent = errors.New("unsupported event type")

	// ErrValidation marks events rejected by ValidateEvent.
	ErrValidation = errors.New("invalid event")

	// ErrNoProcessor is the failure when no processor handled an event.
	ErrNoProcessor = errors.New("no processor found for event")
)

// Action is the decision taken after a failed attempt.
type Action int

const (
	ActionRetry Action = iota // Transient error, retry after backoff
	ActionFatal               // Permanent error, give up on the event
)

func (a Action) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify maps a processing error to an action using the default classifier.
func Classify(err error) Action {
	return ClassifyWith(recovery.DefaultClassifier, err)
}

// ClassifyWith maps a processing error to an action.
func ClassifyWith(classifier recovery.Classifier, err error) Action {
	if err == nil {
		return ActionRetry
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrUnsupportedEvent) {
		return ActionFatal
	}
	if classifier(err) == recovery.CategoryPermanent {
		return ActionFatal
	}
	return ActionRetry
}
