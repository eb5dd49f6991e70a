package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/replayer/internal/core/domain"
	"github.com/vietddude/replayer/internal/indexing/metrics"
	"github.com/vietddude/replayer/internal/indexing/recovery"
)

// Dispatcher runs an ordered list of processors over each event. The first
// processor that reports the event as processed, or processes it
// successfully, decides the result.
type Dispatcher struct {
	processors []Processor
	backoff    *recovery.ExponentialBackoff
	log        *slog.Logger
}

// NewDispatcher creates a dispatcher. A nil backoff uses
// recovery.DefaultBackoff with the default classifier.
func NewDispatcher(backoff *recovery.ExponentialBackoff, processors ...Processor) *Dispatcher {
	if backoff == nil {
		backoff = recovery.DefaultBackoff(nil)
	}
	if backoff.Classifier == nil {
		backoff.Classifier = recovery.DefaultClassifier
	}
	return &Dispatcher{
		processors: processors,
		backoff:    backoff,
		log:        slog.Default().With("component", "dispatcher"),
	}
}

// Add appends a processor.
func (d *Dispatcher) Add(p Processor) *Dispatcher {
	d.processors = append(d.processors, p)
	return d
}

// Processors returns the processor names in dispatch order.
func (d *Dispatcher) Processors() []string {
	names := make([]string, len(d.processors))
	for i, p := range d.processors {
		names[i] = p.Name()
	}
	return names
}

// Process dispatches one event once, without retry or timeout.
func (d *Dispatcher) Process(ctx context.Context, event *domain.ContractEvent, pctx *Context) *Result {
	start := time.Now()
	key := event.UniqueID()

	var validationErr, lastErr error
	for _, p := range d.processors {
		processed, err := p.IsProcessed(ctx, event)
		if err != nil {
			// Later processors must not claim an event this one may own.
			d.log.Warn("Idempotency check failed", "processor", p.Name(), "event", key, "error", err)
			return Failure(domain.StorageError("idempotency check", fmt.Errorf("%s: %w", p.Name(), err)))
		}
		if processed {
			d.log.Debug("Event already processed, skipping", "processor", p.Name(), "event", key)
			res := Skipped()
			res.Duration = time.Since(start)
			return res
		}

		if err := p.ValidateEvent(event); err != nil {
			d.log.Debug("Event rejected by processor", "processor", p.Name(), "event", key, "error", err)
			validationErr = err
			continue
		}

		processStart := time.Now()
		res, err := p.ProcessEvent(ctx, event, pctx)
		metrics.ProcessingLatency.WithLabelValues(p.Name()).Observe(time.Since(processStart).Seconds())
		if errors.Is(err, ErrUnsupportedEvent) {
			continue
		}
		if err == nil && res != nil && !res.Success {
			err = errors.New(res.Error)
		}
		if err != nil {
			d.log.Warn("Processor failed", "processor", p.Name(), "event", key, "error", err)
			lastErr = fmt.Errorf("%s: %w", p.Name(), err)
			continue
		}
		if res == nil {
			res = Success()
		}

		if !pctx.DryRun {
			if err := p.MarkProcessed(ctx, event); err != nil {
				return Failure(domain.StorageError("mark processed", fmt.Errorf("%s: %w", p.Name(), err)))
			}
		}

		res.Duration = time.Since(start)
		d.log.Debug("Event processed",
			"processor", p.Name(),
			"event", key,
			"duration", res.Duration,
			"skipped", res.Skipped,
			"changes", len(res.Changes),
		)
		return res
	}

	switch {
	case lastErr != nil:
		d.log.Warn("No processor handled event", "event", key, "error", lastErr)
		return Failure(fmt.Errorf("%w: %w", ErrNoProcessor, lastErr))
	case validationErr != nil:
		return Failure(recovery.Permanent(validationErr))
	default:
		d.log.Warn("No processor found for event", "event", key, "type", event.EventType)
		return Failure(recovery.Permanent(ErrNoProcessor))
	}
}

// ProcessWithRetry dispatches the event up to maxRetries+1 times. Each
// attempt runs under pctx.Timeout; a timeout counts as a failed attempt.
// Before retry n the dispatcher sleeps for the backoff delay of n. Errors
// classified as permanent are not retried.
func (d *Dispatcher) ProcessWithRetry(
	ctx context.Context,
	event *domain.ContractEvent,
	pctx *Context,
	maxRetries int,
) *Result {
	policy := d.backoff.WithMaxAttempts(maxRetries)

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := policy.GetDelay(attempt)
			d.log.Debug("Retrying event",
				"event", event.UniqueID(),
				"attempt", attempt,
				"max_retries", maxRetries,
				"delay", delay,
			)
			select {
			case <-ctx.Done():
				return d.giveUp(ctx.Err(), attempts)
			case <-time.After(delay):
			}
		}

		attempts++
		res := d.attempt(ctx, event, pctx)
		if res.Success {
			res.Attempts = attempts
			return res
		}

		lastErr = res.Cause
		if ctx.Err() != nil {
			break
		}
		if !policy.ShouldRetry(lastErr, attempt) || ClassifyWith(policy.Classifier, lastErr) == ActionFatal {
			break
		}
		metrics.ProcessingRetries.WithLabelValues(retryReason(lastErr)).Inc()
	}

	return d.giveUp(lastErr, attempts)
}

func (d *Dispatcher) giveUp(err error, attempts int) *Result {
	if err == nil {
		err = errors.New("Unknown error")
	}
	res := Failure(err)
	res.Attempts = attempts
	return res
}

// attempt runs one dispatch bounded by the context timeout.
func (d *Dispatcher) attempt(ctx context.Context, event *domain.ContractEvent, pctx *Context) *Result {
	if pctx.Timeout <= 0 {
		return d.Process(ctx, event, pctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, pctx.Timeout)
	defer cancel()

	done := make(chan *Result, 1)
	go func() {
		done <- d.Process(attemptCtx, event, pctx)
	}()

	select {
	case res := <-done:
		return res
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return Failure(ctx.Err())
		}
		return Failure(fmt.Errorf("%w: event %s exceeded %s", domain.ErrTimeout, event.UniqueID(), pctx.Timeout))
	}
}

func retryReason(err error) string {
	if errors.Is(err, domain.ErrTimeout) {
		return "timeout"
	}
	if errors.Is(err, domain.ErrStorage) {
		return "storage"
	}
	return "error"
}
