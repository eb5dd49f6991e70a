package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/replayer/internal/core/domain"
	"github.com/vietddude/replayer/internal/infra/storage"
)

// Handler journals events that failed after all retries.
type Handler struct {
	repo storage.FailedEventRepository
}

// NewHandler creates a new failed event handler.
func NewHandler(repo storage.FailedEventRepository) *Handler {
	return &Handler{repo: repo}
}

// HandleFailure is called by the replay loop when an event exhausts its
// retries. It creates a new FailedEvent entry.
func (h *Handler) HandleFailure(
	ctx context.Context,
	sessionID string,
	event *domain.ContractEvent,
	attempts int,
	reason string,
) error {
	failed := &domain.FailedEvent{
		ID:             uuid.New().String(),
		SessionID:      sessionID,
		EventID:        event.ID,
		LedgerSequence: event.LedgerSequence,
		Error:          reason,
		Attempts:       attempts,
		CreatedAt:      time.Now().UTC(),
	}

	if err := h.repo.Add(ctx, failed); err != nil {
		return fmt.Errorf("failed to add failed event: %w", err)
	}
	return nil
}

// List returns the failures recorded for a session.
func (h *Handler) List(ctx context.Context, sessionID string) ([]*domain.FailedEvent, error) {
	return h.repo.ListForSession(ctx, sessionID)
}
