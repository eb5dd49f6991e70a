package processor

import (
	"context"
	"encoding/json"

	"github.com/vietddude/replayer/internal/core/domain"
	"github.com/vietddude/replayer/internal/infra/storage"
)

// PassthroughProcessorName is the registry and marker name of the passthrough processor.
const PassthroughProcessorName = "passthrough"

// PassthroughProcessor accepts every valid event and only records that it
// saw it. Put it last so that events no domain processor claims still
// count as processed.
type PassthroughProcessor struct {
	Markers
}

func NewPassthroughProcessor(markers storage.MarkerRepository) *PassthroughProcessor {
	return &PassthroughProcessor{Markers: NewMarkers(PassthroughProcessorName, markers)}
}

func (p *PassthroughProcessor) Name() string { return PassthroughProcessorName }

func (p *PassthroughProcessor) ValidateEvent(event *domain.ContractEvent) error {
	return DefaultValidate(event)
}

func (p *PassthroughProcessor) ProcessEvent(
	ctx context.Context,
	event *domain.ContractEvent,
	pctx *Context,
) (*Result, error) {
	value, err := json.Marshal(map[string]any{
		"contract_id": event.ContractID,
		"event_type":  event.EventType,
		"ledger":      event.LedgerSequence,
	})
	if err != nil {
		return nil, err
	}
	return Success(StateChange{
		ChangeType: "observe",
		EntityType: "event",
		EntityID:   event.ID,
		NewValue:   value,
	}), nil
}
