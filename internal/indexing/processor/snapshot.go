package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/vietddude/replayer/internal/core/domain"
	"github.com/vietddude/replayer/internal/indexing/recovery"
	"github.com/vietddude/replayer/internal/infra/storage"
)

const (
	// SnapshotProcessorName is the registry and marker name of the snapshot processor.
	SnapshotProcessorName = "snapshot"

	// EventSnapshotSubmitted announces a state snapshot for an epoch.
	EventSnapshotSubmitted = "snapshot_submitted"
)

// SnapshotProcessor records snapshot_submitted events as snapshot rows.
type SnapshotProcessor struct {
	Markers
	snapshots storage.SnapshotRepository
}

// NewSnapshotProcessor creates a snapshot processor.
func NewSnapshotProcessor(snapshots storage.SnapshotRepository, markers storage.MarkerRepository) *SnapshotProcessor {
	return &SnapshotProcessor{
		Markers:   NewMarkers(SnapshotProcessorName, markers),
		snapshots: snapshots,
	}
}

func (p *SnapshotProcessor) Name() string { return SnapshotProcessorName }

func (p *SnapshotProcessor) ValidateEvent(event *domain.ContractEvent) error {
	return DefaultValidate(event)
}

func (p *SnapshotProcessor) ProcessEvent(
	ctx context.Context,
	event *domain.ContractEvent,
	pctx *Context,
) (*Result, error) {
	if event.EventType != EventSnapshotSubmitted {
		return nil, ErrUnsupportedEvent
	}

	epoch, hash, err := parseSnapshotPayload(event.Payload)
	if err != nil {
		return nil, recovery.Permanent(err)
	}

	existing, err := p.snapshots.GetSnapshot(ctx, epoch)
	if err != nil {
		return nil, domain.StorageError("get snapshot", err)
	}
	if existing != nil {
		if existing.Hash != hash {
			return nil, recovery.Permanent(fmt.Errorf(
				"snapshot epoch %d already recorded with hash %s, event has %s",
				epoch, existing.Hash, hash,
			))
		}
		return Skipped(), nil
	}

	if !pctx.DryRun {
		snapshot := &domain.Snapshot{
			Epoch:           epoch,
			Hash:            hash,
			ContractID:      event.ContractID,
			LedgerSequence:  event.LedgerSequence,
			TransactionHash: event.TransactionHash,
			CreatedAt:       time.Now().UTC(),
		}
		if err := p.snapshots.SaveSnapshot(ctx, snapshot); err != nil {
			return nil, domain.StorageError("save snapshot", err)
		}
	}

	newValue, err := json.Marshal(map[string]any{
		"epoch":  epoch,
		"hash":   hash,
		"ledger": event.LedgerSequence,
	})
	if err != nil {
		return nil, err
	}

	return Success(StateChange{
		ChangeType: "insert",
		EntityType: "snapshot",
		EntityID:   strconv.FormatInt(epoch, 10),
		NewValue:   newValue,
	}), nil
}

func parseSnapshotPayload(payload json.RawMessage) (int64, string, error) {
	if !gjson.ValidBytes(payload) {
		return 0, "", fmt.Errorf("%w: snapshot payload is not valid JSON", ErrValidation)
	}
	epoch := gjson.GetBytes(payload, "epoch")
	if epoch.Type != gjson.Number {
		return 0, "", fmt.Errorf("%w: missing epoch in event data", ErrValidation)
	}
	hash := gjson.GetBytes(payload, "hash")
	if hash.Type != gjson.String || hash.Str == "" {
		return 0, "", fmt.Errorf("%w: missing hash in event data", ErrValidation)
	}
	return epoch.Int(), hash.Str, nil
}
