package engine

import (
	"context"
	"log/slog"

	"github.com/tessera-flow/tessera/engine/internal/engine/event"
	"github.com/tessera-flow/tessera/engine/pkg/api"
	"github.com/tessera-flow/tessera/engine/pkg/events"
	"github.com/tessera-flow/tessera/engine/pkg/log"
)

// GetPartitionState retrieves the active instance, digest, and approval
// indexes maintained for this engine
func (e *Engine) GetPartitionState(
	ctx context.Context,
) (*api.PartitionState, error) {
	return e.partExec.Exec(ctx, events.PartitionKey,
		func(*api.PartitionState, *PartitionAggregator) error {
			return nil
		},
	)
}

// EnqueueEvent schedules a partition index change for sequential
// processing. The payload determines the event type
func (e *Engine) EnqueueEvent(data any) {
	ev, err := event.New(data)
	if err != nil {
		slog.Error("Partition event rejected", log.Error(err))
		return
	}
	e.partQueue.Enqueue(ev)
}

func (e *Engine) applyPartitionEvents(batch []event.Event) error {
	_, err := e.partExec.Exec(context.Background(), events.PartitionKey,
		func(_ *api.PartitionState, ag *PartitionAggregator) error {
			for _, ev := range batch {
				if err := events.Raise(ag, ev.Type, ev.Data); err != nil {
					return err
				}
			}
			return nil
		},
	)
	return err
}
