package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tessera-flow/tessera/engine/internal/engine/instopt"
	"github.com/tessera-flow/tessera/engine/pkg/api"
)

// StartInstance starts a new instance of a registered workflow definition
func (e *Engine) StartInstance(
	ctx context.Context, id api.WorkflowID, apps ...instopt.Applier,
) (*api.WorkflowState, error) {
	def, err := e.GetDefinition(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.StartDefinition(ctx, def, apps...)
}

// StartDefinition creates an instance of the definition and hands it to a driver.
// Definition and parameter errors are reported before anything is
// persisted
func (e *Engine) StartDefinition(
	ctx context.Context, def *api.WorkflowDefinition, apps ...instopt.Applier,
) (*api.WorkflowState, error) {
	opts := instopt.DefaultOptions(apps...)
	g, err := e.graphFor(def)
	if err != nil {
		return nil, err
	}
	params, err := def.BindParameters(opts.Parameters)
	if err != nil {
		return nil, err
	}

	id := opts.InstanceID
	if id == "" {
		id = api.InstanceID(uuid.New().String())
	}

	st, err := e.instanceTx(ctx, id, func(tx *instanceTx) error {
		if tx.Value().ID != "" {
			return fmt.Errorf("%w: %s", ErrInstanceExists, id)
		}
		tx.graph = g
		err := tx.raise(api.EventTypeInstanceStarted,
			api.InstanceStartedEvent{
				Definition: def,
				Parameters: params,
				InstanceID: id,
			},
			&api.Transition{
				Kind: api.TransitionWorkflow,
				To:   string(api.WorkflowCreated),
			},
		)
		if err != nil {
			return err
		}
		tx.enqueue(func() {
			tx.EnqueueEvent(api.InstanceActivatedEvent{
				InstanceID: id,
				WorkflowID: def.ID,
			})
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, e.post(id, &kickMsg{})
}
