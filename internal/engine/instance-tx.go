package engine

import (
	"context"

	"github.com/tessera-flow/tessera/engine/internal/engine/graph"
	"github.com/tessera-flow/tessera/engine/pkg/api"
	"github.com/tessera-flow/tessera/engine/pkg/events"
)

type (
	// instanceTx is one atomic step of an instance's driver. Events raised
	// through it are committed together; transitions and effects are only
	// released once the commit succeeds
	instanceTx struct {
		*Engine
		*InstanceAggregator
		graph       *graph.Graph
		instanceID  api.InstanceID
		transitions []*api.Transition
		effects     enqueued
	}

	// deferred represents deferred work to be executed after a transaction
	// commits
	deferred func()
	enqueued []deferred
)

func (e *Engine) instanceTx(
	ctx context.Context, id api.InstanceID, fn func(*instanceTx) error,
) (*api.WorkflowState, error) {
	var tx *instanceTx
	st, err := e.instanceExec.Exec(ctx, events.InstanceKey(id),
		func(st *api.WorkflowState, ag *InstanceAggregator) error {
			tx = &instanceTx{
				Engine:             e,
				InstanceAggregator: ag,
				instanceID:         id,
			}
			if st.Definition != nil {
				g, err := e.graphFor(st.Definition)
				if err != nil {
					return err
				}
				tx.graph = g
			}
			return fn(tx)
		},
	)
	if err != nil {
		return nil, err
	}
	e.notify(tx.transitions)
	tx.effects.exec()
	return st, nil
}

// enqueue registers fn to run after the transaction commits
func (tx *instanceTx) enqueue(fn deferred) {
	tx.effects = append(tx.effects, fn)
}

func (tx *instanceTx) raise(
	et api.EventType, data any, tr *api.Transition,
) error {
	if err := events.Raise(tx.InstanceAggregator, et, data); err != nil {
		return err
	}
	if tr != nil {
		st := tx.Value()
		tr.Timestamp = tx.Now()
		tr.InstanceID = tx.instanceID
		if st.Definition != nil {
			tr.WorkflowID = st.Definition.ID
		}
		tx.transitions = append(tx.transitions, tr)
	}
	return nil
}

func (fns enqueued) exec() {
	for _, fn := range fns {
		fn()
	}
}
