package engine

import (
	"fmt"

	"github.com/tessera-flow/tessera/engine/pkg/api"
)

func (tx *instanceTx) setStatus(
	to api.WorkflowStatus, et api.EventType, data any, payload any,
) error {
	from := tx.Value().Status
	if !workflowTransitions.CanTransition(from, to) {
		return fmt.Errorf("%w: %w: instance %s -> %s",
			ErrPolicyViolation, ErrInvalidTransition, from, to)
	}
	err := tx.raise(et, data, &api.Transition{
		Kind:    api.TransitionWorkflow,
		From:    string(from),
		To:      string(to),
		Payload: payload,
	})
	if err != nil {
		return err
	}

	id, msg := tx.instanceID, tx.Value().Error
	if to.IsTerminal() {
		tx.enqueue(func() {
			tx.scheduler.CancelGroup(tx.ctx, string(id))
			tx.EnqueueEvent(api.InstanceDeactivatedEvent{
				InstanceID: id,
				Status:     to,
				Error:      msg,
			})
		})
		return nil
	}
	tx.enqueue(func() {
		tx.EnqueueEvent(api.InstanceDigestUpdatedEvent{
			InstanceID: id,
			Status:     to,
		})
	})
	return nil
}

func (tx *instanceTx) markRunning() error {
	return tx.setStatus(api.WorkflowRunning, api.EventTypeInstanceRunning,
		api.InstanceStatusEvent{InstanceID: tx.instanceID}, nil,
	)
}

func (tx *instanceTx) markPaused() error {
	return tx.setStatus(api.WorkflowPaused, api.EventTypeInstancePaused,
		api.InstanceStatusEvent{InstanceID: tx.instanceID}, nil,
	)
}

func (tx *instanceTx) complete() error {
	return tx.setStatus(api.WorkflowCompleted, api.EventTypeInstanceCompleted,
		api.InstanceStatusEvent{InstanceID: tx.instanceID}, nil,
	)
}

// fail ends the instance. Tasks still running are recorded as in flight;
// their eventual results are discarded
func (tx *instanceTx) fail(
	msg string, failed []api.TaskID, internal bool,
) error {
	ev := api.InstanceFailedEvent{
		InstanceID:    tx.instanceID,
		Error:         msg,
		FailedTasks:   failed,
		InFlight:      tx.Value().TasksWithStatus(api.TaskRunning),
		InternalError: internal,
	}
	return tx.setStatus(
		api.WorkflowFailed, api.EventTypeInstanceFailed, ev, ev,
	)
}

func (tx *instanceTx) cancelInstance(inFlight []api.TaskID) error {
	ev := api.InstanceCancelledEvent{
		InstanceID: tx.instanceID,
		InFlight:   inFlight,
	}
	return tx.setStatus(
		api.WorkflowCancelled, api.EventTypeInstanceCancelled, ev, ev,
	)
}
