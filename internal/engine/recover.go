package engine

import (
	"context"
	"log/slog"

	"github.com/tessera-flow/tessera/engine/pkg/api"
	"github.com/tessera-flow/tessera/engine/pkg/log"
)

// RecoverInstances resumes every instance the partition still considers
// active. Instances found to be terminal have their partition entry
// repaired instead
func (e *Engine) RecoverInstances(ctx context.Context) error {
	part, err := e.GetPartitionState(ctx)
	if err != nil {
		return err
	}
	if len(part.Active) == 0 {
		return nil
	}

	slog.Info("Recovering instances", slog.Int("count", len(part.Active)))
	for id := range part.Active {
		st, err := e.GetInstance(ctx, id)
		if err != nil {
			slog.Error("Failed to load instance for recovery",
				log.InstanceID(id),
				log.Error(err))
			continue
		}
		if st.Status.IsTerminal() {
			e.EnqueueEvent(api.InstanceDeactivatedEvent{
				InstanceID: id,
				Status:     st.Status,
				Error:      st.Error,
			})
			continue
		}
		if err := e.post(id, &recoverMsg{}); err != nil {
			return err
		}
	}
	return nil
}

// recoverTasks re-arms everything the previous process was waiting on. Running
// attempts are dispatched again with the same attempt number, so the
// runtime may observe an attempt more than once
func (tx *instanceTx) recoverTasks() error {
	st := tx.Value()
	if st.Status.IsTerminal() {
		return nil
	}
	for _, id := range tx.graph.Order() {
		rec := st.Tasks[id]
		task := tx.graph.Task(id)
		switch rec.Status {
		case api.TaskRunning:
			if task.IsApproval() {
				continue
			}
			tx.dispatch(task, rec.Attempts)
		case api.TaskAwaitingRetry:
			instanceID, attempt, at := tx.instanceID, rec.Attempts,
				rec.NextRetryAt
			tx.enqueue(func() {
				tx.scheduleRetry(instanceID, id, attempt, at)
			})
		case api.TaskAwaitingSignal:
			if ap, ok := st.Approvals[id]; ok {
				tx.enqueue(func() {
					tx.scheduleExpiry(ap)
				})
			}
		}
	}
	return tx.evaluate()
}
