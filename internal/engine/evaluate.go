package engine

import (
	"fmt"
	"strings"

	"github.com/tessera-flow/tessera/engine/pkg/api"
)

// evaluate advances the instance as far as its task records allow: it
// applies the failure mode, starts every ready task, and settles the
// workflow status
func (tx *instanceTx) evaluate() error {
	st := tx.Value()
	if st.Status.IsTerminal() {
		return nil
	}
	if st.Status == api.WorkflowCreated {
		if err := tx.markRunning(); err != nil {
			return err
		}
	}

	mode := st.Definition.EffectiveFailureMode(tx.config.FailureMode)
	if mode == api.FailFast && st.HasTaskWithStatus(api.TaskFailed) {
		return tx.failFast()
	}

	if err := tx.startReady(); err != nil {
		return err
	}
	if tx.allTerminal() {
		return tx.finish()
	}
	if !tx.inProgress() {
		return tx.settle()
	}
	return tx.updatePause()
}

func (tx *instanceTx) startReady() error {
	for _, id := range tx.graph.ReadySet(tx.Value().Tasks) {
		task := tx.graph.Task(id)
		attempt, err := tx.startTask(id)
		if err != nil {
			return err
		}
		if task.IsApproval() {
			if err := tx.requestApproval(id); err != nil {
				return err
			}
			continue
		}
		tx.dispatch(task, attempt)
	}
	return nil
}

// failFast cancels everything that has not started executing and fails
// the instance. Running attempts are left to finish unobserved
func (tx *instanceTx) failFast() error {
	cancel := tx.Value().TasksWithStatus(
		api.TaskPending, api.TaskAwaitingRetry, api.TaskAwaitingSignal,
	)
	for _, id := range cancel {
		if err := tx.cancelTask(id); err != nil {
			return err
		}
	}
	return tx.failWithTasks()
}

func (tx *instanceTx) finish() error {
	if tx.Value().HasTaskWithStatus(api.TaskFailed) {
		return tx.failWithTasks()
	}
	return tx.complete()
}

// settle handles an instance with nothing executing or waiting. Tasks that
// can never run because a dependency failed are cancelled; anything else
// left over means the driver cannot make progress
func (tx *instanceTx) settle() error {
	for _, id := range tx.graph.Blocked(tx.Value().Tasks) {
		if err := tx.cancelTask(id); err != nil {
			return err
		}
	}
	if tx.allTerminal() {
		return tx.finish()
	}
	stuck := tx.Value().TasksWithStatus(api.TaskPending)
	return tx.fail(
		fmt.Sprintf("%s: %s", ErrInternalStall, joinIDs(stuck)), nil, true,
	)
}

func (tx *instanceTx) updatePause() error {
	st := tx.Value()
	running := st.HasTaskWithStatus(api.TaskRunning)
	switch {
	case st.Status == api.WorkflowRunning && !running &&
		st.HasTaskWithStatus(api.TaskAwaitingSignal):
		return tx.markPaused()
	case st.Status == api.WorkflowPaused && running:
		return tx.markRunning()
	default:
		return nil
	}
}

func (tx *instanceTx) failWithTasks() error {
	st := tx.Value()
	failed := st.TasksWithStatus(api.TaskFailed)
	msgs := make([]string, 0, len(failed))
	for _, id := range failed {
		msgs = append(msgs,
			fmt.Sprintf("task %s failed: %s", id, st.Tasks[id].Error),
		)
	}
	return tx.fail(strings.Join(msgs, "; "), failed, false)
}

func (tx *instanceTx) allTerminal() bool {
	for _, rec := range tx.Value().Tasks {
		if !rec.Status.IsTerminal() {
			return false
		}
	}
	return true
}

func (tx *instanceTx) inProgress() bool {
	return tx.Value().HasTaskWithStatus(
		api.TaskRunning, api.TaskAwaitingRetry, api.TaskAwaitingSignal,
	)
}

func joinIDs(ids []api.TaskID) string {
	res := make([]string, len(ids))
	for i, id := range ids {
		res[i] = string(id)
	}
	return strings.Join(res, ", ")
}
