package engine

import (
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/tessera-flow/tessera/engine/internal/engine/scheduler"
	"github.com/tessera-flow/tessera/engine/pkg/api"
)

// taskOutcome is what a running task carries when it leaves running
type taskOutcome struct {
	result   api.Args
	err      string
	approval bool
}

const (
	retryKeySuffix  = ":retry"
	expireKeySuffix = ":expire"

	configTitle       = "title"
	configDescription = "description"
	configContext     = "context"
	configMaxWait     = "max_wait"
)

func (tx *instanceTx) checkTask(
	id api.TaskID, to api.TaskStatus, out taskOutcome,
) (*api.TaskRecord, error) {
	rec, ok := tx.Value().Tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if !taskTransitions.CanTransition(rec.Status, to) {
		return nil, fmt.Errorf("%w: %w: task %s %s -> %s",
			ErrPolicyViolation, ErrInvalidTransition, id, rec.Status, to)
	}
	if rec.Status != api.TaskRunning {
		return rec, nil
	}
	if err := out.permits(to); err != "" {
		return nil, fmt.Errorf("%w: task %s left running for %s %s",
			ErrPolicyViolation, id, to, err)
	}
	return rec, nil
}

func (o taskOutcome) permits(to api.TaskStatus) string {
	switch to {
	case api.TaskSucceeded:
		if o.result == nil {
			return "without a result"
		}
	case api.TaskFailed, api.TaskAwaitingRetry:
		if o.err == "" {
			return "without an error"
		}
	case api.TaskAwaitingSignal:
		if !o.approval {
			return "without an approval request"
		}
	}
	return ""
}

func (tx *instanceTx) raiseTask(
	id api.TaskID, from, to api.TaskStatus, attempt int,
	et api.EventType, data, payload any,
) error {
	return tx.raise(et, data, &api.Transition{
		Kind:    api.TransitionTask,
		TaskID:  id,
		From:    string(from),
		To:      string(to),
		Attempt: attempt,
		Payload: payload,
	})
}

// startTask begins the next attempt of a pending or retrying task
func (tx *instanceTx) startTask(id api.TaskID) (int, error) {
	rec, err := tx.checkTask(id, api.TaskRunning, taskOutcome{})
	if err != nil {
		return 0, err
	}
	attempt := rec.Attempts + 1
	return attempt, tx.raiseTask(id, rec.Status, api.TaskRunning, attempt,
		api.EventTypeTaskStarted, api.TaskStartedEvent{
			InstanceID: tx.instanceID,
			TaskID:     id,
			Attempt:    attempt,
		}, nil,
	)
}

func (tx *instanceTx) succeedTask(id api.TaskID, result api.Args) error {
	rec, err := tx.checkTask(
		id, api.TaskSucceeded, taskOutcome{result: result},
	)
	if err != nil {
		return err
	}
	return tx.raiseTask(id, rec.Status, api.TaskSucceeded, rec.Attempts,
		api.EventTypeTaskSucceeded, api.TaskSucceededEvent{
			Result:     result,
			InstanceID: tx.instanceID,
			TaskID:     id,
		}, result,
	)
}

func (tx *instanceTx) failTask(id api.TaskID, msg string) error {
	rec, err := tx.checkTask(id, api.TaskFailed, taskOutcome{err: msg})
	if err != nil {
		return err
	}
	return tx.raiseTask(id, rec.Status, api.TaskFailed, rec.Attempts,
		api.EventTypeTaskFailed, api.TaskFailedEvent{
			InstanceID: tx.instanceID,
			TaskID:     id,
			Error:      msg,
		}, msg,
	)
}

// retryTask parks a failed attempt until its backoff elapses. The wakeup
// is registered with the scheduler once the event is committed
func (tx *instanceTx) retryTask(
	id api.TaskID, msg string, at time.Time,
) error {
	rec, err := tx.checkTask(
		id, api.TaskAwaitingRetry, taskOutcome{err: msg},
	)
	if err != nil {
		return err
	}
	err = tx.raiseTask(id, rec.Status, api.TaskAwaitingRetry, rec.Attempts,
		api.EventTypeTaskRetryScheduled, api.TaskRetryScheduledEvent{
			NextRetryAt: at,
			InstanceID:  tx.instanceID,
			TaskID:      id,
			Error:       msg,
		}, msg,
	)
	if err != nil {
		return err
	}
	instanceID, attempt := tx.instanceID, rec.Attempts
	tx.enqueue(func() {
		tx.scheduleRetry(instanceID, id, attempt, at)
	})
	return nil
}

func (tx *instanceTx) cancelTask(id api.TaskID) error {
	rec, err := tx.checkTask(id, api.TaskCancelled, taskOutcome{})
	if err != nil {
		return err
	}
	return tx.raiseTask(id, rec.Status, api.TaskCancelled, rec.Attempts,
		api.EventTypeTaskCancelled, api.TaskCancelledEvent{
			InstanceID: tx.instanceID,
			TaskID:     id,
		}, nil,
	)
}

// requestApproval suspends a started approval task on a new request
func (tx *instanceTx) requestApproval(id api.TaskID) error {
	rec, err := tx.checkTask(
		id, api.TaskAwaitingSignal, taskOutcome{approval: true},
	)
	if err != nil {
		return err
	}
	ap := tx.newApproval(tx.graph.Task(id))
	err = tx.raiseTask(id, rec.Status, api.TaskAwaitingSignal, rec.Attempts,
		api.EventTypeApprovalRequested, api.ApprovalRequestedEvent{
			Approval: ap,
		}, ap,
	)
	if err != nil {
		return err
	}
	tx.enqueue(func() {
		tx.EnqueueEvent(api.ApprovalIndexedEvent{
			ApprovalID: ap.ID,
			InstanceID: ap.InstanceID,
			TaskID:     ap.TaskID,
		})
		tx.scheduleExpiry(ap)
	})
	return nil
}

// resumeTask applies an approval decision to a task awaiting its signal
func (tx *instanceTx) resumeTask(id api.TaskID, sig api.Signal) error {
	rec, err := tx.checkTask(id, api.TaskRunning, taskOutcome{})
	if err != nil {
		return err
	}
	err = tx.raiseTask(id, rec.Status, api.TaskRunning, rec.Attempts,
		api.EventTypeTaskResumed, api.TaskResumedEvent{
			InstanceID: tx.instanceID,
			TaskID:     id,
			Decision:   sig.Decision(),
			Comment:    sig.Comment,
			DecidedBy:  sig.DecidedBy,
		}, sig,
	)
	if err != nil {
		return err
	}
	if tx.Value().Status == api.WorkflowPaused {
		if err := tx.markRunning(); err != nil {
			return err
		}
	}
	if sig.Approved {
		return tx.succeedTask(id, api.Args{
			"decision":   string(api.DecisionApproved),
			"comment":    sig.Comment,
			"decided_by": sig.DecidedBy,
		})
	}
	msg := "approval rejected"
	if sig.Comment != "" {
		msg += ": " + sig.Comment
	}
	return tx.failTask(id, msg)
}

func (tx *instanceTx) newApproval(
	task *api.TaskDefinition,
) *api.ApprovalRequest {
	now := tx.Now()
	ap := &api.ApprovalRequest{
		CreatedAt:  now,
		ID:         api.ApprovalID(uuid.New().String()),
		InstanceID: tx.instanceID,
		TaskID:     task.ID,
		Title:      task.DisplayName(),
		Decision:   api.DecisionPending,
	}
	cfg := task.Config
	ap.Title = cfg.GetString(configTitle, ap.Title)
	ap.Description = cfg.GetString(configDescription, "")
	if c := cfg.GetMap(configContext); c != nil {
		ap.Context = maps.Clone(c)
	}
	if wait, ok := maxWait(cfg); ok {
		ap.ExpiresAt = now.Add(wait)
	}
	return ap
}

func maxWait(cfg api.Config) (time.Duration, bool) {
	d, err := time.ParseDuration(cfg.GetString(configMaxWait, ""))
	return d, err == nil && d > 0
}

func (e *Engine) scheduleRetry(
	instanceID api.InstanceID, id api.TaskID, attempt int, at time.Time,
) {
	e.scheduler.Schedule(e.ctx, taskKey(instanceID, id, retryKeySuffix), at,
		func() error {
			go e.post(instanceID, &retryDueMsg{taskID: id, attempt: attempt})
			return nil
		},
	)
}

func (e *Engine) scheduleExpiry(ap *api.ApprovalRequest) {
	if ap.ExpiresAt.IsZero() || ap.IsResolved() {
		return
	}
	instanceID, id, approvalID := ap.InstanceID, ap.TaskID, ap.ID
	e.scheduler.Schedule(e.ctx,
		taskKey(instanceID, id, expireKeySuffix), ap.ExpiresAt,
		func() error {
			go e.post(instanceID, &expireMsg{
				taskID:     id,
				approvalID: approvalID,
			})
			return nil
		},
	)
}

func taskKey(
	instanceID api.InstanceID, id api.TaskID, suffix string,
) scheduler.Key {
	return scheduler.Key{
		Group: string(instanceID),
		Name:  string(id) + suffix,
	}
}
