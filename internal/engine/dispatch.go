package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tessera-flow/tessera/engine/internal/engine/policy"
	"github.com/tessera-flow/tessera/engine/pkg/api"
	"github.com/tessera-flow/tessera/engine/pkg/log"
)

type invocation struct {
	result api.Args
	err    error
}

// dispatch hands a started attempt to the activity runtime once the
// transaction that started it commits
func (tx *instanceTx) dispatch(task *api.TaskDefinition, attempt int) {
	req := tx.activityRequest(task, attempt)
	timeout := tx.Policy(task).Timeout
	tx.enqueue(func() {
		tx.invoke(req, timeout)
	})
}

func (tx *instanceTx) activityRequest(
	task *api.TaskDefinition, attempt int,
) *api.ActivityRequest {
	st := tx.Value()
	inputs := map[api.TaskID]api.Args{}
	for _, dep := range tx.graph.Dependencies(task.ID) {
		if rec, ok := st.Tasks[dep]; ok && rec.Result != nil {
			inputs[dep] = rec.Result
		}
	}
	return &api.ActivityRequest{
		Config:     task.Config,
		Parameters: st.Parameters,
		Inputs:     inputs,
		InstanceID: tx.instanceID,
		TaskID:     task.ID,
		Activity:   task.Activity,
		Attempt:    attempt,
	}
}

// invoke runs one attempt concurrently with everything else. The outcome
// is posted back to the instance's driver, unless the engine is stopping,
// in which case recovery dispatches the attempt again
func (e *Engine) invoke(req *api.ActivityRequest, timeout time.Duration) {
	e.track(func() {
		res, err := e.call(req, timeout)
		if e.ctx.Err() != nil {
			return
		}
		_ = e.post(req.InstanceID, &resultMsg{
			taskID:  req.TaskID,
			attempt: req.Attempt,
			result:  res,
			err:     err,
		})
	})
}

func (e *Engine) call(
	req *api.ActivityRequest, timeout time.Duration,
) (api.Args, error) {
	if e.runtime == nil {
		return nil, api.PermanentError(ErrRuntimeNotAvailable)
	}

	ctx, cancel := context.WithTimeout(e.ctx, timeout)
	defer cancel()

	done := make(chan invocation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invocation{
					err: api.PermanentError(
						fmt.Errorf("%w: %v", ErrActivityPanic, r),
					),
				}
			}
		}()
		res, err := e.runtime.Invoke(ctx, req)
		done <- invocation{result: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, timeoutError(timeout)
		}
		if out.err != nil {
			return nil, out.err
		}
		res, err := out.result.Normalize()
		if err != nil {
			return nil, api.PermanentError(
				fmt.Errorf("%w: %w", ErrInvalidResult, err),
			)
		}
		return res, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, timeoutError(timeout)
		}
		return nil, ctx.Err()
	}
}

func timeoutError(timeout time.Duration) error {
	return fmt.Errorf("%w after %s", policy.ErrAttemptTimeout, timeout)
}

// completeAttempt applies an attempt's outcome. Results for attempts that
// are no longer current, or for instances that already ended, are dropped
func (tx *instanceTx) completeAttempt(m *resultMsg) error {
	st := tx.Value()
	rec, ok := st.Tasks[m.taskID]
	if st.Status.IsTerminal() || !ok ||
		rec.Status != api.TaskRunning || rec.Attempts != m.attempt {
		slog.Debug("Discarding activity result",
			log.InstanceID(tx.instanceID),
			log.TaskID(m.taskID),
			log.Attempt(m.attempt))
		return nil
	}

	if m.err == nil {
		if err := tx.succeedTask(m.taskID, m.result); err != nil {
			return err
		}
		return tx.evaluate()
	}
	if err := tx.attemptFailed(m.taskID, m.attempt, m.err); err != nil {
		return err
	}
	return tx.evaluate()
}

func (tx *instanceTx) attemptFailed(
	id api.TaskID, attempt int, cause error,
) error {
	p := tx.Policy(tx.graph.Task(id))
	kind := policy.Classify(cause)
	msg := cause.Error()
	if msg == "" {
		msg = kind.String() + " failure"
	}

	slog.Warn("Task attempt failed",
		log.InstanceID(tx.instanceID),
		log.TaskID(id),
		log.Attempt(attempt),
		slog.String("kind", kind.String()),
		log.ErrorString(msg))

	if policy.ShouldRetry(p, attempt, kind) {
		at := tx.Now().Add(policy.NextBackoff(p, attempt))
		return tx.retryTask(id, msg, at)
	}
	return tx.failTask(id, msg)
}

// retryDue starts the next attempt of a task whose backoff has elapsed
func (tx *instanceTx) retryDue(m *retryDueMsg) error {
	st := tx.Value()
	rec, ok := st.Tasks[m.taskID]
	if st.Status.IsTerminal() || !ok ||
		rec.Status != api.TaskAwaitingRetry || rec.Attempts != m.attempt {
		return nil
	}
	attempt, err := tx.startTask(m.taskID)
	if err != nil {
		return err
	}
	tx.dispatch(tx.graph.Task(m.taskID), attempt)
	return tx.evaluate()
}
