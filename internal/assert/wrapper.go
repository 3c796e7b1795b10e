package assert

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tessera-flow/tessera/engine/internal/config"
	"github.com/tessera-flow/tessera/engine/pkg/api"
)

type (
	// InstanceGetter retrieves the current state of a workflow instance
	InstanceGetter interface {
		GetInstance(
			ctx context.Context, id api.InstanceID,
		) (*api.WorkflowState, error)
	}

	// Wrapper wraps testify assertions with engine-specific helpers
	Wrapper struct {
		*testing.T
		*assert.Assertions
		Require *assert.Assertions
	}
)

// DefaultRetryInterval is the default polling interval for Eventually checks
const DefaultRetryInterval = 10 * time.Millisecond

// New creates a new test assertion wrapper with both assert and require from
// testify plus engine-specific helpers
func New(t *testing.T) *Wrapper {
	return &Wrapper{
		T:          t,
		Assertions: assert.New(t),
		Require:    assert.New(t),
	}
}

// DefinitionValid asserts that a workflow definition is valid
func (w *Wrapper) DefinitionValid(def *api.WorkflowDefinition) {
	w.Helper()
	w.NoError(def.Validate())
	w.NotEmpty(def.ID)
	w.NotEmpty(def.Tasks)
	for _, task := range def.Tasks {
		if !task.IsApproval() {
			w.NotEmpty(task.Activity, "task %s needs an activity", task.ID)
		}
	}
}

// DefinitionInvalid asserts that a definition is invalid and returns the
// validation error
func (w *Wrapper) DefinitionInvalid(
	def *api.WorkflowDefinition, expectedErrorContains string,
) error {
	w.Helper()
	err := def.Validate()
	w.Error(err)
	if err != nil && expectedErrorContains != "" {
		w.Contains(err.Error(), expectedErrorContains)
	}
	return err
}

// InstanceStatus asserts the status of a workflow instance
func (w *Wrapper) InstanceStatus(
	st *api.WorkflowState, expected api.WorkflowStatus,
) {
	w.Helper()
	w.Equal(expected, st.Status)
}

// TaskStatus asserts the status of a single task within an instance
func (w *Wrapper) TaskStatus(
	st *api.WorkflowState, taskID api.TaskID, expected api.TaskStatus,
) {
	w.Helper()
	rec, ok := st.Tasks[taskID]
	if !w.True(ok, "instance has no task %s", taskID) {
		return
	}
	w.Equal(expected, rec.Status, "task %s", taskID)
}

// TaskStatuses asserts the status of several tasks at once
func (w *Wrapper) TaskStatuses(
	st *api.WorkflowState, expected map[api.TaskID]api.TaskStatus,
) {
	w.Helper()
	for id, status := range expected {
		w.TaskStatus(st, id, status)
	}
}

// EventuallyInstanceStatus polls the getter until the instance reaches the
// expected status and returns its last observed state
func (w *Wrapper) EventuallyInstanceStatus(
	get InstanceGetter, id api.InstanceID, expected api.WorkflowStatus,
	timeout time.Duration,
) *api.WorkflowState {
	w.Helper()
	var last *api.WorkflowState
	w.Eventually(func() bool {
		st, err := get.GetInstance(context.Background(), id)
		if err != nil {
			return false
		}
		last = st
		return st.Status == expected
	}, timeout, "instance %s never reached %s", id, expected)
	return last
}

// ConfigValid asserts that a configuration is valid
func (w *Wrapper) ConfigValid(cfg *config.Config) {
	w.Helper()
	w.NoError(cfg.Validate())
	w.True(cfg.APIPort > 0 && cfg.APIPort <= 65535)
	w.True(cfg.TaskTimeout > 0)
}

// ConfigInvalid asserts that a configuration is invalid
func (w *Wrapper) ConfigInvalid(cfg *config.Config, contains string) {
	w.Helper()
	err := cfg.Validate()
	w.Error(err)
	if err != nil && contains != "" {
		w.Contains(err.Error(), contains)
	}
}

// Eventually runs a condition repeatedly until it passes or times out
func (w *Wrapper) Eventually(
	condition func() bool, timeout time.Duration, msg string, args ...any,
) {
	w.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(DefaultRetryInterval)
	}
	w.Fail(msg, args...)
}

// EventuallyWithError runs a condition that returns an error until it
// succeeds or times out
func (w *Wrapper) EventuallyWithError(
	condition func() error, timeout time.Duration, msg string, args ...any,
) {
	w.Helper()
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		err := condition()
		if err == nil {
			return
		}
		lastErr = err
		time.Sleep(DefaultRetryInterval)
	}
	if lastErr != nil {
		w.Fail(msg+": last error: "+lastErr.Error(), args...)
		return
	}
	w.Fail(msg, args...)
}
