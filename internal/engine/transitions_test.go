package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tessera-flow/tessera/engine/pkg/api"
)

func TestWorkflowTransitions(t *testing.T) {
	assert.True(t, workflowTransitions.CanTransition(
		api.WorkflowCreated, api.WorkflowRunning,
	))
	assert.True(t, workflowTransitions.CanTransition(
		api.WorkflowRunning, api.WorkflowPaused,
	))
	assert.True(t, workflowTransitions.CanTransition(
		api.WorkflowPaused, api.WorkflowRunning,
	))
	assert.True(t, workflowTransitions.CanTransition(
		api.WorkflowPaused, api.WorkflowCancelled,
	))
	assert.False(t, workflowTransitions.CanTransition(
		api.WorkflowCreated, api.WorkflowPaused,
	))
	assert.False(t, workflowTransitions.CanTransition(
		api.WorkflowCompleted, api.WorkflowRunning,
	))
	assert.False(t, workflowTransitions.CanTransition("unknown", "running"))
}

func TestTaskTransitions(t *testing.T) {
	assert.True(t, taskTransitions.CanTransition(
		api.TaskPending, api.TaskRunning,
	))
	assert.True(t, taskTransitions.CanTransition(
		api.TaskAwaitingRetry, api.TaskRunning,
	))
	assert.True(t, taskTransitions.CanTransition(
		api.TaskAwaitingSignal, api.TaskCancelled,
	))
	assert.False(t, taskTransitions.CanTransition(
		api.TaskPending, api.TaskSucceeded,
	))
	assert.False(t, taskTransitions.CanTransition(
		api.TaskAwaitingRetry, api.TaskFailed,
	))
	assert.False(t, taskTransitions.CanTransition(
		api.TaskSucceeded, api.TaskRunning,
	))
}

func TestTerminalStatesMatch(t *testing.T) {
	for status := range workflowTransitions {
		assert.Equal(t,
			status.IsTerminal(), workflowTransitions.IsTerminal(status),
			"workflow status %s", status,
		)
	}
	for status := range taskTransitions {
		assert.Equal(t,
			status.IsTerminal(), taskTransitions.IsTerminal(status),
			"task status %s", status,
		)
	}
}

func TestOutcomePermits(t *testing.T) {
	assert.NotEmpty(t, taskOutcome{}.permits(api.TaskSucceeded))
	assert.Empty(t,
		taskOutcome{result: api.Args{}}.permits(api.TaskSucceeded),
	)
	assert.NotEmpty(t, taskOutcome{}.permits(api.TaskFailed))
	assert.NotEmpty(t, taskOutcome{}.permits(api.TaskAwaitingRetry))
	assert.Empty(t, taskOutcome{err: "boom"}.permits(api.TaskAwaitingRetry))
	assert.NotEmpty(t, taskOutcome{}.permits(api.TaskAwaitingSignal))
	assert.Empty(t,
		taskOutcome{approval: true}.permits(api.TaskAwaitingSignal),
	)
	assert.Empty(t, taskOutcome{}.permits(api.TaskCancelled))
}

func TestMaxWait(t *testing.T) {
	d, ok := maxWait(api.Config{"max_wait": "90s"})
	assert.True(t, ok)
	assert.Equal(t, "1m30s", d.String())

	_, ok = maxWait(api.Config{"max_wait": "soon"})
	assert.False(t, ok)
	_, ok = maxWait(api.Config{})
	assert.False(t, ok)
}
