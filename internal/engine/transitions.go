package engine

import (
	"github.com/tessera-flow/tessera/engine/pkg/api"
	"github.com/tessera-flow/tessera/engine/pkg/util"
)

// StateTransitions maps states to their set of valid next states
//
// Generic state transition tables are used to validate workflow and task
// status changes before the corresponding event is raised
type StateTransitions[T comparable] map[T]util.Set[T]

var (
	workflowTransitions = StateTransitions[api.WorkflowStatus]{
		api.WorkflowCreated: util.SetOf(
			api.WorkflowRunning,
			api.WorkflowFailed,
			api.WorkflowCancelled,
		),
		api.WorkflowRunning: util.SetOf(
			api.WorkflowPaused,
			api.WorkflowCompleted,
			api.WorkflowFailed,
			api.WorkflowCancelled,
		),
		api.WorkflowPaused: util.SetOf(
			api.WorkflowRunning,
			api.WorkflowFailed,
			api.WorkflowCancelled,
		),
		api.WorkflowCompleted: {},
		api.WorkflowFailed:    {},
		api.WorkflowCancelled: {},
	}

	taskTransitions = StateTransitions[api.TaskStatus]{
		api.TaskPending: util.SetOf(
			api.TaskRunning,
			api.TaskCancelled,
		),
		api.TaskRunning: util.SetOf(
			api.TaskSucceeded,
			api.TaskAwaitingRetry,
			api.TaskAwaitingSignal,
			api.TaskFailed,
			api.TaskCancelled,
		),
		api.TaskAwaitingRetry: util.SetOf(
			api.TaskRunning,
			api.TaskCancelled,
		),
		api.TaskAwaitingSignal: util.SetOf(
			api.TaskRunning,
			api.TaskCancelled,
		),
		api.TaskSucceeded: {},
		api.TaskFailed:    {},
		api.TaskCancelled: {},
	}
)

// CanTransition returns whether transition from one state to another is valid
func (t StateTransitions[T]) CanTransition(from, to T) bool {
	allowed, ok := t[from]
	if !ok {
		return false
	}
	return allowed.Contains(to)
}

// IsTerminal returns true if the state has no valid transitions
func (t StateTransitions[T]) IsTerminal(state T) bool {
	allowed, ok := t[state]
	return ok && allowed.IsEmpty()
}
