package helpers

import (
	"github.com/google/uuid"

	"github.com/tessera-flow/tessera/engine/pkg/api"
)

// NewDefinition creates a definition with a unique ID over the tasks
func NewDefinition(tasks ...*api.TaskDefinition) *api.WorkflowDefinition {
	return &api.WorkflowDefinition{
		ID:      api.WorkflowID("test-wf-" + uuid.New().String()[:8]),
		Name:    "Test Workflow",
		Version: "1.0.0",
		Tasks:   tasks,
	}
}

// NewActivityTask creates an ordinary task using the mock activity
func NewActivityTask(
	id api.TaskID, deps ...api.TaskID,
) *api.TaskDefinition {
	return &api.TaskDefinition{
		ID:        id,
		Kind:      api.TaskActivity,
		Activity:  "mock",
		DependsOn: deps,
	}
}

// NewApprovalTask creates a human approval task
func NewApprovalTask(
	id api.TaskID, deps ...api.TaskID,
) *api.TaskDefinition {
	return &api.TaskDefinition{
		ID:        id,
		Name:      "Approve " + string(id),
		Kind:      api.TaskApproval,
		DependsOn: deps,
	}
}

// WithRetry sets a task's retry policy
func WithRetry(
	task *api.TaskDefinition, p api.RetryPolicy,
) *api.TaskDefinition {
	task.Retry = &p
	return task
}

// DiamondDefinition creates the a -> (b, c) -> d workflow
func DiamondDefinition() *api.WorkflowDefinition {
	return NewDefinition(
		NewActivityTask("a"),
		NewActivityTask("b", "a"),
		NewActivityTask("c", "a"),
		NewActivityTask("d", "b", "c"),
	)
}
