package api

import "time"

type (
	// TransitionKind distinguishes workflow transitions from task
	// transitions
	TransitionKind string

	// Transition is the outbound notification emitted for every workflow
	// or task state change, in the order the engine produced them
	Transition struct {
		Timestamp  time.Time      `json:"timestamp"`
		Payload    any            `json:"payload,omitempty"`
		InstanceID InstanceID     `json:"instance_id"`
		WorkflowID WorkflowID     `json:"workflow_id"`
		TaskID     TaskID         `json:"task_id,omitempty"`
		Kind       TransitionKind `json:"kind"`
		From       string         `json:"from"`
		To         string         `json:"to"`
		Attempt    int            `json:"attempt,omitempty"`
	}
)

const (
	TransitionWorkflow TransitionKind = "workflow"
	TransitionTask     TransitionKind = "task"
)

// IsWorkflow reports whether the transition changed the instance status
func (t *Transition) IsWorkflow() bool {
	return t.Kind == TransitionWorkflow
}

// IsTerminal reports whether the transition moved the instance into a
// terminal status
func (t *Transition) IsTerminal() bool {
	return t.IsWorkflow() && WorkflowStatus(t.To).IsTerminal()
}
