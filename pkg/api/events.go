package api

import "time"

type (
	// EventType identifies a persisted event
	EventType string

	// DefinitionRegisteredEvent is emitted when a workflow definition is
	// added to the catalog
	DefinitionRegisteredEvent struct {
		Definition *WorkflowDefinition `json:"definition"`
	}

	// InstanceActivatedEvent is emitted when an instance begins and must be
	// tracked for recovery
	InstanceActivatedEvent struct {
		InstanceID InstanceID `json:"instance_id"`
		WorkflowID WorkflowID `json:"workflow_id"`
	}

	// InstanceDeactivatedEvent is emitted when an instance reaches a terminal
	// state and no longer needs recovery
	InstanceDeactivatedEvent struct {
		InstanceID InstanceID     `json:"instance_id"`
		Status     WorkflowStatus `json:"status"`
		Error      string         `json:"error,omitempty"`
	}

	// InstanceDigestUpdatedEvent is emitted when an instance's summary
	// status changes
	InstanceDigestUpdatedEvent struct {
		InstanceID InstanceID     `json:"instance_id"`
		Status     WorkflowStatus `json:"status"`
		Error      string         `json:"error,omitempty"`
	}

	// ApprovalIndexedEvent is emitted when an approval request is created so
	// that it can be located by its own ID
	ApprovalIndexedEvent struct {
		ApprovalID ApprovalID `json:"approval_id"`
		InstanceID InstanceID `json:"instance_id"`
		TaskID     TaskID     `json:"task_id"`
	}

	// InstanceStartedEvent is emitted when a workflow instance is created
	InstanceStartedEvent struct {
		Definition *WorkflowDefinition `json:"definition"`
		Parameters Args                `json:"parameters,omitempty"`
		InstanceID InstanceID          `json:"instance_id"`
	}

	// InstanceStatusEvent is emitted for running, paused, and completed
	// workflow transitions
	InstanceStatusEvent struct {
		InstanceID InstanceID `json:"instance_id"`
	}

	// InstanceFailedEvent is emitted when a workflow instance fails
	InstanceFailedEvent struct {
		InstanceID    InstanceID `json:"instance_id"`
		Error         string     `json:"error"`
		FailedTasks   []TaskID   `json:"failed_tasks,omitempty"`
		InFlight      []TaskID   `json:"in_flight,omitempty"`
		InternalError bool       `json:"internal_error,omitempty"`
	}

	// InstanceCancelledEvent is emitted when an external cancel is honored
	InstanceCancelledEvent struct {
		InstanceID InstanceID `json:"instance_id"`
		InFlight   []TaskID   `json:"in_flight,omitempty"`
	}

	// TaskStartedEvent is emitted when a task attempt begins
	TaskStartedEvent struct {
		InstanceID InstanceID `json:"instance_id"`
		TaskID     TaskID     `json:"task_id"`
		Attempt    int        `json:"attempt"`
	}

	// TaskSucceededEvent is emitted when a task produces its result
	TaskSucceededEvent struct {
		Result     Args       `json:"result"`
		InstanceID InstanceID `json:"instance_id"`
		TaskID     TaskID     `json:"task_id"`
	}

	// TaskRetryScheduledEvent is emitted when a failed attempt will be
	// retried after a backoff
	TaskRetryScheduledEvent struct {
		NextRetryAt time.Time  `json:"next_retry_at"`
		InstanceID  InstanceID `json:"instance_id"`
		TaskID      TaskID     `json:"task_id"`
		Error       string     `json:"error"`
	}

	// TaskFailedEvent is emitted when a task fails permanently
	TaskFailedEvent struct {
		InstanceID InstanceID `json:"instance_id"`
		TaskID     TaskID     `json:"task_id"`
		Error      string     `json:"error"`
	}

	// TaskCancelledEvent is emitted when a task will never run to completion
	TaskCancelledEvent struct {
		InstanceID InstanceID `json:"instance_id"`
		TaskID     TaskID     `json:"task_id"`
	}

	// ApprovalRequestedEvent is emitted when a human-approval task suspends
	ApprovalRequestedEvent struct {
		Approval *ApprovalRequest `json:"approval"`
	}

	// TaskResumedEvent is emitted when an approval decision arrives for a
	// task awaiting a signal
	TaskResumedEvent struct {
		InstanceID InstanceID `json:"instance_id"`
		TaskID     TaskID     `json:"task_id"`
		Decision   Decision   `json:"decision"`
		Comment    string     `json:"comment,omitempty"`
		DecidedBy  string     `json:"decided_by,omitempty"`
	}
)

const (
	// Catalog events
	EventTypeDefinitionRegistered EventType = "definition_registered"

	// Partition events
	EventTypeInstanceActivated     EventType = "instance_activated"
	EventTypeInstanceDeactivated   EventType = "instance_deactivated"
	EventTypeInstanceDigestUpdated EventType = "instance_digest_updated"
	EventTypeApprovalIndexed       EventType = "approval_indexed"

	// Instance events
	EventTypeInstanceStarted   EventType = "instance_started"
	EventTypeInstanceRunning   EventType = "instance_running"
	EventTypeInstancePaused    EventType = "instance_paused"
	EventTypeInstanceCompleted EventType = "instance_completed"
	EventTypeInstanceFailed    EventType = "instance_failed"
	EventTypeInstanceCancelled EventType = "instance_cancelled"

	// Task events
	EventTypeTaskStarted        EventType = "task_started"
	EventTypeTaskSucceeded      EventType = "task_succeeded"
	EventTypeTaskRetryScheduled EventType = "task_retry_scheduled"
	EventTypeTaskFailed         EventType = "task_failed"
	EventTypeTaskCancelled      EventType = "task_cancelled"
	EventTypeApprovalRequested  EventType = "approval_requested"
	EventTypeTaskResumed        EventType = "task_resumed"
)
