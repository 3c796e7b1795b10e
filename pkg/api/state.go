package api

import (
	"maps"
	"slices"
	"time"
)

type (
	// WorkflowStatus represents the aggregate state of a workflow instance
	WorkflowStatus string

	// TaskStatus represents the state of a single task record
	TaskStatus string

	// Decision is the outcome of an approval request
	Decision string

	// WorkflowState contains the complete state of a workflow instance. It is
	// folded entirely from persisted events
	WorkflowState struct {
		CreatedAt     time.Time                   `json:"created_at"`
		CompletedAt   time.Time                   `json:"completed_at,omitzero"`
		LastUpdated   time.Time                   `json:"last_updated"`
		Definition    *WorkflowDefinition         `json:"definition"`
		Parameters    Args                        `json:"parameters,omitempty"`
		Tasks         map[TaskID]*TaskRecord      `json:"tasks"`
		Approvals     map[TaskID]*ApprovalRequest `json:"approvals,omitempty"`
		ID            InstanceID                  `json:"id"`
		Status        WorkflowStatus              `json:"status"`
		Error         string                      `json:"error,omitempty"`
		FailedTasks   []TaskID                    `json:"failed_tasks,omitempty"`
		InFlight      []TaskID                    `json:"in_flight,omitempty"`
		InternalError bool                        `json:"internal_error,omitempty"`
	}

	// TaskRecord is the per-instance record of a task's progress
	TaskRecord struct {
		StartedAt   time.Time  `json:"started_at,omitzero"`
		EndedAt     time.Time  `json:"ended_at,omitzero"`
		NextRetryAt time.Time  `json:"next_retry_at,omitzero"`
		Result      Args       `json:"result,omitempty"`
		Status      TaskStatus `json:"status"`
		Error       string     `json:"error,omitempty"`
		Attempts    int        `json:"attempts"`
	}

	// ApprovalRequest is created when a human-approval task becomes ready
	// and is resolved exactly once by an external signal
	ApprovalRequest struct {
		CreatedAt   time.Time  `json:"created_at"`
		ResolvedAt  time.Time  `json:"resolved_at,omitzero"`
		ExpiresAt   time.Time  `json:"expires_at,omitzero"`
		Context     Args       `json:"context,omitempty"`
		ID          ApprovalID `json:"id"`
		InstanceID  InstanceID `json:"instance_id"`
		TaskID      TaskID     `json:"task_id"`
		Title       string     `json:"title"`
		Description string     `json:"description,omitempty"`
		Decision    Decision   `json:"decision"`
		Comment     string     `json:"comment,omitempty"`
		DecidedBy   string     `json:"decided_by,omitempty"`
	}

	// Signal carries an external approval decision
	Signal struct {
		Comment   string `json:"comment,omitempty"`
		DecidedBy string `json:"decided_by,omitempty"`
		Approved  bool   `json:"approved"`
	}
)

const (
	WorkflowCreated   WorkflowStatus = "created"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowPaused    WorkflowStatus = "paused"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
	WorkflowCancelled WorkflowStatus = "cancelled"
)

const (
	TaskPending        TaskStatus = "pending"
	TaskRunning        TaskStatus = "running"
	TaskSucceeded      TaskStatus = "succeeded"
	TaskAwaitingRetry  TaskStatus = "awaiting_retry"
	TaskAwaitingSignal TaskStatus = "awaiting_signal"
	TaskFailed         TaskStatus = "failed"
	TaskCancelled      TaskStatus = "cancelled"
)

const (
	DecisionPending   Decision = "pending"
	DecisionApproved  Decision = "approved"
	DecisionRejected  Decision = "rejected"
	DecisionCancelled Decision = "cancelled"
)

// IsTerminal reports whether the workflow status can no longer change
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowCompleted, WorkflowFailed, WorkflowCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the task status can no longer change
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskSucceeded, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// Decision returns the decision represented by the signal
func (s Signal) Decision() Decision {
	if s.Approved {
		return DecisionApproved
	}
	return DecisionRejected
}

// IsResolved reports whether the approval has received its decision
func (a *ApprovalRequest) IsResolved() bool {
	return a.Decision != DecisionPending
}

// SetStatus returns a new WorkflowState with the status updated
func (st *WorkflowState) SetStatus(status WorkflowStatus) *WorkflowState {
	res := *st
	res.Status = status
	return &res
}

// SetError returns a new WorkflowState with the error message updated
func (st *WorkflowState) SetError(msg string) *WorkflowState {
	res := *st
	res.Error = msg
	return &res
}

// SetFailedTasks returns a new WorkflowState recording the failing tasks
func (st *WorkflowState) SetFailedTasks(ids []TaskID) *WorkflowState {
	res := *st
	res.FailedTasks = slices.Clone(ids)
	return &res
}

// SetInFlight returns a new WorkflowState recording the tasks that were
// still executing when the instance became terminal
func (st *WorkflowState) SetInFlight(ids []TaskID) *WorkflowState {
	res := *st
	res.InFlight = slices.Clone(ids)
	return &res
}

// SetInternalError returns a new WorkflowState flagged as having been
// aborted by an engine fault
func (st *WorkflowState) SetInternalError(flag bool) *WorkflowState {
	res := *st
	res.InternalError = flag
	return &res
}

// SetTask returns a new WorkflowState with the task record replaced
func (st *WorkflowState) SetTask(id TaskID, rec *TaskRecord) *WorkflowState {
	res := *st
	res.Tasks = maps.Clone(st.Tasks)
	if res.Tasks == nil {
		res.Tasks = map[TaskID]*TaskRecord{}
	}
	res.Tasks[id] = rec
	return &res
}

// SetApproval returns a new WorkflowState with the approval replaced
func (st *WorkflowState) SetApproval(
	id TaskID, ap *ApprovalRequest,
) *WorkflowState {
	res := *st
	res.Approvals = maps.Clone(st.Approvals)
	if res.Approvals == nil {
		res.Approvals = map[TaskID]*ApprovalRequest{}
	}
	res.Approvals[id] = ap
	return &res
}

// SetCompletedAt returns a new WorkflowState with the completion time set
func (st *WorkflowState) SetCompletedAt(t time.Time) *WorkflowState {
	res := *st
	res.CompletedAt = t
	return &res
}

// SetLastUpdated returns a new WorkflowState with the last updated time set
func (st *WorkflowState) SetLastUpdated(t time.Time) *WorkflowState {
	res := *st
	res.LastUpdated = t
	return &res
}

// TasksWithStatus returns the IDs of tasks in the given statuses, in
// definition order
func (st *WorkflowState) TasksWithStatus(statuses ...TaskStatus) []TaskID {
	var res []TaskID
	if st.Definition == nil {
		return res
	}
	for _, t := range st.Definition.Tasks {
		rec, ok := st.Tasks[t.ID]
		if ok && slices.Contains(statuses, rec.Status) {
			res = append(res, t.ID)
		}
	}
	return res
}

// HasTaskWithStatus reports whether any task is in one of the statuses
func (st *WorkflowState) HasTaskWithStatus(statuses ...TaskStatus) bool {
	for _, rec := range st.Tasks {
		if slices.Contains(statuses, rec.Status) {
			return true
		}
	}
	return false
}

// PendingApprovals returns unresolved approval requests in task order
func (st *WorkflowState) PendingApprovals() []*ApprovalRequest {
	var res []*ApprovalRequest
	if st.Definition == nil {
		return res
	}
	for _, t := range st.Definition.Tasks {
		if ap, ok := st.Approvals[t.ID]; ok && !ap.IsResolved() {
			res = append(res, ap)
		}
	}
	return res
}

// SetStatus returns a new TaskRecord with the status updated
func (r *TaskRecord) SetStatus(status TaskStatus) *TaskRecord {
	res := *r
	res.Status = status
	return &res
}

// SetError returns a new TaskRecord with the error updated
func (r *TaskRecord) SetError(msg string) *TaskRecord {
	res := *r
	res.Error = msg
	return &res
}

// SetResult returns a new TaskRecord with the result updated
func (r *TaskRecord) SetResult(result Args) *TaskRecord {
	res := *r
	res.Result = result
	return &res
}

// SetEndedAt returns a new TaskRecord with the attempt end time set
func (r *TaskRecord) SetEndedAt(t time.Time) *TaskRecord {
	res := *r
	res.EndedAt = t
	return &res
}

// SetNextRetryAt returns a new TaskRecord with the retry due time set
func (r *TaskRecord) SetNextRetryAt(t time.Time) *TaskRecord {
	res := *r
	res.NextRetryAt = t
	return &res
}

// StartAttempt returns a new TaskRecord for a fresh attempt beginning at t
func (r *TaskRecord) StartAttempt(attempt int, t time.Time) *TaskRecord {
	res := *r
	res.Status = TaskRunning
	res.Attempts = attempt
	res.StartedAt = t
	res.EndedAt = time.Time{}
	res.NextRetryAt = time.Time{}
	return &res
}

// Resolve returns a new ApprovalRequest carrying the signal's decision
func (a *ApprovalRequest) Resolve(
	d Decision, comment, by string, at time.Time,
) *ApprovalRequest {
	res := *a
	res.Decision = d
	res.Comment = comment
	res.DecidedBy = by
	res.ResolvedAt = at
	return &res
}
