package events

import (
	"time"

	"github.com/kode4food/timebox"

	"github.com/tessera-flow/tessera/engine/pkg/api"
)

const InstancePrefix = "instance"

// InstanceAppliers folds instance events into a WorkflowState
var InstanceAppliers = makeInstanceAppliers()

// InstanceKey returns the aggregate ID for a workflow instance
func InstanceKey(id api.InstanceID) timebox.AggregateID {
	return timebox.NewAggregateID(InstancePrefix, timebox.ID(id))
}

// NewWorkflowState creates an empty workflow state with initialized maps
func NewWorkflowState() *api.WorkflowState {
	return &api.WorkflowState{
		Tasks:     map[api.TaskID]*api.TaskRecord{},
		Approvals: map[api.TaskID]*api.ApprovalRequest{},
	}
}

func makeInstanceAppliers() timebox.Appliers[*api.WorkflowState] {
	return MakeAppliers(map[api.EventType]timebox.Applier[*api.WorkflowState]{
		api.EventTypeInstanceStarted:   timebox.MakeApplier(instanceStarted),
		api.EventTypeInstanceRunning:   timebox.MakeApplier(instanceRunning),
		api.EventTypeInstancePaused:    timebox.MakeApplier(instancePaused),
		api.EventTypeInstanceCompleted: timebox.MakeApplier(instanceCompleted),
		api.EventTypeInstanceFailed:    timebox.MakeApplier(instanceFailed),
		api.EventTypeInstanceCancelled: timebox.MakeApplier(instanceCancelled),
		api.EventTypeTaskStarted:       timebox.MakeApplier(taskStarted),
		api.EventTypeTaskSucceeded:     timebox.MakeApplier(taskSucceeded),
		api.EventTypeTaskRetryScheduled: timebox.MakeApplier(
			taskRetryScheduled,
		),
		api.EventTypeTaskFailed:        timebox.MakeApplier(taskFailed),
		api.EventTypeTaskCancelled:     timebox.MakeApplier(taskCancelled),
		api.EventTypeApprovalRequested: timebox.MakeApplier(approvalRequested),
		api.EventTypeTaskResumed:       timebox.MakeApplier(taskResumed),
	})
}

func instanceStarted(
	st *api.WorkflowState, ev *timebox.Event, data api.InstanceStartedEvent,
) *api.WorkflowState {
	tasks := make(map[api.TaskID]*api.TaskRecord, len(data.Definition.Tasks))
	for _, t := range data.Definition.Tasks {
		tasks[t.ID] = &api.TaskRecord{Status: api.TaskPending}
	}
	return &api.WorkflowState{
		CreatedAt:   ev.Timestamp,
		LastUpdated: ev.Timestamp,
		Definition:  data.Definition,
		Parameters:  data.Parameters,
		Tasks:       tasks,
		Approvals:   map[api.TaskID]*api.ApprovalRequest{},
		ID:          data.InstanceID,
		Status:      api.WorkflowCreated,
	}
}

func instanceRunning(
	st *api.WorkflowState, ev *timebox.Event, _ api.InstanceStatusEvent,
) *api.WorkflowState {
	return st.
		SetStatus(api.WorkflowRunning).
		SetLastUpdated(ev.Timestamp)
}

func instancePaused(
	st *api.WorkflowState, ev *timebox.Event, _ api.InstanceStatusEvent,
) *api.WorkflowState {
	return st.
		SetStatus(api.WorkflowPaused).
		SetLastUpdated(ev.Timestamp)
}

func instanceCompleted(
	st *api.WorkflowState, ev *timebox.Event, _ api.InstanceStatusEvent,
) *api.WorkflowState {
	return st.
		SetStatus(api.WorkflowCompleted).
		SetCompletedAt(ev.Timestamp).
		SetLastUpdated(ev.Timestamp)
}

func instanceFailed(
	st *api.WorkflowState, ev *timebox.Event, data api.InstanceFailedEvent,
) *api.WorkflowState {
	return st.
		SetStatus(api.WorkflowFailed).
		SetError(data.Error).
		SetFailedTasks(data.FailedTasks).
		SetInFlight(data.InFlight).
		SetInternalError(data.InternalError).
		SetCompletedAt(ev.Timestamp).
		SetLastUpdated(ev.Timestamp)
}

func instanceCancelled(
	st *api.WorkflowState, ev *timebox.Event, data api.InstanceCancelledEvent,
) *api.WorkflowState {
	return st.
		SetStatus(api.WorkflowCancelled).
		SetInFlight(data.InFlight).
		SetCompletedAt(ev.Timestamp).
		SetLastUpdated(ev.Timestamp)
}

func taskStarted(
	st *api.WorkflowState, ev *timebox.Event, data api.TaskStartedEvent,
) *api.WorkflowState {
	rec := taskRecord(st, data.TaskID)
	return st.
		SetTask(data.TaskID, rec.StartAttempt(data.Attempt, ev.Timestamp)).
		SetLastUpdated(ev.Timestamp)
}

func taskSucceeded(
	st *api.WorkflowState, ev *timebox.Event, data api.TaskSucceededEvent,
) *api.WorkflowState {
	rec := taskRecord(st, data.TaskID).
		SetStatus(api.TaskSucceeded).
		SetResult(data.Result).
		SetError("").
		SetEndedAt(ev.Timestamp)
	return st.
		SetTask(data.TaskID, rec).
		SetLastUpdated(ev.Timestamp)
}

func taskRetryScheduled(
	st *api.WorkflowState, ev *timebox.Event,
	data api.TaskRetryScheduledEvent,
) *api.WorkflowState {
	rec := taskRecord(st, data.TaskID).
		SetStatus(api.TaskAwaitingRetry).
		SetError(data.Error).
		SetEndedAt(ev.Timestamp).
		SetNextRetryAt(data.NextRetryAt)
	return st.
		SetTask(data.TaskID, rec).
		SetLastUpdated(ev.Timestamp)
}

func taskFailed(
	st *api.WorkflowState, ev *timebox.Event, data api.TaskFailedEvent,
) *api.WorkflowState {
	rec := taskRecord(st, data.TaskID).
		SetStatus(api.TaskFailed).
		SetError(data.Error).
		SetEndedAt(ev.Timestamp).
		SetNextRetryAt(time.Time{})
	return st.
		SetTask(data.TaskID, rec).
		SetLastUpdated(ev.Timestamp)
}

func taskCancelled(
	st *api.WorkflowState, ev *timebox.Event, data api.TaskCancelledEvent,
) *api.WorkflowState {
	rec := taskRecord(st, data.TaskID).
		SetStatus(api.TaskCancelled).
		SetEndedAt(ev.Timestamp).
		SetNextRetryAt(time.Time{})
	res := st.SetTask(data.TaskID, rec)
	if ap, ok := st.Approvals[data.TaskID]; ok && !ap.IsResolved() {
		res = res.SetApproval(data.TaskID,
			ap.Resolve(api.DecisionCancelled, "", "", ev.Timestamp),
		)
	}
	return res.SetLastUpdated(ev.Timestamp)
}

func approvalRequested(
	st *api.WorkflowState, ev *timebox.Event,
	data api.ApprovalRequestedEvent,
) *api.WorkflowState {
	ap := data.Approval
	rec := taskRecord(st, ap.TaskID).SetStatus(api.TaskAwaitingSignal)
	return st.
		SetTask(ap.TaskID, rec).
		SetApproval(ap.TaskID, ap).
		SetLastUpdated(ev.Timestamp)
}

func taskResumed(
	st *api.WorkflowState, ev *timebox.Event, data api.TaskResumedEvent,
) *api.WorkflowState {
	rec := taskRecord(st, data.TaskID).SetStatus(api.TaskRunning)
	res := st.SetTask(data.TaskID, rec)
	if ap, ok := st.Approvals[data.TaskID]; ok {
		res = res.SetApproval(data.TaskID, ap.Resolve(
			data.Decision, data.Comment, data.DecidedBy, ev.Timestamp,
		))
	}
	return res.SetLastUpdated(ev.Timestamp)
}

func taskRecord(st *api.WorkflowState, id api.TaskID) *api.TaskRecord {
	if rec, ok := st.Tasks[id]; ok {
		return rec
	}
	return &api.TaskRecord{Status: api.TaskPending}
}
