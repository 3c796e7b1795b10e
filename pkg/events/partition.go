package events

import (
	"github.com/kode4food/timebox"

	"github.com/tessera-flow/tessera/engine/pkg/api"
)

const PartitionPrefix = "partition"

var (
	PartitionKey = timebox.NewAggregateID(PartitionPrefix)

	PartitionAppliers = makePartitionAppliers()
)

// NewPartitionState creates an empty partition state with initialized maps
func NewPartitionState() *api.PartitionState {
	return &api.PartitionState{
		Active:    map[api.InstanceID]*api.ActiveInstance{},
		Digests:   map[api.InstanceID]*api.InstanceDigest{},
		Approvals: map[api.ApprovalID]*api.ApprovalRef{},
	}
}

func makePartitionAppliers() timebox.Appliers[*api.PartitionState] {
	return MakeAppliers(map[api.EventType]timebox.Applier[*api.PartitionState]{
		api.EventTypeInstanceActivated: timebox.MakeApplier(
			instanceActivated,
		),
		api.EventTypeInstanceDeactivated: timebox.MakeApplier(
			instanceDeactivated,
		),
		api.EventTypeInstanceDigestUpdated: timebox.MakeApplier(
			instanceDigestUpdated,
		),
		api.EventTypeApprovalIndexed: timebox.MakeApplier(approvalIndexed),
	})
}

func instanceActivated(
	st *api.PartitionState, ev *timebox.Event,
	data api.InstanceActivatedEvent,
) *api.PartitionState {
	return st.
		SetActive(data.InstanceID, &api.ActiveInstance{
			StartedAt:  ev.Timestamp,
			WorkflowID: data.WorkflowID,
		}).
		SetDigest(data.InstanceID, &api.InstanceDigest{
			CreatedAt:  ev.Timestamp,
			ID:         data.InstanceID,
			WorkflowID: data.WorkflowID,
			Status:     api.WorkflowCreated,
		}).
		SetLastUpdated(ev.Timestamp)
}

func instanceDeactivated(
	st *api.PartitionState, ev *timebox.Event,
	data api.InstanceDeactivatedEvent,
) *api.PartitionState {
	digest := digestFor(st, data.InstanceID)
	digest.Status = data.Status
	digest.Error = data.Error
	digest.CompletedAt = ev.Timestamp
	return st.
		DeleteActive(data.InstanceID).
		SetDigest(data.InstanceID, digest).
		SetLastUpdated(ev.Timestamp)
}

func instanceDigestUpdated(
	st *api.PartitionState, ev *timebox.Event,
	data api.InstanceDigestUpdatedEvent,
) *api.PartitionState {
	digest := digestFor(st, data.InstanceID)
	digest.Status = data.Status
	digest.Error = data.Error
	if data.Status.IsTerminal() {
		digest.CompletedAt = ev.Timestamp
	}
	return st.
		SetDigest(data.InstanceID, digest).
		SetLastUpdated(ev.Timestamp)
}

func approvalIndexed(
	st *api.PartitionState, ev *timebox.Event,
	data api.ApprovalIndexedEvent,
) *api.PartitionState {
	return st.
		SetApprovalRef(data.ApprovalID, &api.ApprovalRef{
			InstanceID: data.InstanceID,
			TaskID:     data.TaskID,
		}).
		SetLastUpdated(ev.Timestamp)
}

func digestFor(st *api.PartitionState, id api.InstanceID) *api.InstanceDigest {
	if existing, ok := st.Digests[id]; ok {
		res := *existing
		return &res
	}
	digest := &api.InstanceDigest{ID: id}
	if active, ok := st.Active[id]; ok {
		digest.CreatedAt = active.StartedAt
		digest.WorkflowID = active.WorkflowID
	}
	return digest
}
