package api

import (
	"maps"
	"time"
)

type (
	// CatalogState holds every registered workflow definition
	CatalogState struct {
		LastUpdated time.Time                          `json:"last_updated"`
		Definitions map[WorkflowID]*WorkflowDefinition `json:"definitions"`
	}

	// PartitionState tracks the instances managed by this engine partition
	PartitionState struct {
		LastUpdated time.Time                      `json:"last_updated"`
		Active      map[InstanceID]*ActiveInstance `json:"active"`
		Digests     map[InstanceID]*InstanceDigest `json:"digests"`
		Approvals   map[ApprovalID]*ApprovalRef    `json:"approvals"`
	}

	// ActiveInstance records a non-terminal instance that must be recovered
	// if the engine restarts
	ActiveInstance struct {
		StartedAt  time.Time  `json:"started_at"`
		WorkflowID WorkflowID `json:"workflow_id"`
	}

	// InstanceDigest provides summary information about an instance
	InstanceDigest struct {
		CreatedAt   time.Time      `json:"created_at"`
		CompletedAt time.Time      `json:"completed_at,omitzero"`
		ID          InstanceID     `json:"id"`
		WorkflowID  WorkflowID     `json:"workflow_id"`
		Status      WorkflowStatus `json:"status"`
		Error       string         `json:"error,omitempty"`
	}

	// ApprovalRef locates an approval request within its instance
	ApprovalRef struct {
		InstanceID InstanceID `json:"instance_id"`
		TaskID     TaskID     `json:"task_id"`
	}
)

// SetDefinition returns a new CatalogState with the definition registered
func (st *CatalogState) SetDefinition(
	id WorkflowID, def *WorkflowDefinition,
) *CatalogState {
	res := *st
	res.Definitions = maps.Clone(st.Definitions)
	if res.Definitions == nil {
		res.Definitions = map[WorkflowID]*WorkflowDefinition{}
	}
	res.Definitions[id] = def
	return &res
}

// SetLastUpdated returns a new CatalogState with the last updated time set
func (st *CatalogState) SetLastUpdated(t time.Time) *CatalogState {
	res := *st
	res.LastUpdated = t
	return &res
}

// SetActive returns a new PartitionState with the instance marked active
func (st *PartitionState) SetActive(
	id InstanceID, a *ActiveInstance,
) *PartitionState {
	res := *st
	res.Active = maps.Clone(st.Active)
	if res.Active == nil {
		res.Active = map[InstanceID]*ActiveInstance{}
	}
	res.Active[id] = a
	return &res
}

// DeleteActive returns a new PartitionState with the instance no longer
// marked active
func (st *PartitionState) DeleteActive(id InstanceID) *PartitionState {
	res := *st
	res.Active = maps.Clone(st.Active)
	delete(res.Active, id)
	return &res
}

// SetDigest returns a new PartitionState with the instance digest replaced
func (st *PartitionState) SetDigest(
	id InstanceID, d *InstanceDigest,
) *PartitionState {
	res := *st
	res.Digests = maps.Clone(st.Digests)
	if res.Digests == nil {
		res.Digests = map[InstanceID]*InstanceDigest{}
	}
	res.Digests[id] = d
	return &res
}

// SetApprovalRef returns a new PartitionState with the approval indexed
func (st *PartitionState) SetApprovalRef(
	id ApprovalID, ref *ApprovalRef,
) *PartitionState {
	res := *st
	res.Approvals = maps.Clone(st.Approvals)
	if res.Approvals == nil {
		res.Approvals = map[ApprovalID]*ApprovalRef{}
	}
	res.Approvals[id] = ref
	return &res
}

// SetLastUpdated returns a new PartitionState with the last updated time set
func (st *PartitionState) SetLastUpdated(t time.Time) *PartitionState {
	res := *st
	res.LastUpdated = t
	return &res
}
