package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/tessera-flow/tessera/engine/pkg/api"
	"github.com/tessera-flow/tessera/engine/pkg/events"
)

// GetInstance retrieves the current state of a workflow instance
func (e *Engine) GetInstance(
	ctx context.Context, id api.InstanceID,
) (*api.WorkflowState, error) {
	st, err := e.instanceExec.Exec(ctx, events.InstanceKey(id),
		func(*api.WorkflowState, *InstanceAggregator) error {
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	if st.ID == "" {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	return st, nil
}

// ListInstances returns instance digests, newest first. When statuses are
// provided, only instances in one of them are returned
func (e *Engine) ListInstances(
	ctx context.Context, statuses ...api.WorkflowStatus,
) ([]*api.InstanceDigest, error) {
	part, err := e.GetPartitionState(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]*api.InstanceDigest, 0, len(part.Digests))
	for _, d := range part.Digests {
		if len(statuses) == 0 || slices.Contains(statuses, d.Status) {
			res = append(res, d)
		}
	}
	slices.SortFunc(res, func(l, r *api.InstanceDigest) int {
		if c := r.CreatedAt.Compare(l.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(string(l.ID), string(r.ID))
	})
	return res, nil
}
