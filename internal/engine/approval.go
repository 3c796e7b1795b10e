package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/tessera-flow/tessera/engine/pkg/api"
)

const (
	expiredComment = "approval expired"
	systemDecider  = "system"
)

// Resume delivers an approval decision to a task awaiting its signal. A
// decision is accepted exactly once per approval request; anything else is
// rejected with api.ErrSignalRejected and changes nothing
func (e *Engine) Resume(
	ctx context.Context, id api.InstanceID, taskID api.TaskID, sig api.Signal,
) error {
	res := make(chan error, 1)
	err := e.post(id, &resumeMsg{
		reply:  res,
		signal: sig,
		taskID: taskID,
	})
	if err != nil {
		return err
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResolveApproval resumes the task that owns an approval request
func (e *Engine) ResolveApproval(
	ctx context.Context, id api.ApprovalID, sig api.Signal,
) error {
	ap, err := e.GetApproval(ctx, id)
	if err != nil {
		return err
	}
	return e.Resume(ctx, ap.InstanceID, ap.TaskID, sig)
}

// GetApproval returns an approval request by its ID
func (e *Engine) GetApproval(
	ctx context.Context, id api.ApprovalID,
) (*api.ApprovalRequest, error) {
	part, err := e.GetPartitionState(ctx)
	if err != nil {
		return nil, err
	}
	ref, ok := part.Approvals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrApprovalNotFound, id)
	}
	st, err := e.GetInstance(ctx, ref.InstanceID)
	if err != nil {
		return nil, err
	}
	ap, ok := st.Approvals[ref.TaskID]
	if !ok || ap.ID != id {
		return nil, fmt.Errorf("%w: %s", ErrApprovalNotFound, id)
	}
	return ap, nil
}

// ListApprovals returns approval requests ordered by creation time. An
// empty decision matches every request; an empty instance ID searches
// every indexed instance
func (e *Engine) ListApprovals(
	ctx context.Context, decision api.Decision, id api.InstanceID,
) ([]*api.ApprovalRequest, error) {
	ids := []api.InstanceID{id}
	if id == "" {
		part, err := e.GetPartitionState(ctx)
		if err != nil {
			return nil, err
		}
		ids = approvalInstances(part)
	}

	res := []*api.ApprovalRequest{}
	for _, instanceID := range ids {
		st, err := e.GetInstance(ctx, instanceID)
		if err != nil {
			return nil, err
		}
		for _, ap := range st.Approvals {
			if decision == "" || ap.Decision == decision {
				res = append(res, ap)
			}
		}
	}
	slices.SortFunc(res, func(l, r *api.ApprovalRequest) int {
		if c := l.CreatedAt.Compare(r.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(string(l.ID), string(r.ID))
	})
	return res, nil
}

func approvalInstances(part *api.PartitionState) []api.InstanceID {
	var res []api.InstanceID
	for _, ref := range part.Approvals {
		if !slices.Contains(res, ref.InstanceID) {
			res = append(res, ref.InstanceID)
		}
	}
	return res
}

func (tx *instanceTx) resume(id api.TaskID, sig api.Signal) error {
	st := tx.Value()
	rec, ok := st.Tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if ap, ok := st.Approvals[id]; ok && ap.IsResolved() {
		return fmt.Errorf("%w: %s", api.ErrAlreadyResolved, ap.ID)
	}
	if rec.Status != api.TaskAwaitingSignal {
		return fmt.Errorf("%w: %s is %s",
			api.ErrNotAwaitingSignal, id, rec.Status)
	}
	if st.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrInstanceTerminal, tx.instanceID)
	}
	if err := tx.resumeTask(id, sig); err != nil {
		return err
	}
	return tx.evaluate()
}

// expire rejects an approval whose wait limit elapsed before a decision
func (tx *instanceTx) expire(m *expireMsg) error {
	ap, ok := tx.Value().Approvals[m.taskID]
	if !ok || ap.ID != m.approvalID || ap.IsResolved() {
		return nil
	}
	return tx.resume(m.taskID, api.Signal{
		Comment:   expiredComment,
		DecidedBy: systemDecider,
	})
}
