package engine

import (
	"context"
	"fmt"

	"github.com/tessera-flow/tessera/engine/pkg/api"
)

// Cancel stops an instance. Every task that has not finished is marked
// cancelled, and the tasks that were executing are recorded as in flight.
// Their results are discarded when they arrive
func (e *Engine) Cancel(ctx context.Context, id api.InstanceID) error {
	res := make(chan error, 1)
	if err := e.post(id, &cancelMsg{reply: res}); err != nil {
		return err
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (tx *instanceTx) cancel() error {
	st := tx.Value()
	if st.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s",
			ErrInstanceTerminal, tx.instanceID, st.Status)
	}
	inFlight := st.TasksWithStatus(api.TaskRunning)
	for _, id := range tx.graph.Order() {
		if st.Tasks[id].Status.IsTerminal() {
			continue
		}
		if err := tx.cancelTask(id); err != nil {
			return err
		}
	}
	return tx.cancelInstance(inFlight)
}
