package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tessera-flow/tessera/engine/pkg/api"
	"github.com/tessera-flow/tessera/engine/pkg/log"
)

type (
	// instanceActor is the single driver of one instance. Every change to
	// the instance's records is made by its goroutine, one message at a
	// time, so no two attempts of a task are ever decided concurrently
	instanceActor struct {
		*Engine
		id     api.InstanceID
		wake   chan struct{}
		mu     sync.Mutex
		queue  []message
		closed bool
	}

	message any

	kickMsg    struct{}
	recoverMsg struct{}

	resultMsg struct {
		result  api.Args
		err     error
		taskID  api.TaskID
		attempt int
	}

	retryDueMsg struct {
		taskID  api.TaskID
		attempt int
	}

	expireMsg struct {
		taskID     api.TaskID
		approvalID api.ApprovalID
	}

	resumeMsg struct {
		reply  chan error
		signal api.Signal
		taskID api.TaskID
	}

	cancelMsg struct {
		reply chan error
	}
)

// post delivers msg to the instance's driver, starting one if needed
func (e *Engine) post(id api.InstanceID, msg message) error {
	for {
		a, err := e.actorFor(id)
		if err != nil {
			return err
		}
		if a.send(msg) {
			return nil
		}
		e.instances.CompareAndDelete(id, a)
	}
}

func (e *Engine) actorFor(id api.InstanceID) (*instanceActor, error) {
	if a, ok := e.instances.Load(id); ok {
		return a.(*instanceActor), nil
	}
	a := &instanceActor{
		Engine: e,
		id:     id,
		wake:   make(chan struct{}, 1),
	}
	res, loaded := e.instances.LoadOrStore(id, a)
	if loaded {
		return res.(*instanceActor), nil
	}
	if !e.track(a.run) {
		e.instances.CompareAndDelete(id, a)
		return nil, ErrEngineStopped
	}
	return a, nil
}

// track runs fn on a goroutine that Stop waits for. It reports false once
// the engine is stopping
func (e *Engine) track(fn func()) bool {
	e.lifecycleMu.RLock()
	defer e.lifecycleMu.RUnlock()
	if e.ctx.Err() != nil {
		return false
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
	return true
}

func (a *instanceActor) send(msg message) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	a.queue = append(a.queue, msg)
	select {
	case a.wake <- struct{}{}:
	default:
	}
	return true
}

func (a *instanceActor) next() (message, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.queue) == 0 {
		return nil, false
	}
	msg := a.queue[0]
	a.queue[0] = nil
	a.queue = a.queue[1:]
	return msg, true
}

func (a *instanceActor) close() []message {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	res := a.queue
	a.queue = nil
	return res
}

func (a *instanceActor) run() {
	defer a.instances.CompareAndDelete(a.id, a)
	for {
		done := false
		for msg, ok := a.next(); ok; msg, ok = a.next() {
			done = a.handle(msg) || done
		}
		if done {
			// anything that raced in is answered against the final state
			for _, msg := range a.close() {
				a.handle(msg)
			}
			return
		}
		select {
		case <-a.wake:
		case <-a.ctx.Done():
			for _, msg := range a.close() {
				reply(msg, ErrEngineStopped)
			}
			return
		}
	}
}

// handle processes one message and reports whether the instance no longer
// needs a driver
func (a *instanceActor) handle(msg message) bool {
	var fn func(*instanceTx) error
	switch m := msg.(type) {
	case *kickMsg:
		fn = (*instanceTx).evaluate
	case *recoverMsg:
		fn = (*instanceTx).recoverTasks
	case *resultMsg:
		fn = func(tx *instanceTx) error { return tx.completeAttempt(m) }
	case *retryDueMsg:
		fn = func(tx *instanceTx) error { return tx.retryDue(m) }
	case *expireMsg:
		fn = func(tx *instanceTx) error { return tx.expire(m) }
	case *resumeMsg:
		fn = func(tx *instanceTx) error {
			return tx.resume(m.taskID, m.signal)
		}
	case *cancelMsg:
		fn = (*instanceTx).cancel
	default:
		slog.Error("Unknown instance message", log.InstanceID(a.id))
		return false
	}

	// a rejected message rolls back, so the driver's fate follows the
	// state the message was checked against
	var ended bool
	st, err := a.instanceTx(a.ctx, a.id, func(tx *instanceTx) error {
		if tx.Value().ID == "" {
			return fmt.Errorf("%w: %s", ErrInstanceNotFound, a.id)
		}
		ended = tx.Value().Status.IsTerminal()
		return fn(tx)
	})
	reply(msg, err)
	switch {
	case err == nil:
		return st.ID == "" || st.Status.IsTerminal()
	case errors.Is(err, ErrInstanceNotFound):
		return true
	case errors.Is(err, ErrPolicyViolation):
		return a.abort(err)
	case errors.Is(err, api.ErrSignalRejected),
		errors.Is(err, ErrInstanceTerminal),
		errors.Is(err, ErrTaskNotFound):
		return ended
	default:
		slog.Error("Instance step failed",
			log.InstanceID(a.id),
			log.Error(err))
		return false
	}
}

// abort fails the instance with an internal error marker after the driver
// detected a broken invariant
func (a *instanceActor) abort(cause error) bool {
	slog.Error("Aborting instance",
		log.InstanceID(a.id),
		log.Error(cause))
	st, err := a.instanceTx(a.ctx, a.id, func(tx *instanceTx) error {
		if tx.Value().Status.IsTerminal() {
			return nil
		}
		return tx.fail(cause.Error(), nil, true)
	})
	if err != nil {
		slog.Error("Failed to abort instance",
			log.InstanceID(a.id),
			log.Error(err))
		return false
	}
	return st.Status.IsTerminal()
}

func reply(msg message, err error) {
	switch m := msg.(type) {
	case *resumeMsg:
		m.reply <- err
	case *cancelMsg:
		m.reply <- err
	}
}
