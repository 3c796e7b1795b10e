package helpers

import (
	"context"
	"errors"
	"sync"

	"github.com/tessera-flow/tessera/engine/pkg/api"
)

type (
	// MockRuntime is a scriptable activity runtime for engine tests. Tasks
	// without a handler succeed with DefaultResult
	MockRuntime struct {
		handlers map[api.TaskID]Handler
		calls    []*api.ActivityRequest
		mu       sync.Mutex
	}

	// Handler produces the outcome of one activity attempt
	Handler func(context.Context, *api.ActivityRequest) (api.Args, error)
)

var (
	// DefaultResult is returned for tasks without a scripted handler
	DefaultResult = api.Args{"ok": true}

	ErrMockFailure = errors.New("mock activity failure")
)

// NewMockRuntime creates a runtime where every task succeeds
func NewMockRuntime() *MockRuntime {
	return &MockRuntime{
		handlers: map[api.TaskID]Handler{},
	}
}

// Invoke records the request and runs the task's handler
func (m *MockRuntime) Invoke(
	ctx context.Context, req *api.ActivityRequest,
) (api.Args, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	h, ok := m.handlers[req.TaskID]
	m.mu.Unlock()

	if !ok {
		return DefaultResult, nil
	}
	return h(ctx, req)
}

// SetHandler scripts the outcome of every attempt of a task
func (m *MockRuntime) SetHandler(id api.TaskID, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[id] = h
}

// SetResponse makes a task succeed with the given result
func (m *MockRuntime) SetResponse(id api.TaskID, result api.Args) {
	m.SetHandler(id,
		func(context.Context, *api.ActivityRequest) (api.Args, error) {
			return result, nil
		},
	)
}

// SetError makes every attempt of a task fail with err
func (m *MockRuntime) SetError(id api.TaskID, err error) {
	m.SetHandler(id,
		func(context.Context, *api.ActivityRequest) (api.Args, error) {
			return nil, err
		},
	)
}

// FailTimes makes the first n attempts of a task fail with a retryable
// error and later attempts succeed
func (m *MockRuntime) FailTimes(id api.TaskID, n int) {
	m.SetHandler(id,
		func(_ context.Context, req *api.ActivityRequest) (api.Args, error) {
			if req.Attempt <= n {
				return nil, api.RetryableError(ErrMockFailure)
			}
			return api.Args{"attempt": req.Attempt}, nil
		},
	)
}

// Block makes a task wait until release is closed or its context ends
func (m *MockRuntime) Block(id api.TaskID, release <-chan struct{}) {
	m.SetHandler(id,
		func(ctx context.Context, _ *api.ActivityRequest) (api.Args, error) {
			select {
			case <-release:
				return DefaultResult, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	)
}

// Calls returns the recorded requests for a task, in invocation order
func (m *MockRuntime) Calls(id api.TaskID) []*api.ActivityRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*api.ActivityRequest
	for _, req := range m.calls {
		if req.TaskID == id {
			res = append(res, req)
		}
	}
	return res
}

// CallCount returns how many attempts were made across all tasks
func (m *MockRuntime) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
