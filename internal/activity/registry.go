package activity

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/tessera-flow/tessera/engine/internal/engine"
	"github.com/tessera-flow/tessera/engine/pkg/api"
)

type (
	// Registry maps activity kinds to their implementations and serves as
	// the engine's Runtime
	Registry struct {
		kinds map[string]Activity
		mu    sync.RWMutex
	}

	// Activity performs one attempt of a task. Returned errors that are not
	// api.ActivityErrors are treated as retryable
	Activity interface {
		Invoke(ctx context.Context, req *api.ActivityRequest) (api.Args, error)
	}

	// Func adapts a function to the Activity interface
	Func func(ctx context.Context, req *api.ActivityRequest) (api.Args, error)
)

const (
	KindHTTP = "http"
	KindLua  = "lua"

	legacyKindHTTP   = "http_request"
	legacyKindPython = "python_function"
)

var ErrUnknownActivity = errors.New("unknown activity kind")

var _ engine.Runtime = (*Registry)(nil)

// NewRegistry creates a registry with the built-in http and lua kinds. The
// legacy kind names used by older definitions resolve to the same
// implementations
func NewRegistry() *Registry {
	r := &Registry{
		kinds: map[string]Activity{},
	}
	h := NewHTTPActivity()
	l := NewLuaActivity()
	r.Register(KindHTTP, h)
	r.Register(legacyKindHTTP, h)
	r.Register(KindLua, l)
	r.Register(legacyKindPython, l)
	return r
}

// Register installs an activity under the given kind, replacing any
// previous registration
func (r *Registry) Register(kind string, a Activity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[kind] = a
}

// Get returns the activity registered for the kind
func (r *Registry) Get(kind string) (Activity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActivity, kind)
	}
	return a, nil
}

// Kinds returns the registered kind names in sorted order
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]string, 0, len(r.kinds))
	for k := range r.kinds {
		res = append(res, k)
	}
	slices.Sort(res)
	return res
}

// Invoke dispatches the request to the activity for its kind. An unknown
// kind can never succeed, so it is reported as a permanent failure
func (r *Registry) Invoke(
	ctx context.Context, req *api.ActivityRequest,
) (api.Args, error) {
	a, err := r.Get(req.Activity)
	if err != nil {
		return nil, api.PermanentError(err)
	}
	res, err := a.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return api.Args{}, nil
	}
	return res, nil
}

// Invoke calls the wrapped function
func (f Func) Invoke(
	ctx context.Context, req *api.ActivityRequest,
) (api.Args, error) {
	return f(ctx, req)
}
