package assert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tessera-flow/tessera/engine/internal/config"
	"github.com/tessera-flow/tessera/engine/pkg/api"
)

type mockGetter struct {
	states map[api.InstanceID]*api.WorkflowState
	err    error
}

func (g *mockGetter) GetInstance(
	_ context.Context, id api.InstanceID,
) (*api.WorkflowState, error) {
	if g.err != nil {
		return nil, g.err
	}
	if st, ok := g.states[id]; ok {
		return st, nil
	}
	return nil, errors.New("not found")
}

func TestNew(t *testing.T) {
	wrapper := New(t)

	if wrapper.T != t {
		t.Error("Wrapper.T should be set to the testing.T instance")
	}
	if wrapper.Assertions == nil {
		t.Error("Wrapper.Assertions should be initialized")
	}
	if wrapper.Require == nil {
		t.Error("Wrapper.Require should be initialized")
	}
}

func TestDefinitionValid(t *testing.T) {
	w := New(t)
	w.DefinitionValid(&api.WorkflowDefinition{
		ID: "wf",
		Tasks: []*api.TaskDefinition{
			{ID: "a", Kind: api.TaskActivity, Activity: "lua"},
			{ID: "b", Kind: api.TaskApproval, DependsOn: []api.TaskID{"a"}},
		},
	})
}

func TestDefinitionInvalid(t *testing.T) {
	tests := []struct {
		name     string
		def      *api.WorkflowDefinition
		contains string
	}{
		{
			name:     "missing id",
			def:      &api.WorkflowDefinition{},
			contains: "id empty",
		},
		{
			name:     "no tasks",
			def:      &api.WorkflowDefinition{ID: "wf"},
			contains: "no tasks",
		},
		{
			name: "activity missing",
			def: &api.WorkflowDefinition{
				ID:    "wf",
				Tasks: []*api.TaskDefinition{{ID: "a"}},
			},
			contains: "activity required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New(t)
			err := w.DefinitionInvalid(tt.def, tt.contains)
			w.ErrorIs(err, api.ErrDefinition)
		})
	}
}

func TestTaskStatuses(t *testing.T) {
	st := &api.WorkflowState{
		Status: api.WorkflowRunning,
		Tasks: map[api.TaskID]*api.TaskRecord{
			"a": {Status: api.TaskSucceeded},
			"b": {Status: api.TaskRunning},
		},
	}

	w := New(t)
	w.InstanceStatus(st, api.WorkflowRunning)
	w.TaskStatuses(st, map[api.TaskID]api.TaskStatus{
		"a": api.TaskSucceeded,
		"b": api.TaskRunning,
	})
}

func TestEventuallyInstanceStatus(t *testing.T) {
	get := &mockGetter{
		states: map[api.InstanceID]*api.WorkflowState{
			"i-1": {ID: "i-1", Status: api.WorkflowCompleted},
		},
	}

	w := New(t)
	st := w.EventuallyInstanceStatus(
		get, "i-1", api.WorkflowCompleted, time.Second,
	)
	w.NotNil(st)
	w.Equal(api.InstanceID("i-1"), st.ID)
}

func TestEventually(t *testing.T) {
	w := New(t)
	calls := 0
	w.Eventually(func() bool {
		calls++
		return calls >= 3
	}, time.Second, "condition should pass")
	w.Equal(3, calls)
}

func TestEventuallyWithError(t *testing.T) {
	w := New(t)
	calls := 0
	w.EventuallyWithError(func() error {
		calls++
		if calls < 2 {
			return errors.New("not yet")
		}
		return nil
	}, time.Second, "condition should pass")
	w.Equal(2, calls)
}

func TestConfigValid(t *testing.T) {
	w := New(t)
	w.ConfigValid(config.NewDefaultConfig())

	cfg := config.NewDefaultConfig()
	cfg.APIPort = 0
	w.ConfigInvalid(cfg, "invalid API port")
}
