package engine_test

import (
	"context"
	"sync"
	"testing"

	testify "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-flow/tessera/engine/internal/assert/helpers"
	"github.com/tessera-flow/tessera/engine/internal/assert/wait"
	"github.com/tessera-flow/tessera/engine/internal/engine"
	"github.com/tessera-flow/tessera/engine/pkg/api"
)

func TestListenerPanicIsContained(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		var mu sync.Mutex
		var seen []string
		env.Engine.AddListener(engine.ListenerFunc(func(*api.Transition) {
			panic("listener failure")
		}))
		env.Engine.AddListener(engine.ListenerFunc(func(t *api.Transition) {
			if t.IsWorkflow() {
				mu.Lock()
				seen = append(seen, t.To)
				mu.Unlock()
			}
		}))

		st, err := env.Engine.StartDefinition(context.Background(),
			helpers.NewDefinition(helpers.NewActivityTask("a")),
		)
		require.NoError(t, err)
		env.WaitForStatus(st.ID, api.WorkflowCompleted)

		mu.Lock()
		defer mu.Unlock()
		testify.Equal(t, []string{
			string(api.WorkflowCreated),
			string(api.WorkflowRunning),
			string(api.WorkflowCompleted),
		}, seen)
	})
}

func TestTransitionsCarryIdentity(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		def := helpers.NewDefinition(helpers.NewActivityTask("a"))
		st, err := env.Engine.StartDefinition(context.Background(), def)
		require.NoError(t, err)
		env.WaitForStatus(st.ID, api.WorkflowCompleted)

		trs := env.Recorder.Transitions(wait.Any())
		require.NotEmpty(t, trs)
		for _, tr := range trs {
			testify.Equal(t, st.ID, tr.InstanceID)
			testify.Equal(t, def.ID, tr.WorkflowID)
			testify.False(t, tr.Timestamp.IsZero())
			if !tr.IsWorkflow() {
				testify.Equal(t, api.TaskID("a"), tr.TaskID)
			}
		}
	})
}
