package archive_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"

	"github.com/tessera-flow/tessera/engine/internal/archive"
	"github.com/tessera-flow/tessera/engine/internal/assert/helpers"
	"github.com/tessera-flow/tessera/engine/internal/engine"
	"github.com/tessera-flow/tessera/engine/pkg/api"
)

type stubSource struct {
	states map[api.InstanceID]*api.WorkflowState
	mu     sync.Mutex
}

func (s *stubSource) GetInstance(
	_ context.Context, id api.InstanceID,
) (*api.WorkflowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	if !ok {
		return nil, engine.ErrInstanceNotFound
	}
	return st, nil
}

func TestPutGet(t *testing.T) {
	a := archive.New(memblob.OpenBucket(nil), "instances", &stubSource{})
	defer func() { _ = a.Close() }()
	ctx := context.Background()

	_, err := a.Get(ctx, "missing")
	assert.ErrorIs(t, err, archive.ErrNotArchived)

	st := &api.WorkflowState{
		ID:     "inst-1",
		Status: api.WorkflowFailed,
		Error:  "task a failed: boom",
	}
	require.NoError(t, a.Put(ctx, st))

	got, err := a.Get(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, api.WorkflowFailed, got.Status)
	assert.Equal(t, "task a failed: boom", got.Error)
}

func TestArchivesOnlyTerminal(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	src := &stubSource{states: map[api.InstanceID]*api.WorkflowState{
		"done":    {ID: "done", Status: api.WorkflowCompleted},
		"running": {ID: "running", Status: api.WorkflowRunning},
	}}
	a := archive.New(bucket, "arch", src)

	a.OnTransition(&api.Transition{
		InstanceID: "running",
		Kind:       api.TransitionWorkflow,
		To:         string(api.WorkflowRunning),
	})
	a.OnTransition(&api.Transition{
		InstanceID: "done",
		TaskID:     "a",
		Kind:       api.TransitionTask,
		To:         string(api.TaskSucceeded),
	})
	a.OnTransition(&api.Transition{
		InstanceID: "done",
		Kind:       api.TransitionWorkflow,
		To:         string(api.WorkflowCompleted),
	})

	ctx := context.Background()
	require.Eventually(t, func() bool {
		ok, err := bucket.Exists(ctx, "arch/done.json")
		return err == nil && ok
	}, 5*time.Second, 5*time.Millisecond)

	running, err := bucket.Exists(ctx, "arch/running.json")
	require.NoError(t, err)
	assert.False(t, running)
	require.NoError(t, a.Close())
}

func TestArchiveEngineInstances(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		bucket := memblob.OpenBucket(nil)
		a := archive.New(bucket, "instances", env.Engine)
		defer func() { _ = a.Close() }()
		env.Engine.AddListener(a)

		st, err := env.Engine.StartDefinition(context.Background(),
			helpers.NewDefinition(helpers.NewActivityTask("a")),
		)
		require.NoError(t, err)
		env.WaitForStatus(st.ID, api.WorkflowCompleted)

		var got *api.WorkflowState
		require.Eventually(t, func() bool {
			got, err = a.Get(context.Background(), st.ID)
			return err == nil
		}, 5*time.Second, 5*time.Millisecond)
		assert.Equal(t, api.WorkflowCompleted, got.Status)
		assert.Equal(t, api.TaskSucceeded, got.Tasks["a"].Status)
	})
}
