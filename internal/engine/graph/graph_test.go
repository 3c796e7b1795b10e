package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-flow/tessera/engine/internal/engine/graph"
	"github.com/tessera-flow/tessera/engine/pkg/api"
)

func task(id api.TaskID, deps ...api.TaskID) *api.TaskDefinition {
	return &api.TaskDefinition{
		ID:        id,
		Kind:      api.TaskActivity,
		Activity:  "noop",
		DependsOn: deps,
	}
}

func definition(tasks ...*api.TaskDefinition) *api.WorkflowDefinition {
	return &api.WorkflowDefinition{ID: "wf", Tasks: tasks}
}

func diamond() *api.WorkflowDefinition {
	return definition(
		task("a"),
		task("b", "a"),
		task("c", "a"),
		task("d", "b", "c"),
	)
}

func records(pairs map[api.TaskID]api.TaskStatus) graph.Records {
	res := graph.Records{}
	for id, st := range pairs {
		res[id] = &api.TaskRecord{Status: st}
	}
	return res
}

func TestBuild(t *testing.T) {
	g, err := graph.Build(diamond())
	require.NoError(t, err)

	assert.Equal(t, []api.TaskID{"a", "b", "c", "d"}, g.Order())
	assert.Equal(t, []api.TaskID{"a"}, g.Roots())
	assert.Equal(t, []api.TaskID{"b", "c"}, g.Dependencies("d"))
	assert.Equal(t, []api.TaskID{"b", "c"}, g.Dependents("a"))
	assert.Equal(t, api.TaskID("c"), g.Task("c").ID)
	assert.Nil(t, g.Task("zz"))
}

func TestBuildErrors(t *testing.T) {
	t.Run("cycle", func(t *testing.T) {
		_, err := graph.Build(definition(
			task("a", "c"),
			task("b", "a"),
			task("c", "b"),
		))
		assert.ErrorIs(t, err, graph.ErrCycleDetected)
		assert.ErrorIs(t, err, api.ErrDefinition)
		assert.Contains(t, err.Error(), "a -> c -> b -> a")
	})

	t.Run("unknown dependency", func(t *testing.T) {
		_, err := graph.Build(definition(task("a", "ghost")))
		assert.ErrorIs(t, err, graph.ErrUnknownDependency)
		assert.Contains(t, err.Error(), "ghost")
	})

	t.Run("self dependency", func(t *testing.T) {
		_, err := graph.Build(definition(task("a", "a")))
		assert.ErrorIs(t, err, graph.ErrSelfDependency)
	})

	t.Run("duplicate task", func(t *testing.T) {
		_, err := graph.Build(definition(task("a"), task("a")))
		assert.ErrorIs(t, err, graph.ErrDuplicateTask)
	})

	t.Run("invalid definition", func(t *testing.T) {
		_, err := graph.Build(&api.WorkflowDefinition{ID: "wf"})
		assert.ErrorIs(t, err, api.ErrNoTasks)
	})
}

func TestDuplicateDependencyCollapsed(t *testing.T) {
	g, err := graph.Build(definition(task("a"), task("b", "a", "a")))
	require.NoError(t, err)
	assert.Equal(t, []api.TaskID{"a"}, g.Dependencies("b"))
}

func TestReadySet(t *testing.T) {
	g, err := graph.Build(diamond())
	require.NoError(t, err)

	assert.Equal(t, []api.TaskID{"a"}, g.ReadySet(graph.Records{}))

	recs := records(map[api.TaskID]api.TaskStatus{
		"a": api.TaskSucceeded,
	})
	assert.Equal(t, []api.TaskID{"b", "c"}, g.ReadySet(recs))

	recs = records(map[api.TaskID]api.TaskStatus{
		"a": api.TaskSucceeded,
		"b": api.TaskSucceeded,
		"c": api.TaskRunning,
	})
	assert.Empty(t, g.ReadySet(recs))

	recs["c"] = &api.TaskRecord{Status: api.TaskSucceeded}
	assert.Equal(t, []api.TaskID{"d"}, g.ReadySet(recs))
}

func TestReadySetSkipsNonPending(t *testing.T) {
	g, err := graph.Build(definition(task("a"), task("b")))
	require.NoError(t, err)

	recs := records(map[api.TaskID]api.TaskStatus{
		"a": api.TaskAwaitingRetry,
		"b": api.TaskAwaitingSignal,
	})
	assert.Empty(t, g.ReadySet(recs))
}

func TestIsTerminal(t *testing.T) {
	g, err := graph.Build(diamond())
	require.NoError(t, err)

	recs := records(map[api.TaskID]api.TaskStatus{
		"a": api.TaskSucceeded,
		"b": api.TaskFailed,
		"c": api.TaskRunning,
	})
	assert.True(t, g.IsTerminal(recs, api.FailFast))
	assert.False(t, g.IsTerminal(recs, api.BestEffort))

	recs = records(map[api.TaskID]api.TaskStatus{
		"a": api.TaskSucceeded,
		"b": api.TaskFailed,
		"c": api.TaskSucceeded,
		"d": api.TaskCancelled,
	})
	assert.True(t, g.IsTerminal(recs, api.BestEffort))

	assert.False(t, g.IsTerminal(graph.Records{}, api.FailFast))
}

func TestBlocked(t *testing.T) {
	g, err := graph.Build(definition(
		task("a"),
		task("b", "a"),
		task("c", "b"),
		task("d"),
	))
	require.NoError(t, err)

	recs := records(map[api.TaskID]api.TaskStatus{
		"a": api.TaskFailed,
		"d": api.TaskRunning,
	})
	assert.Equal(t, []api.TaskID{"b", "c"}, g.Blocked(recs))

	recs = records(map[api.TaskID]api.TaskStatus{
		"a": api.TaskSucceeded,
	})
	assert.Empty(t, g.Blocked(recs))
}
