package api_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-flow/tessera/engine/pkg/api"
)

func validDefinition() *api.WorkflowDefinition {
	return &api.WorkflowDefinition{
		ID: "wf",
		Parameters: []*api.Parameter{
			{Name: "region", Default: "us"},
			{Name: "order", Required: true},
		},
		Tasks: []*api.TaskDefinition{
			{ID: "a", Kind: api.TaskActivity, Activity: "http"},
			{ID: "b", Kind: api.TaskApproval, DependsOn: []api.TaskID{"a"}},
		},
	}
}

func TestDefinitionValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validDefinition().Validate())
	})

	t.Run("empty id", func(t *testing.T) {
		def := validDefinition()
		def.ID = ""
		assert.ErrorIs(t, def.Validate(), api.ErrDefinitionIDEmpty)
	})

	t.Run("no tasks", func(t *testing.T) {
		def := validDefinition()
		def.Tasks = nil
		assert.ErrorIs(t, def.Validate(), api.ErrNoTasks)
	})

	t.Run("bad failure mode", func(t *testing.T) {
		def := validDefinition()
		def.FailureMode = "sometimes"
		assert.ErrorIs(t, def.Validate(), api.ErrInvalidFailureMode)
	})

	t.Run("duplicate parameter", func(t *testing.T) {
		def := validDefinition()
		def.Parameters = append(def.Parameters, &api.Parameter{Name: "region"})
		assert.ErrorIs(t, def.Validate(), api.ErrDuplicateParameter)
	})

	t.Run("missing activity", func(t *testing.T) {
		def := validDefinition()
		def.Tasks[0].Activity = ""
		assert.ErrorIs(t, def.Validate(), api.ErrActivityRequired)
	})

	t.Run("bad kind", func(t *testing.T) {
		def := validDefinition()
		def.Tasks[0].Kind = "robot"
		assert.ErrorIs(t, def.Validate(), api.ErrInvalidTaskKind)
	})

	t.Run("bad retry", func(t *testing.T) {
		def := validDefinition()
		def.Tasks[0].Retry = &api.RetryPolicy{Multiplier: 0.5}
		err := def.Validate()
		assert.ErrorIs(t, err, api.ErrInvalidMultiplier)
		assert.ErrorIs(t, err, api.ErrDefinition)
	})
}

func TestRetryPolicyValidate(t *testing.T) {
	assert.NoError(t, (&api.RetryPolicy{}).Validate())
	assert.NoError(t, (&api.RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: api.Duration(time.Second),
		MaxBackoff:     api.Duration(time.Minute),
		Multiplier:     2,
	}).Validate())

	assert.ErrorIs(t,
		(&api.RetryPolicy{MaxAttempts: -1}).Validate(),
		api.ErrInvalidMaxAttempts,
	)
	assert.ErrorIs(t,
		(&api.RetryPolicy{InitialBackoff: -1}).Validate(),
		api.ErrInvalidBackoff,
	)
	assert.ErrorIs(t,
		(&api.RetryPolicy{
			InitialBackoff: api.Duration(time.Minute),
			MaxBackoff:     api.Duration(time.Second),
		}).Validate(),
		api.ErrMaxBackoffTooSmall,
	)
}

func TestBindParameters(t *testing.T) {
	def := validDefinition()

	res, err := def.BindParameters(api.Args{"order": 42})
	require.NoError(t, err)
	assert.Equal(t, api.Args{"order": 42, "region": "us"}, res)

	_, err = def.BindParameters(api.Args{})
	assert.ErrorIs(t, err, api.ErrRequiredParameter)

	_, err = def.BindParameters(api.Args{"order": 1, "color": "red"})
	assert.ErrorIs(t, err, api.ErrUnknownParameter)

	open := &api.WorkflowDefinition{ID: "open"}
	res, err = open.BindParameters(api.Args{"anything": true})
	require.NoError(t, err)
	assert.Equal(t, api.Args{"anything": true}, res)
}

func TestEffectiveFailureMode(t *testing.T) {
	def := validDefinition()
	assert.Equal(t, api.FailFast, def.EffectiveFailureMode(""))
	assert.Equal(t, api.BestEffort, def.EffectiveFailureMode(api.BestEffort))

	def.FailureMode = api.FailFast
	assert.Equal(t, api.FailFast, def.EffectiveFailureMode(api.BestEffort))
}

func TestDefinitionEqual(t *testing.T) {
	a := validDefinition()
	b := validDefinition()
	assert.True(t, a.Equal(b))

	b.Tasks[1].DependsOn = nil
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(nil))
}

func TestTaskLookup(t *testing.T) {
	def := validDefinition()
	assert.Equal(t, []api.TaskID{"a", "b"}, def.TaskIDs())
	assert.Equal(t, "b", def.GetTask("b").DisplayName())
	assert.True(t, def.GetTask("b").IsApproval())
	assert.Nil(t, def.GetTask("z"))
}
