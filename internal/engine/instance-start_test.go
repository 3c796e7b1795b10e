package engine_test

import (
	"context"
	"testing"

	testify "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-flow/tessera/engine/internal/assert/helpers"
	"github.com/tessera-flow/tessera/engine/internal/engine"
	"github.com/tessera-flow/tessera/engine/internal/engine/instopt"
	"github.com/tessera-flow/tessera/engine/pkg/api"
)

func TestStartInstanceRegistered(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		def := helpers.NewDefinition(helpers.NewActivityTask("a"))
		def.Parameters = []*api.Parameter{
			{Name: "customer", Required: true},
		}
		env.Register(def)
		ctx := context.Background()

		st, err := env.Engine.StartInstance(ctx, def.ID,
			instopt.WithParameters(api.Args{"customer": "acme"}),
		)
		require.NoError(t, err)
		testify.Equal(t, api.WorkflowCreated, st.Status)
		testify.Equal(t, def.ID, st.Definition.ID)

		env.WaitForStatus(st.ID, api.WorkflowCompleted)
		calls := env.Runtime.Calls("a")
		require.Len(t, calls, 1)
		testify.Equal(t, "acme", calls[0].Parameters["customer"])
	})
}

func TestStartInstanceUnknownDefinition(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		_, err := env.Engine.StartInstance(context.Background(), "missing")
		testify.ErrorIs(t, err, engine.ErrDefinitionNotFound)
	})
}

func TestStartMissingParameter(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		def := helpers.NewDefinition(helpers.NewActivityTask("a"))
		def.Parameters = []*api.Parameter{
			{Name: "customer", Required: true},
		}

		_, err := env.Engine.StartDefinition(context.Background(), def)
		testify.ErrorIs(t, err, api.ErrRequiredParameter)
		testify.Zero(t, env.Runtime.CallCount())
	})
}

func TestStartRejectsCycle(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		def := helpers.NewDefinition(
			helpers.NewActivityTask("a", "b"),
			helpers.NewActivityTask("b", "a"),
		)

		_, err := env.Engine.StartDefinition(context.Background(), def)
		testify.Error(t, err)

		insts, err := env.Engine.ListInstances(context.Background())
		require.NoError(t, err)
		testify.Empty(t, insts)
	})
}

func TestStartDuplicateInstanceID(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		def := helpers.NewDefinition(helpers.NewActivityTask("a"))
		ctx := context.Background()

		st, err := env.Engine.StartDefinition(ctx, def, instopt.WithInstanceID("inst-1"))
		require.NoError(t, err)
		testify.Equal(t, api.InstanceID("inst-1"), st.ID)

		_, err = env.Engine.StartDefinition(ctx, def, instopt.WithInstanceID("inst-1"))
		testify.ErrorIs(t, err, engine.ErrInstanceExists)

		env.WaitForStatus("inst-1", api.WorkflowCompleted)
		testify.Len(t, env.Runtime.Calls("a"), 1)
	})
}
