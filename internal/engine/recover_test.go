package engine_test

import (
	"context"
	"testing"
	"time"

	testify "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-flow/tessera/engine/internal/assert/helpers"
	"github.com/tessera-flow/tessera/engine/pkg/api"
)

func TestRecoverRunningTask(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		release := make(chan struct{})
		env.Runtime.Block("b", release)

		def := helpers.NewDefinition(
			helpers.NewActivityTask("a"),
			helpers.NewActivityTask("b", "a"),
			helpers.NewActivityTask("c", "b"),
		)
		ctx := context.Background()

		st, err := env.Engine.StartDefinition(ctx, def)
		require.NoError(t, err)
		env.WaitForTask(st.ID, "b", api.TaskRunning)

		_ = env.Engine.Stop()
		close(release)

		env.Runtime.SetResponse("b", api.Args{"recovered": true})
		env.Engine = env.NewEngineInstance()
		env.Start()

		final := env.WaitForStatus(st.ID, api.WorkflowCompleted)
		testify.Equal(t, 1, final.Tasks["b"].Attempts)
		testify.Equal(t, api.Args{"recovered": true}, final.Tasks["b"].Result)
		testify.Len(t, env.Runtime.Calls("a"), 1)

		calls := env.Runtime.Calls("b")
		require.Len(t, calls, 2)
		testify.Equal(t, calls[0].Attempt, calls[1].Attempt)
	})
}

func TestRecoverAwaitingApproval(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		def := helpers.NewDefinition(
			helpers.NewApprovalTask("approve"),
			helpers.NewActivityTask("after", "approve"),
		)
		ctx := context.Background()

		st, err := env.Engine.StartDefinition(ctx, def)
		require.NoError(t, err)
		env.WaitForStatus(st.ID, api.WorkflowPaused)

		_ = env.Engine.Stop()
		env.Engine = env.NewEngineInstance()
		env.Start()

		err = env.Engine.Resume(ctx, st.ID, "approve", api.Signal{
			Approved:  true,
			DecidedBy: "ops",
		})
		require.NoError(t, err)

		final := env.WaitForStatus(st.ID, api.WorkflowCompleted)
		testify.Equal(t, "ops", final.Approvals["approve"].DecidedBy)
		testify.Len(t, env.Runtime.Calls("after"), 1)
	})
}

func TestRecoverSkipsTerminalInstances(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		ctx := context.Background()
		st, err := env.Engine.StartDefinition(ctx,
			helpers.NewDefinition(helpers.NewActivityTask("a")),
		)
		require.NoError(t, err)
		env.WaitForStatus(st.ID, api.WorkflowCompleted)

		_ = env.Engine.Stop()
		env.Engine = env.NewEngineInstance()
		env.Start()

		require.Eventually(t, func() bool {
			part, err := env.Engine.GetPartitionState(ctx)
			return err == nil && len(part.Active) == 0
		}, 5*time.Second, 5*time.Millisecond)
		testify.Len(t, env.Runtime.Calls("a"), 1)
	})
}
