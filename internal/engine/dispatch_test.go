package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	testify "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-flow/tessera/engine/internal/assert/helpers"
	"github.com/tessera-flow/tessera/engine/pkg/api"
)

func TestAttemptTimeoutRetries(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		env.Runtime.SetHandler("a",
			func(ctx context.Context, req *api.ActivityRequest) (api.Args, error) {
				if req.Attempt == 1 {
					<-ctx.Done()
					return nil, ctx.Err()
				}
				return api.Args{"ok": true}, nil
			},
		)
		task := helpers.NewActivityTask("a")
		task.Timeout = api.Duration(20 * time.Millisecond)

		st, err := env.Engine.StartDefinition(
			context.Background(), helpers.NewDefinition(task),
		)
		require.NoError(t, err)

		final := env.WaitForStatus(st.ID, api.WorkflowCompleted)
		testify.Equal(t, 2, final.Tasks["a"].Attempts)
	})
}

func TestAttemptTimeoutNonRetryable(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		env.Runtime.SetHandler("a",
			func(ctx context.Context, _ *api.ActivityRequest) (api.Args, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		)
		task := helpers.WithRetry(helpers.NewActivityTask("a"),
			api.RetryPolicy{NonRetryableTimeout: true},
		)
		task.Timeout = api.Duration(20 * time.Millisecond)

		st, err := env.Engine.StartDefinition(
			context.Background(), helpers.NewDefinition(task),
		)
		require.NoError(t, err)

		final := env.WaitForStatus(st.ID, api.WorkflowFailed)
		rec := final.Tasks["a"]
		testify.Equal(t, api.TaskFailed, rec.Status)
		testify.Equal(t, 1, rec.Attempts)
		testify.Contains(t, rec.Error, "timed out")
	})
}

func TestPermanentErrorSkipsRetry(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		env.Runtime.SetError("a",
			api.PermanentError(errors.New("bad request")),
		)

		st, err := env.Engine.StartDefinition(context.Background(),
			helpers.NewDefinition(helpers.NewActivityTask("a")),
		)
		require.NoError(t, err)

		final := env.WaitForStatus(st.ID, api.WorkflowFailed)
		testify.Equal(t, 1, final.Tasks["a"].Attempts)
		testify.Equal(t, "bad request", final.Tasks["a"].Error)
		testify.Equal(t, "task a failed: bad request", final.Error)
		testify.Len(t, env.Runtime.Calls("a"), 1)
	})
}

func TestActivityPanicFailsTask(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		env.Runtime.SetHandler("a",
			func(context.Context, *api.ActivityRequest) (api.Args, error) {
				panic("boom")
			},
		)

		st, err := env.Engine.StartDefinition(context.Background(),
			helpers.NewDefinition(helpers.NewActivityTask("a")),
		)
		require.NoError(t, err)

		final := env.WaitForStatus(st.ID, api.WorkflowFailed)
		testify.Contains(t, final.Tasks["a"].Error, "activity panicked")
		testify.Len(t, env.Runtime.Calls("a"), 1)
	})
}

func TestActivityRequestContents(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		env.Runtime.SetResponse("a", api.Args{"value": "from-a"})
		def := helpers.NewDefinition(
			helpers.NewActivityTask("a"),
			helpers.NewActivityTask("b", "a"),
		)
		def.Tasks[1].Config = api.Config{"url": "http://example.com"}
		def.Parameters = []*api.Parameter{
			{Name: "region", Default: "eu"},
		}

		st, err := env.Engine.StartDefinition(context.Background(), def)
		require.NoError(t, err)
		env.WaitForStatus(st.ID, api.WorkflowCompleted)

		calls := env.Runtime.Calls("b")
		require.Len(t, calls, 1)
		req := calls[0]
		testify.Equal(t, st.ID, req.InstanceID)
		testify.Equal(t, api.TaskID("b"), req.TaskID)
		testify.Equal(t, "mock", req.Activity)
		testify.Equal(t, 1, req.Attempt)
		testify.Equal(t, api.Args{"region": "eu"}, req.Parameters)
		testify.Equal(t, api.Config{"url": "http://example.com"}, req.Config)
		testify.Equal(t, api.Args{"value": "from-a"}, req.Inputs["a"])
	})
}
