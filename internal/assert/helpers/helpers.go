package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kode4food/timebox"
	"github.com/stretchr/testify/require"

	"github.com/tessera-flow/tessera/engine/internal/assert/wait"
	"github.com/tessera-flow/tessera/engine/internal/config"
	"github.com/tessera-flow/tessera/engine/internal/engine"
	"github.com/tessera-flow/tessera/engine/pkg/api"
)

// TestEngineEnv holds all the components needed for engine testing
type TestEngineEnv struct {
	T              *testing.T
	Engine         *engine.Engine
	Redis          *miniredis.Miniredis
	Runtime        *MockRuntime
	Config         *config.Config
	Recorder       *wait.Recorder
	Cleanup        func()
	timebox        *timebox.Timebox
	catalogStore   *timebox.Store
	partitionStore *timebox.Store
	workflowStore  *timebox.Store
}

const (
	DefaultTestTimeout  = 5 * time.Second
	DefaultPollInterval = 5 * time.Millisecond
)

// NewTestConfig creates a default configuration with debug logging and
// short retry backoffs
func NewTestConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.LogLevel = "debug"
	cfg.Retry = api.RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: api.Duration(5 * time.Millisecond),
		MaxBackoff:     api.Duration(50 * time.Millisecond),
		Multiplier:     2,
	}
	cfg.TaskTimeout = 5 * time.Second
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

// NewTestEngine creates a test engine backed by miniredis and a mock
// activity runtime. The engine is not started
func NewTestEngine(t *testing.T, opts ...engine.Option) *TestEngineEnv {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)

	tbCfg := timebox.DefaultConfig()
	tbCfg.Workers = false
	tb, err := timebox.NewTimebox(tbCfg)
	require.NoError(t, err)

	cfg := NewTestConfig()
	env := &TestEngineEnv{
		T:        t,
		Redis:    server,
		Runtime:  NewMockRuntime(),
		Config:   cfg,
		Recorder: wait.NewRecorder(),
		timebox:  tb,
	}

	env.catalogStore = env.newStore(cfg.CatalogStore, "test-catalog")
	env.partitionStore = env.newStore(cfg.PartitionStore, "test-partition")
	env.workflowStore = env.newStore(cfg.WorkflowStore, "test-workflow")

	env.Engine = env.NewEngineInstance(opts...)
	env.Cleanup = func() {
		_ = env.Engine.Stop()
		env.Recorder.Close()
		_ = tb.Close()
		server.Close()
	}
	return env
}

// WithTestEnv creates a test environment, runs fn, and cleans up
func WithTestEnv(t *testing.T, fn func(*TestEngineEnv)) {
	t.Helper()
	env := NewTestEngine(t)
	defer env.Cleanup()
	fn(env)
}

// NewEngineInstance creates another engine over the same stores, runtime,
// and recorder. Used to simulate a process restart
func (e *TestEngineEnv) NewEngineInstance(
	opts ...engine.Option,
) *engine.Engine {
	opts = append([]engine.Option{engine.WithListener(e.Recorder)}, opts...)
	return engine.New(
		e.catalogStore, e.partitionStore, e.workflowStore,
		e.Runtime, e.Config, opts...,
	)
}

// Start starts the engine, failing the test on error
func (e *TestEngineEnv) Start() {
	e.T.Helper()
	require.NoError(e.T, e.Engine.Start())
}

// Register records a definition in the catalog, failing the test on error
func (e *TestEngineEnv) Register(def *api.WorkflowDefinition) {
	e.T.Helper()
	require.NoError(e.T, e.Engine.RegisterDefinition(context.Background(), def))
}

// WaitForStatus polls until the instance reaches the status and returns
// its state
func (e *TestEngineEnv) WaitForStatus(
	id api.InstanceID, status api.WorkflowStatus,
) *api.WorkflowState {
	e.T.Helper()
	var last *api.WorkflowState
	require.Eventually(e.T, func() bool {
		st, err := e.Engine.GetInstance(context.Background(), id)
		if err != nil {
			return false
		}
		last = st
		return st.Status == status
	}, DefaultTestTimeout, DefaultPollInterval,
		"instance %s never reached %s", id, status)
	return last
}

// WaitForTask polls until a task reaches the status and returns the
// instance state
func (e *TestEngineEnv) WaitForTask(
	id api.InstanceID, taskID api.TaskID, status api.TaskStatus,
) *api.WorkflowState {
	e.T.Helper()
	var last *api.WorkflowState
	require.Eventually(e.T, func() bool {
		st, err := e.Engine.GetInstance(context.Background(), id)
		if err != nil {
			return false
		}
		last = st
		rec, ok := st.Tasks[taskID]
		return ok && rec.Status == status
	}, DefaultTestTimeout, DefaultPollInterval,
		"task %s of %s never reached %s", taskID, id, status)
	return last
}

func (e *TestEngineEnv) newStore(
	base timebox.StoreConfig, prefix string,
) *timebox.Store {
	e.T.Helper()
	cfg := base
	cfg.Addr = e.Redis.Addr()
	cfg.Prefix = prefix
	store, err := e.timebox.NewStore(cfg)
	require.NoError(e.T, err)
	return store
}

// WithStartedEnv creates a test environment with a running engine, runs
// fn, and cleans up
func WithStartedEnv(t *testing.T, fn func(*TestEngineEnv)) {
	t.Helper()
	env := NewTestEngine(t)
	defer env.Cleanup()
	env.Start()
	fn(env)
}
