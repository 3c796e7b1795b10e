package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kode4food/timebox"

	"github.com/tessera-flow/tessera/engine/internal/config"
	"github.com/tessera-flow/tessera/engine/internal/engine/event"
	"github.com/tessera-flow/tessera/engine/internal/engine/graph"
	"github.com/tessera-flow/tessera/engine/internal/engine/policy"
	"github.com/tessera-flow/tessera/engine/internal/engine/scheduler"
	"github.com/tessera-flow/tessera/engine/pkg/api"
	"github.com/tessera-flow/tessera/engine/pkg/events"
)

type (
	// Engine executes workflow instances against an activity runtime
	Engine struct {
		ctx           context.Context
		cancel        context.CancelFunc
		runtime       Runtime
		config        *config.Config
		catalogExec   *CatalogExecutor
		partExec      *PartitionExecutor
		instanceExec  *InstanceExecutor
		scheduler     *scheduler.Scheduler
		partQueue     *event.Queue
		clock         Clock
		makeTimer     TimerConstructor
		listeners     []Listener
		listenerMu    sync.RWMutex
		instances     sync.Map // map[api.InstanceID]*instanceActor
		wg            sync.WaitGroup
		lifecycleMu   sync.RWMutex
		startOnce     sync.Once
		stopOnce      sync.Once
		partBatchSize int
	}

	// Runtime performs the actual work of ordinary tasks. Implementations
	// must tolerate being invoked more than once for the same task
	Runtime interface {
		Invoke(ctx context.Context, req *api.ActivityRequest) (api.Args, error)
	}

	// RuntimeFunc adapts a function to the Runtime interface
	RuntimeFunc func(
		ctx context.Context, req *api.ActivityRequest,
	) (api.Args, error)

	// Option configures an Engine at construction
	Option func(*Engine)

	// CatalogExecutor manages catalog state persistence
	CatalogExecutor = timebox.Executor[*api.CatalogState]

	// CatalogAggregator aggregates catalog state from events
	CatalogAggregator = timebox.Aggregator[*api.CatalogState]

	// PartitionExecutor manages partition state persistence
	PartitionExecutor = timebox.Executor[*api.PartitionState]

	// PartitionAggregator aggregates partition state from events
	PartitionAggregator = timebox.Aggregator[*api.PartitionState]

	// InstanceExecutor manages workflow instance persistence
	InstanceExecutor = timebox.Executor[*api.WorkflowState]

	// InstanceAggregator aggregates workflow instance state from events
	InstanceAggregator = timebox.Aggregator[*api.WorkflowState]
)

const defaultPartitionBatchSize = 64

var (
	ErrShutdownTimeout     = errors.New("shutdown timeout exceeded")
	ErrEngineStopped       = errors.New("engine stopped")
	ErrDefinitionNotFound  = errors.New("workflow definition not found")
	ErrDefinitionExists    = errors.New("workflow definition exists")
	ErrInstanceNotFound    = errors.New("workflow instance not found")
	ErrInstanceExists      = errors.New("workflow instance exists")
	ErrInstanceTerminal    = errors.New("workflow instance is terminal")
	ErrTaskNotFound        = errors.New("task not found")
	ErrApprovalNotFound    = errors.New("approval not found")
	ErrPolicyViolation     = errors.New("policy violation")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInternalStall       = errors.New("no task can make progress")
	ErrRuntimeNotAvailable = errors.New("activity runtime not configured")
	ErrActivityPanic       = errors.New("activity panicked")
	ErrInvalidResult       = errors.New("activity result not encodable")
)

// New creates an engine over the catalog, partition, and workflow stores.
// The runtime performs ordinary tasks; approval tasks never reach it
func New(
	catalog, partition, workflow *timebox.Store, rt Runtime,
	cfg *config.Config, opts ...Option,
) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		ctx:     ctx,
		cancel:  cancel,
		runtime: rt,
		config:  cfg.WithRetryDefaults(),
		catalogExec: timebox.NewExecutor(
			catalog, events.NewCatalogState, events.CatalogAppliers,
		),
		partExec: timebox.NewExecutor(
			partition, events.NewPartitionState, events.PartitionAppliers,
		),
		instanceExec: timebox.NewExecutor(
			workflow, events.NewWorkflowState, events.InstanceAppliers,
		),
		clock:         time.Now,
		makeTimer:     NewTimer,
		partBatchSize: defaultPartitionBatchSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.scheduler = scheduler.New(e.clock, e.makeTimer)
	e.partQueue = event.NewQueue(e.applyPartitionEvents, e.partBatchSize)
	return e
}

// WithClock replaces the wall clock used for retry and expiry scheduling
func WithClock(clock Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithTimer replaces the timer used by the retry scheduler
func WithTimer(makeTimer TimerConstructor) Option {
	return func(e *Engine) {
		e.makeTimer = makeTimer
	}
}

// WithListener registers a transition listener at construction
func WithListener(l Listener) Option {
	return func(e *Engine) {
		e.listeners = append(e.listeners, l)
	}
}

// Invoke calls the wrapped function
func (f RuntimeFunc) Invoke(
	ctx context.Context, req *api.ActivityRequest,
) (api.Args, error) {
	return f(ctx, req)
}

// Start launches the scheduler and partition queue, then resumes every
// instance that was active when the engine last stopped
func (e *Engine) Start() error {
	var err error
	e.startOnce.Do(func() {
		slog.Info("Engine starting")
		e.partQueue.Start()
		go e.scheduler.Run(e.ctx)
		err = e.RecoverInstances(e.ctx)
	})
	return err
}

// Stop cancels all instance drivers and waits for them to exit
func (e *Engine) Stop() error {
	var err error
	e.stopOnce.Do(func() {
		e.lifecycleMu.Lock()
		e.cancel()
		e.lifecycleMu.Unlock()

		done := make(chan struct{})
		go func() {
			e.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(e.config.ShutdownTimeout):
			err = ErrShutdownTimeout
		}
		e.partQueue.Flush()
		slog.Info("Engine stopped")
	})
	return err
}

// Config returns the effective engine configuration
func (e *Engine) Config() *config.Config {
	return e.config
}

// Defaults returns the retry and timeout values applied to tasks that
// leave them unset
func (e *Engine) Defaults() policy.Defaults {
	return policy.Defaults{
		Retry:   e.config.Retry,
		Timeout: e.config.TaskTimeout,
	}
}

// Policy returns the normalized retry and timeout policy of a task
func (e *Engine) Policy(task *api.TaskDefinition) policy.Policy {
	return policy.Normalize(task, e.Defaults())
}

func (e *Engine) graphFor(def *api.WorkflowDefinition) (*graph.Graph, error) {
	if def == nil {
		return nil, api.ErrNoTasks
	}
	return graph.Build(def)
}
