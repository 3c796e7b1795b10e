package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kode4food/timebox"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	app "github.com/tessera-flow/tessera/engine"
	"github.com/tessera-flow/tessera/engine/internal/activity"
	"github.com/tessera-flow/tessera/engine/internal/archive"
	"github.com/tessera-flow/tessera/engine/internal/config"
	"github.com/tessera-flow/tessera/engine/internal/dsl"
	"github.com/tessera-flow/tessera/engine/internal/engine"
	"github.com/tessera-flow/tessera/engine/internal/metrics"
	"github.com/tessera-flow/tessera/engine/internal/server"
	"github.com/tessera-flow/tessera/engine/pkg/log"
)

type tessera struct {
	cfg            *config.Config
	timebox        *timebox.Timebox
	catalogStore   *timebox.Store
	partitionStore *timebox.Store
	workflowStore  *timebox.Store
	redis          *redis.Client
	registry       *prometheus.Registry
	archiver       *archive.Archiver
	engine         *engine.Engine
	apiServer      *server.Server
	httpServer     *http.Server
}

var (
	ErrCreateTimebox        = errors.New("failed to create timebox")
	ErrCreateCatalogStore   = errors.New("failed to create catalog store")
	ErrCreatePartitionStore = errors.New("failed to create partition store")
	ErrCreateWorkflowStore  = errors.New("failed to create workflow store")
	ErrOpenArchive          = errors.New("failed to open archive bucket")
	ErrLoadDefinitions      = errors.New("failed to load definitions")
)

func main() {
	cfg := config.NewDefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}

	s := &tessera{cfg: cfg}
	s.setupLogging()

	ctx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	if err := s.run(ctx); err != nil {
		slog.Error("Failed to start application", log.Error(err))
		os.Exit(1)
	}
}

func (s *tessera) run(ctx context.Context) error {
	if err := s.initializeStores(); err != nil {
		return err
	}
	if err := s.initializeEngine(ctx); err != nil {
		s.closeStores()
		return err
	}
	if err := s.registerDefinitions(ctx); err != nil {
		s.shutdown()
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(s.serve)
	g.Go(func() error {
		<-ctx.Done()
		s.shutdown()
		return nil
	})
	return g.Wait()
}

func (s *tessera) setupLogging() {
	level := log.ParseLevel(s.cfg.LogLevel)
	logger := log.NewWithLevel(app.Name, s.cfg.Env, app.Version, level)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level)

	slog.Info("Tessera Engine starting",
		slog.String("log_level", s.cfg.LogLevel))

	slog.Info("Configuration loaded",
		slog.String("catalog_redis_addr", s.cfg.CatalogStore.Addr),
		slog.Int("catalog_redis_db", s.cfg.CatalogStore.DB),
		slog.String("partition_redis_addr", s.cfg.PartitionStore.Addr),
		slog.Int("partition_redis_db", s.cfg.PartitionStore.DB),
		slog.String("workflow_redis_addr", s.cfg.WorkflowStore.Addr),
		slog.Int("workflow_redis_db", s.cfg.WorkflowStore.DB),
		slog.String("failure_mode", string(s.cfg.FailureMode)),
		slog.String("api_host", s.cfg.APIHost),
		slog.Int("api_port", s.cfg.APIPort))
}

func (s *tessera) initializeStores() error {
	var err error

	tbCfg := timebox.DefaultConfig()
	tbCfg.Workers = true
	s.timebox, err = timebox.NewTimebox(tbCfg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreateTimebox, err)
	}

	s.catalogStore, err = s.timebox.NewStore(s.cfg.CatalogStore)
	if err != nil {
		_ = s.timebox.Close()
		return fmt.Errorf("%w: %w", ErrCreateCatalogStore, err)
	}

	s.partitionStore, err = s.timebox.NewStore(s.cfg.PartitionStore)
	if err != nil {
		_ = s.timebox.Close()
		return fmt.Errorf("%w: %w", ErrCreatePartitionStore, err)
	}

	s.workflowStore, err = s.timebox.NewStore(s.cfg.WorkflowStore)
	if err != nil {
		_ = s.timebox.Close()
		return fmt.Errorf("%w: %w", ErrCreateWorkflowStore, err)
	}

	s.redis = redis.NewClient(&redis.Options{
		Addr:     s.cfg.WorkflowStore.Addr,
		Password: s.cfg.WorkflowStore.Password,
		DB:       s.cfg.WorkflowStore.DB,
	})
	return nil
}

func (s *tessera) initializeEngine(ctx context.Context) error {
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s.engine = engine.New(
		s.catalogStore, s.partitionStore, s.workflowStore,
		activity.NewRegistry(), s.cfg,
	)

	if s.cfg.ArchiveBucketURL != "" {
		a, err := archive.Open(
			ctx, s.cfg.ArchiveBucketURL, s.cfg.ArchivePrefix, s.engine,
		)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrOpenArchive, err)
		}
		s.archiver = a
		s.engine.AddListener(a)
	}

	s.apiServer = server.NewServer(s.engine,
		server.WithVersion(app.Name, app.Version),
		server.WithPinger(s.redis),
		server.WithMetrics(metrics.NewCollector(s.registry), s.registry),
	)
	return s.engine.Start()
}

func (s *tessera) registerDefinitions(ctx context.Context) error {
	if s.cfg.DefinitionsDir == "" {
		return nil
	}
	defs, err := dsl.LoadDir(s.cfg.DefinitionsDir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoadDefinitions, err)
	}
	for _, def := range defs {
		if err := s.engine.RegisterDefinition(ctx, def); err != nil {
			return fmt.Errorf("%w: %w", ErrLoadDefinitions, err)
		}
	}
	slog.Info("Definitions loaded",
		slog.String("dir", s.cfg.DefinitionsDir),
		slog.Int("count", len(defs)))
	return nil
}

func (s *tessera) serve() error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.APIHost, s.cfg.APIPort),
		Handler: s.apiServer.SetupRoutes(),
	}

	slog.Info("HTTP server starting",
		slog.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *tessera) shutdown() {
	slog.Info("Shutting down")

	ctx, cancel := context.WithTimeout(
		context.Background(), s.cfg.ShutdownTimeout,
	)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			slog.Error("Shutdown failed", log.Error(err))
		}
	}

	s.apiServer.CloseWebSockets()

	if err := s.engine.Stop(); err != nil {
		slog.Error("Engine shutdown failed", log.Error(err))
	}

	if s.archiver != nil {
		if err := s.archiver.Close(); err != nil {
			slog.Error("Archive shutdown failed", log.Error(err))
		}
	}

	s.closeStores()
	slog.Info("Server exited")
}

func (s *tessera) closeStores() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	_ = s.timebox.Close()
}
