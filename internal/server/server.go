package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tessera-flow/tessera/engine/internal/dsl"
	"github.com/tessera-flow/tessera/engine/internal/engine"
	"github.com/tessera-flow/tessera/engine/internal/metrics"
	"github.com/tessera-flow/tessera/engine/pkg/api"
)

type (
	// Server implements the HTTP API server for the engine
	Server struct {
		engine   *engine.Engine
		hub      *Hub
		pinger   Pinger
		metrics  *metrics.Collector
		gatherer prometheus.Gatherer
		service  string
		version  string
	}

	// Option configures a Server
	Option func(*Server)
)

var (
	ErrInvalidJSON     = errors.New("invalid JSON")
	ErrReadBody        = errors.New("failed to read request body")
	ErrInvalidStatus   = errors.New("invalid status filter")
	ErrInvalidDecision = errors.New("invalid decision filter")
	ErrInternalServer  = errors.New("internal server error")
)

// NewServer creates an API server over the engine. The server's WebSocket
// hub is registered as a transition listener
func NewServer(eng *engine.Engine, opts ...Option) *Server {
	s := &Server{
		engine:  eng,
		hub:     NewHub(),
		service: "tessera",
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	eng.AddListener(s.hub)
	if s.metrics != nil {
		eng.AddListener(s.metrics)
	}
	return s
}

// WithMetrics records request and engine metrics in c and serves the
// gatherer's metrics on /metrics
func WithMetrics(c *metrics.Collector, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = c
		s.gatherer = g
	}
}

// WithPinger makes /health report the reachability of the event store
func WithPinger(p Pinger) Option {
	return func(s *Server) {
		s.pinger = p
	}
}

// WithVersion sets the service name and version reported by /health
func WithVersion(service, version string) Option {
	return func(s *Server) {
		s.service = service
		s.version = version
	}
}

// SetupRoutes configures and returns the HTTP router with all API endpoints
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(*gin.Context, *slog.Logger) *slog.Logger {
			return slog.Default()
		}),
	))
	if s.metrics != nil {
		router.Use(s.recordRequest)
	}

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set(
			"Access-Control-Allow-Methods", "GET, POST, OPTIONS",
		)
		c.Writer.Header().Set(
			"Access-Control-Allow-Headers", "Content-Type, Authorization",
		)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	router.GET("/health", s.handleHealth)
	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(
			promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}),
		))
	}

	eng := router.Group("/engine")
	{
		// Definition endpoints
		eng.GET("/definition", s.listDefinitions)
		eng.POST("/definition", s.registerDefinition)
		eng.GET("/definition/:id", s.getDefinition)

		// Instance endpoints
		eng.GET("/instance", s.listInstances)
		eng.POST("/instance", s.startInstance)
		eng.GET("/instance/:id", s.getInstance)
		eng.POST("/instance/:id/cancel", s.cancelInstance)
		eng.POST("/instance/:id/task/:taskID/resume", s.resumeTask)

		// Approval endpoints
		eng.GET("/approval", s.listApprovals)
		eng.GET("/approval/:id", s.getApproval)
		eng.POST("/approval/:id", s.resolveApproval)

		// WebSocket
		eng.GET("/ws", s.handleWebSocket)
	}

	return router
}

// CloseWebSockets closes all active WebSocket connections
func (s *Server) CloseWebSockets() {
	s.hub.Close()
}

func (s *Server) recordRequest(c *gin.Context) {
	start := time.Now()
	c.Next()
	path := c.FullPath()
	if path == "" {
		path = "unmatched"
	}
	s.metrics.RecordHTTPRequest(
		c.Request.Method, path, c.Writer.Status(), time.Since(start),
	)
}

// writeError maps engine and validation errors to HTTP status codes
func writeError(c *gin.Context, err error) {
	status := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = fmt.Sprintf("%s: %v", ErrInternalServer, err)
	}
	c.JSON(status, api.ErrorResponse{
		Error:  msg,
		Status: status,
	})
}

func errorStatus(err error) int {
	switch {
	case isAny(err,
		api.ErrDefinition, api.ErrRequiredParameter,
		api.ErrUnknownParameter, api.ErrInvalidDuration,
		dsl.ErrDecode, dsl.ErrEmptyDocument,
		ErrInvalidJSON, ErrReadBody, ErrInvalidStatus, ErrInvalidDecision,
	):
		return http.StatusBadRequest
	case isAny(err,
		engine.ErrDefinitionNotFound, engine.ErrInstanceNotFound,
		engine.ErrTaskNotFound, engine.ErrApprovalNotFound,
	):
		return http.StatusNotFound
	case isAny(err,
		api.ErrSignalRejected, engine.ErrInstanceTerminal,
		engine.ErrInstanceExists, engine.ErrDefinitionExists,
	):
		return http.StatusConflict
	case isAny(err, engine.ErrEngineStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
