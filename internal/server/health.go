package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/tessera-flow/tessera/engine/pkg/api"
)

// Pinger checks the reachability of a Redis server. *redis.Client
// satisfies it
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

const (
	healthCheckTimeout = 2 * time.Second

	healthStatusOK       = "healthy"
	healthStatusDegraded = "unhealthy"
)

func (s *Server) handleHealth(c *gin.Context) {
	res := api.HealthResponse{
		Service: s.service,
		Version: s.version,
		Status:  healthStatusOK,
	}
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(
			c.Request.Context(), healthCheckTimeout,
		)
		defer cancel()
		if err := s.pinger.Ping(ctx).Err(); err != nil {
			res.Status = healthStatusDegraded
			res.Error = err.Error()
			c.JSON(http.StatusServiceUnavailable, res)
			return
		}
	}
	c.JSON(http.StatusOK, res)
}
