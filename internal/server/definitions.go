package server

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tessera-flow/tessera/engine/internal/dsl"
	"github.com/tessera-flow/tessera/engine/pkg/api"
	"github.com/tessera-flow/tessera/engine/pkg/log"
)

func (s *Server) listDefinitions(c *gin.Context) {
	defs, err := s.engine.ListDefinitions(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.DefinitionsListResponse{
		Definitions: defs,
		Count:       len(defs),
	})
}

// registerDefinition accepts a YAML or JSON workflow document
func (s *Server) registerDefinition(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, fmt.Errorf("%w: %w", ErrReadBody, err))
		return
	}

	def, err := dsl.Parse(body)
	if err != nil {
		writeError(c, err)
		return
	}

	if err := s.engine.RegisterDefinition(c.Request.Context(), def); err != nil {
		writeError(c, err)
		return
	}

	slog.Info("Definition registered",
		log.WorkflowID(def.ID),
		slog.String("version", def.Version))

	c.JSON(http.StatusCreated, api.DefinitionRegisteredResponse{
		Definition: def,
		Message:    "Definition registered",
	})
}

func (s *Server) getDefinition(c *gin.Context) {
	id := api.WorkflowID(c.Param("id"))
	def, err := s.engine.GetDefinition(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}
