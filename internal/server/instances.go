package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tessera-flow/tessera/engine/internal/engine/instopt"
	"github.com/tessera-flow/tessera/engine/pkg/api"
)

var workflowStatuses = map[api.WorkflowStatus]bool{
	api.WorkflowCreated:   true,
	api.WorkflowRunning:   true,
	api.WorkflowPaused:    true,
	api.WorkflowCompleted: true,
	api.WorkflowFailed:    true,
	api.WorkflowCancelled: true,
}

func (s *Server) startInstance(c *gin.Context) {
	var req api.StartInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %w", ErrInvalidJSON, err))
		return
	}

	apps := []instopt.Applier{instopt.WithParameters(req.Parameters)}
	if req.InstanceID != "" {
		apps = append(apps, instopt.WithInstanceID(req.InstanceID))
	}

	st, err := s.engine.StartInstance(
		c.Request.Context(), req.WorkflowID, apps...,
	)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, api.InstanceStartedResponse{
		Message:    "Instance started",
		InstanceID: st.ID,
	})
}

// listInstances accepts an optional comma-separated status filter
func (s *Server) listInstances(c *gin.Context) {
	statuses, err := parseStatuses(c.Query("status"))
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := s.engine.ListInstances(c.Request.Context(), statuses...)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.InstancesListResponse{
		Instances: res,
		Count:     len(res),
	})
}

func (s *Server) getInstance(c *gin.Context) {
	id := api.InstanceID(c.Param("id"))
	st, err := s.engine.GetInstance(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) cancelInstance(c *gin.Context) {
	id := api.InstanceID(c.Param("id"))
	if err := s.engine.Cancel(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.MessageResponse{
		Message: "Instance cancelled",
	})
}

func (s *Server) resumeTask(c *gin.Context) {
	var sig api.Signal
	if err := c.ShouldBindJSON(&sig); err != nil {
		writeError(c, fmt.Errorf("%w: %w", ErrInvalidJSON, err))
		return
	}

	id := api.InstanceID(c.Param("id"))
	taskID := api.TaskID(c.Param("taskID"))
	if err := s.engine.Resume(c.Request.Context(), id, taskID, sig); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.MessageResponse{
		Message: "Signal accepted",
	})
}

func parseStatuses(raw string) ([]api.WorkflowStatus, error) {
	var res []api.WorkflowStatus
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		st := api.WorkflowStatus(part)
		if !workflowStatuses[st] {
			return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, part)
		}
		res = append(res, st)
	}
	return res, nil
}
