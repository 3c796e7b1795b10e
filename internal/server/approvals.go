package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tessera-flow/tessera/engine/pkg/api"
)

func (s *Server) listApprovals(c *gin.Context) {
	decision := api.Decision(c.Query("decision"))
	switch decision {
	case "", api.DecisionPending, api.DecisionApproved,
		api.DecisionRejected, api.DecisionCancelled:
	default:
		writeError(c, fmt.Errorf("%w: %s", ErrInvalidDecision, decision))
		return
	}

	id := api.InstanceID(c.Query("instance"))
	res, err := s.engine.ListApprovals(c.Request.Context(), decision, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ApprovalsListResponse{
		Approvals: res,
		Count:     len(res),
	})
}

func (s *Server) getApproval(c *gin.Context) {
	id := api.ApprovalID(c.Param("id"))
	ap, err := s.engine.GetApproval(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ap)
}

func (s *Server) resolveApproval(c *gin.Context) {
	var sig api.Signal
	if err := c.ShouldBindJSON(&sig); err != nil {
		writeError(c, fmt.Errorf("%w: %w", ErrInvalidJSON, err))
		return
	}

	id := api.ApprovalID(c.Param("id"))
	if err := s.engine.ResolveApproval(c.Request.Context(), id, sig); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.MessageResponse{
		Message: "Approval " + string(sig.Decision()),
	})
}
