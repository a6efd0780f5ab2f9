package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wardenops/warden/internal/api/middleware"
	"github.com/wardenops/warden/internal/manager"
	"github.com/wardenops/warden/internal/models"
)

type ActionHandler struct {
	manager *manager.Manager
}

func NewActionHandler(m *manager.Manager) *ActionHandler {
	return &ActionHandler{manager: m}
}

type proposeRequest struct {
	ActionID  string            `json:"action_id" binding:"required"`
	Target    string            `json:"target" binding:"required"`
	Rationale string            `json:"rationale"`
	Params    map[string]string `json:"parameters"`
}

// Propose accepts an ActionProposal and returns the execution handle. The
// proposal is always journaled; whether it progresses is the policy
// engine's call.
func (h *ActionHandler) Propose(c *gin.Context) {
	var req proposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	proposal := &models.ActionProposal{
		ActionID:  req.ActionID,
		Target:    req.Target,
		Rationale: req.Rationale,
		Params:    req.Params,
	}
	handle, err := h.manager.Submit(proposal)
	if err != nil {
		var validationErr *manager.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
			return
		}
		middleware.GetRequestLogger(c).WithError(err).Error("submit proposal")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit proposal"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"execution_id": handle, "proposal_id": proposal.ID})
}

// Pending lists executions that have not reached a terminal state.
func (h *ActionHandler) Pending(c *gin.Context) {
	pending := h.manager.Pending()
	if pending == nil {
		pending = []models.ActionExecution{}
	}
	c.JSON(http.StatusOK, pending)
}

// Status returns a snapshot of one execution.
func (h *ActionHandler) Status(c *gin.Context) {
	exec, err := h.manager.Status(c.Param("id"))
	if err != nil {
		if errors.Is(err, manager.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Execution not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load execution"})
		return
	}
	c.JSON(http.StatusOK, exec)
}

// Approve releases an execution waiting at the approval gate.
func (h *ActionHandler) Approve(c *gin.Context) {
	if err := h.manager.Approve(c.Param("id")); err != nil {
		if errors.Is(err, manager.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Execution not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	middleware.GetRequestLogger(c).WithField("execution", c.Param("id")).Info("execution approved")
	c.JSON(http.StatusOK, gin.H{"message": "Execution approved"})
}
