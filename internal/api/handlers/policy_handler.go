package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wardenops/warden/internal/api/middleware"
	"github.com/wardenops/warden/internal/policy"
)

type PolicyHandler struct {
	store *policy.Store
}

func NewPolicyHandler(store *policy.Store) *PolicyHandler {
	return &PolicyHandler{store: store}
}

// List returns the active policy rules.
func (h *PolicyHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Current().Rules())
}

// Reload re-reads the policy file. All-or-nothing: a malformed file leaves
// the active set untouched.
func (h *PolicyHandler) Reload(c *gin.Context) {
	if err := h.store.Reload(); err != nil {
		var configErr *policy.ConfigError
		if errors.As(err, &configErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": configErr.Error()})
			return
		}
		middleware.GetRequestLogger(c).WithError(err).Error("reload policy")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reload policy"})
		return
	}
	middleware.GetRequestLogger(c).WithField("rules", h.store.Current().Len()).Info("policy reloaded")
	c.JSON(http.StatusOK, gin.H{"message": "Policy reloaded", "rules": h.store.Current().Len()})
}
