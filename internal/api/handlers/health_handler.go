package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wardenops/warden/internal/version"
)

// HealthHandler reports liveness and build information.
func HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"name":    version.Name,
		"version": version.Full(),
	})
}
