package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/wardenops/warden/internal/models"
)

type AnalysisHandler struct {
	db *gorm.DB
}

func NewAnalysisHandler(db *gorm.DB) *AnalysisHandler {
	return &AnalysisHandler{db: db}
}

// List returns analyses newest-first.
func (h *AnalysisHandler) List(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	var analyses []models.AnalysisRecord
	query := h.db.Order("created_at desc").Limit(limit)
	if incident := c.Query("incident"); incident != "" {
		query = query.Where("incident_path = ?", incident)
	}
	if err := query.Find(&analyses).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list analyses"})
		return
	}
	c.JSON(http.StatusOK, analyses)
}

// Get returns one analysis by uuid.
func (h *AnalysisHandler) Get(c *gin.Context) {
	var record models.AnalysisRecord
	if err := h.db.Where("uuid = ?", c.Param("id")).First(&record).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Analysis not found"})
		return
	}
	c.JSON(http.StatusOK, record)
}
