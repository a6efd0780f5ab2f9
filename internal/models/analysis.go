package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AnalysisRecord stores one structured RCA result for an incident. The raw
// model output is only persisted after strict schema validation.
type AnalysisRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UUID         string    `gorm:"uniqueIndex" json:"uuid"`
	IncidentPath string    `gorm:"index" json:"incident"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
	Result       string    `gorm:"type:text" json:"result"`          // validated RcaResult JSON
	Trigger      string    `gorm:"type:text" json:"event,omitempty"` // last event of the context bundle
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

func (a *AnalysisRecord) BeforeCreate(tx *gorm.DB) (err error) {
	if a.UUID == "" {
		a.UUID = uuid.New().String()
	}
	return
}

// AnalysisCursor marks the newest incident end time that has been fully
// persisted. A crash between persistence and cursor advance re-processes the
// incident (at-least-once).
type AnalysisCursor struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"uniqueIndex" json:"key"`
	Watermark time.Time `json:"watermark"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecurringPattern records an incident signature the model already explained.
// Incidents matching a stored pattern are counted instead of re-analyzed.
type RecurringPattern struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Pattern      string    `gorm:"uniqueIndex" json:"pattern"`
	Occurrences  int       `json:"occurrences"`
	LastOccurred time.Time `json:"last_occurred"`
	CreatedAt    time.Time `json:"created_at"`
}
