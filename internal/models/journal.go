package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JournalKind classifies append-only journal records.
type JournalKind string

const (
	JournalKindProposal   JournalKind = "proposal"
	JournalKindTransition JournalKind = "transition"
	JournalKindAnalysis   JournalKind = "analysis"
)

// JournalRecord is one immutable entry of durable history. Records are only
// ever inserted, never updated.
type JournalRecord struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UUID        string         `gorm:"uniqueIndex" json:"uuid"`
	Kind        JournalKind    `gorm:"index" json:"kind"`
	ActionID    string         `gorm:"index" json:"action_id,omitempty"`
	ProposalID  string         `gorm:"index" json:"proposal_id,omitempty"`
	ExecutionID string         `gorm:"index" json:"execution_id,omitempty"`
	State       ExecutionState `gorm:"index" json:"state,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	Payload     string         `gorm:"type:text" json:"payload,omitempty"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}

func (r *JournalRecord) BeforeCreate(tx *gorm.DB) (err error) {
	if r.UUID == "" {
		r.UUID = uuid.New().String()
	}
	return
}
