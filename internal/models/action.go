package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ExecutionState is one step of the guarded action lifecycle.
type ExecutionState string

const (
	StateProposed      ExecutionState = "proposed"
	StatePolicyChecked ExecutionState = "policy_checked"
	StateDryRun        ExecutionState = "dry_run"
	StateBackedUp      ExecutionState = "backed_up"
	StateApplying      ExecutionState = "applying"
	StateVerifying     ExecutionState = "verifying"
	StateCommitted     ExecutionState = "committed"
	StateRolledBack    ExecutionState = "rolled_back"
	StateRejected      ExecutionState = "rejected"
	StateFailed        ExecutionState = "failed"
)

// Terminal reports whether the state ends an execution attempt.
func (s ExecutionState) Terminal() bool {
	switch s {
	case StateCommitted, StateRolledBack, StateRejected, StateFailed:
		return true
	}
	return false
}

// Params is a string-to-scalar parameter map stored as a JSON text column.
type Params map[string]string

// Value implements driver.Valuer.
func (p Params) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (p *Params) Scan(value interface{}) error {
	if value == nil {
		*p = Params{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	}
	return fmt.Errorf("unsupported params column type %T", value)
}

// ActionProposal is a candidate remediation. Immutable once created.
type ActionProposal struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	ActionID  string    `json:"action_id" gorm:"index"`
	Target    string    `json:"target"`
	Rationale string    `json:"rationale" gorm:"type:text"`
	Params    Params    `json:"parameters" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
}

func (p *ActionProposal) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return
}

// ActionExecution is one attempt to carry out a proposal. The executor owns
// it until a terminal state is reached, after which only the journal writes
// about it.
type ActionExecution struct {
	ID                 string         `gorm:"primaryKey" json:"id"`
	ProposalID         string         `json:"proposal_id" gorm:"index"`
	ActionID           string         `json:"action_id" gorm:"index"`
	Target             string         `json:"target"`
	State              ExecutionState `json:"state" gorm:"index"`
	BackupRef          string         `json:"backup_ref"` // empty until a backup succeeded
	VerificationResult string         `json:"verification_result" gorm:"type:text"`
	Error              string         `json:"error,omitempty" gorm:"type:text"`
	Reason             string         `json:"reason,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	FinishedAt         *time.Time     `json:"finished_at,omitempty"`
}

func (e *ActionExecution) BeforeCreate(tx *gorm.DB) (err error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.State == "" {
		e.State = StateProposed
	}
	return
}
