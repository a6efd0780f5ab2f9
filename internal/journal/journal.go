package journal

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/wardenops/warden/internal/models"
)

// Journal is the append-only record of proposals, execution transitions and
// analyses. It is the single source of truth for cooldown bookkeeping: the
// last committed time for an action id is always read back from here, never
// from in-memory counters.
type Journal struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Journal {
	return &Journal{db: db}
}

// AppendProposal records a newly accepted proposal. A write failure is
// returned to the caller; the submission must not proceed past it.
func (j *Journal) AppendProposal(p *models.ActionProposal) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal proposal: %w", err)
	}
	record := models.JournalRecord{
		Kind:       models.JournalKindProposal,
		ActionID:   p.ActionID,
		ProposalID: p.ID,
		Payload:    string(payload),
	}
	if err := j.db.Create(&record).Error; err != nil {
		return fmt.Errorf("append proposal record: %w", err)
	}
	return nil
}

// AppendTransition records one state-machine transition. The executor treats
// a failed append as fatal to the transition: the state machine does not
// advance past a point it could not durably record.
func (j *Journal) AppendTransition(exec *models.ActionExecution, reason string) error {
	record := models.JournalRecord{
		Kind:        models.JournalKindTransition,
		ActionID:    exec.ActionID,
		ProposalID:  exec.ProposalID,
		ExecutionID: exec.ID,
		State:       exec.State,
		Reason:      reason,
	}
	if err := j.db.Create(&record).Error; err != nil {
		return fmt.Errorf("append transition record: %w", err)
	}
	return nil
}

// AppendAnalysis records a validated RCA result keyed by incident.
func (j *Journal) AppendAnalysis(incidentPath string, resultJSON string) error {
	record := models.JournalRecord{
		Kind:    models.JournalKindAnalysis,
		Payload: resultJSON,
		Reason:  incidentPath,
	}
	if err := j.db.Create(&record).Error; err != nil {
		return fmt.Errorf("append analysis record: %w", err)
	}
	return nil
}

// AppendAnalysisFailure records an analysis attempt that produced no
// trustworthy result, so failures are as auditable as successes.
func (j *Journal) AppendAnalysisFailure(incidentPath string, cause string) error {
	record := models.JournalRecord{
		Kind:    models.JournalKindAnalysis,
		Reason:  incidentPath,
		Payload: fmt.Sprintf(`{"error":%q}`, cause),
	}
	if err := j.db.Create(&record).Error; err != nil {
		return fmt.Errorf("append analysis failure record: %w", err)
	}
	return nil
}

// LastCommitTime returns the most recent committed transition for an action
// id, or nil when the action has never committed. Cooldown windows key off
// this value only; rejections and rollbacks never start one.
func (j *Journal) LastCommitTime(actionID string) (*time.Time, error) {
	var record models.JournalRecord
	err := j.db.
		Where("kind = ? AND action_id = ? AND state = ?",
			models.JournalKindTransition, actionID, models.StateCommitted).
		Order("created_at desc").
		First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last commit: %w", err)
	}
	return &record.CreatedAt, nil
}

// List returns records of one kind created at or after since, oldest first.
func (j *Journal) List(kind models.JournalKind, since time.Time) ([]models.JournalRecord, error) {
	var records []models.JournalRecord
	err := j.db.
		Where("kind = ? AND created_at >= ?", kind, since).
		Order("created_at asc, id asc").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list journal records: %w", err)
	}
	return records, nil
}

// ListForExecution returns every transition recorded for one execution id.
func (j *Journal) ListForExecution(executionID string) ([]models.JournalRecord, error) {
	var records []models.JournalRecord
	err := j.db.
		Where("kind = ? AND execution_id = ?", models.JournalKindTransition, executionID).
		Order("id asc").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list execution records: %w", err)
	}
	return records, nil
}

// PruneBefore deletes records older than the cutoff. Used by the retention
// job; terminal outcomes newer than the cutoff always survive.
func (j *Journal) PruneBefore(cutoff time.Time) (int64, error) {
	res := j.db.Where("created_at < ?", cutoff).Delete(&models.JournalRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune journal: %w", res.Error)
	}
	return res.RowsAffected, nil
}
