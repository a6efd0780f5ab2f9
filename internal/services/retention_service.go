package services

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/wardenops/warden/internal/journal"
	"github.com/wardenops/warden/internal/logger"
	"github.com/wardenops/warden/internal/models"
)

// RetentionService prunes aged history so the sqlite file stays small on
// long-lived installs. Journal terminal outcomes inside the retention window
// are never touched; cooldown bookkeeping only needs the newest commit per
// action.
type RetentionService struct {
	DB      *gorm.DB
	Journal *journal.Journal
	Keep    time.Duration

	cron *cron.Cron
}

func NewRetentionService(db *gorm.DB, jrnl *journal.Journal, keep time.Duration) *RetentionService {
	if keep <= 0 {
		keep = 30 * 24 * time.Hour
	}
	return &RetentionService{DB: db, Journal: jrnl, Keep: keep}
}

// Start schedules the daily prune job.
func (s *RetentionService) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc("@daily", s.RunOnce); err != nil {
		return fmt.Errorf("schedule retention job: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the schedule, waiting for a running job to finish.
func (s *RetentionService) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// RunOnce prunes journal records, analyses, notifications and stale
// recurring patterns older than the retention window.
func (s *RetentionService) RunOnce() {
	cutoff := time.Now().Add(-s.Keep)

	pruned, err := s.Journal.PruneBefore(cutoff)
	if err != nil {
		logger.Log().WithError(err).Error("prune journal")
	}

	analyses := s.DB.Where("created_at < ?", cutoff).Delete(&models.AnalysisRecord{})
	if analyses.Error != nil {
		logger.Log().WithError(analyses.Error).Error("prune analyses")
	}
	notifications := s.DB.Where("created_at < ? AND read = ?", cutoff, true).Delete(&models.Notification{})
	if notifications.Error != nil {
		logger.Log().WithError(notifications.Error).Error("prune notifications")
	}
	patterns := s.DB.Where("last_occurred < ?", cutoff).Delete(&models.RecurringPattern{})
	if patterns.Error != nil {
		logger.Log().WithError(patterns.Error).Error("prune patterns")
	}

	logger.WithFields(map[string]interface{}{
		"journal":       pruned,
		"analyses":      analyses.RowsAffected,
		"notifications": notifications.RowsAffected,
		"patterns":      patterns.RowsAffected,
	}).Info("retention prune completed")
}
