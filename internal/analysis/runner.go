package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/wardenops/warden/internal/journal"
	"github.com/wardenops/warden/internal/llm"
	"github.com/wardenops/warden/internal/logger"
	"github.com/wardenops/warden/internal/metrics"
	"github.com/wardenops/warden/internal/models"
)

const cursorKey = "analysis"

// An incident failing this many analysis attempts is skipped for good.
const maxAttempts = 5

// Notifier is told about analysis outcomes. May be nil.
type Notifier interface {
	AnalysisFailure(incident string, cause error)
	AnalysisCompleted(incident string, result *RcaResult)
}

// Options configures the scheduler.
type Options struct {
	IncidentDir string
	SecretsPath string
	Rate        time.Duration
	MaxLines    int
	LLMTimeout  time.Duration
	BackoffCap  time.Duration
}

// Scheduler polls for new incident evidence, turns it into bounded context
// bundles, asks the model backend for a root-cause analysis, and persists
// validated results. The watermark only advances after persistence, so a
// crash re-processes the incident: at-least-once, never silently dropped.
type Scheduler struct {
	db       *gorm.DB
	journal  *journal.Journal
	backend  llm.Backend
	patterns *PatternStore
	notifier Notifier
	opts     Options

	failureStreak int
	attempts      map[string]int
	abandoned     map[string]bool
}

func NewScheduler(db *gorm.DB, jrnl *journal.Journal, backend llm.Backend, notifier Notifier, opts Options) *Scheduler {
	if opts.BackoffCap < opts.Rate {
		opts.BackoffCap = opts.Rate
	}
	return &Scheduler{
		db:        db,
		journal:   jrnl,
		backend:   backend,
		patterns:  NewPatternStore(db),
		notifier:  notifier,
		opts:      opts,
		attempts:  map[string]int{},
		abandoned: map[string]bool{},
	}
}

// Run ticks until ctx is cancelled. Each failed tick doubles the wait before
// the next one up to the configured cap; a clean tick resets to the base
// rate.
func (s *Scheduler) Run(ctx context.Context) {
	logger.WithFields(map[string]interface{}{
		"backend":  s.backend.Name(),
		"interval": s.opts.Rate.String(),
	}).Info("analysis scheduler started")

	for {
		s.RunOnce(ctx)
		select {
		case <-time.After(s.NextWait()):
		case <-ctx.Done():
			logger.Log().Info("analysis scheduler stopped")
			return
		}
	}
}

// NextWait returns the wait before the next tick given the current failure
// streak.
func (s *Scheduler) NextWait() time.Duration {
	wait := s.opts.Rate
	for i := 0; i < s.failureStreak; i++ {
		wait *= 2
		if wait >= s.opts.BackoffCap {
			return s.opts.BackoffCap
		}
	}
	return wait
}

// RunOnce processes every incident newer than the watermark, oldest first.
// Per-incident failures are isolated: one bad incident never blocks the
// rest of the tick, but any failure extends the wait before the next tick.
func (s *Scheduler) RunOnce(ctx context.Context) {
	incidents, err := ListIncidents(s.opts.IncidentDir)
	if err != nil {
		logger.Log().WithError(err).Error("scan incidents")
		s.failureStreak++
		return
	}

	watermark := s.loadWatermark()
	tickFailed := false

	for _, incident := range incidents {
		if ctx.Err() != nil {
			return
		}
		if !incident.End.After(watermark) {
			continue
		}
		if s.abandoned[incident.Path] {
			continue
		}
		if s.attempts[incident.Path] >= maxAttempts {
			logger.WithFields(map[string]interface{}{
				"incident": incident.Path,
				"attempts": s.attempts[incident.Path],
			}).Warn("giving up on incident analysis")
			s.abandoned[incident.Path] = true
			delete(s.attempts, incident.Path)
			continue
		}

		if err := s.analyze(ctx, incident); err != nil {
			logger.WithFields(map[string]interface{}{"incident": incident.Path}).
				WithError(err).Error("incident analysis failed")
			s.attempts[incident.Path]++
			tickFailed = true
			metrics.IncAnalysisFailure()
			if recordErr := s.journal.AppendAnalysisFailure(incident.Path, err.Error()); recordErr != nil {
				logger.Log().WithError(recordErr).Error("record analysis failure")
			}
			if s.notifier != nil {
				s.notifier.AnalysisFailure(incident.Path, err)
			}
			continue
		}

		delete(s.attempts, incident.Path)
		// The incident is fully persisted; only now may the watermark move.
		if err := s.advanceWatermark(incident.End); err != nil {
			logger.Log().WithError(err).Error("advance watermark")
			tickFailed = true
			continue
		}
		watermark = incident.End
	}

	if tickFailed {
		s.failureStreak++
	} else {
		s.failureStreak = 0
	}
}

func (s *Scheduler) analyze(ctx context.Context, incident IncidentRef) error {
	bundle := BuildContext(incident, s.opts.MaxLines, s.opts.SecretsPath)
	if len(bundle.Events) == 0 {
		logger.WithFields(map[string]interface{}{"incident": incident.Path}).
			Debug("no analyzable events in incident")
		return nil
	}

	contextText, err := json.Marshal(bundle.Events)
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}
	matched, err := s.patterns.Match(string(contextText))
	if err != nil {
		return err
	}
	if matched != nil {
		if err := s.patterns.Touch(matched, incident.End); err != nil {
			return err
		}
		logger.WithFields(map[string]interface{}{
			"incident":    incident.Path,
			"pattern":     matched.Pattern,
			"occurrences": matched.Occurrences,
		}).Info("known incident occurred again")
		return nil
	}

	prompt, err := BuildPrompt(bundle)
	if err != nil {
		return err
	}
	raw, err := s.backend.Generate(ctx, prompt, s.opts.LLMTimeout)
	if err != nil {
		return fmt.Errorf("model call: %w", err)
	}
	result, err := ParseResult(raw)
	if err != nil {
		return err
	}

	if err := s.persist(incident, bundle, result); err != nil {
		return err
	}

	metrics.IncAnalysis()
	logger.WithFields(map[string]interface{}{
		"incident":   incident.Path,
		"root_cause": result.RootCause,
		"confidence": result.Confidence,
	}).Info("incident analyzed")
	if s.notifier != nil {
		s.notifier.AnalysisCompleted(incident.Path, result)
	}

	if ValidatePattern(result.RecurrencePattern) {
		if err := s.patterns.Add(result.RecurrencePattern, incident.End); err != nil {
			logger.Log().WithError(err).Warn("store recurrence pattern")
		}
	}
	return nil
}

// persist writes the analysis record and its journal entry in one
// transaction so a result is either fully recorded or not at all.
func (s *Scheduler) persist(incident IncidentRef, bundle ContextBundle, result *RcaResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	var triggerJSON []byte
	if len(bundle.Events) > 0 {
		triggerJSON, _ = json.Marshal(bundle.Events[len(bundle.Events)-1])
	}

	record := models.AnalysisRecord{
		IncidentPath: incident.Path,
		WindowStart:  incident.Start,
		WindowEnd:    incident.End,
		Result:       string(resultJSON),
		Trigger:      string(triggerJSON),
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("persist analysis: %w", err)
		}
		return journal.New(tx).AppendAnalysis(incident.Path, string(resultJSON))
	})
}

func (s *Scheduler) loadWatermark() time.Time {
	var cursor models.AnalysisCursor
	err := s.db.Where("key = ?", cursorKey).First(&cursor).Error
	if err != nil {
		return time.Time{}
	}
	return cursor.Watermark
}

func (s *Scheduler) advanceWatermark(to time.Time) error {
	var cursor models.AnalysisCursor
	err := s.db.Where("key = ?", cursorKey).First(&cursor).Error
	if err == gorm.ErrRecordNotFound {
		cursor = models.AnalysisCursor{Key: cursorKey, Watermark: to}
		return s.db.Create(&cursor).Error
	}
	if err != nil {
		return err
	}
	if to.After(cursor.Watermark) {
		cursor.Watermark = to
		return s.db.Save(&cursor).Error
	}
	return nil
}
