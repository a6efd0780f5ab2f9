package analysis

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/wardenops/warden/internal/models"
)

// PatternStore tracks incident signatures the model has already explained.
// A matching incident is counted as a recurrence and skipped instead of
// being re-analyzed.
type PatternStore struct {
	db *gorm.DB
}

func NewPatternStore(db *gorm.DB) *PatternStore {
	return &PatternStore{db: db}
}

// Match returns the first stored pattern found in text, or nil.
func (s *PatternStore) Match(text string) (*models.RecurringPattern, error) {
	var patterns []models.RecurringPattern
	if err := s.db.Order("id asc").Find(&patterns).Error; err != nil {
		return nil, fmt.Errorf("load patterns: %w", err)
	}
	for i := range patterns {
		re, err := regexp.Compile(patterns[i].Pattern)
		if err != nil {
			continue
		}
		if re.MatchString(text) {
			return &patterns[i], nil
		}
	}
	return nil, nil
}

// Touch records one more occurrence of a known pattern.
func (s *PatternStore) Touch(pattern *models.RecurringPattern, occurred time.Time) error {
	pattern.Occurrences++
	pattern.LastOccurred = occurred
	if err := s.db.Save(pattern).Error; err != nil {
		return fmt.Errorf("update pattern: %w", err)
	}
	return nil
}

// Add stores a new pattern, or counts an occurrence when it already exists.
func (s *PatternStore) Add(pattern string, occurred time.Time) error {
	var existing models.RecurringPattern
	err := s.db.Where("pattern = ?", pattern).First(&existing).Error
	if err == nil {
		return s.Touch(&existing, occurred)
	}
	if err != gorm.ErrRecordNotFound {
		return fmt.Errorf("lookup pattern: %w", err)
	}

	record := models.RecurringPattern{
		Pattern:      pattern,
		Occurrences:  1,
		LastOccurred: occurred,
	}
	if err := s.db.Create(&record).Error; err != nil {
		return fmt.Errorf("store pattern: %w", err)
	}
	return nil
}

var digitRun = regexp.MustCompile(`\d{4,}`)

// ValidatePattern rejects model-suggested patterns that are too short, too
// generic, anchored to specific long numbers, or not valid regexes.
func ValidatePattern(pattern string) bool {
	text := strings.TrimSpace(pattern)
	if len(text) < 5 {
		return false
	}
	switch text {
	case ".*", "^.*$", ".*error.*":
		return false
	}
	if digitRun.MatchString(text) {
		return false
	}
	if _, err := regexp.Compile(text); err != nil {
		return false
	}
	return true
}
