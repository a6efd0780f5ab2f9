package services

import (
	"fmt"
	"time"

	"github.com/containrrr/shoutrrr"
	"gorm.io/gorm"

	"github.com/wardenops/warden/internal/analysis"
	"github.com/wardenops/warden/internal/logger"
	"github.com/wardenops/warden/internal/models"
)

type NotificationService struct {
	DB *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{DB: db}
}

// Internal Notifications (DB)

func (s *NotificationService) Create(nType models.NotificationType, title, message string) (*models.Notification, error) {
	notification := &models.Notification{
		Type:    nType,
		Title:   title,
		Message: message,
		Read:    false,
	}
	result := s.DB.Create(notification)
	return notification, result.Error
}

func (s *NotificationService) List(unreadOnly bool) ([]models.Notification, error) {
	var notifications []models.Notification
	query := s.DB.Order("created_at desc")
	if unreadOnly {
		query = query.Where("read = ?", false)
	}
	result := query.Find(&notifications)
	return notifications, result.Error
}

func (s *NotificationService) MarkAsRead(id string) error {
	return s.DB.Model(&models.Notification{}).Where("id = ?", id).Update("read", true).Error
}

func (s *NotificationService) MarkAllAsRead() error {
	return s.DB.Model(&models.Notification{}).Where("read = ?", false).Update("read", true).Error
}

// External Notifications (Shoutrrr)

func (s *NotificationService) SendExternal(eventType, title, message string) {
	var providers []models.NotificationProvider
	if err := s.DB.Where("enabled = ?", true).Find(&providers).Error; err != nil {
		logger.Log().WithError(err).Error("fetch notification providers")
		return
	}

	for _, provider := range providers {
		shouldSend := false
		switch eventType {
		case "action":
			shouldSend = provider.NotifyActions
		case "analysis":
			shouldSend = provider.NotifyAnalyses
		case "test":
			shouldSend = true
		}
		if !shouldSend {
			continue
		}

		go func(p models.NotificationProvider) {
			body := fmt.Sprintf("%s\n%s\n%s", title, message, time.Now().Format(time.RFC3339))
			if err := shoutrrr.Send(p.URL, body); err != nil {
				logger.WithFields(map[string]interface{}{"provider": p.Name}).
					WithError(err).Error("send external notification")
			}
		}(provider)
	}
}

// ActionOutcome satisfies manager.Notifier: surface every terminal action
// state, with severity based on how the attempt ended.
func (s *NotificationService) ActionOutcome(exec *models.ActionExecution) {
	title := fmt.Sprintf("Action %s on %s: %s", exec.ActionID, exec.Target, exec.State)

	nType := models.NotificationTypeInfo
	switch exec.State {
	case models.StateCommitted:
		nType = models.NotificationTypeSuccess
	case models.StateRolledBack, models.StateFailed:
		nType = models.NotificationTypeError
	case models.StateRejected:
		nType = models.NotificationTypeWarning
	}

	message := exec.Error
	if message == "" {
		message = "verification passed"
	}
	if _, err := s.Create(nType, title, message); err != nil {
		logger.Log().WithError(err).Error("create action notification")
	}
	s.SendExternal("action", title, message)
}

// AnalysisFailure satisfies analysis.Notifier.
func (s *NotificationService) AnalysisFailure(incident string, cause error) {
	title := fmt.Sprintf("Analysis failed for %s", incident)
	if _, err := s.Create(models.NotificationTypeError, title, cause.Error()); err != nil {
		logger.Log().WithError(err).Error("create analysis notification")
	}
	s.SendExternal("analysis", title, cause.Error())
}

// AnalysisCompleted satisfies analysis.Notifier.
func (s *NotificationService) AnalysisCompleted(incident string, result *analysis.RcaResult) {
	title := fmt.Sprintf("Incident analyzed: %s", incident)
	message := fmt.Sprintf("%s (confidence %.2f, risk %s)", result.RootCause, result.Confidence, result.Risk)
	if _, err := s.Create(models.NotificationTypeInfo, title, message); err != nil {
		logger.Log().WithError(err).Error("create analysis notification")
	}
	s.SendExternal("analysis", title, message)
}
