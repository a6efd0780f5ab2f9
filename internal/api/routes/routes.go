package routes

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/wardenops/warden/internal/analysis"
	"github.com/wardenops/warden/internal/api/handlers"
	"github.com/wardenops/warden/internal/api/middleware"
	"github.com/wardenops/warden/internal/config"
	"github.com/wardenops/warden/internal/executor"
	"github.com/wardenops/warden/internal/gateway"
	"github.com/wardenops/warden/internal/journal"
	"github.com/wardenops/warden/internal/llm"
	"github.com/wardenops/warden/internal/logger"
	"github.com/wardenops/warden/internal/manager"
	"github.com/wardenops/warden/internal/metrics"
	"github.com/wardenops/warden/internal/models"
	"github.com/wardenops/warden/internal/policy"
	"github.com/wardenops/warden/internal/services"
)

// App holds the long-lived pieces Register starts, so main can shut them
// down in order: scheduler first, then in-flight executions, then cron.
type App struct {
	Manager   *manager.Manager
	Policies  *policy.Store
	retention *services.RetentionService
	cancel    context.CancelFunc
}

// Shutdown stops background work and drains in-flight executions.
func (a *App) Shutdown(ctx context.Context) error {
	a.cancel()
	err := a.Manager.Drain(ctx)
	a.retention.Stop()
	return err
}

// Register wires up API routes, runs migrations, and starts the analysis
// scheduler and retention cron.
func Register(router *gin.Engine, db *gorm.DB, cfg config.Config) (*App, error) {
	if err := db.AutoMigrate(
		&models.ActionProposal{},
		&models.ActionExecution{},
		&models.JournalRecord{},
		&models.AnalysisRecord{},
		&models.AnalysisCursor{},
		&models.RecurringPattern{},
		&models.Notification{},
		&models.NotificationProvider{},
		&models.User{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics.Register(registry)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	router.GET("/api/v1/health", handlers.HealthHandler)

	api := router.Group("/api/v1")

	policies, err := policy.NewStore(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	logger.Log().WithFields(map[string]interface{}{
		"path":  cfg.PolicyPath,
		"rules": policies.Current().Len(),
	}).Info("Policy loaded")

	jrnl := journal.New(db)
	notificationService := services.NewNotificationService(db)

	gw, err := buildGateway(cfg)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}

	exec := executor.New(policies, jrnl, gw, executor.NewRegistry(),
		time.Duration(cfg.GatewayTimeout)*time.Second)
	mgr := manager.New(db, jrnl, exec, notificationService, cfg.ExecutorEnabled)
	if !cfg.ExecutorEnabled {
		logger.Log().Warn("Executor disabled; proposals will be journaled and rejected")
	}

	backend := llm.New(llm.Options{
		Backend: cfg.LLMBackend,
		APIKey:  cfg.OpenAIKey,
		Model:   cfg.OpenAIModel,
	})
	logger.Log().WithField("backend", backend.Name()).Info("Model backend selected")

	scheduler := analysis.NewScheduler(db, jrnl, backend, notificationService, analysis.Options{
		IncidentDir: cfg.IncidentDir,
		SecretsPath: cfg.SecretsPath,
		Rate:        time.Duration(cfg.AnalysisRate) * time.Second,
		MaxLines:    cfg.AnalysisMaxLines,
		LLMTimeout:  time.Duration(cfg.LLMTimeout) * time.Second,
		BackoffCap:  time.Duration(cfg.AnalysisBackoffCap) * time.Second,
	})

	bgCtx, cancel := context.WithCancel(context.Background())
	go scheduler.Run(bgCtx)

	retention := services.NewRetentionService(db, jrnl, 0)
	if err := retention.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("retention cron: %w", err)
	}

	// Auth
	authService := services.NewAuthService(db, cfg)
	if err := authService.EnsureAdmin(cfg.AdminEmail, cfg.AdminPassword); err != nil {
		logger.Log().WithError(err).Warn("Admin bootstrap failed")
	}
	authHandler := handlers.NewAuthHandler(authService)
	authMiddleware := middleware.AuthMiddleware(authService)

	api.POST("/auth/login", authHandler.Login)

	protected := api.Group("/")
	protected.Use(authMiddleware)
	{
		protected.POST("/auth/logout", authHandler.Logout)
		protected.GET("/auth/me", authHandler.Me)

		// Actions
		actionHandler := handlers.NewActionHandler(mgr)
		protected.POST("/actions", actionHandler.Propose)
		protected.GET("/actions/pending", actionHandler.Pending)
		protected.GET("/actions/:id", actionHandler.Status)
		protected.POST("/actions/:id/approve", actionHandler.Approve)

		// Analyses
		analysisHandler := handlers.NewAnalysisHandler(db)
		protected.GET("/analyses", analysisHandler.List)
		protected.GET("/analyses/:id", analysisHandler.Get)

		// Policy
		policyHandler := handlers.NewPolicyHandler(policies)
		protected.GET("/policy", policyHandler.List)
		protected.POST("/policy/reload", policyHandler.Reload)

		// Notifications
		notificationHandler := handlers.NewNotificationHandler(notificationService)
		protected.GET("/notifications", notificationHandler.List)
		protected.POST("/notifications/:id/read", notificationHandler.MarkRead)
		protected.POST("/notifications/read-all", notificationHandler.MarkAllRead)
	}

	return &App{Manager: mgr, Policies: policies, retention: retention, cancel: cancel}, nil
}

func buildGateway(cfg config.Config) (gateway.Gateway, error) {
	budget := gateway.RetryBudget{
		MaxAttempts: cfg.GatewayAttempts,
		Backoff:     500 * time.Millisecond,
	}
	switch cfg.GatewayKind {
	case "docker":
		return gateway.NewDockerGateway(budget)
	default:
		return gateway.NewClient(cfg.PlatformAPIURL, cfg.PlatformToken,
			time.Duration(cfg.GatewayTimeout)*time.Second, budget), nil
	}
}
