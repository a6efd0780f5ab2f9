package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config captures runtime configuration sourced from environment variables.
type Config struct {
	Environment  string
	HTTPPort     string
	DatabasePath string
	HealthFile   string // touched periodically while the agent is alive; empty disables

	// Policy engine
	PolicyPath      string
	ExecutorEnabled bool

	// Analysis scheduling
	IncidentDir        string
	SecretsPath        string
	AnalysisRate       int // seconds between scheduler ticks
	AnalysisMaxLines   int // most recent incident lines kept per context bundle
	AnalysisBackoffCap int // seconds; ceiling for failure backoff

	// Model backend. An empty OpenAIKey always selects the mock backend.
	LLMBackend  string
	OpenAIKey   string
	OpenAIModel string
	LLMTimeout  int // seconds per model call

	// Platform gateway
	GatewayKind     string // "http" or "docker"
	PlatformAPIURL  string
	PlatformToken   string
	GatewayTimeout  int // seconds per gateway call
	GatewayAttempts int // retry budget per gateway call

	// Auth
	JWTSecret     string
	AdminEmail    string
	AdminPassword string
}

// Load reads env vars and falls back to defaults so the agent can boot with zero configuration.
func Load() (Config, error) {
	cfg := Config{
		Environment:  getEnv("WARDEN_ENV", "development"),
		HTTPPort:     getEnv("WARDEN_HTTP_PORT", "8099"),
		DatabasePath: getEnv("WARDEN_DB_PATH", filepath.Join("data", "warden.db")),
		HealthFile:   getEnv("WARDEN_HEALTH_FILE", filepath.Join("data", "health")),

		PolicyPath:      getEnv("WARDEN_POLICY_PATH", filepath.Join("data", "policy.yaml")),
		ExecutorEnabled: getEnv("WARDEN_EXECUTOR_ENABLED", "false") == "true",

		IncidentDir:        getEnv("WARDEN_INCIDENT_DIR", filepath.Join("data", "incidents")),
		SecretsPath:        getEnv("WARDEN_SECRETS_PATH", filepath.Join("config", "secrets.yaml")),
		AnalysisRate:       getEnvInt("WARDEN_ANALYSIS_RATE_SECONDS", 60),
		AnalysisMaxLines:   getEnvInt("WARDEN_ANALYSIS_MAX_LINES", 50),
		AnalysisBackoffCap: getEnvInt("WARDEN_ANALYSIS_BACKOFF_CAP_SECONDS", 900),

		LLMBackend:  getEnv("WARDEN_LLM_BACKEND", ""),
		OpenAIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIModel: getEnv("WARDEN_OPENAI_MODEL", "gpt-4o-mini"),
		LLMTimeout:  getEnvInt("WARDEN_LLM_TIMEOUT_SECONDS", 360),

		GatewayKind:     getEnv("WARDEN_GATEWAY", "http"),
		PlatformAPIURL:  getEnv("WARDEN_PLATFORM_API_URL", "http://supervisor"),
		PlatformToken:   getEnv("WARDEN_PLATFORM_TOKEN", ""),
		GatewayTimeout:  getEnvInt("WARDEN_GATEWAY_TIMEOUT_SECONDS", 30),
		GatewayAttempts: getEnvInt("WARDEN_GATEWAY_ATTEMPTS", 3),

		JWTSecret:     getEnv("WARDEN_JWT_SECRET", ""),
		AdminEmail:    getEnv("WARDEN_ADMIN_EMAIL", "admin@localhost"),
		AdminPassword: getEnv("WARDEN_ADMIN_PASSWORD", ""),
	}

	if cfg.AnalysisRate <= 0 {
		return Config{}, fmt.Errorf("WARDEN_ANALYSIS_RATE_SECONDS must be positive")
	}
	if cfg.AnalysisMaxLines <= 0 {
		return Config{}, fmt.Errorf("WARDEN_ANALYSIS_MAX_LINES must be positive")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}
