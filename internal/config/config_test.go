package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WARDEN_DB_PATH", filepath.Join(t.TempDir(), "warden.db"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "8099", cfg.HTTPPort)
	assert.False(t, cfg.ExecutorEnabled)
	assert.Equal(t, 60, cfg.AnalysisRate)
	assert.Equal(t, 50, cfg.AnalysisMaxLines)
	assert.Equal(t, 900, cfg.AnalysisBackoffCap)
	assert.Equal(t, "http", cfg.GatewayKind)
	assert.Equal(t, 3, cfg.GatewayAttempts)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	assert.Equal(t, filepath.Join("data", "health"), cfg.HealthFile)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WARDEN_DB_PATH", filepath.Join(t.TempDir(), "warden.db"))
	t.Setenv("WARDEN_ENV", "production")
	t.Setenv("WARDEN_HTTP_PORT", "9000")
	t.Setenv("WARDEN_EXECUTOR_ENABLED", "true")
	t.Setenv("WARDEN_ANALYSIS_RATE_SECONDS", "30")
	t.Setenv("WARDEN_GATEWAY", "docker")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.True(t, cfg.ExecutorEnabled)
	assert.Equal(t, 30, cfg.AnalysisRate)
	assert.Equal(t, "docker", cfg.GatewayKind)
}

func TestLoadRejectsNonPositiveRate(t *testing.T) {
	t.Setenv("WARDEN_DB_PATH", filepath.Join(t.TempDir(), "warden.db"))
	t.Setenv("WARDEN_ANALYSIS_RATE_SECONDS", "-1")

	_, err := Load()
	assert.Error(t, err)
}

func TestGetEnvIntIgnoresGarbage(t *testing.T) {
	t.Setenv("WARDEN_ANALYSIS_MAX_LINES", "many")
	assert.Equal(t, 50, getEnvInt("WARDEN_ANALYSIS_MAX_LINES", 50))
}
