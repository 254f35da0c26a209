package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/symrefresh/internal/modules/universe"
)

var configKeys = []string{
	"INGEST_BASE_URL", "ADMIN_API_KEY", "INGEST_ENABLED", "INGEST_RATE_LIMIT_SECONDS",
	"INGEST_MAX_PER_RUN", "INGEST_ALLOWLIST", "REGISTRY_PATH", "RUN_STATE_PATH",
	"REGISTRY_BACKEND", "DATABASE_PATH", "GO_PORT", "REFRESH_SCHEDULE", "REFRESH_ATTEMPTS",
	"REFRESH_RETRY_DELAY_SECONDS", "BACKOFF_BASE_MINUTES", "BACKOFF_MAX_HOURS",
	"BACKUP_ENABLED", "BACKUP_BUCKET", "BACKUP_ACCESS_KEY_ID", "BACKUP_SECRET_ACCESS_KEY",
	"BACKUP_RETENTION_DAYS", "LOG_LEVEL", "LOG_PRETTY", "DEV_MODE",
}

// setupEnv clears every key Load reads and points DATA_DIR at a temp dir.
func setupEnv(t *testing.T) string {
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	dir := setupEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "system", "symbol_registry.json"), cfg.RegistryPath)
	assert.Equal(t, filepath.Join(dir, "system", "last_ingestion.json"), cfg.RunStatePath)
	assert.Equal(t, BackendJSON, cfg.RegistryBackend)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "0 */15 * * * *", cfg.RefreshSchedule)

	assert.Equal(t, "http://127.0.0.1:8000", cfg.Ingest.BaseURL)
	assert.False(t, cfg.Ingest.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Ingest.RateLimit)
	assert.Equal(t, 50, cfg.Ingest.MaxPerRun)
	assert.Len(t, cfg.Ingest.Allowlist, len(universe.DefaultAllowlist))
	assert.Equal(t, 2, cfg.Ingest.RetryPolicy().Attempts)
	assert.Equal(t, 2*time.Second, cfg.Ingest.RetryPolicy().Delay)
	assert.Equal(t, 5*time.Minute, cfg.Ingest.Policy().Backoff.Base)
	assert.Equal(t, 24*time.Hour, cfg.Ingest.Policy().Backoff.Max)
	assert.False(t, cfg.Backup.Enabled)
}

func TestLoad_Overrides(t *testing.T) {
	setupEnv(t)
	t.Setenv("INGEST_BASE_URL", "https://ingest.example.com/")
	t.Setenv("ADMIN_API_KEY", " secret ")
	t.Setenv("INGEST_ENABLED", "TRUE")
	t.Setenv("INGEST_RATE_LIMIT_SECONDS", "0.5")
	t.Setenv("INGEST_MAX_PER_RUN", "0")
	t.Setenv("INGEST_ALLOWLIST", "tcs\ninfy")
	t.Setenv("REGISTRY_BACKEND", "SQLite")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://ingest.example.com", cfg.Ingest.BaseURL)
	assert.Equal(t, "secret", cfg.Ingest.AdminAPIKey)
	assert.True(t, cfg.Ingest.Enabled)
	assert.Equal(t, 500*time.Millisecond, cfg.Ingest.RateLimit)
	assert.Equal(t, 0, cfg.Ingest.MaxPerRun)
	assert.Equal(t, []string{"INFY", "TCS"}, cfg.Ingest.Allowlist.Symbols())
	assert.Equal(t, BackendSQLite, cfg.RegistryBackend)
	assert.NoError(t, cfg.ValidateIngest())
}

func TestLoad_NegativeRateLimitClampsToZero(t *testing.T) {
	setupEnv(t)
	t.Setenv("INGEST_RATE_LIMIT_SECONDS", "-3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.Ingest.RateLimit)
}

func TestLoad_InvalidShape(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"negative budget", "INGEST_MAX_PER_RUN", "-1"},
		{"unknown backend", "REGISTRY_BACKEND", "postgres"},
		{"zero attempts", "REFRESH_ATTEMPTS", "0"},
		{"backup without bucket", "BACKUP_ENABLED", "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestValidateIngest(t *testing.T) {
	cfg := &Config{Ingest: IngestConfig{Enabled: false, AdminAPIKey: "key"}}
	assert.ErrorIs(t, cfg.ValidateIngest(), ErrIngestDisabled)

	cfg.Ingest.Enabled = true
	cfg.Ingest.AdminAPIKey = ""
	assert.ErrorIs(t, cfg.ValidateIngest(), ErrMissingAPIKey)

	cfg.Ingest.AdminAPIKey = "key"
	assert.NoError(t, cfg.ValidateIngest())
}
