// Package config provides configuration management functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/symrefresh/internal/clients/ingest"
	"github.com/aristath/symrefresh/internal/modules/universe"
	"github.com/aristath/symrefresh/internal/refresh"
)

// Registry storage backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

var (
	// ErrMissingAPIKey is returned when ADMIN_API_KEY is unset.
	ErrMissingAPIKey = errors.New("ADMIN_API_KEY is required for scheduled refresh runs")
	// ErrIngestDisabled is returned when INGEST_ENABLED is not "true".
	ErrIngestDisabled = errors.New("ingestion is disabled (INGEST_ENABLED != true)")
)

// Config holds application configuration
type Config struct {
	DataDir             string // Base directory for registry, run state and databases (always absolute)
	RegistryPath        string
	RunStatePath        string
	RegistryBackend     string // "json" or "sqlite"
	DatabasePath        string
	ProcessedDir        string // Per-symbol payloads already ingested; fallback candidate source
	SeedPath            string // Discovery seed listing
	LogLevel            string
	LogPretty           bool
	Port                int
	DevMode             bool
	RefreshSchedule     string
	MaintenanceSchedule string
	Ingest              IngestConfig
	Backup              BackupConfig
}

// IngestConfig holds settings for the downstream ingestion service and
// the refresh run.
type IngestConfig struct {
	BaseURL     string
	AdminAPIKey string
	Enabled     bool
	RateLimit   time.Duration
	MaxPerRun   int
	Allowlist   universe.Allowlist
	Attempts    int
	RetryDelay  time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// BackupConfig holds S3-compatible snapshot backup settings.
type BackupConfig struct {
	Enabled         bool
	Bucket          string
	Endpoint        string // Empty for AWS, set for R2/MinIO
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Schedule        string
	RetentionDays   int
}

// RetryPolicy returns the ingestion retry settings.
func (c IngestConfig) RetryPolicy() ingest.RetryPolicy {
	return ingest.RetryPolicy{Attempts: c.Attempts, Delay: c.RetryDelay}
}

// Policy returns the decision policy built from the backoff settings.
func (c IngestConfig) Policy() refresh.Policy {
	return refresh.Policy{Backoff: refresh.BackoffPolicy{Base: c.BackoffBase, Max: c.BackoffMax}}
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	absDataDir, err := filepath.Abs(getEnv("DATA_DIR", "data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	systemDir := filepath.Join(absDataDir, "system")
	if err := os.MkdirAll(systemDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:             absDataDir,
		RegistryPath:        getEnv("REGISTRY_PATH", filepath.Join(systemDir, "symbol_registry.json")),
		RunStatePath:        getEnv("RUN_STATE_PATH", filepath.Join(systemDir, "last_ingestion.json")),
		RegistryBackend:     strings.ToLower(getEnv("REGISTRY_BACKEND", BackendJSON)),
		DatabasePath:        getEnv("DATABASE_PATH", filepath.Join(absDataDir, "symrefresh.db")),
		ProcessedDir:        getEnv("PROCESSED_DIR", filepath.Join(absDataDir, "processed")),
		SeedPath:            getEnv("DISCOVERY_SEED_PATH", filepath.Join(absDataDir, "seed", "symbols.json")),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogPretty:           getEnvAsBool("LOG_PRETTY", false),
		Port:                getEnvAsInt("GO_PORT", 8001),
		DevMode:             getEnvAsBool("DEV_MODE", false),
		RefreshSchedule:     getEnv("REFRESH_SCHEDULE", "0 */15 * * * *"),
		MaintenanceSchedule: getEnv("MAINTENANCE_SCHEDULE", "0 0 2 * * *"),
		Ingest:              loadIngestConfig(),
		Backup:              loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadIngestConfig() IngestConfig {
	baseURL := strings.TrimRight(getEnv("INGEST_BASE_URL", ingest.DefaultBaseURL), "/")

	return IngestConfig{
		BaseURL:     baseURL,
		AdminAPIKey: strings.TrimSpace(os.Getenv("ADMIN_API_KEY")),
		Enabled:     strings.EqualFold(strings.TrimSpace(os.Getenv("INGEST_ENABLED")), "true"),
		RateLimit:   max(getEnvAsSeconds("INGEST_RATE_LIMIT_SECONDS", 5*time.Second), 0),
		MaxPerRun:   getEnvAsInt("INGEST_MAX_PER_RUN", 50),
		Allowlist:   universe.ParseAllowlist(os.Getenv("INGEST_ALLOWLIST")),
		Attempts:    getEnvAsInt("REFRESH_ATTEMPTS", 2),
		RetryDelay:  getEnvAsSeconds("REFRESH_RETRY_DELAY_SECONDS", 2*time.Second),
		BackoffBase: time.Duration(getEnvAsInt("BACKOFF_BASE_MINUTES", 5)) * time.Minute,
		BackoffMax:  time.Duration(getEnvAsInt("BACKOFF_MAX_HOURS", 24)) * time.Hour,
	}
}

func loadBackupConfig() BackupConfig {
	return BackupConfig{
		Enabled:         getEnvAsBool("BACKUP_ENABLED", false),
		Bucket:          getEnv("BACKUP_BUCKET", ""),
		Endpoint:        getEnv("BACKUP_ENDPOINT", ""),
		Region:          getEnv("BACKUP_REGION", "auto"),
		AccessKeyID:     getEnv("BACKUP_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("BACKUP_SECRET_ACCESS_KEY", ""),
		Schedule:        getEnv("BACKUP_SCHEDULE", "0 0 3 * * *"),
		RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
	}
}

// Validate checks the shape of the configuration. It does not require
// ingestion credentials; see ValidateIngest.
func (c *Config) Validate() error {
	if c.RegistryBackend != BackendJSON && c.RegistryBackend != BackendSQLite {
		return fmt.Errorf("invalid REGISTRY_BACKEND %q: must be %q or %q", c.RegistryBackend, BackendJSON, BackendSQLite)
	}
	if c.Ingest.MaxPerRun < 0 {
		return fmt.Errorf("INGEST_MAX_PER_RUN must be non-negative, got %d", c.Ingest.MaxPerRun)
	}
	if c.Ingest.Attempts < 1 {
		return fmt.Errorf("REFRESH_ATTEMPTS must be at least 1, got %d", c.Ingest.Attempts)
	}
	if c.Ingest.RetryDelay < 0 {
		return fmt.Errorf("REFRESH_RETRY_DELAY_SECONDS must be non-negative")
	}
	if c.Ingest.BackoffBase <= 0 || c.Ingest.BackoffMax < c.Ingest.BackoffBase {
		return fmt.Errorf("backoff window must satisfy 0 < BACKOFF_BASE_MINUTES <= BACKOFF_MAX_HOURS")
	}
	if c.Backup.Enabled {
		if c.Backup.Bucket == "" || c.Backup.AccessKeyID == "" || c.Backup.SecretAccessKey == "" {
			return fmt.Errorf("BACKUP_BUCKET, BACKUP_ACCESS_KEY_ID and BACKUP_SECRET_ACCESS_KEY are required when BACKUP_ENABLED=true")
		}
		if c.Backup.RetentionDays < 1 {
			return fmt.Errorf("BACKUP_RETENTION_DAYS must be at least 1, got %d", c.Backup.RetentionDays)
		}
	}
	return nil
}

// ValidateIngest checks what a refresh run needs before touching the registry.
func (c *Config) ValidateIngest() error {
	if !c.Ingest.Enabled {
		return ErrIngestDisabled
	}
	if c.Ingest.AdminAPIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsSeconds parses a possibly fractional number of seconds.
func getEnvAsSeconds(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if secs, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return defaultValue
}
