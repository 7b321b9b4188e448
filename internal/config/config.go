package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Config holds all configuration for the attrition prediction server.
type Config struct {
	Server    ServerConfig
	Model     ModelConfig
	Database  DatabaseConfig
	Audit     AuditConfig
	Retention RetentionConfig
	Redis     RedisConfig
	Auth      AuthConfig
}

type ServerConfig struct {
	Port            int
	Env             string
	ShutdownTimeout time.Duration
}

type ModelConfig struct {
	Path         string
	MetadataPath string
	BatchMaxSize int
}

// DatabaseConfig configures the optional audit store. An empty URL disables
// audit logging.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsPath  string
}

func (d DatabaseConfig) Enabled() bool { return d.URL != "" }

type AuditConfig struct {
	QueueSize int
	Workers   int
}

type RetentionConfig struct {
	Days          int
	SweepInterval time.Duration
}

// RedisConfig configures the optional cache. An empty URL disables rate
// limiting and explanation caching.
type RedisConfig struct {
	URL                 string
	RateLimitPerMinute  int
	ExplanationCacheTTL time.Duration
}

func (r RedisConfig) Enabled() bool { return r.URL != "" }

// AuthConfig holds the bcrypt hash of the API key. Empty means the API is open.
type AuthConfig struct {
	APIKeyHash string
}

const maxBatchSize = 10000

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any value is invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            envInt("ATTRITION_PORT", 8080),
			Env:             envString("ATTRITION_ENV", "development"),
			ShutdownTimeout: envDurationSecs("ATTRITION_SHUTDOWN_TIMEOUT_SECS", 30*time.Second),
		},
		Model: ModelConfig{
			Path:         envString("MODEL_PATH", "model/hr_attrition_xgb_enhanced.json.gz"),
			MetadataPath: envString("MODEL_METADATA_PATH", "model/feature_metadata.json"),
			BatchMaxSize: envInt("BATCH_MAX_SIZE", 100),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsPath:  envString("MIGRATIONS_PATH", "migrations"),
		},
		Audit: AuditConfig{
			QueueSize: envInt("AUDIT_QUEUE_SIZE", 256),
			Workers:   envInt("AUDIT_WORKERS", 2),
		},
		Retention: RetentionConfig{
			Days:          envInt("RETENTION_DAYS", 365),
			SweepInterval: envDuration("RETENTION_SWEEP_INTERVAL", 24*time.Hour),
		},
		Redis: RedisConfig{
			URL:                 os.Getenv("REDIS_URL"),
			RateLimitPerMinute:  envInt("RATE_LIMIT_PER_MINUTE", 60),
			ExplanationCacheTTL: envDuration("EXPLANATION_CACHE_TTL", time.Hour),
		},
		Auth: AuthConfig{
			APIKeyHash: os.Getenv("API_KEY_HASH"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("ATTRITION_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Model.Path == "" {
		return fmt.Errorf("MODEL_PATH is required")
	}
	if c.Model.MetadataPath == "" {
		return fmt.Errorf("MODEL_METADATA_PATH is required")
	}
	if c.Model.BatchMaxSize < 1 || c.Model.BatchMaxSize > maxBatchSize {
		return fmt.Errorf("BATCH_MAX_SIZE must be between 1 and %d, got %d", maxBatchSize, c.Model.BatchMaxSize)
	}

	if c.Database.Enabled() &&
		!strings.HasPrefix(c.Database.URL, "postgres://") && !strings.HasPrefix(c.Database.URL, "postgresql://") {
		return fmt.Errorf("DATABASE_URL must start with postgres:// or postgresql://")
	}
	if c.Audit.QueueSize < 1 {
		return fmt.Errorf("AUDIT_QUEUE_SIZE must be positive, got %d", c.Audit.QueueSize)
	}
	if c.Audit.Workers < 1 {
		return fmt.Errorf("AUDIT_WORKERS must be positive, got %d", c.Audit.Workers)
	}

	if c.Retention.Days < 0 {
		return fmt.Errorf("RETENTION_DAYS must not be negative, got %d", c.Retention.Days)
	}
	if c.Retention.SweepInterval < 0 {
		return fmt.Errorf("RETENTION_SWEEP_INTERVAL must not be negative, got %s", c.Retention.SweepInterval)
	}

	if c.Redis.Enabled() &&
		!strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://")
	}
	if c.Redis.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative, got %d", c.Redis.RateLimitPerMinute)
	}

	if c.Auth.APIKeyHash != "" {
		if _, err := bcrypt.Cost([]byte(c.Auth.APIKeyHash)); err != nil {
			return fmt.Errorf("API_KEY_HASH is not a bcrypt hash: %w", err)
		}
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
