package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/beacon/pkg/events"
	"github.com/platinummonkey/beacon/pkg/jobs"
	"github.com/platinummonkey/beacon/pkg/observability"
	"github.com/platinummonkey/beacon/pkg/storage/redisstore"
)

// Environments recognised by BEACON_ENV
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config holds all application configuration
type Config struct {
	// Env is development or production. Development switches to text logs and
	// allows SKIP_AUTH.
	Env string

	Server        ServerConfig
	Redis         redisstore.Config
	Retention     events.Retention
	ReadCache     ReadCacheConfig
	Auth          AuthConfig
	Jobs          jobs.Config
	Worker        WorkerConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Addr is the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// ReadCacheConfig controls the in-process analytics read cache. A zero TTL
// disables it.
type ReadCacheConfig struct {
	TTL  time.Duration
	Size int
}

// AuthConfig holds API key settings
type AuthConfig struct {
	AdminKey string
	KeysFile string
	// WatchKeysFile reloads KeysFile when it changes on disk
	WatchKeysFile bool
	SkipAuth      bool
}

// WorkerConfig holds cron schedules for the maintenance worker
type WorkerConfig struct {
	AggregationSchedule string
	CleanupSchedule     string
	CompactIndexes      bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
	Tracing        observability.TracingConfig
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Env:           strings.ToLower(getEnv("BEACON_ENV", EnvDevelopment)),
		Server:        loadServerConfig(),
		Redis:         loadRedisConfig(),
		Retention:     loadRetention(),
		ReadCache:     loadReadCacheConfig(),
		Auth:          loadAuthConfig(),
		Jobs:          loadJobsConfig(),
		Worker:        loadWorkerConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// IsDevelopment reports whether the service runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// AuthDisabled reports whether requests skip API key checks. SKIP_AUTH is
// ignored outside development.
func (c *Config) AuthDisabled() bool {
	return c.IsDevelopment() && c.Auth.SkipAuth
}

// LogFormat picks the log handler for the environment
func (c *Config) LogFormat() observability.LogFormat {
	if c.IsDevelopment() {
		return observability.TextFormat
	}
	return observability.JSONFormat
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("BEACON_HOST", "0.0.0.0"),
		Port:            getEnv("BEACON_PORT", "5000"),
		ReadTimeout:     getEnvDuration("BEACON_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("BEACON_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     getEnvDuration("BEACON_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("BEACON_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadRedisConfig() redisstore.Config {
	cfg := redisstore.DefaultConfig()

	cfg.URL = getEnv("REDIS_URL", "")
	cfg.Host = getEnv("REDIS_HOST", cfg.Host)
	cfg.Port = getEnvInt("REDIS_PORT", cfg.Port)
	cfg.DB = getEnvInt("REDIS_DB", cfg.DB)
	cfg.Password = getEnv("REDIS_PASSWORD", "")
	cfg.PoolSize = getEnvInt("REDIS_MAX_CONNECTIONS", cfg.PoolSize)
	cfg.DialTimeout = getEnvDuration("REDIS_CONNECT_TIMEOUT", cfg.DialTimeout)
	cfg.ReadTimeout = getEnvDuration("REDIS_SOCKET_TIMEOUT", cfg.ReadTimeout)
	cfg.WriteTimeout = cfg.ReadTimeout
	cfg.HealthCheckInterval = getEnvDuration("REDIS_HEALTH_CHECK_INTERVAL", cfg.HealthCheckInterval)

	return cfg
}

// loadRetention reads the TTL variables, which are whole seconds
func loadRetention() events.Retention {
	def := events.DefaultRetention()
	return events.Retention{
		Events:         getEnvSeconds("EVENT_TTL", def.Events),
		Sessions:       getEnvSeconds("USER_SESSION_TTL", def.Sessions),
		DailyCounts:    getEnvSeconds("DAILY_COUNTS_TTL", def.DailyCounts),
		AnalyticsCache: getEnvSeconds("ANALYTICS_CACHE_TTL", def.AnalyticsCache),
	}
}

func loadReadCacheConfig() ReadCacheConfig {
	return ReadCacheConfig{
		TTL:  getEnvDuration("BEACON_READ_CACHE_TTL", 0),
		Size: getEnvInt("BEACON_READ_CACHE_SIZE", 1024),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		AdminKey:      getEnv("ANALYTICS_ADMIN_KEY", "dev-key-analytics-2024"),
		KeysFile:      getEnv("BEACON_API_KEYS_FILE", ""),
		WatchKeysFile: getEnvBool("BEACON_API_KEYS_WATCH", false),
		SkipAuth:      getEnvBool("SKIP_AUTH", false),
	}
}

func loadJobsConfig() jobs.Config {
	cfg := jobs.DefaultConfig()
	cfg.Workers = getEnvInt("BEACON_JOB_WORKERS", cfg.Workers)
	cfg.QueueSize = getEnvInt("BEACON_JOB_QUEUE_SIZE", cfg.QueueSize)
	cfg.Timeout = getEnvDuration("BEACON_JOB_TIMEOUT", cfg.Timeout)
	cfg.Retention = getEnvDuration("BEACON_JOB_RETENTION", cfg.Retention)
	return cfg
}

func loadWorkerConfig() WorkerConfig {
	return WorkerConfig{
		AggregationSchedule: getEnv("BEACON_AGGREGATION_SCHEDULE", "@hourly"),
		CleanupSchedule:     getEnv("BEACON_CLEANUP_SCHEDULE", "30 3 * * *"),
		CompactIndexes:      getEnvBool("BEACON_CLEANUP_COMPACT", false),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLogLevel(getEnv("LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("BEACON_METRICS_ENABLED", true),
		Tracing: observability.TracingConfig{
			Enabled:        getEnvBool("BEACON_OTEL_ENABLED", false),
			Endpoint:       getEnv("BEACON_OTEL_ENDPOINT", "localhost:4317"),
			ServiceName:    getEnv("BEACON_OTEL_SERVICE_NAME", "beacon"),
			ServiceVersion: getEnv("BEACON_OTEL_SERVICE_VERSION", "1.0.0"),
			Insecure:       getEnvBool("BEACON_OTEL_INSECURE", true),
			SampleRatio:    getEnvFloat("BEACON_OTEL_SAMPLE_RATIO", 1),
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		return fmt.Errorf("invalid environment: %s (must be development or production)", c.Env)
	}

	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Redis.URL == "" && c.Redis.Host == "" {
		return fmt.Errorf("redis host or URL is required")
	}
	if c.Redis.PoolSize <= 0 {
		return fmt.Errorf("redis pool size must be positive, got %d", c.Redis.PoolSize)
	}

	for name, ttl := range map[string]time.Duration{
		"EVENT_TTL":           c.Retention.Events,
		"USER_SESSION_TTL":    c.Retention.Sessions,
		"DAILY_COUNTS_TTL":    c.Retention.DailyCounts,
		"ANALYTICS_CACHE_TTL": c.Retention.AnalyticsCache,
	} {
		if ttl < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}

	if c.ReadCache.TTL < 0 {
		return fmt.Errorf("read cache TTL must not be negative")
	}
	if c.ReadCache.TTL > 0 && c.ReadCache.Size <= 0 {
		return fmt.Errorf("read cache size must be positive, got %d", c.ReadCache.Size)
	}

	if c.Auth.AdminKey == "" {
		return fmt.Errorf("admin API key is required")
	}
	if c.Auth.WatchKeysFile && c.Auth.KeysFile == "" {
		return fmt.Errorf("BEACON_API_KEYS_WATCH requires BEACON_API_KEYS_FILE")
	}

	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("job workers must be positive, got %d", c.Jobs.Workers)
	}
	if c.Jobs.Timeout <= 0 {
		return fmt.Errorf("job timeout must be positive")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Worker.AggregationSchedule); err != nil {
		return fmt.Errorf("invalid aggregation schedule %q: %w", c.Worker.AggregationSchedule, err)
	}
	if _, err := parser.Parse(c.Worker.CleanupSchedule); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", c.Worker.CleanupSchedule, err)
	}

	if c.Observability.Tracing.Enabled {
		if c.Observability.Tracing.Endpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.Tracing.ServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvSeconds reads an integer number of seconds
func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
