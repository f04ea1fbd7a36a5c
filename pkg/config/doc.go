// Package config loads beacon configuration from environment variables.
//
// Binaries call godotenv.Load first so a local .env file can supply the same
// variables. Every setting has a default; LoadConfig validates the result.
//
// # Redis
//
//	REDIS_URL="redis://:secret@redis:6379/0"   # overrides host/port/db/password
//	REDIS_HOST="redis"
//	REDIS_PORT="6379"
//	REDIS_DB="0"
//	REDIS_MAX_CONNECTIONS="20"
//
// # Retention (whole seconds)
//
//	EVENT_TTL="2592000"          # 30 days
//	USER_SESSION_TTL="604800"    # 7 days
//	DAILY_COUNTS_TTL="7776000"   # 90 days
//	ANALYTICS_CACHE_TTL="3600"
//
// # Server and auth
//
//	BEACON_ENV="development"     # or production
//	BEACON_HOST="0.0.0.0"
//	BEACON_PORT="5000"
//	ANALYTICS_ADMIN_KEY="dev-key-analytics-2024"
//	BEACON_API_KEYS_FILE="/etc/beacon/keys.yaml"
//	SKIP_AUTH="false"            # honoured only in development
//
// # Jobs and worker
//
//	BEACON_JOB_WORKERS="2"
//	BEACON_JOB_TIMEOUT="10m"
//	BEACON_AGGREGATION_SCHEDULE="@hourly"
//	BEACON_CLEANUP_SCHEDULE="30 3 * * *"
//	BEACON_CLEANUP_COMPACT="false"
//
// # Observability
//
//	LOG_LEVEL="info"
//	BEACON_METRICS_ENABLED="true"
//	BEACON_OTEL_ENABLED="false"
//	BEACON_OTEL_ENDPOINT="localhost:4317"
//
// Usage:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store, err := redisstore.New(cfg.Redis)
package config
