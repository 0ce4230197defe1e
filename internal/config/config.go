// Package config loads the engine's environment-backed connection
// settings (Redis, MinIO, status server) the way the teacher service
// did, plus a richer YAML-backed catalog of skills, filter thresholds
// and rate limits that the distilled spec leaves as "configuration".
//
// Loading a --config file path, or parsing CLI flags, is the external
// driver's job (spec.md §1 Non-goals); this package only defines and
// parses the shape once a path is handed to it.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the environment-backed connection settings for the
// optional caching/storage/status layers.
type Config struct {
	// RemoteBaseURL is the subscription platform's API origin, e.g.
	// "https://learning.oreilly.com".
	RemoteBaseURL string
	// SearchAPIVersion selects the v1 or v2 remote search endpoint
	// shape (spec.md §6); "v1" or "v2".
	SearchAPIVersion string

	// Status/metrics HTTP surface.
	StatusPort string

	// Redis completion cache.
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// MinIO object storage sink.
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
	MinIORegion    string

	// PresignedURLExpiry controls how long a MinIO download link stays
	// valid once issued.
	PresignedURLExpiry time.Duration

	// CookiesPath is where the credential bundle lives on disk.
	CookiesPath string

	// EventLogPath is where the default Event Sink writes structured
	// JSON log lines.
	EventLogPath string

	// MetricsAddr is the optional HTTP listen address for the
	// Prometheus /metrics endpoint; empty disables it.
	MetricsAddr string

	// ProgressPath is the snapshot file the status server reads to
	// answer GET /api/status; it never writes to it.
	ProgressPath string
}

// Load reads environment variables (and a .env file, if present) into a
// Config, applying the same defaults the teacher service used.
func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		RemoteBaseURL:      getEnv("REMOTE_BASE_URL", "https://learning.oreilly.com"),
		SearchAPIVersion:   getEnv("SEARCH_API_VERSION", "v2"),
		StatusPort:         getEnv("STATUS_PORT", "3000"),
		RedisHost:          getEnv("REDIS_HOST", "localhost"),
		RedisPort:          getEnv("REDIS_PORT", "6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		MinIOEndpoint:      getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:     getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:     getEnv("MINIO_SECRET_KEY", ""),
		MinIOBucket:        getEnv("MINIO_BUCKET", "oreilly-library"),
		MinIOUseSSL:        getEnvBool("MINIO_USE_SSL", false),
		MinIORegion:        getEnv("MINIO_REGION", "us-east-1"),
		PresignedURLExpiry: getEnvDuration("PRESIGNED_URL_EXPIRY", 24*time.Hour),
		CookiesPath:        getEnv("COOKIES_PATH", "cookies.json"),
		EventLogPath:       getEnv("EVENT_LOG_PATH", "oreilly-library.log"),
		MetricsAddr:        getEnv("METRICS_ADDR", ""),
		ProgressPath:       getEnv("PROGRESS_PATH", "progress.json"),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
