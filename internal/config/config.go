// Package config reads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Data source kinds.
const (
	SourceHTTP     = "http"
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config holds settings shared by the API, the worker and the CLI.
type Config struct {
	Port        string
	Environment string
	LogLevel    zerolog.Level
	RequireTLS  bool

	// DataSource selects where partitions come from: http, file or postgres.
	DataSource       string
	DataBaseURL      string
	DataDir          string
	FetchTimeout     time.Duration
	FetchConcurrency int
	FetchRetries     int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	PubSubProjectID    string
	PubSubSubscription string

	ExportDir   string
	URLDebounce time.Duration
	MaxSessions int

	// PrewarmYears and PrewarmRegions form the default prewarm selection.
	PrewarmYears   []int
	PrewarmRegions []string

	OTelEnabled  bool
	OTLPEndpoint string
}

// LoadDotEnv loads .env files when present. Existing variables win.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// FromEnv reads the configuration from environment variables.
func FromEnv() Config {
	level, err := zerolog.ParseLevel(strings.ToLower(getEnv("LOG_LEVEL", "info")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return Config{
		Port:        getEnv("APP_PORT", "8080"),
		Environment: getEnv("APP_ENV", "development"),
		LogLevel:    level,
		RequireTLS:  os.Getenv("REQUIRE_TLS") == "true",

		DataSource:       strings.ToLower(getEnv("DATA_SOURCE", SourceHTTP)),
		DataBaseURL:      getEnv("DATA_BASE_URL", "http://localhost:8000/data"),
		DataDir:          getEnv("DATA_DIR", "data"),
		FetchTimeout:     getDuration("FETCH_TIMEOUT", 30*time.Second),
		FetchConcurrency: getInt("FETCH_CONCURRENCY", 4),
		FetchRetries:     getInt("FETCH_RETRIES", 3),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),
		RedisTTL:      getDuration("REDIS_TTL", 0),

		PubSubProjectID:    os.Getenv("PUBSUB_PROJECT_ID"),
		PubSubSubscription: getEnv("PUBSUB_SUBSCRIPTION", "sewik-worker"),

		ExportDir:   getEnv("EXPORT_DIR", "exports"),
		URLDebounce: getDuration("URL_DEBOUNCE", 300*time.Millisecond),
		MaxSessions: getInt("MAX_SESSIONS", 1000),

		PrewarmYears:   getInts("PREWARM_YEARS"),
		PrewarmRegions: getStrings("PREWARM_REGIONS"),

		OTelEnabled:  os.Getenv("OTEL_ENABLED") == "true",
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}
}

// Validate checks values that have no usable fallback.
func (c Config) Validate() error {
	switch c.DataSource {
	case SourceHTTP:
		if c.DataBaseURL == "" {
			return fmt.Errorf("%w: DATA_BASE_URL is required for the http source", ErrInvalid)
		}
	case SourceFile:
		if c.DataDir == "" {
			return fmt.Errorf("%w: DATA_DIR is required for the file source", ErrInvalid)
		}
	case SourcePostgres:
	default:
		return fmt.Errorf("%w: unknown DATA_SOURCE %q", ErrInvalid, c.DataSource)
	}
	if c.FetchConcurrency <= 0 {
		return fmt.Errorf("%w: FETCH_CONCURRENCY must be positive", ErrInvalid)
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return n
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return d
}

func getInts(key string) []int {
	var out []int
	for _, part := range getStrings(key) {
		if n, err := strconv.Atoi(part); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func getStrings(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
