// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing or malformed, Load errors.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MaxPushBatchSize is the push provider's multicast limit.
const MaxPushBatchSize = 500

// Config holds all runtime configuration for the ingest service.
type Config struct {
	Port        string
	GRPCPort    string
	DatabaseURL string
	RedisURL    string
	LogLevel    string

	BridgeURL    string
	BridgeAPIKey string
	FetchLimit   int

	ScrapeIntervalHours int
	ScrapeWorkers       int
	RetryMaxAttempts    int
	RetryDelay          time.Duration
	ExtractionRetryCap  int
	BlockedTerms        []string
	SessionTTL          time.Duration

	PushURL         string
	PushAPIKey      string
	PushBatchSize   int
	PushConcurrency int
	NotifyMinScore  int

	KeywordTopN int

	// SendGridAPIKey empty disables report emails; they are logged instead.
	SendGridAPIKey   string
	ReportSender     string
	ReportSenderName string
}

// Load reads an optional .env file, then the environment, and returns a
// validated Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	bridgeURL := os.Getenv("BRIDGE_URL")
	if bridgeURL == "" {
		return nil, fmt.Errorf("BRIDGE_URL is required")
	}

	cfg := &Config{
		Port:             envOr("INGEST_PORT", "8083"),
		GRPCPort:         envOr("GRPC_PORT", "9093"),
		DatabaseURL:      dbURL,
		RedisURL:         redisURL,
		LogLevel:         envOr("LOG_LEVEL", "info"),
		BridgeURL:        bridgeURL,
		BridgeAPIKey:     os.Getenv("BRIDGE_API_KEY"),
		BlockedTerms:     splitList(os.Getenv("BLOCKED_TERMS")),
		PushURL:          os.Getenv("PUSH_URL"),
		PushAPIKey:       os.Getenv("PUSH_API_KEY"),
		SendGridAPIKey:   os.Getenv("SENDGRID_API_KEY"),
		ReportSender:     envOr("REPORT_SENDER", "noreply@jobmate.local"),
		ReportSenderName: envOr("REPORT_SENDER_NAME", "JobMate Ingest"),
	}

	ints := []struct {
		key string
		def int
		lo  int
		dst *int
	}{
		{"SCRAPE_INTERVAL_HOURS", 6, 1, &cfg.ScrapeIntervalHours},
		{"SCRAPE_WORKERS", 4, 1, &cfg.ScrapeWorkers},
		{"FETCH_LIMIT", 100, 1, &cfg.FetchLimit},
		{"RETRY_MAX_ATTEMPTS", 3, 1, &cfg.RetryMaxAttempts},
		{"EXTRACTION_RETRY_CAP", 3, 1, &cfg.ExtractionRetryCap},
		{"PUSH_BATCH_SIZE", MaxPushBatchSize, 1, &cfg.PushBatchSize},
		{"PUSH_CONCURRENCY", 4, 1, &cfg.PushConcurrency},
		{"NOTIFY_MIN_SCORE", 0, 0, &cfg.NotifyMinScore},
		{"KEYWORD_TOP_N", 10, 1, &cfg.KeywordTopN},
	}
	for _, v := range ints {
		n, err := intEnv(v.key, v.def, v.lo)
		if err != nil {
			return nil, err
		}
		*v.dst = n
	}

	delayMS, err := intEnv("RETRY_DELAY_MS", 1000, 0)
	if err != nil {
		return nil, err
	}
	cfg.RetryDelay = time.Duration(delayMS) * time.Millisecond

	ttlHours, err := intEnv("SESSION_TTL_HOURS", 168, 1)
	if err != nil {
		return nil, err
	}
	cfg.SessionTTL = time.Duration(ttlHours) * time.Hour

	if cfg.PushBatchSize > MaxPushBatchSize {
		cfg.PushBatchSize = MaxPushBatchSize
	}
	if cfg.NotifyMinScore > 100 {
		return nil, fmt.Errorf("NOTIFY_MIN_SCORE must be within 0-100, got %d", cfg.NotifyMinScore)
	}

	return cfg, nil
}

// ScrapeSpec is the cron spec of the periodic run.
func (c *Config) ScrapeSpec() string { return fmt.Sprintf("@every %dh", c.ScrapeIntervalHours) }

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def, lo int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < lo {
		return 0, fmt.Errorf("%s must be an integer >= %d, got %q", key, lo, s)
	}
	return v, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
