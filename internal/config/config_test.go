package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/jobmate")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("BRIDGE_URL", "http://bridge:8080")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8083", cfg.Port)
	assert.Equal(t, "9093", cfg.GRPCPort)
	assert.Equal(t, 6, cfg.ScrapeIntervalHours)
	assert.Equal(t, "@every 6h", cfg.ScrapeSpec())
	assert.Equal(t, 4, cfg.ScrapeWorkers)
	assert.Equal(t, 100, cfg.FetchLimit)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, time.Second, cfg.RetryDelay)
	assert.Equal(t, 3, cfg.ExtractionRetryCap)
	assert.Equal(t, 500, cfg.PushBatchSize)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
	assert.Empty(t, cfg.BlockedTerms)
	assert.Equal(t, 10, cfg.KeywordTopN)
	assert.Empty(t, cfg.SendGridAPIKey)
	assert.Equal(t, "noreply@jobmate.local", cfg.ReportSender)
}

func TestLoad_MissingRequired(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "BRIDGE_URL"} {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, "")
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("RETRY_DELAY_MS", "250")
	t.Setenv("PUSH_BATCH_SIZE", "1000")
	t.Setenv("BLOCKED_TERMS", " crypto , ,forex")
	t.Setenv("SCRAPE_WORKERS", "8")
	t.Setenv("KEYWORD_TOP_N", "5")
	t.Setenv("SENDGRID_API_KEY", "SG.key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, MaxPushBatchSize, cfg.PushBatchSize, "batch size is capped at the provider limit")
	assert.Equal(t, []string{"crypto", "forex"}, cfg.BlockedTerms)
	assert.Equal(t, 8, cfg.ScrapeWorkers)
	assert.Equal(t, 5, cfg.KeywordTopN)
	assert.Equal(t, "SG.key", cfg.SendGridAPIKey)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"SCRAPE_INTERVAL_HOURS": "0",
		"RETRY_MAX_ATTEMPTS":    "three",
		"NOTIFY_MIN_SCORE":      "101",
		"RETRY_DELAY_MS":        "-5",
		"KEYWORD_TOP_N":         "0",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
