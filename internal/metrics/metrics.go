// Package metrics exposes the ingest service's prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "jobmate"
	subsystem = "ingest"
)

// Job outcome labels.
const (
	OutcomeCreated   = "created"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
	OutcomeBlocked   = "blocked"
)

var (
	// Sessions counts runs by terminal status.
	Sessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "sessions_total",
		Help:      "Scraping sessions by terminal status.",
	}, []string{"status"})

	MessagesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "messages_processed_total",
		Help:      "Channel messages read by the pipeline.",
	})

	// Jobs counts messages by what became of them.
	Jobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "jobs_total",
		Help:      "Messages by extraction outcome (created, duplicate, failed, blocked).",
	}, []string{"outcome"})

	ChannelErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "channel_errors_total",
		Help:      "Channels skipped because of an error.",
	})

	NotificationBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "notification_batches_total",
		Help:      "Push batches by outcome (ok, failed).",
	}, []string{"outcome"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "run_duration_seconds",
		Help:      "Wall time of a full scraping run.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})
)

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
