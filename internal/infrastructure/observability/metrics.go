// Package observability defines the Prometheus metrics shared by the HTTP
// layer, the sync loops and the background jobs.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts API requests by route, method and status class.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mathrunner",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "API requests by route, method and status.",
	}, []string{"route", "method", "status"})

	// HTTPDuration observes request latency by route.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mathrunner",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "API request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	// SessionsIngested counts accepted game sessions.
	SessionsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mathrunner",
		Subsystem: "stats",
		Name:      "sessions_ingested_total",
		Help:      "Game sessions folded into aggregates.",
	})

	// SessionsRejected counts sessions that failed validation.
	SessionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mathrunner",
		Subsystem: "stats",
		Name:      "sessions_rejected_total",
		Help:      "Game sessions rejected at validation.",
	})

	// SyncPasses counts per-user sync passes by outcome.
	SyncPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mathrunner",
		Subsystem: "sync",
		Name:      "passes_total",
		Help:      "Per-user sync passes by outcome.",
	}, []string{"outcome"})

	// SyncActiveLoops gauges currently running per-user loops.
	SyncActiveLoops = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mathrunner",
		Subsystem: "sync",
		Name:      "active_loops",
		Help:      "Currently running per-user sync loops.",
	})

	// JobRuns counts scheduler job executions by job and outcome.
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mathrunner",
		Subsystem: "scheduler",
		Name:      "job_runs_total",
		Help:      "Scheduler job executions by job and outcome.",
	}, []string{"job", "outcome"})

	// WSClients gauges connected live-feed clients.
	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mathrunner",
		Subsystem: "ws",
		Name:      "clients",
		Help:      "Connected live-feed websocket clients.",
	})

	// WSDropped counts live-feed messages dropped on slow clients.
	WSDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mathrunner",
		Subsystem: "ws",
		Name:      "dropped_messages_total",
		Help:      "Live-feed messages dropped because a client queue was full.",
	})

	// CompletionRequests counts completion API calls by outcome.
	CompletionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mathrunner",
		Subsystem: "genai",
		Name:      "requests_total",
		Help:      "Completion API calls by outcome.",
	}, []string{"outcome"})
)
