// Package observability exposes the service's Prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsStarted counts audit runs claimed by a worker.
	RunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_runs_started_total",
		Help: "Number of audit runs claimed and started by a worker.",
	})

	// RunsFinished counts terminal runs by final status.
	RunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_runs_finished_total",
		Help: "Number of audit runs that reached a terminal status.",
	}, []string{"status"})

	// RunsReaped counts runs force-failed by the staleness supervisor.
	RunsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_runs_reaped_total",
		Help: "Number of stale runs force-failed by the supervisor.",
	})

	// StageDuration observes per-stage execution time by outcome.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "audit_stage_duration_seconds",
		Help:    "Wall-clock duration of one stage execution.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"stage", "outcome"})

	// StaleWrites counts shadow spec writes rejected by the version fence.
	StaleWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_shadow_spec_stale_writes_total",
		Help: "Number of shadow spec writes fenced out by a newer run.",
	})

	// HTTPRequests counts API requests by path pattern and status class.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_http_requests_total",
		Help: "Number of HTTP requests served.",
	}, []string{"path", "status"})
)
