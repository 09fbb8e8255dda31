// Package observability holds the Prometheus metrics shared by the gateway,
// the stage runner, and the HTTP layer.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "nexa"

// Metrics groups every collector nexa exports.
type Metrics struct {
	// LLMRequestsTotal counts provider calls.
	// Labels: provider, agent, status (success, rate_limited, error)
	LLMRequestsTotal *prometheus.CounterVec

	// LLMRequestDuration measures provider latency, excluding limiter waits.
	LLMRequestDuration *prometheus.HistogramVec

	// RateLimitWaitSeconds measures time spent blocked on the sliding window.
	RateLimitWaitSeconds prometheus.Histogram

	// StageAttemptsTotal counts stage outcomes.
	// Labels: stage, outcome (success, fail, degraded)
	StageAttemptsTotal *prometheus.CounterVec

	// PipelineRunsTotal counts finished runs by outcome (conversation, project, error, abandoned).
	PipelineRunsTotal *prometheus.CounterVec

	ActiveRuns prometheus.Gauge
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process metrics registered on the default registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New registers a fresh set of collectors on reg. Tests pass a
// prometheus.NewRegistry() to stay isolated.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LLMRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "llm",
				Name:      "requests_total",
				Help:      "Total provider calls by provider, agent and status",
			},
			[]string{"provider", "agent", "status"},
		),
		LLMRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "llm",
				Name:      "request_duration_seconds",
				Help:      "Provider call latency in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "agent"},
		),
		RateLimitWaitSeconds: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "llm",
				Name:      "rate_limit_wait_seconds",
				Help:      "Time spent waiting for a sliding-window slot",
				Buckets:   []float64{0, 0.1, 1, 5, 15, 30, 60},
			},
		),
		StageAttemptsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "stage",
				Name:      "attempts_total",
				Help:      "Stage completions by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		PipelineRunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Finished pipeline runs by outcome",
			},
			[]string{"outcome"},
		),
		ActiveRuns: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "active_runs",
				Help:      "Pipeline runs currently streaming",
			},
		),
	}
}
