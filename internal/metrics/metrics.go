// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Uploads counts processed scoreboard uploads by outcome
	// ("ok", "extraction", "classification", "persistence", "duplicate").
	Uploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "valmetrics_uploads_total",
			Help: "Total number of scoreboard uploads by outcome",
		},
		[]string{"outcome"},
	)

	// MatchesRecorded counts stored matches by kind ("inter_cohort", "male", "female").
	MatchesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "valmetrics_matches_recorded_total",
			Help: "Total number of matches persisted by classification",
		},
		[]string{"kind"},
	)

	ExtractionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "valmetrics_extraction_duration_seconds",
			Help:    "Duration of scoreboard extraction subprocess runs",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	// CircuitBreakerState is 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "valmetrics_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	MapAggregateUpserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "valmetrics_map_aggregate_upserts_total",
			Help: "Total number of map aggregate increments by cohort",
		},
		[]string{"cohort"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "valmetrics_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "valmetrics_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
