package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SearchRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_request_duration_seconds",
			Help:    "Search request duration in seconds by answering stage",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"stage", "mode"},
	)

	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_requests_total",
			Help: "Total number of search requests by answering stage",
		},
		[]string{"stage", "mode"},
	)

	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_stage_failures_total",
			Help: "Swallowed backend failures per pipeline stage",
		},
		[]string{"stage"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_cache_hits_total",
			Help: "Total number of result cache hits",
		},
		[]string{"backend"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_cache_misses_total",
			Help: "Total number of result cache misses",
		},
		[]string{"backend"},
	)

	LocalQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mirror_query_duration_seconds",
			Help:    "Local mirror query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation", "status"},
	)

	DistributorRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "distributor_request_duration_seconds",
			Help:    "Distributor API request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)

	CHQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ch_query_duration_seconds",
			Help:    "ClickHouse query duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"query_type", "status"},
	)

	MirrorEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_events_total",
			Help: "Total number of catalog change events applied to the mirror",
		},
		[]string{"operation", "status"},
	)

	MirrorLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mirror_lag_seconds",
			Help: "Age of the newest change event at the last mirror flush",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	SlowQueryCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slow_query_total",
			Help: "Total number of slow searches",
		},
		[]string{"severity", "stage"},
	)

	InFlightRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)

	RejectedRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "http_rejected_requests_total",
			Help: "Requests rejected by the concurrency limiter",
		},
	)
)
