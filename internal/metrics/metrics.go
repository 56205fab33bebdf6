// Package metrics exposes Prometheus collectors for the insight service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	analysesTotal           *prometheus.CounterVec
	analysisDurationSeconds *prometheus.HistogramVec
	providerCallsTotal      *prometheus.CounterVec
	providerRetriesTotal    *prometheus.CounterVec
	rejectionsTotal         *prometheus.CounterVec
	circuitState            *prometheus.GaugeVec
	cacheLookupsTotal       *prometheus.CounterVec
	cacheEntries            prometheus.Gauge
	batchTargetsTotal       *prometheus.CounterVec
	inflightAnalyses        prometheus.Gauge
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		analysesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_analyses_total",
				Help: "Total number of analyses, labeled by strategy and status.",
			},
			[]string{"strategy", "status"},
		)

		analysisDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "insight_analysis_duration_seconds",
				Help:    "Histogram of end-to-end analysis latencies, labeled by strategy.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45, 90},
			},
			[]string{"strategy"},
		)

		providerCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_provider_calls_total",
				Help: "Total number of remote provider calls, labeled by strategy and result.",
			},
			[]string{"strategy", "result"},
		)

		providerRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_provider_retries_total",
				Help: "Total number of provider call retries, labeled by strategy.",
			},
			[]string{"strategy"},
		)

		rejectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_rejections_total",
				Help: "Total calls rejected before reaching the provider, labeled by resource and reason.",
			},
			[]string{"resource", "reason"},
		)

		circuitState = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "insight_circuit_state",
				Help: "Circuit state per resource: 0 closed, 1 half-open, 2 open.",
			},
			[]string{"resource"},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_cache_lookups_total",
				Help: "Total result cache lookups, labeled by outcome (hit, miss, expired).",
			},
			[]string{"outcome"},
		)

		cacheEntries = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "insight_cache_entries",
				Help: "Number of entries currently held by the result cache.",
			},
		)

		batchTargetsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_batch_targets_total",
				Help: "Total batch targets processed, labeled by status.",
			},
			[]string{"status"},
		)

		inflightAnalyses = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "insight_inflight_analyses",
				Help: "Number of analyses currently in flight.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 45},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAnalysis records one finished analysis.
func ObserveAnalysis(strategy, status string, duration time.Duration) {
	Init()
	analysesTotal.WithLabelValues(strategy, status).Inc()
	analysisDurationSeconds.WithLabelValues(strategy).Observe(duration.Seconds())
}

// ObserveProviderCall records one remote provider call attempt.
func ObserveProviderCall(strategy, result string) {
	Init()
	providerCallsTotal.WithLabelValues(strategy, result).Inc()
}

// IncRetry increments the retry counter for a strategy.
func IncRetry(strategy string) {
	Init()
	providerRetriesTotal.WithLabelValues(strategy).Inc()
}

// IncRejection counts a call rejected by the governor or breaker.
func IncRejection(resource, reason string) {
	Init()
	rejectionsTotal.WithLabelValues(resource, reason).Inc()
}

// SetCircuitState publishes the breaker state for a resource.
func SetCircuitState(resource, state string) {
	Init()
	var v float64
	switch state {
	case "half_open":
		v = 1
	case "open":
		v = 2
	}
	circuitState.WithLabelValues(resource).Set(v)
}

// ObserveCacheLookup counts one cache lookup by outcome.
func ObserveCacheLookup(outcome string) {
	Init()
	cacheLookupsTotal.WithLabelValues(outcome).Inc()
}

// SetCacheEntries publishes the current cache size.
func SetCacheEntries(n int) {
	Init()
	cacheEntries.Set(float64(n))
}

// ObserveBatchTarget counts one batch target by final status.
func ObserveBatchTarget(status string) {
	Init()
	batchTargetsTotal.WithLabelValues(status).Inc()
}

// IncInflight increments the in-flight analyses gauge.
func IncInflight() {
	Init()
	inflightAnalyses.Inc()
}

// DecInflight decrements the in-flight analyses gauge.
func DecInflight() {
	Init()
	inflightAnalyses.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
