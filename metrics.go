package afetch

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector exposes request, retry, cache and admission metrics
// through Prometheus. A nil collector is valid and records nothing, so
// call sites never need to guard.
type MetricsCollector struct {
	registry *prometheus.Registry

	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	requestsInFlight    *prometheus.GaugeVec
	retriesTotal        *prometheus.CounterVec
	cacheHitsTotal      *prometheus.CounterVec
	cacheMissesTotal    *prometheus.CounterVec
	errorsTotal         *prometheus.CounterVec
	rateLimitWait       *prometheus.HistogramVec
	circuitBreakerGauge *prometheus.GaugeVec
}

// NewMetricsCollector creates a collector backed by its own registry.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.NewRegistry())
}

// NewMetricsCollectorWithRegistry creates a collector registering its
// metrics on the given registry.
func NewMetricsCollectorWithRegistry(registry *prometheus.Registry) *MetricsCollector {
	m := &MetricsCollector{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "afetch_requests_total",
			Help: "Total number of HTTP requests by method, status code and domain.",
		}, []string{"method", "status_code", "domain"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "afetch_request_duration_seconds",
			Help:    "Request duration from call start to outcome, retries included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "domain"}),
		requestsInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "afetch_requests_in_flight",
			Help: "Number of requests currently being processed.",
		}, []string{"method", "domain"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "afetch_retries_total",
			Help: "Total number of retry attempts by method, domain and attempt number.",
		}, []string{"method", "domain", "attempt"}),
		cacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "afetch_cache_hits_total",
			Help: "Total number of cache hits.",
		}, []string{"method", "domain"}),
		cacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "afetch_cache_misses_total",
			Help: "Total number of cache misses.",
		}, []string{"method", "domain"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "afetch_errors_total",
			Help: "Total number of terminal errors by kind.",
		}, []string{"kind", "method", "domain"}),
		rateLimitWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "afetch_rate_limit_wait_seconds",
			Help:    "Time spent waiting for per-domain admission.",
			Buckets: prometheus.DefBuckets,
		}, []string{"domain"}),
		circuitBreakerGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "afetch_circuit_breaker_state",
			Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
		}, []string{"name"}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.requestsInFlight,
		m.retriesTotal,
		m.cacheHitsTotal,
		m.cacheMissesTotal,
		m.errorsTotal,
		m.rateLimitWait,
		m.circuitBreakerGauge,
	)
	return m
}

// Registry returns the underlying registry, or nil for a nil collector.
func (m *MetricsCollector) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequestStart marks a request entering the pipeline.
func (m *MetricsCollector) RecordRequestStart(method, domain string) {
	if m == nil {
		return
	}
	m.requestsInFlight.WithLabelValues(method, domain).Inc()
}

// RecordRequestEnd marks a request leaving the pipeline.
func (m *MetricsCollector) RecordRequestEnd(method, domain string) {
	if m == nil {
		return
	}
	m.requestsInFlight.WithLabelValues(method, domain).Dec()
}

// RecordRequest records a finished request with its status and total
// duration.
func (m *MetricsCollector) RecordRequest(method string, statusCode int, domain string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, strconv.Itoa(statusCode), domain).Inc()
	m.requestDuration.WithLabelValues(method, domain).Observe(duration.Seconds())
}

// RecordRetry records one retry attempt.
func (m *MetricsCollector) RecordRetry(method, domain string, attempt int) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(method, domain, strconv.Itoa(attempt)).Inc()
}

// RecordCacheHit records a response served from cache.
func (m *MetricsCollector) RecordCacheHit(method, domain string) {
	if m == nil {
		return
	}
	m.cacheHitsTotal.WithLabelValues(method, domain).Inc()
}

// RecordCacheMiss records a cache lookup that required dispatch.
func (m *MetricsCollector) RecordCacheMiss(method, domain string) {
	if m == nil {
		return
	}
	m.cacheMissesTotal.WithLabelValues(method, domain).Inc()
}

// RecordError records a terminal error by kind.
func (m *MetricsCollector) RecordError(kind, method, domain string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(kind, method, domain).Inc()
}

// RecordRateLimitWait records time spent blocked on admission.
func (m *MetricsCollector) RecordRateLimitWait(domain string, wait time.Duration) {
	if m == nil {
		return
	}
	m.rateLimitWait.WithLabelValues(domain).Observe(wait.Seconds())
}

// RecordCircuitBreakerState records the breaker state transition.
func (m *MetricsCollector) RecordCircuitBreakerState(name string, state CircuitState) {
	if m == nil {
		return
	}
	m.circuitBreakerGauge.WithLabelValues(name).Set(float64(state))
}
