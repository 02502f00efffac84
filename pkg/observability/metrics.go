package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Feed reconciliation metrics
	FeedSyncTotal    *prometheus.CounterVec
	FeedSyncDuration *prometheus.HistogramVec

	// Workflow metrics
	WorkflowStepsTotal *prometheus.CounterVec

	// Store metrics
	StoreOperationsTotal *prometheus.CounterVec

	// Identity broker metrics
	BrokerDiscoveryCacheHits   prometheus.Counter
	BrokerDiscoveryCacheMisses prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gantry_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gantry_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		FeedSyncTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gantry_feed_sync_total",
				Help: "Feed reconciliation outcomes by entity and result",
			},
			[]string{"entity", "result"},
		),
		FeedSyncDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gantry_feed_sync_duration_seconds",
				Help:    "Feed reconciliation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"entity"},
		),
		WorkflowStepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gantry_workflow_steps_total",
				Help: "Workflow step outcomes by step and result",
			},
			[]string{"step", "result"},
		),
		StoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gantry_store_operations_total",
				Help: "Record store operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		BrokerDiscoveryCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gantry_broker_discovery_cache_hits_total",
				Help: "OIDC discovery document cache hits",
			},
		),
		BrokerDiscoveryCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gantry_broker_discovery_cache_misses_total",
				Help: "OIDC discovery document cache misses",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.FeedSyncTotal,
		m.FeedSyncDuration,
		m.WorkflowStepsTotal,
		m.StoreOperationsTotal,
		m.BrokerDiscoveryCacheHits,
		m.BrokerDiscoveryCacheMisses,
	)

	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveFeedSync records a feed reconciliation outcome.
func (m *Metrics) ObserveFeedSync(entity, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.FeedSyncTotal.WithLabelValues(entity, result).Inc()
	m.FeedSyncDuration.WithLabelValues(entity).Observe(duration.Seconds())
}

// ObserveWorkflowStep records a workflow step outcome.
func (m *Metrics) ObserveWorkflowStep(step, result string) {
	if m == nil {
		return
	}
	m.WorkflowStepsTotal.WithLabelValues(step, result).Inc()
}

// ObserveHTTPRequest records an HTTP request outcome.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
