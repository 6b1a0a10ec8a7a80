package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/bigpipe/pkg/pagelet"
	"github.com/vango-dev/bigpipe/pkg/pipe"
)

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "bigpipe").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for request and render duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus collector.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "bigpipe",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics collects request, routing and rendering metrics. It is a Layer,
// a router.Recorder and a pipe.Recorder.
//
// Metrics collected (with the default namespace):
//   - bigpipe_requests_total: requests by method and status
//   - bigpipe_request_duration_seconds: time spent below this layer
//   - bigpipe_request_errors_total: failed requests by error type
//   - bigpipe_route_cache_lookups_total: resolution cache hits and misses
//   - bigpipe_authorizations_total: authorization outcomes by pagelet
//   - bigpipe_render_duration_seconds: pagelet render time by pagelet
//   - bigpipe_render_errors_total: failed renders by pagelet
//   - bigpipe_fragments_written_total: fragments written by mode
//   - bigpipe_streams_ended_total: End calls by result
//   - bigpipe_pool_*_total: instance pool counters, once WatchPool is called
//
// Each Metrics registers its collectors; create one per registry.
type Metrics struct {
	config MetricsConfig

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestErrors    *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	authorizations   *prometheus.CounterVec
	renderDuration   *prometheus.HistogramVec
	renderErrors     *prometheus.CounterVec
	fragmentsWritten *prometheus.CounterVec
	streamsEnded     *prometheus.CounterVec

	poolOnce sync.Once
}

// NewMetrics registers the collectors and returns them.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		config: config,

		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "requests_total",
			Help:        "Total number of requests through the middleware chain",
			ConstLabels: config.ConstLabels,
		}, []string{"method", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "request_duration_seconds",
			Help:        "Request processing duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"method"}),

		requestErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "request_errors_total",
			Help:        "Total number of failed requests",
			ConstLabels: config.ConstLabels,
		}, []string{"error_type"}),

		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "route_cache_lookups_total",
			Help:        "Resolution cache lookups by result",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		authorizations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "authorizations_total",
			Help:        "Pagelet authorization outcomes",
			ConstLabels: config.ConstLabels,
		}, []string{"pagelet", "outcome"}),

		renderDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "render_duration_seconds",
			Help:        "Pagelet render duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"pagelet"}),

		renderErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "render_errors_total",
			Help:        "Total number of failed pagelet renders",
			ConstLabels: config.ConstLabels,
		}, []string{"pagelet"}),

		fragmentsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "fragments_written_total",
			Help:        "Pagelet fragments written to responses",
			ConstLabels: config.ConstLabels,
		}, []string{"mode"}),

		streamsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "streams_ended_total",
			Help:        "Response stream End calls by result",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),
	}
}

// Handle implements Layer.
func (m *Metrics) Handle(w http.ResponseWriter, r *http.Request, next Next) error {
	start := time.Now()
	err := next(r)
	m.requestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())

	status := "success"
	if err != nil {
		status = "error"
		m.requestErrors.WithLabelValues(categorizeError(err)).Inc()
	}
	m.requestsTotal.WithLabelValues(r.Method, status).Inc()
	return err
}

// CacheLookup implements router.Recorder.
func (m *Metrics) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Authorization implements router.Recorder.
func (m *Metrics) Authorization(name string, admitted bool) {
	outcome := "rejected"
	if admitted {
		outcome = "admitted"
	}
	m.authorizations.WithLabelValues(name, outcome).Inc()
}

// Rendered implements pipe.Recorder.
func (m *Metrics) Rendered(name string, d time.Duration, err error) {
	m.renderDuration.WithLabelValues(name).Observe(d.Seconds())
	if err != nil {
		m.renderErrors.WithLabelValues(name).Inc()
	}
}

// Written implements pipe.Recorder.
func (m *Metrics) Written(name string, mode pagelet.Mode) {
	m.fragmentsWritten.WithLabelValues(mode.String()).Inc()
}

// Ended implements pipe.Recorder.
func (m *Metrics) Ended(result pipe.EndResult) {
	m.streamsEnded.WithLabelValues(result.String()).Inc()
}

// WatchPool exports the counters of p. Only the first call has an effect.
func (m *Metrics) WatchPool(p *pagelet.Pool) {
	m.poolOnce.Do(func() {
		factory := promauto.With(m.config.Registry)
		counter := func(name, help string, value func(pagelet.PoolStats) uint64) {
			factory.NewCounterFunc(prometheus.CounterOpts{
				Namespace:   m.config.Namespace,
				Subsystem:   m.config.Subsystem,
				Name:        name,
				Help:        help,
				ConstLabels: m.config.ConstLabels,
			}, func() float64 { return float64(value(p.Stats())) })
		}
		counter("pool_allocated_total", "Pagelet instances allocated by the pool",
			func(s pagelet.PoolStats) uint64 { return s.Allocated })
		counter("pool_reused_total", "Pagelet instances reused from a free list",
			func(s pagelet.PoolStats) uint64 { return s.Reused })
		counter("pool_released_total", "Pagelet instances returned to a free list",
			func(s pagelet.PoolStats) uint64 { return s.Released })
		counter("pool_dropped_total", "Released pagelet instances dropped because the free list was full",
			func(s pagelet.PoolStats) uint64 { return s.Dropped })
	})
}

// categorizeError keeps error labels low-cardinality.
func categorizeError(err error) string {
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "timeout"), strings.Contains(s, "deadline"):
		return "timeout"
	case strings.Contains(s, "canceled"):
		return "canceled"
	case strings.Contains(s, "authorize"):
		return "authorization"
	case strings.Contains(s, "not found"), strings.Contains(s, "does not exist"):
		return "not_found"
	case strings.Contains(s, "s3"):
		return "storage"
	default:
		return "internal"
	}
}
