package middleware

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/traverse-web/traverse/pkg/router"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "traverse").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for resolution duration.
	// Default: prometheus.DefBuckets.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) { c.Namespace = namespace }
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) { c.Subsystem = subsystem }
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) { c.ConstLabels = labels }
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) { c.Buckets = buckets }
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) { c.Registry = registry }
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "traverse",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

type metrics struct {
	resolutionsTotal   *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec
	failuresTotal      *prometheus.CounterVec
}

func initMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)

	return &metrics{
		resolutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "resolutions_total",
			Help:        "Resolutions by route and status code",
			ConstLabels: config.ConstLabels,
		}, []string{"route", "status"}),

		resolutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "resolution_duration_seconds",
			Help:        "Resolution duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"route"}),

		failuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "failures_total",
			Help:        "Failed resolutions by route and status code",
			ConstLabels: config.ConstLabels,
		}, []string{"route", "code"}),
	}
}

// Prometheus creates middleware that records per-resolution metrics.
//
// Metrics collected:
//   - traverse_resolutions_total: counter by route and status code
//   - traverse_resolution_duration_seconds: histogram by route
//   - traverse_failures_total: counter of failed resolutions by route
//     and error code
//
// The route label is the matched route's pattern (or chunk id for
// routes without one), never the concrete path, to keep cardinality
// bounded.
//
// Expose the registry with promhttp; the App mounts it at /metrics.
func Prometheus(opts ...MetricsOption) router.Middleware {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	m := initMetrics(config)

	return router.MiddlewareFunc(func(c *router.Ctx, next func() error) error {
		start := time.Now()
		err := next()
		duration := time.Since(start).Seconds()

		route := routeLabel(c)
		m.resolutionDuration.WithLabelValues(route).Observe(duration)
		m.resolutionsTotal.WithLabelValues(route, strconv.Itoa(c.Response.StatusCode)).Inc()
		if c.Err != nil {
			m.failuresTotal.WithLabelValues(route, strconv.Itoa(c.Err.Code)).Inc()
		}
		return err
	})
}

// routeLabel picks a bounded-cardinality identity for the resolution.
func routeLabel(c *router.Ctx) string {
	if c.Route != nil {
		if c.Route.Path != "" {
			return c.Route.Path
		}
		if c.Route.Options.ID != "" {
			return c.Route.Options.ID
		}
	}
	return "unmatched"
}
