package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetview",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fleetview",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fleetview",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Backend calls
	BackendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetview",
		Subsystem: "backend",
		Name:      "requests_total",
		Help:      "Requests sent to the tracking backend",
	}, []string{"endpoint", "status"})

	BackendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fleetview",
		Subsystem: "backend",
		Name:      "request_duration_seconds",
		Help:      "Tracking backend request latency in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"endpoint"})

	// Route processing
	RoutePointsRaw = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fleetview",
		Subsystem: "route",
		Name:      "raw_points",
		Help:      "Points returned by the route report before simplification",
		Buckets:   prometheus.ExponentialBuckets(10, 4, 7),
	})

	RoutePointsSimplified = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fleetview",
		Subsystem: "route",
		Name:      "simplified_points",
		Help:      "Points kept after route simplification",
		Buckets:   prometheus.ExponentialBuckets(10, 4, 7),
	})

	FetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetview",
		Subsystem: "fetch",
		Name:      "failures_total",
		Help:      "Failed fetch procedures by step and error kind",
	}, []string{"step", "kind"})

	// Store
	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetview",
		Subsystem: "store",
		Name:      "transitions_total",
		Help:      "State field replacements",
	}, []string{"field"})

	SupersededPaths = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fleetview",
		Subsystem: "store",
		Name:      "superseded_paths_total",
		Help:      "Path fetches discarded because a newer one started",
	})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fleetview",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	DroppedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetview",
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "State-change events dropped because a subscriber fell behind",
	}, []string{"sink"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetview",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetview",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}
