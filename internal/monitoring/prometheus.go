package monitoring

import (
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// PrometheusMetrics holds every metric exposed on /metrics.
type PrometheusMetrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsActive  prometheus.Gauge
	HTTPResponseSize    *prometheus.HistogramVec

	JobsCreatedTotal    *prometheus.CounterVec
	JobsCompletedTotal  *prometheus.CounterVec
	JobsFailedTotal     *prometheus.CounterVec
	JobsActive          prometheus.Gauge
	JobStepDuration     *prometheus.HistogramVec

	ProviderCallsTotal   *prometheus.CounterVec
	ProviderCallDuration *prometheus.HistogramVec
	ProviderRateLimited  *prometheus.CounterVec

	DBConnectionsActive prometheus.Gauge
	DBQueryDuration     *prometheus.HistogramVec

	CacheOperationsTotal *prometheus.CounterVec
	CacheLatency         *prometheus.HistogramVec

	ReaperJobsDeletedTotal prometheus.Counter
	ReaperRunDuration      prometheus.Histogram
	ReclaimedJobsTotal     prometheus.Counter

	SystemMemoryUsage prometheus.Gauge
	GoroutinesActive  prometheus.Gauge

	registry *prometheus.Registry
	logger   *zap.Logger
}

func NewPrometheusMetrics(logger *zap.Logger) *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	metrics := &PrometheusMetrics{
		registry: registry,
		logger:   logger,

		HTTPRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trackforge",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "trackforge",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestsActive: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "trackforge",
				Subsystem: "http",
				Name:      "requests_active",
				Help:      "Current number of active HTTP requests",
			},
		),

		HTTPResponseSize: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "trackforge",
				Subsystem: "http",
				Name:      "response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "endpoint"},
		),

		JobsCreatedTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trackforge",
				Subsystem: "jobs",
				Name:      "created_total",
				Help:      "Total number of jobs created, by source type",
			},
			[]string{"source_type"},
		),

		JobsCompletedTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trackforge",
				Subsystem: "jobs",
				Name:      "completed_total",
				Help:      "Total number of jobs reaching completed",
			},
			[]string{"source_type"},
		),

		JobsFailedTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trackforge",
				Subsystem: "jobs",
				Name:      "failed_total",
				Help:      "Total number of jobs reaching failed, by step",
			},
			[]string{"step"},
		),

		JobsActive: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "trackforge",
				Subsystem: "jobs",
				Name:      "active",
				Help:      "Jobs currently dispatched to a worker",
			},
		),

		JobStepDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "trackforge",
				Subsystem: "jobs",
				Name:      "step_duration_seconds",
				Help:      "Duration of a single pipeline step",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"step", "status"},
		),

		ProviderCallsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trackforge",
				Subsystem: "providers",
				Name:      "calls_total",
				Help:      "Total calls made to an external provider",
			},
			[]string{"provider", "capability", "status"},
		),

		ProviderCallDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "trackforge",
				Subsystem: "providers",
				Name:      "call_duration_seconds",
				Help:      "Duration of an outbound provider call",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
			},
			[]string{"provider", "capability"},
		),

		ProviderRateLimited: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trackforge",
				Subsystem: "providers",
				Name:      "rate_limited_total",
				Help:      "Provider calls skipped because the quota window was exhausted",
			},
			[]string{"provider"},
		),

		DBConnectionsActive: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "trackforge",
				Subsystem: "db",
				Name:      "connections_active",
				Help:      "Active database connections",
			},
		),

		DBQueryDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "trackforge",
				Subsystem: "db",
				Name:      "query_duration_seconds",
				Help:      "Database query duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"operation"},
		),

		CacheOperationsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trackforge",
				Subsystem: "cache",
				Name:      "operations_total",
				Help:      "Total cache operations",
			},
			[]string{"operation", "status"},
		),

		CacheLatency: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "trackforge",
				Subsystem: "cache",
				Name:      "latency_seconds",
				Help:      "Cache operation latency",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
			},
			[]string{"operation"},
		),

		ReaperJobsDeletedTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Namespace: "trackforge",
				Subsystem: "reaper",
				Name:      "jobs_deleted_total",
				Help:      "Total jobs deleted by the Reaper sweep",
			},
		),

		ReaperRunDuration: promauto.With(registry).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "trackforge",
				Subsystem: "reaper",
				Name:      "run_duration_seconds",
				Help:      "Duration of a single Reaper sweep",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
			},
		),

		ReclaimedJobsTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Namespace: "trackforge",
				Subsystem: "reaper",
				Name:      "reclaimed_jobs_total",
				Help:      "Total stale non-terminal jobs re-dispatched by the Reclaim sweep",
			},
		),

		SystemMemoryUsage: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "trackforge",
				Subsystem: "system",
				Name:      "memory_usage_bytes",
				Help:      "Process memory allocated",
			},
		),

		GoroutinesActive: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "trackforge",
				Subsystem: "system",
				Name:      "goroutines_active",
				Help:      "Current number of goroutines",
			},
		),
	}

	go metrics.collectSystemMetrics()

	return metrics
}

func (m *PrometheusMetrics) PrometheusMiddleware() gin.HandlerFunc {
	return gin.HandlerFunc(func(c *gin.Context) {
		m.HTTPRequestsActive.Inc()
		defer m.HTTPRequestsActive.Dec()

		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()

		method := c.Request.Method
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		statusCode := strconv.Itoa(c.Writer.Status())

		m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, endpoint, statusCode).Observe(duration)

		responseSize := float64(c.Writer.Size())
		if responseSize > 0 {
			m.HTTPResponseSize.WithLabelValues(method, endpoint).Observe(responseSize)
		}
	})
}

func (m *PrometheusMetrics) RecordJobCreated(sourceType string) {
	m.JobsCreatedTotal.WithLabelValues(sourceType).Inc()
}

func (m *PrometheusMetrics) RecordJobCompleted(sourceType string) {
	m.JobsCompletedTotal.WithLabelValues(sourceType).Inc()
}

func (m *PrometheusMetrics) RecordJobFailed(step string) {
	m.JobsFailedTotal.WithLabelValues(step).Inc()
}

func (m *PrometheusMetrics) RecordStepDuration(step, status string, duration time.Duration) {
	m.JobStepDuration.WithLabelValues(step, status).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordProviderCall(provider, capability, status string, duration time.Duration) {
	m.ProviderCallsTotal.WithLabelValues(provider, capability, status).Inc()
	m.ProviderCallDuration.WithLabelValues(provider, capability).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordProviderRateLimited(provider string) {
	m.ProviderRateLimited.WithLabelValues(provider).Inc()
}

func (m *PrometheusMetrics) RecordDBQuery(operation string, duration time.Duration) {
	m.DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordCacheOperation(operation, status string, duration time.Duration) {
	m.CacheOperationsTotal.WithLabelValues(operation, status).Inc()
	m.CacheLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordReaperRun(duration time.Duration, deleted int) {
	m.ReaperRunDuration.Observe(duration.Seconds())
	m.ReaperJobsDeletedTotal.Add(float64(deleted))
}

func (m *PrometheusMetrics) RecordReclaimedJob() {
	m.ReclaimedJobsTotal.Inc()
}

func (m *PrometheusMetrics) GetHandler() gin.HandlerFunc {
	handler := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	return gin.WrapH(handler)
}

func (m *PrometheusMetrics) collectSystemMetrics() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		m.SystemMemoryUsage.Set(float64(memStats.Alloc))
		m.GoroutinesActive.Set(float64(runtime.NumGoroutine()))
	}
}
