package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "console_"

	resultSuccess    = "success"
	resultError      = "error"
	resultSuperseded = "superseded"
)

var (
	registerOnce sync.Once

	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	upstreamShapes   *prometheus.CounterVec

	viewRefreshTotal   *prometheus.CounterVec
	viewRefreshLatency *prometheus.HistogramVec
	viewApplyTotal     *prometheus.CounterVec
	viewsActive        prometheus.Gauge

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	accountWrites *prometheus.CounterVec
	auditFailures prometheus.Counter

	loginTotal     *prometheus.CounterVec
	sessionsActive prometheus.Gauge
)

// Init registers console metrics and, when db is set, audit store gauges.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		upstreamRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "upstream_requests_total",
				Help: "Total upstream API requests by endpoint and result",
			},
			[]string{"endpoint", "result"},
		)
		upstreamLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "upstream_latency_seconds",
				Help:    "Upstream API latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "result"},
		)
		upstreamShapes = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "upstream_response_shape_total",
				Help: "Upstream list payloads by endpoint and the shape that matched",
			},
			[]string{"endpoint", "shape"},
		)

		viewRefreshTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "view_refresh_total",
				Help: "Total view refreshes by screen and result",
			},
			[]string{"screen", "result"},
		)
		viewRefreshLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "view_refresh_latency_seconds",
				Help:    "View refresh latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"screen", "result"},
		)
		viewApplyTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "view_apply_total",
				Help: "Total view state changes by screen",
			},
			[]string{"screen"},
		)
		viewsActive = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "views_active",
				Help: "Mounted list views",
			},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total exports by kind, format and result",
			},
			[]string{"kind", "format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind", "format"},
		)

		accountWrites = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "account_writes_total",
				Help: "Total account write operations by action and result",
			},
			[]string{"action", "result"},
		)
		auditFailures = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "audit_write_failures_total",
				Help: "Audit entries that could not be stored",
			},
		)

		loginTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "login_total",
				Help: "Total operator logins by result",
			},
			[]string{"result"},
		)
		sessionsActive = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "sessions_active",
				Help: "Live console sessions",
			},
		)

		prometheus.MustRegister(
			upstreamRequests,
			upstreamLatency,
			upstreamShapes,
			viewRefreshTotal,
			viewRefreshLatency,
			viewApplyTotal,
			viewsActive,
			exportTotal,
			exportLatency,
			accountWrites,
			auditFailures,
			loginTotal,
			sessionsActive,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveUpstream records an upstream call.
func ObserveUpstream(endpoint, result string, duration time.Duration) {
	if endpoint == "" {
		endpoint = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if upstreamRequests != nil {
		upstreamRequests.WithLabelValues(endpoint, result).Inc()
	}
	if upstreamLatency != nil {
		upstreamLatency.WithLabelValues(endpoint, result).Observe(duration.Seconds())
	}
}

// IncResponseShape counts which payload shape satisfied a list endpoint.
func IncResponseShape(endpoint, shape string) {
	if shape == "" {
		shape = "none"
	}
	if upstreamShapes != nil {
		upstreamShapes.WithLabelValues(endpoint, shape).Inc()
	}
}

// ObserveViewRefresh records a view refresh and its outcome.
func ObserveViewRefresh(screen, result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if viewRefreshTotal != nil {
		viewRefreshTotal.WithLabelValues(screen, result).Inc()
	}
	if viewRefreshLatency != nil {
		viewRefreshLatency.WithLabelValues(screen, result).Observe(duration.Seconds())
	}
}

// IncViewApply counts a view state change.
func IncViewApply(screen string) {
	if viewApplyTotal != nil {
		viewApplyTotal.WithLabelValues(screen).Inc()
	}
}

// SetViewsActive sets the mounted view gauge.
func SetViewsActive(n int) {
	if viewsActive != nil {
		viewsActive.Set(float64(n))
	}
}

// ObserveExport records an export.
func ObserveExport(kind, format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(kind, format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(kind, format).Observe(duration.Seconds())
	}
}

// IncAccountWrite counts a notification flag or company code write.
func IncAccountWrite(action, result string) {
	if result == "" {
		result = resultSuccess
	}
	if accountWrites != nil {
		accountWrites.WithLabelValues(action, result).Inc()
	}
}

// IncAuditFailure counts a dropped audit entry.
func IncAuditFailure() {
	if auditFailures != nil {
		auditFailures.Inc()
	}
}

// IncLogin counts a login attempt.
func IncLogin(result string) {
	if loginTotal != nil {
		loginTotal.WithLabelValues(result).Inc()
	}
}

// SetSessionsActive sets the live session gauge.
func SetSessionsActive(n int) {
	if sessionsActive != nil {
		sessionsActive.Set(float64(n))
	}
}

// Exported constants for callers.
const (
	ResultSuccess    = resultSuccess
	ResultError      = resultError
	ResultSuperseded = resultSuperseded
)
