// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	ReportsIngested     *prometheus.CounterVec
	InvalidFields       *prometheus.CounterVec
	SourceYearsFailed   prometheus.Counter
	VolatilityPoints    prometheus.Counter
	CollectorRunsTotal  *prometheus.CounterVec
	CollectorDuration   *prometheus.HistogramVec
	ExternalCallLatency *prometheus.HistogramVec

	// Engine metrics
	EngineRunsTotal  prometheus.Counter
	EngineRecords    prometheus.Counter
	EngineDuration   prometheus.Histogram
	CurrentAlerts    *prometheus.GaugeVec
	ReportsGenerated prometheus.Counter

	// AI metrics
	AICallsTotal      *prometheus.CounterVec
	AICacheHits       prometheus.Counter
	ExtractionsTotal  *prometheus.CounterVec
	BreakerStateGauge *prometheus.GaugeVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Health metrics
	LastSuccessfulIngestion *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance registered with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "positioning_lab"
	}
	f := promauto.With(reg)

	return &Metrics{
		ReportsIngested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "reports_ingested_total",
			Help:      "Positioning reports stored, by source",
		}, []string{"source"}),
		InvalidFields: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "invalid_fields_total",
			Help:      "Raw numeric fields coerced to null, by field",
		}, []string{"field"}),
		SourceYearsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "source_years_failed_total",
			Help:      "Yearly report archives that could not be fetched",
		}),
		VolatilityPoints: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "volatility_points_total",
			Help:      "Option volatility points stored",
		}),
		CollectorRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "runs_total",
			Help:      "Collector runs by job and status",
		}, []string{"job", "status"}),
		CollectorDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "duration_seconds",
			Help:      "Collector run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"job"}),
		ExternalCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "call_latency_seconds",
			Help:      "Latency of calls to external APIs",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "method"}),

		EngineRunsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Metrics engine invocations",
		}),
		EngineRecords: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "records_total",
			Help:      "Records processed by the metrics engine",
		}),
		EngineDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "duration_seconds",
			Help:      "Metrics engine run duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		CurrentAlerts: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "current_alerts",
			Help:      "Instruments per alert state in the latest run",
		}, []string{"state"}),
		ReportsGenerated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "reports_generated_total",
			Help:      "Alert reports generated",
		}),

		AICallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "calls_total",
			Help:      "Chat completion calls by purpose and status",
		}, []string{"purpose", "status"}),
		AICacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "cache_hits_total",
			Help:      "Commentary served from cache",
		}),
		ExtractionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "extractions_total",
			Help:      "Image table extractions by status",
		}, []string{"status"}),
		BreakerStateGauge: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"name"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		LastSuccessfulIngestion: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingestion_timestamp",
			Help:      "Unix timestamp of last successful collector run",
		}, []string{"job"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", prometheus.DefaultRegisterer)

// RecordReportsIngested adds stored report rows for a source.
func RecordReportsIngested(source string, n int) {
	DefaultMetrics.ReportsIngested.WithLabelValues(source).Add(float64(n))
}

// RecordInvalidField counts a raw field coerced to null.
func RecordInvalidField(field string) {
	DefaultMetrics.InvalidFields.WithLabelValues(field).Inc()
}

// RecordSourceYearFailed counts a yearly archive that could not be fetched.
func RecordSourceYearFailed() {
	DefaultMetrics.SourceYearsFailed.Inc()
}

// RecordVolatilityPoints adds stored volatility points.
func RecordVolatilityPoints(n int) {
	DefaultMetrics.VolatilityPoints.Add(float64(n))
}

// RecordCollectorRun records a collector run and, on success, its timestamp.
func RecordCollectorRun(job string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	} else {
		DefaultMetrics.LastSuccessfulIngestion.WithLabelValues(job).SetToCurrentTime()
	}
	DefaultMetrics.CollectorRunsTotal.WithLabelValues(job, status).Inc()
	DefaultMetrics.CollectorDuration.WithLabelValues(job).Observe(d.Seconds())
}

// RecordExternalCall records external API latency.
func RecordExternalCall(service, method string, d time.Duration) {
	DefaultMetrics.ExternalCallLatency.WithLabelValues(service, method).Observe(d.Seconds())
}

// RecordEngineRun records one metrics engine invocation.
func RecordEngineRun(records int, d time.Duration) {
	DefaultMetrics.EngineRunsTotal.Inc()
	DefaultMetrics.EngineRecords.Add(float64(records))
	DefaultMetrics.EngineDuration.Observe(d.Seconds())
}

// SetCurrentAlerts publishes alert counts of the latest per-instrument rows.
func SetCurrentAlerts(overbought, oversold, neutral int) {
	DefaultMetrics.CurrentAlerts.WithLabelValues("overbought").Set(float64(overbought))
	DefaultMetrics.CurrentAlerts.WithLabelValues("oversold").Set(float64(oversold))
	DefaultMetrics.CurrentAlerts.WithLabelValues("neutral").Set(float64(neutral))
}

// RecordReportGenerated counts a generated alert report.
func RecordReportGenerated() {
	DefaultMetrics.ReportsGenerated.Inc()
}

// RecordAICall counts a chat completion call.
func RecordAICall(purpose string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.AICallsTotal.WithLabelValues(purpose, status).Inc()
}

// RecordAICacheHit counts commentary served from cache.
func RecordAICacheHit() {
	DefaultMetrics.AICacheHits.Inc()
}

// RecordExtraction counts an image extraction result.
func RecordExtraction(status string) {
	DefaultMetrics.ExtractionsTotal.WithLabelValues(status).Inc()
}

// SetBreakerState publishes a circuit breaker state.
func SetBreakerState(name string, state int) {
	DefaultMetrics.BreakerStateGauge.WithLabelValues(name).Set(float64(state))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(route string, code int, d time.Duration) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	DefaultMetrics.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}
