// Package metrics exposes Prometheus instrumentation for retiming runs,
// external tool invocations and the HTTP API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the jumpcutter service
type Metrics struct {
	registry *prometheus.Registry

	// Run metrics
	RunsStarted  prometheus.Counter
	RunsFinished *prometheus.CounterVec
	ActiveRuns   prometheus.Gauge
	RunDuration  prometheus.Histogram

	// Timeline metrics
	SegmentsPlanned  prometheus.Counter
	SectionsRendered prometheus.Counter
	InputSeconds     prometheus.Counter
	OutputSeconds    prometheus.Counter

	// External tool metrics
	ToolDuration *prometheus.HistogramVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics on a private registry. Go runtime and
// process collectors are registered alongside.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RunsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "jumpcutter_runs_started_total",
			Help: "Total number of retiming runs started",
		}),
		RunsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "jumpcutter_runs_finished_total",
			Help: "Total number of retiming runs finished, by outcome",
		}, []string{"outcome"}),
		ActiveRuns: f.NewGauge(prometheus.GaugeOpts{
			Name: "jumpcutter_active_runs",
			Help: "Current number of runs in progress",
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "jumpcutter_run_duration_seconds",
			Help:    "Wall time of a retiming run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),

		SegmentsPlanned: f.NewCounter(prometheus.CounterOpts{
			Name: "jumpcutter_segments_planned_total",
			Help: "Total number of segments produced by segmentation",
		}),
		SectionsRendered: f.NewCounter(prometheus.CounterOpts{
			Name: "jumpcutter_sections_rendered_total",
			Help: "Total number of sections rendered",
		}),
		InputSeconds: f.NewCounter(prometheus.CounterOpts{
			Name: "jumpcutter_input_seconds_total",
			Help: "Total source media time analyzed",
		}),
		OutputSeconds: f.NewCounter(prometheus.CounterOpts{
			Name: "jumpcutter_output_seconds_total",
			Help: "Total retimed media time produced",
		}),

		ToolDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jumpcutter_tool_duration_seconds",
			Help:    "Duration of ffmpeg and ffprobe invocations",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms to ~7 minutes
		}, []string{"op", "status"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "jumpcutter_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jumpcutter_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// Registry returns the registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordRunStarted counts a run and marks it active
func (m *Metrics) RecordRunStarted() {
	m.RunsStarted.Inc()
	m.ActiveRuns.Inc()
}

// RecordRunFinished records the outcome ("completed", "failed", "cancelled") and wall time
func (m *Metrics) RecordRunFinished(outcome string, elapsed time.Duration) {
	m.ActiveRuns.Dec()
	m.RunsFinished.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
}

// RecordTimeline records the segmentation result of a run
func (m *Metrics) RecordTimeline(segments int, inputSeconds, outputSeconds float64) {
	m.SegmentsPlanned.Add(float64(segments))
	m.InputSeconds.Add(inputSeconds)
	m.OutputSeconds.Add(outputSeconds)
}

// RecordSectionRendered increments the rendered sections counter
func (m *Metrics) RecordSectionRendered() {
	m.SectionsRendered.Inc()
}

// ObserveTool records an external tool invocation.
func (m *Metrics) ObserveTool(op string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ToolDuration.WithLabelValues(op, status).Observe(elapsed.Seconds())
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
}
