package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - HTTP request latency and counts on the gateway
//   - Backend request performance and token usage
//   - Subprocess execution patterns (durations, timeouts, truncations)
//   - Job queue throughput and depth
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.RecordBackendRequest("codex", "gpt-5.2", "success", 12.5, 100, 500)
//
// All Record methods are no-ops on a nil *Metrics, so components can treat
// the collector as optional.
type Metrics struct {
	// HTTPRequestDuration measures gateway request latency.
	// Labels: method, path, status_code
	// Buckets: 0.001s, 0.005s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s, 30s, 120s, 600s
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts gateway requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// BackendRequestDuration measures backend completion latency in seconds.
	// Labels: backend, model
	// Buckets: 0.1s, 0.5s, 1s, 5s, 15s, 30s, 60s, 120s, 300s, 600s
	BackendRequestDuration *prometheus.HistogramVec

	// BackendRequestCounter counts backend completions.
	// Labels: backend, model, status (success|error|timeout|not-found|cancelled)
	BackendRequestCounter *prometheus.CounterVec

	// BackendTokensUsed tracks estimated token consumption.
	// Labels: backend, model, type (prompt|completion)
	BackendTokensUsed *prometheus.CounterVec

	// SubprocessDuration measures CLI subprocess wall time in seconds.
	// Labels: backend
	// Buckets: 0.1s, 0.5s, 1s, 5s, 15s, 30s, 60s, 120s, 300s, 600s
	SubprocessDuration *prometheus.HistogramVec

	// SubprocessCounter counts subprocess runs.
	// Labels: backend, status (success|error|timeout|not-found|cancelled)
	SubprocessCounter *prometheus.CounterVec

	// SubprocessTruncations counts captured streams that hit the limit.
	// Labels: backend, stream (stdout|stderr)
	SubprocessTruncations *prometheus.CounterVec

	// JobsEnqueued counts jobs accepted by the gateway.
	// Labels: backend
	JobsEnqueued *prometheus.CounterVec

	// JobsCompleted counts jobs reaching a terminal state.
	// Labels: backend, status (done|failed)
	JobsCompleted *prometheus.CounterVec

	// JobRetries counts rate-limited jobs handed to the rescheduler.
	// Labels: backend
	JobRetries *prometheus.CounterVec

	// JobDuration measures job execution time in seconds.
	// Labels: backend
	// Buckets: 1s, 5s, 15s, 30s, 60s, 120s, 300s, 600s, 1800s
	JobDuration *prometheus.HistogramVec

	// QueueDepth is a gauge tracking jobs by state.
	// Labels: state (pending|running)
	QueueDepth *prometheus.GaugeVec
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup; metrics register with
// the default registry and surface on /metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),

		BackendRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_backend_request_duration_seconds",
				Help:    "Duration of backend completions in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"backend", "model"},
		),

		BackendRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_backend_requests_total",
				Help: "Total number of backend completions by backend, model, and status",
			},
			[]string{"backend", "model", "status"},
		),

		BackendTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_backend_tokens_total",
				Help: "Estimated tokens used by backend, model, and type",
			},
			[]string{"backend", "model", "type"},
		),

		SubprocessDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_subprocess_duration_seconds",
				Help:    "Wall time of backend subprocesses in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"backend"},
		),

		SubprocessCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_subprocess_runs_total",
				Help: "Total number of backend subprocess runs by status",
			},
			[]string{"backend", "status"},
		),

		SubprocessTruncations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_subprocess_truncations_total",
				Help: "Captured subprocess streams that hit the capture limit",
			},
			[]string{"backend", "stream"},
		),

		JobsEnqueued: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_jobs_enqueued_total",
				Help: "Total number of jobs accepted into the queue",
			},
			[]string{"backend"},
		),

		JobsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_jobs_completed_total",
				Help: "Total number of jobs reaching a terminal state",
			},
			[]string{"backend", "status"},
		),

		JobRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_job_retries_total",
				Help: "Total number of rate-limited jobs scheduled for re-submission",
			},
			[]string{"backend"},
		),

		JobDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_job_duration_seconds",
				Help:    "Duration of job executions in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"backend"},
		),

		QueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relay_queue_depth",
				Help: "Current number of jobs by state",
			},
			[]string{"state"},
		),
	}
}

// RecordHTTPRequest records metrics for a gateway request.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}

// RecordBackendRequest records metrics for a backend completion.
//
// Example:
//
//	start := time.Now()
//	// ... run completion ...
//	metrics.RecordBackendRequest("codex", "gpt-5.2", "success", time.Since(start).Seconds(), 100, 500)
func (m *Metrics) RecordBackendRequest(backend, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	if m == nil {
		return
	}
	m.BackendRequestCounter.WithLabelValues(backend, model, status).Inc()
	m.BackendRequestDuration.WithLabelValues(backend, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.BackendTokensUsed.WithLabelValues(backend, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.BackendTokensUsed.WithLabelValues(backend, model, "completion").Add(float64(completionTokens))
	}
}

// RecordSubprocess records metrics for one subprocess run.
func (m *Metrics) RecordSubprocess(backend, status string, durationSeconds float64, stdoutTruncated, stderrTruncated bool) {
	if m == nil {
		return
	}
	m.SubprocessCounter.WithLabelValues(backend, status).Inc()
	m.SubprocessDuration.WithLabelValues(backend).Observe(durationSeconds)
	if stdoutTruncated {
		m.SubprocessTruncations.WithLabelValues(backend, "stdout").Inc()
	}
	if stderrTruncated {
		m.SubprocessTruncations.WithLabelValues(backend, "stderr").Inc()
	}
}

// JobEnqueued increments the enqueue counter for a backend.
func (m *Metrics) JobEnqueued(backend string) {
	if m == nil {
		return
	}
	m.JobsEnqueued.WithLabelValues(backend).Inc()
}

// JobFinished records a job reaching a terminal state.
func (m *Metrics) JobFinished(backend, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.JobsCompleted.WithLabelValues(backend, status).Inc()
	m.JobDuration.WithLabelValues(backend).Observe(durationSeconds)
}

// JobRetryScheduled increments the retry counter for a backend.
func (m *Metrics) JobRetryScheduled(backend string) {
	if m == nil {
		return
	}
	m.JobRetries.WithLabelValues(backend).Inc()
}

// SetQueueDepth sets the queue depth gauge for a state.
func (m *Metrics) SetQueueDepth(state string, depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(state).Set(float64(depth))
}
