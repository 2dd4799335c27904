package observability

import (
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// NewMetrics registers with the default registry, so the vector mechanics
// are exercised here against isolated registries instead.

func TestBackendRequestCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_backend_requests_total",
			Help: "Test backend request counter",
		},
		[]string{"backend", "model", "status"},
	)
	registry.MustRegister(counter)

	counter.WithLabelValues("codex", "gpt-5.2", "success").Inc()
	counter.WithLabelValues("codex", "gpt-5.2", "success").Inc()
	counter.WithLabelValues("cursor", "cursor", "timeout").Inc()

	if count := testutil.CollectAndCount(counter); count != 2 {
		t.Errorf("Expected 2 label combinations, got %d", count)
	}

	expected := `
		# HELP test_backend_requests_total Test backend request counter
		# TYPE test_backend_requests_total counter
		test_backend_requests_total{backend="codex",model="gpt-5.2",status="success"} 2
		test_backend_requests_total{backend="cursor",model="cursor",status="timeout"} 1
	`
	if err := testutil.CollectAndCompare(counter, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}

func TestSubprocessTruncationCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_subprocess_truncations_total",
			Help: "Test truncation counter",
		},
		[]string{"backend", "stream"},
	)
	registry.MustRegister(counter)

	counter.WithLabelValues("opencode", "stdout").Inc()

	expected := `
		# HELP test_subprocess_truncations_total Test truncation counter
		# TYPE test_subprocess_truncations_total counter
		test_subprocess_truncations_total{backend="opencode",stream="stdout"} 1
	`
	if err := testutil.CollectAndCompare(counter, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}

func TestQueueDepthGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "test_queue_depth",
			Help: "Test queue depth gauge",
		},
		[]string{"state"},
	)
	registry.MustRegister(gauge)

	gauge.WithLabelValues("pending").Set(3)
	gauge.WithLabelValues("running").Set(1)
	gauge.WithLabelValues("pending").Set(2)

	expected := `
		# HELP test_queue_depth Test queue depth gauge
		# TYPE test_queue_depth gauge
		test_queue_depth{state="pending"} 2
		test_queue_depth{state="running"} 1
	`
	if err := testutil.CollectAndCompare(gauge, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}

func TestJobDurationHistogram(t *testing.T) {
	registry := prometheus.NewRegistry()
	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_job_duration_seconds",
			Help:    "Test job duration histogram",
			Buckets: []float64{1, 5, 15, 30, 60},
		},
		[]string{"backend"},
	)
	registry.MustRegister(histogram)

	histogram.WithLabelValues("codex").Observe(2.5)
	histogram.WithLabelValues("codex").Observe(12)
	histogram.WithLabelValues("gemini").Observe(0.5)

	if count := testutil.CollectAndCount(histogram); count != 2 {
		t.Errorf("Expected 2 label combinations, got %d", count)
	}
}

func TestConcurrentMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_concurrent_total",
			Help: "Test concurrent increments",
		},
		[]string{"backend"},
	)
	registry.MustRegister(counter)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				counter.WithLabelValues("codex").Inc()
			}
		}()
	}
	wg.Wait()

	expected := `
		# HELP test_concurrent_total Test concurrent increments
		# TYPE test_concurrent_total counter
		test_concurrent_total{backend="codex"} 1000
	`
	if err := testutil.CollectAndCompare(counter, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}
