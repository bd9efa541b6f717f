package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkerMetrics covers the async ingest worker.
type WorkerMetrics struct {
	registry *prometheus.Registry

	files    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge
	chunks   prometheus.Counter
	lag      prometheus.Histogram
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry, f := newRegistry(service)
	m := &WorkerMetrics{registry: registry}

	m.files = f.NewCounterVec(prometheus.CounterOpts(opts("worker", "file_process_total",
		"Staged files processed, by status.")), []string{"status"})
	m.latency = f.NewHistogramVec(histogramOpts("worker", "file_process_duration_seconds",
		"Time to index one staged file, by status.",
		[]float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600}), []string{"status"})
	m.inFlight = f.NewGauge(prometheus.GaugeOpts(opts("worker", "file_process_in_flight",
		"Staged files currently being indexed.")))
	m.chunks = f.NewCounter(prometheus.CounterOpts(opts("worker", "upserted_chunks_total",
		"Chunks written to the vector index by the worker.")))
	m.lag = f.NewHistogram(histogramOpts("worker", "queue_lag_seconds",
		"Delay between staging a file and the worker picking it up.",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600}))
	return m
}

func (m *WorkerMetrics) Handler() http.Handler {
	return handlerFor(m.registry)
}

func (m *WorkerMetrics) StartFile() {
	m.inFlight.Inc()
}

func (m *WorkerMetrics) FinishFile(duration time.Duration, upserted int, err error) {
	m.inFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.files.WithLabelValues(status).Inc()
	m.latency.WithLabelValues(status).Observe(duration.Seconds())
	m.chunks.Add(float64(upserted))
}

// ObserveQueueLag ignores negative lags caused by clock skew between hosts.
func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag >= 0 {
		m.lag.Observe(lag.Seconds())
	}
}
