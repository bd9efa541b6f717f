package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPServerMetrics holds HTTP traffic series plus chat and upload outcomes.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge

	answers       prometheus.Counter
	answerHits    prometheus.Counter
	answerEmpty   prometheus.Counter
	answerFailed  prometheus.Counter
	answerSources prometheus.Histogram
	answerLatency prometheus.Histogram

	uploadFiles   *prometheus.CounterVec
	uploadChunks  prometheus.Counter
	uploadLatency prometheus.Histogram
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry, f := newRegistry(service)
	m := &HTTPServerMetrics{registry: registry}

	m.requests = f.NewCounterVec(prometheus.CounterOpts(opts("http", "requests_total",
		"HTTP requests by method, route and status.")), []string{"method", "path", "status"})
	m.latency = f.NewHistogramVec(histogramOpts("http", "request_duration_seconds",
		"HTTP request latency.", prometheus.DefBuckets), []string{"method", "path"})
	m.inFlight = f.NewGauge(prometheus.GaugeOpts(opts("http", "in_flight_requests",
		"Requests currently being served.")))

	m.answers = f.NewCounter(prometheus.CounterOpts(opts("rag", "requests_total",
		"Answered chat requests.")))
	m.answerHits = f.NewCounter(prometheus.CounterOpts(opts("rag", "retrieval_hit_total",
		"Chat answers citing at least one source.")))
	m.answerEmpty = f.NewCounter(prometheus.CounterOpts(opts("rag", "no_context_total",
		"Chat answers given without sources.")))
	m.answerFailed = f.NewCounter(prometheus.CounterOpts(opts("rag", "degraded_total",
		"Chat answers where the model call failed.")))
	m.answerSources = f.NewHistogram(histogramOpts("rag", "retrieved_chunks",
		"Cited sources per chat answer.", []float64{0, 1, 2, 3, 4, 5, 8}))
	m.answerLatency = f.NewHistogram(histogramOpts("rag", "duration_seconds",
		"Time to produce a chat answer.", prometheus.DefBuckets))

	m.uploadFiles = f.NewCounterVec(prometheus.CounterOpts(opts("ingest", "files_total",
		"Uploaded files by outcome.")), []string{"status"})
	m.uploadChunks = f.NewCounter(prometheus.CounterOpts(opts("ingest", "upserted_chunks_total",
		"Chunks written to the vector index.")))
	m.uploadLatency = f.NewHistogram(histogramOpts("ingest", "duration_seconds",
		"Upload request processing time.", []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300}))
	return m
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return handlerFor(m.registry)
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		next.ServeHTTP(rec, r)

		path := normalizePath(r.URL.Path)
		m.requests.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		m.latency.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath folds "/chat/" into "/chat" so both routes share a series.
func normalizePath(path string) string {
	if len(path) > 1 {
		return strings.TrimRight(path, "/")
	}
	return path
}

// RecordAnswer classifies one chat answer as degraded, grounded or empty.
func (m *HTTPServerMetrics) RecordAnswer(sources int, degraded bool, duration time.Duration) {
	m.answers.Inc()
	m.answerSources.Observe(float64(sources))
	m.answerLatency.Observe(duration.Seconds())

	switch {
	case degraded:
		m.answerFailed.Inc()
	case sources > 0:
		m.answerHits.Inc()
	default:
		m.answerEmpty.Inc()
	}
}

// RecordIngest counts per-file outcomes of one upload request.
func (m *HTTPServerMetrics) RecordIngest(indexed, queued, failed, upserted int, duration time.Duration) {
	for status, n := range map[string]int{"indexed": indexed, "queued": queued, "failed": failed} {
		if n > 0 {
			m.uploadFiles.WithLabelValues(status).Add(float64(n))
		}
	}
	m.uploadChunks.Add(float64(upserted))
	m.uploadLatency.Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
