package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, handler http.Handler) string {
	t.Helper()
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics handler, got %d", res.Code)
	}
	return res.Body.String()
}

func TestRecordIngestCountsOutcomes(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.RecordIngest(2, 0, 1, 40, 3*time.Second)

	out := scrape(t, m.Handler())
	for _, want := range []string{
		`pdfrag_ingest_files_total{service="api",status="indexed"} 2`,
		`pdfrag_ingest_files_total{service="api",status="failed"} 1`,
		`pdfrag_ingest_upserted_chunks_total{service="api"} 40`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, `status="queued"`) {
		t.Fatalf("did not expect queued series without queued files")
	}
}

func TestRecordAnswerSeparatesDegraded(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.RecordAnswer(2, false, time.Second)
	m.RecordAnswer(0, true, time.Second)
	m.RecordAnswer(0, false, time.Second)

	out := scrape(t, m.Handler())
	for _, want := range []string{
		`pdfrag_rag_requests_total{service="api"} 3`,
		`pdfrag_rag_retrieval_hit_total{service="api"} 1`,
		`pdfrag_rag_degraded_total{service="api"} 1`,
		`pdfrag_rag_no_context_total{service="api"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestNormalizePath(t *testing.T) {
	if got := normalizePath("/upload/"); got != "/upload" {
		t.Fatalf("expected /upload, got %q", got)
	}
	if got := normalizePath("/"); got != "/" {
		t.Fatalf("expected root to stay, got %q", got)
	}
}

func TestWorkerMetricsTrackFiles(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.StartFile()
	m.FinishFile(time.Second, 12, nil)
	m.StartFile()
	m.FinishFile(time.Second, 0, errors.New("boom"))
	m.ObserveQueueLag(-time.Second)

	out := scrape(t, m.Handler())
	for _, want := range []string{
		`pdfrag_worker_file_process_total{service="worker",status="success"} 1`,
		`pdfrag_worker_file_process_total{service="worker",status="error"} 1`,
		`pdfrag_worker_upserted_chunks_total{service="worker"} 12`,
		`pdfrag_worker_file_process_in_flight{service="worker"} 0`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestMiddlewareLabelsRequests(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/chat/", nil))

	out := scrape(t, m.Handler())
	want := `pdfrag_http_requests_total{method="POST",path="/chat",service="api",status="418"} 1`
	if !strings.Contains(out, want) {
		t.Fatalf("expected %q in output:\n%s", want, out)
	}
	if !strings.Contains(out, "go_goroutines") {
		t.Fatalf("expected runtime collectors in output")
	}
}
