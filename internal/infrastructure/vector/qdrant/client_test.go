package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Nishant142k2/pdf-rag/internal/core/domain"
)

func TestUpsertEnsuresCollectionOnce(t *testing.T) {
	var createCalls int32
	var created atomic.Bool
	var upsertBody struct {
		Points []struct {
			ID      string         `json:"id"`
			Payload map[string]any `json:"payload"`
		} `json:"points"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/docs":
			if !created.Load() {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			_, _ = w.Write([]byte(`{"result":{}}`))
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs":
			atomic.AddInt32(&createCalls, 1)
			var body map[string]map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["vectors"]["distance"] != "Dot" || body["vectors"]["size"] != float64(2) {
				http.Error(w, "bad vectors config", http.StatusBadRequest)
				return
			}
			created.Store(true)
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs/points":
			_ = json.NewDecoder(r.Body).Decode(&upsertBody)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "docs", 2, nil)
	records := []domain.VectorRecord{
		{ID: "report-0", Values: []float32{0.1, 0.2}, Metadata: map[string]any{"text": "a"}},
		{ID: "report-1", Values: []float32{0.3, 0.4}, Metadata: map[string]any{"text": "b"}},
	}

	for i := 0; i < 2; i++ {
		if err := client.Upsert(context.Background(), records); err != nil {
			t.Fatalf("Upsert() #%d error = %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&createCalls); got != 1 {
		t.Fatalf("expected create collection called once, got %d", got)
	}
	if len(upsertBody.Points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(upsertBody.Points))
	}
	if upsertBody.Points[0].ID != PointID("report-0") || upsertBody.Points[0].Payload["chunk_id"] != "report-0" {
		t.Fatalf("unexpected point: %+v", upsertBody.Points[0])
	}
}

func TestPointIDIsStable(t *testing.T) {
	if PointID("report-0") != PointID("report-0") {
		t.Fatalf("expected deterministic point id")
	}
	if PointID("report-0") == PointID("report-1") {
		t.Fatalf("expected distinct point ids")
	}
}

func TestQueryRestoresChunkIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/docs":
			_, _ = w.Write([]byte(`{"result":{"points_count":7,"config":{"params":{"vectors":{"size":2}}}}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/collections/docs/points/search":
			_, _ = w.Write([]byte(`{"result":[{"id":"6f1c","score":0.8,"payload":{"chunk_id":"report-3","text":"hello","page":2}}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "docs", 2, nil)
	matches, err := client.Query(context.Background(), []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "report-3" || matches[0].Score != 0.8 {
		t.Fatalf("unexpected matches: %+v", matches)
	}
	if _, ok := matches[0].Metadata["chunk_id"]; ok {
		t.Fatalf("expected chunk_id removed from metadata")
	}

	stats, err := client.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalVectorCount != 7 || stats.Dimension != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestEnsureIndexIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(server.URL, "docs", 2, nil)
	err := client.EnsureIndex(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}
