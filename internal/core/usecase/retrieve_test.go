package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Nishant142k2/pdf-rag/internal/core/domain"
)

func match(score float64, md map[string]any) domain.Match {
	return domain.Match{Score: score, Metadata: md}
}

func TestFilterMatchesSubstitutesPageNumberTexts(t *testing.T) {
	matches := []domain.Match{
		match(0.9, map[string]any{"text": " 12 ", "title": "Annual Report", "author": "Finance Team", "page_label": "12"}),
	}

	got := FilterMatches(matches, domain.DefaultFilterPolicy())
	if len(got) != 1 {
		t.Fatalf("expected substituted candidate, got %d", len(got))
	}
	want := "Title: Annual Report\nAuthor: Finance Team\nPage: 12"
	if got[0].Text != want {
		t.Fatalf("unexpected substitute text: %q", got[0].Text)
	}
	if got[0].Page != "12" || got[0].Title != "Annual Report" {
		t.Fatalf("unexpected candidate: %+v", got[0])
	}
}

func TestFilterMatchesDiscardsWithoutMetadata(t *testing.T) {
	matches := []domain.Match{
		match(0.9, map[string]any{"text": "7"}),
		match(0.8, map[string]any{"text": "42", "page": float64(0)}),
		match(0.7, map[string]any{"text": "ok"}),
	}
	if got := FilterMatches(matches, domain.DefaultFilterPolicy()); len(got) != 0 {
		t.Fatalf("expected all candidates discarded, got %+v", got)
	}
}

func TestFilterMatchesDeduplicatesAndDropsShortTexts(t *testing.T) {
	text := "The capital of France is Paris."
	matches := []domain.Match{
		match(0.95, map[string]any{"text": text, "filename": "a.pdf"}),
		match(0.50, map[string]any{"text": "  " + text + "  ", "filename": "b.pdf"}),
		match(0.40, map[string]any{"text": "too short text"}),
	}

	got := FilterMatches(matches, domain.DefaultFilterPolicy())
	if len(got) != 1 {
		t.Fatalf("expected one candidate, got %+v", got)
	}
	if got[0].Source != "a.pdf" || got[0].Score != 0.95 {
		t.Fatalf("expected first-ranked duplicate to win, got %+v", got[0])
	}
}

func TestFilterMatchesCapsInStoreOrder(t *testing.T) {
	var matches []domain.Match
	for i := 0; i < 10; i++ {
		matches = append(matches, match(float64(i), map[string]any{
			"text": strings.Repeat(string(rune('a'+i)), 25),
		}))
	}

	got := FilterMatches(matches, domain.DefaultFilterPolicy())
	if len(got) != 5 {
		t.Fatalf("expected cap of 5, got %d", len(got))
	}
	for i, c := range got {
		if c.Score != float64(i) {
			t.Fatalf("expected store order, candidate %d has score %v", i, c.Score)
		}
	}
}

func TestFilterMatchesFieldFallbacks(t *testing.T) {
	text := "A sufficiently long passage of text."
	got := FilterMatches([]domain.Match{
		match(0.3, map[string]any{"text": text, "source": "uploaded_files/x.pdf", "page": float64(3)}),
		match(0.2, map[string]any{"text": text + " again"}),
	}, domain.DefaultFilterPolicy())

	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Source != "uploaded_files/x.pdf" || got[0].Page != 3 || got[0].Title != domain.UnknownValue {
		t.Fatalf("unexpected fallbacks: %+v", got[0])
	}
	if got[1].Source != domain.UnknownValue || got[1].Page != domain.UnknownValue {
		t.Fatalf("unexpected unknown fallbacks: %+v", got[1])
	}
}

func TestFilterMatchesHonorsPolicy(t *testing.T) {
	policy := domain.FilterPolicy{TopK: 3, MaxCandidates: 1, MinContentLength: 3, MinTextLength: 5}
	got := FilterMatches([]domain.Match{
		match(0.9, map[string]any{"text": "short"}),
		match(0.8, map[string]any{"text": "other"}),
	}, policy)
	if len(got) != 1 || got[0].Text != "short" {
		t.Fatalf("unexpected candidates: %+v", got)
	}
}

func TestVectorRetrieverQueriesTopK(t *testing.T) {
	embedder := &fakeEmbedder{dimension: 3}
	store := newFakeStore()
	store.matches = []domain.Match{match(0.9, map[string]any{"text": "The capital of France is Paris.", "filename": "geo.pdf", "page": float64(3)})}
	r := NewVectorRetriever(embedder, store, RetrieverOptions{EmbedTimeout: time.Second, SearchTimeout: time.Second})

	got, err := r.Retrieve(context.Background(), "capital of France?")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if store.lastTopK != 10 || embedder.lastQuery != "capital of France?" {
		t.Fatalf("unexpected query topK=%d q=%q", store.lastTopK, embedder.lastQuery)
	}
	if len(got) != 1 || got[0].Page != 3 {
		t.Fatalf("unexpected candidates: %+v", got)
	}
}

func TestVectorRetrieverPropagatesErrors(t *testing.T) {
	embedder := &fakeEmbedder{dimension: 3, queryErr: errors.New("embed down")}
	r := NewVectorRetriever(embedder, newFakeStore(), RetrieverOptions{})
	if _, err := r.Retrieve(context.Background(), "q"); err == nil || !strings.Contains(err.Error(), "embed query") {
		t.Fatalf("expected embed error, got %v", err)
	}

	store := newFakeStore()
	store.queryErr = errors.New("index gone")
	r = NewVectorRetriever(&fakeEmbedder{dimension: 3}, store, RetrieverOptions{})
	if _, err := r.Retrieve(context.Background(), "q"); err == nil || !strings.Contains(err.Error(), "search vector store") {
		t.Fatalf("expected search error, got %v", err)
	}
}

func TestStaticRetrieverReturnsCopy(t *testing.T) {
	r := StaticRetriever{Candidates: []domain.Candidate{{Text: "fixed"}}}
	got, err := r.Retrieve(context.Background(), "anything")
	if err != nil || len(got) != 1 {
		t.Fatalf("unexpected result: %v %v", got, err)
	}
	got[0].Text = "changed"
	if r.Candidates[0].Text != "fixed" {
		t.Fatalf("expected caller mutation not to leak")
	}
}
