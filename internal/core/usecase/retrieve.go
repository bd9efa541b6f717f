package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Nishant142k2/pdf-rag/internal/core/domain"
	"github.com/Nishant142k2/pdf-rag/internal/core/ports"
)

type RetrieverOptions struct {
	Policy        domain.FilterPolicy
	EmbedTimeout  time.Duration
	SearchTimeout time.Duration
}

// VectorRetriever embeds the question, runs a top-K search and filters the
// hits into context candidates.
type VectorRetriever struct {
	embedder ports.Embedder
	store    ports.VectorStore
	opts     RetrieverOptions
}

func NewVectorRetriever(embedder ports.Embedder, store ports.VectorStore, opts RetrieverOptions) *VectorRetriever {
	opts.Policy = opts.Policy.Normalize()
	return &VectorRetriever{
		embedder: embedder,
		store:    store,
		opts:     opts,
	}
}

func (r *VectorRetriever) Retrieve(ctx context.Context, question string) ([]domain.Candidate, error) {
	embedCtx, cancel := withOptionalTimeout(ctx, r.opts.EmbedTimeout)
	defer cancel()
	queryVector, err := r.embedder.EmbedQuery(embedCtx, question)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	searchCtx, cancelSearch := withOptionalTimeout(ctx, r.opts.SearchTimeout)
	defer cancelSearch()
	matches, err := r.store.Query(searchCtx, queryVector, r.opts.Policy.TopK)
	if err != nil {
		return nil, fmt.Errorf("search vector store: %w", err)
	}

	slog.Debug("retrieval_matches", "count", len(matches))
	for i, m := range matches {
		text := metaString(m.Metadata, domain.MetaText)
		slog.Debug("retrieval_match",
			"rank", i,
			"score", m.Score,
			"text_length", utf8.RuneCountInString(text),
			"preview", preview(text),
		)
	}

	candidates := FilterMatches(matches, r.opts.Policy)
	slog.Info("retrieval_done", "matches", len(matches), "candidates", len(candidates))
	return candidates, nil
}

// FilterMatches turns raw hits into at most MaxCandidates candidates, keeping
// store order. Near-empty texts are replaced by a metadata summary, exact
// duplicates and texts shorter than MinTextLength are dropped.
func FilterMatches(matches []domain.Match, policy domain.FilterPolicy) []domain.Candidate {
	policy = policy.Normalize()
	out := make([]domain.Candidate, 0, policy.MaxCandidates)
	seen := make(map[string]struct{}, len(matches))

	for _, m := range matches {
		text := strings.TrimSpace(metaString(m.Metadata, domain.MetaText))
		if isLowContent(text, policy.MinContentLength) {
			text = metadataSummary(m.Metadata)
			if text == "" {
				continue
			}
		}

		if _, dup := seen[text]; dup {
			continue
		}
		if utf8.RuneCountInString(text) < policy.MinTextLength {
			continue
		}
		seen[text] = struct{}{}

		out = append(out, domain.Candidate{
			Text:   text,
			Source: firstString(m.Metadata, domain.UnknownValue, domain.MetaFilename, domain.MetaSource),
			Page:   pageValue(m.Metadata),
			Title:  firstString(m.Metadata, domain.UnknownValue, domain.MetaTitle),
			Score:  m.Score,
		})
		if len(out) >= policy.MaxCandidates {
			break
		}
	}
	return out
}

func isLowContent(text string, minLen int) bool {
	if utf8.RuneCountInString(text) <= minLen {
		return true
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func metadataSummary(md map[string]any) string {
	var lines []string
	for _, field := range []struct{ key, label string }{
		{domain.MetaTitle, "Title"},
		{domain.MetaSubject, "Subject"},
		{domain.MetaKeywords, "Keywords"},
		{domain.MetaAuthor, "Author"},
	} {
		if v := metaString(md, field.key); v != "" {
			lines = append(lines, field.label+": "+v)
		}
	}

	pageKey := domain.MetaPage
	if _, ok := md[domain.MetaPageLabel]; ok {
		pageKey = domain.MetaPageLabel
	}
	if page := normalizeScalar(md[pageKey]); !isZeroScalar(page) {
		lines = append(lines, fmt.Sprintf("Page: %v", page))
	}
	return strings.Join(lines, "\n")
}

// pageValue prefers the human page label over the zero-based page index.
func pageValue(md map[string]any) any {
	for _, key := range []string{domain.MetaPageLabel, domain.MetaPage} {
		if v, ok := md[key]; ok && v != nil {
			return normalizeScalar(v)
		}
	}
	return domain.UnknownValue
}

func firstString(md map[string]any, fallback string, keys ...string) string {
	for _, key := range keys {
		if v, ok := md[key]; ok && v != nil {
			return metaString(md, key)
		}
	}
	return fallback
}

func metaString(md map[string]any, key string) string {
	v, ok := md[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", normalizeScalar(v))
}

// normalizeScalar folds integral floats (JSON numbers) back to int so pages
// compare and render as "3" rather than "3.0".
func normalizeScalar(v any) any {
	switch n := v.(type) {
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < math.MaxInt32 {
			return int(n)
		}
	case float32:
		if float64(n) == math.Trunc(float64(n)) {
			return int(n)
		}
	case int64:
		return int(n)
	case int32:
		return int(n)
	}
	return v
}

func isZeroScalar(v any) bool {
	switch n := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(n) == ""
	case int:
		return n == 0
	case float64:
		return n == 0
	case bool:
		return !n
	}
	return false
}

// StaticRetriever serves a fixed, already filtered candidate list.
type StaticRetriever struct {
	Candidates []domain.Candidate
}

func (r StaticRetriever) Retrieve(context.Context, string) ([]domain.Candidate, error) {
	out := make([]domain.Candidate, len(r.Candidates))
	copy(out, r.Candidates)
	return out, nil
}

var (
	_ ports.Retriever = (*VectorRetriever)(nil)
	_ ports.Retriever = StaticRetriever{}
)
