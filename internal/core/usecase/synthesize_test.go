package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Nishant142k2/pdf-rag/internal/core/domain"
)

func TestBuildPromptLayout(t *testing.T) {
	prompt := BuildPrompt("", "What is the capital?", []domain.Candidate{
		{Text: "Paris is the capital of France."},
		{Text: "Berlin is the capital of Germany."},
	})

	if !strings.Contains(prompt, RefusalSentence) {
		t.Fatalf("expected refusal sentence in prompt")
	}
	wantTail := "Context:\nParis is the capital of France.\n\nBerlin is the capital of Germany.\n\nQuestion: What is the capital?\n\nAnswer:"
	if !strings.HasSuffix(prompt, wantTail) {
		t.Fatalf("unexpected prompt tail:\n%s", prompt)
	}
}

func TestBuildPromptCustomInstructions(t *testing.T) {
	prompt := BuildPrompt("Answer briefly.\n", "q", nil)
	if !strings.HasPrefix(prompt, "Answer briefly.\n\nContext:\n") {
		t.Fatalf("unexpected prompt: %q", prompt)
	}
}

func TestBuildSourcesRoundsAndDeduplicates(t *testing.T) {
	got := BuildSources([]domain.Candidate{
		{Source: "geo.pdf", Page: 3, Title: "Unknown", Score: 0.91234},
		{Source: "geo.pdf", Page: 3, Title: "Unknown", Score: 0.9124},
		{Source: "geo.pdf", Page: "3", Title: "Unknown", Score: 0.9123},
	})
	if len(got) != 2 {
		t.Fatalf("expected 2 sources, got %+v", got)
	}
	if got[0].RelevanceScore != 0.912 {
		t.Fatalf("expected score rounded to 3 decimals, got %v", got[0].RelevanceScore)
	}
	if got[1].Page != "3" {
		t.Fatalf("expected string page kept distinct, got %+v", got[1])
	}
}

func TestSynthesizeSuccess(t *testing.T) {
	model := &fakeChatModel{answer: "Paris."}
	s := NewSynthesizer(model, SynthesizerOptions{})

	env := s.Synthesize(context.Background(), "capital?", []domain.Candidate{
		{Text: "The capital of France is Paris.", Source: "geo.pdf", Page: 3, Title: "Unknown", Score: 0.9},
	})

	if env.Answer != "Paris." || env.Error != "" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if len(env.Sources) != 1 || env.Sources[0].Source != "geo.pdf" || env.Sources[0].Page != 3 {
		t.Fatalf("unexpected sources: %+v", env.Sources)
	}
	if model.calls != 1 {
		t.Fatalf("expected exactly one model call, got %d", model.calls)
	}
}

func TestSynthesizeDegradesOnModelFailure(t *testing.T) {
	model := &fakeChatModel{err: errors.New("rate limited")}
	s := NewSynthesizer(model, SynthesizerOptions{})

	env := s.Synthesize(context.Background(), "q", []domain.Candidate{{Text: "context text long enough", Source: "a.pdf"}})

	if env.Answer != domain.DegradedAnswer || env.Error != "rate limited" {
		t.Fatalf("unexpected degraded envelope: %+v", env)
	}
	if env.Sources == nil || len(env.Sources) != 0 {
		t.Fatalf("expected empty non-nil sources, got %#v", env.Sources)
	}
	if model.calls != 1 {
		t.Fatalf("expected no retries, got %d calls", model.calls)
	}
}
