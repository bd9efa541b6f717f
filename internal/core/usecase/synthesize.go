package usecase

import (
	"context"
	"log/slog"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/Nishant142k2/pdf-rag/internal/core/domain"
	"github.com/Nishant142k2/pdf-rag/internal/core/ports"
)

const RefusalSentence = "I don't have enough information in the provided context to answer that question."

const DefaultInstructions = `You are an expert assistant whose sole job is to answer questions using only the provided context.
Follow these rules strictly:

1. ONLY use information from the Context provided below
2. If the context doesn't contain enough information to answer the question, respond with: "` + RefusalSentence + `"
3. Be concise but comprehensive in your answer
4. If you find relevant information, provide a clear and direct answer
5. Do not make assumptions or add information not present in the context
6. If the context contains metadata (like titles, authors, page numbers), you can reference it to provide better context`

// BuildPrompt renders the single-turn prompt sent to the chat model.
func BuildPrompt(instructions, question string, candidates []domain.Candidate) string {
	if strings.TrimSpace(instructions) == "" {
		instructions = DefaultInstructions
	}
	texts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		texts = append(texts, c.Text)
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(instructions, "\n"))
	b.WriteString("\n\nContext:\n")
	b.WriteString(strings.Join(texts, "\n\n"))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

// BuildSources maps candidates to source attributions, dropping exact
// duplicates while keeping first-seen order.
func BuildSources(candidates []domain.Candidate) []domain.Source {
	out := make([]domain.Source, 0, len(candidates))
	for _, c := range candidates {
		src := domain.Source{
			Source:         c.Source,
			Page:           c.Page,
			Title:          c.Title,
			RelevanceScore: roundScore(c.Score),
		}
		if containsSource(out, src) {
			continue
		}
		out = append(out, src)
	}
	return out
}

func containsSource(sources []domain.Source, src domain.Source) bool {
	for _, s := range sources {
		if reflect.DeepEqual(s, src) {
			return true
		}
	}
	return false
}

func roundScore(score float64) float64 {
	return math.Round(score*1000) / 1000
}

type SynthesizerOptions struct {
	Instructions string
	Timeout      time.Duration
}

// Synthesizer makes exactly one chat call per question. Failures are folded
// into a degraded envelope.
type Synthesizer struct {
	model ports.ChatModel
	opts  SynthesizerOptions
}

func NewSynthesizer(model ports.ChatModel, opts SynthesizerOptions) *Synthesizer {
	return &Synthesizer{model: model, opts: opts}
}

func (s *Synthesizer) Synthesize(ctx context.Context, question string, candidates []domain.Candidate) domain.AnswerEnvelope {
	prompt := BuildPrompt(s.opts.Instructions, question, candidates)

	chatCtx, cancel := withOptionalTimeout(ctx, s.opts.Timeout)
	defer cancel()
	answer, err := s.model.Complete(chatCtx, prompt)
	if err != nil {
		slog.Error("synthesize_failed", "error", err, "candidates", len(candidates))
		return domain.DegradedEnvelope(err)
	}

	return domain.AnswerEnvelope{
		Answer:  answer,
		Sources: BuildSources(candidates),
	}
}

var _ ports.AnswerSynthesizer = (*Synthesizer)(nil)
