package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Nishant142k2/pdf-rag/internal/core/domain"
	"github.com/Nishant142k2/pdf-rag/internal/core/ports"
)

type ChatUseCase struct {
	retriever   ports.Retriever
	synthesizer ports.AnswerSynthesizer
}

func NewChatUseCase(retriever ports.Retriever, synthesizer ports.AnswerSynthesizer) *ChatUseCase {
	return &ChatUseCase{
		retriever:   retriever,
		synthesizer: synthesizer,
	}
}

// Ask returns an error only when retrieval fails; model failures come back
// as a degraded envelope.
func (uc *ChatUseCase) Ask(ctx context.Context, question string) (*domain.AnswerEnvelope, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", errors.New("question is required"))
	}
	slog.Info("chat_question", "question", preview(question))

	candidates, err := uc.retriever.Retrieve(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	if len(candidates) == 0 {
		env := domain.NoContextEnvelope()
		return &env, nil
	}
	for i, c := range candidates {
		slog.Debug("chat_candidate", "rank", i, "source", c.Source, "preview", preview(c.Text))
	}

	env := uc.synthesizer.Synthesize(ctx, question, candidates)
	slog.Info("chat_answered", "sources", len(env.Sources), "degraded", env.Error != "")
	return &env, nil
}
