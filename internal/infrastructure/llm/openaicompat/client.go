package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/Nishant142k2/pdf-rag/internal/core/domain"
	"github.com/Nishant142k2/pdf-rag/internal/infrastructure/resilience"
)

const (
	GroqBaseURL   = "https://api.groq.com/openai/v1"
	GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
)

func newClient(apiKey, baseURL string) *openai.Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return openai.NewClientWithConfig(config)
}

type ChatConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// ChatModel sends one user message per prompt to an OpenAI-compatible
// chat completions endpoint.
type ChatModel struct {
	client   *openai.Client
	cfg      ChatConfig
	executor *resilience.Executor
}

func NewChatModel(cfg ChatConfig, executor *resilience.Executor) *ChatModel {
	if cfg.BaseURL == "" {
		cfg.BaseURL = GroqBaseURL
	}
	return &ChatModel{
		client:   newClient(cfg.APIKey, cfg.BaseURL),
		cfg:      cfg,
		executor: executor,
	}
}

func (m *ChatModel) Complete(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: m.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: m.cfg.Temperature,
		MaxTokens:   m.cfg.MaxTokens,
	}

	resp, err := resilience.Do(ctx, m.executor, "llm.chat", func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		return m.client.CreateChatCompletion(ctx, req)
	}, classifyError)
	if err != nil {
		err = wrapAuth("chat completion", fmt.Errorf("create chat completion: %w", err))
		return "", resilience.WrapTemporary("chat completion", err, classifyError)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

type EmbedderConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	BatchSize  int
}

// Embedder calls an OpenAI-compatible embeddings endpoint, splitting large
// inputs into BatchSize requests.
type Embedder struct {
	client   *openai.Client
	cfg      EmbedderConfig
	executor *resilience.Executor
}

func NewEmbedder(cfg EmbedderConfig, executor *resilience.Executor) *Embedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = GeminiBaseURL
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Embedder{
		client:   newClient(cfg.APIKey, cfg.BaseURL),
		cfg:      cfg,
		executor: executor,
	}
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := e.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *Embedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequestStrings{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.cfg.Model),
		Dimensions: e.cfg.Dimensions,
	}

	resp, err := resilience.Do(ctx, e.executor, "llm.embed", func(ctx context.Context) (openai.EmbeddingResponse, error) {
		return e.client.CreateEmbeddings(ctx, req)
	}, classifyError)
	if err != nil {
		err = wrapAuth("embed", fmt.Errorf("create embeddings: %w", err))
		return nil, resilience.WrapTemporary("embed", err, classifyError)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings count mismatch: got %d, want %d", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) || out[idx] != nil {
			idx = i
		}
		out[idx] = d.Embedding
	}
	return out, nil
}

func classifyError(err error) resilience.ErrorClassification {
	if code := statusCode(err); code != 0 {
		return resilience.ClassifyStatus(code)
	}
	return resilience.ClassifyHTTP(err)
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// IsUnauthorized reports a rejected API key.
func IsUnauthorized(err error) bool {
	code := statusCode(err)
	return code == 401 || code == 403
}

func wrapAuth(operation string, err error) error {
	if IsUnauthorized(err) {
		return domain.WrapError(domain.ErrUnauthorized, operation, err)
	}
	return err
}
