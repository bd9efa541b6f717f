package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Nishant142k2/pdf-rag/internal/infrastructure/resilience"
)

// Client talks to a local Ollama server. It is the self-hosted alternative to
// the Gemini embedder and Groq chat model.
type Client struct {
	baseURL  string
	http     *http.Client
	executor *resilience.Executor
}

func New(baseURL string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 2 * time.Minute},
		executor: executor,
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type Embedder struct {
	client *Client
	model  string
}

func NewEmbedder(client *Client, model string) *Embedder {
	return &Embedder{client: client, model: model}
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var out embedResponse
	if err := e.client.call(ctx, "embed", embedRequest{Model: e.model, Input: texts}, &out); err != nil {
		return nil, err
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d vectors for %d texts", len(out.Embeddings), len(texts))
	}
	return out.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// ChatModel completes prompts with a single non-streaming /api/generate call.
type ChatModel struct {
	client *Client
	model  string
}

func NewChatModel(client *Client, model string) *ChatModel {
	return &ChatModel{client: client, model: model}
}

func (m *ChatModel) Complete(ctx context.Context, prompt string) (string, error) {
	var out generateResponse
	if err := m.client.call(ctx, "generate", generateRequest{Model: m.model, Prompt: prompt}, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Response), nil
}

// call posts to /api/<endpoint> under the executor and marks retryable
// failures as temporary.
func (c *Client) call(ctx context.Context, endpoint string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal ollama %s request: %w", endpoint, err)
	}
	err = c.executor.Execute(ctx, "ollama."+endpoint, func(ctx context.Context) error {
		return c.post(ctx, endpoint, body, out)
	}, resilience.ClassifyHTTP)
	return resilience.WrapTemporary("ollama "+endpoint, err, resilience.ClassifyHTTP)
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build ollama %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return resilience.NewStatusError("ollama", endpoint, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode ollama %s response: %w", endpoint, err)
	}
	return nil
}
