package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Nishant142k2/pdf-rag/internal/config"
	"github.com/Nishant142k2/pdf-rag/internal/core/ports"
	"github.com/Nishant142k2/pdf-rag/internal/core/usecase"
	"github.com/Nishant142k2/pdf-rag/internal/infrastructure/chunking"
	"github.com/Nishant142k2/pdf-rag/internal/infrastructure/extractor/pdf"
	"github.com/Nishant142k2/pdf-rag/internal/infrastructure/llm/ollama"
	"github.com/Nishant142k2/pdf-rag/internal/infrastructure/llm/openaicompat"
	"github.com/Nishant142k2/pdf-rag/internal/infrastructure/queue/nats"
	"github.com/Nishant142k2/pdf-rag/internal/infrastructure/resilience"
	"github.com/Nishant142k2/pdf-rag/internal/infrastructure/storage/localfs"
	"github.com/Nishant142k2/pdf-rag/internal/infrastructure/vector/pinecone"
	"github.com/Nishant142k2/pdf-rag/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	Store ports.VectorStore
	// Queue is nil unless INGEST_MODE=async.
	Queue *nats.Queue

	IngestUC *usecase.IngestUseCase
	ChatUC   *usecase.ChatUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	resilienceCfg := resilience.DefaultConfig()
	resilienceCfg.Attempts = cfg.ResilienceRetryMaxAttempts
	resilienceCfg.MaxRetryAfter = cfg.ResilienceRetryAfterMax
	resilienceCfg.Breaker.Enabled = cfg.ResilienceBreakerEnabled
	executor := resilience.NewExecutor(resilienceCfg)
	// Chat calls are never retried; a failed call becomes a degraded answer.
	chatExecutor := resilience.NewExecutor(resilienceCfg.WithoutRetries())

	storage, err := localfs.New(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("init upload storage: %w", err)
	}

	store, err := newVectorStore(cfg, executor)
	if err != nil {
		return nil, err
	}
	readyCtx, cancel := context.WithTimeout(ctx, cfg.IndexReadyTimeout)
	defer cancel()
	if err := store.EnsureIndex(readyCtx); err != nil {
		return nil, fmt.Errorf("ensure vector index: %w", err)
	}

	embedder, chatModel, err := newModels(cfg, executor, chatExecutor)
	if err != nil {
		return nil, err
	}

	var (
		queue       *nats.Queue
		ingestQueue ports.IngestQueue
	)
	if cfg.AsyncIngest() {
		queue, err = nats.New(cfg.NATSURL, cfg.NATSSubject, executor)
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		ingestQueue = queue
	}

	ingestUC := usecase.NewIngestUseCase(
		storage,
		pdf.NewExtractor(storage),
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder,
		store,
		ingestQueue,
		usecase.IngestOptions{
			BatchSize:         cfg.IngestBatchSize,
			UpsertConcurrency: cfg.IngestUpsertConcurrency,
			Dimension:         cfg.EmbedDimension,
			EmbedTimeout:      cfg.EmbedTimeout,
			UpsertTimeout:     cfg.UpsertTimeout,
		},
	)
	retriever := usecase.NewVectorRetriever(embedder, store, usecase.RetrieverOptions{
		Policy:        cfg.Retrieval,
		EmbedTimeout:  cfg.EmbedTimeout,
		SearchTimeout: cfg.SearchTimeout,
	})
	synthesizer := usecase.NewSynthesizer(chatModel, usecase.SynthesizerOptions{
		Instructions: cfg.PromptInstructions,
		Timeout:      cfg.ChatTimeout,
	})

	slog.Info("bootstrap_ready",
		"vector_backend", cfg.VectorBackend,
		"llm_provider", cfg.LLMProvider,
		"ingest_mode", cfg.IngestMode,
		"upload_dir", cfg.UploadDir,
	)

	return &App{
		Config:   cfg,
		Store:    store,
		Queue:    queue,
		IngestUC: ingestUC,
		ChatUC:   usecase.NewChatUseCase(retriever, synthesizer),
		closeFn: func() {
			if queue != nil {
				queue.Close()
			}
		},
	}, nil
}

func newVectorStore(cfg config.Config, executor *resilience.Executor) (ports.VectorStore, error) {
	switch cfg.VectorBackend {
	case config.VectorBackendPinecone:
		store, err := pinecone.New(pinecone.Config{
			APIKey:       cfg.PineconeAPIKey,
			IndexName:    cfg.PineconeIndexName,
			Cloud:        cfg.PineconeCloud,
			Region:       cfg.PineconeRegion,
			Dimension:    cfg.EmbedDimension,
			ControlURL:   cfg.PineconeControlURL,
			ReadyTimeout: cfg.IndexReadyTimeout,
		}, executor)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.VectorBackendQdrant:
		return qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, cfg.EmbedDimension, executor), nil
	default:
		return nil, fmt.Errorf("unsupported vector backend %q", cfg.VectorBackend)
	}
}

func newModels(cfg config.Config, executor, chatExecutor *resilience.Executor) (ports.Embedder, ports.ChatModel, error) {
	switch cfg.LLMProvider {
	case config.LLMProviderHosted:
		embedder := openaicompat.NewEmbedder(openaicompat.EmbedderConfig{
			APIKey:     cfg.GoogleAPIKey,
			BaseURL:    cfg.EmbedBaseURL,
			Model:      cfg.EmbedModel,
			Dimensions: cfg.EmbedDimension,
			BatchSize:  cfg.IngestBatchSize,
		}, executor)
		chatModel := openaicompat.NewChatModel(openaicompat.ChatConfig{
			APIKey:  cfg.GroqAPIKey,
			BaseURL: cfg.GroqBaseURL,
			Model:   cfg.GroqModel,
		}, chatExecutor)
		return embedder, chatModel, nil
	case config.LLMProviderOllama:
		embedder := ollama.NewEmbedder(ollama.New(cfg.OllamaURL, executor), cfg.OllamaEmbedModel)
		chatModel := ollama.NewChatModel(ollama.New(cfg.OllamaURL, chatExecutor), cfg.OllamaGenModel)
		return embedder, chatModel, nil
	default:
		return nil, nil, fmt.Errorf("unsupported llm provider %q", cfg.LLMProvider)
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
