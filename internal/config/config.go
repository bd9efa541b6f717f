package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Nishant142k2/pdf-rag/internal/core/domain"
)

const (
	VectorBackendPinecone = "pinecone"
	VectorBackendQdrant   = "qdrant"

	LLMProviderHosted = "hosted"
	LLMProviderOllama = "ollama"

	IngestModeSync  = "sync"
	IngestModeAsync = "async"
)

type Config struct {
	APIPort   string
	LogLevel  string
	LogFormat string

	VectorBackend string
	LLMProvider   string
	IngestMode    string

	PineconeAPIKey     string
	PineconeIndexName  string
	PineconeCloud      string
	PineconeRegion     string
	PineconeControlURL string

	GroqAPIKey     string
	GroqBaseURL    string
	GroqModel      string
	GoogleAPIKey   string
	EmbedBaseURL   string
	EmbedModel     string
	EmbedDimension int

	OllamaURL        string
	OllamaGenModel   string
	OllamaEmbedModel string

	QdrantURL        string
	QdrantCollection string

	NATSURL     string
	NATSSubject string

	UploadDir      string
	MaxUploadBytes int64

	ChunkSize               int
	ChunkOverlap            int
	IngestBatchSize         int
	IngestUpsertConcurrency int
	Retrieval               domain.FilterPolicy
	PromptInstructions      string

	EmbedTimeout         time.Duration
	SearchTimeout        time.Duration
	ChatTimeout          time.Duration
	UpsertTimeout        time.Duration
	IndexReadyTimeout    time.Duration
	WorkerProcessTimeout time.Duration

	ResilienceRetryMaxAttempts int
	ResilienceRetryAfterMax    time.Duration
	ResilienceBreakerEnabled   bool

	APIRateLimitRPS            float64
	APIRateLimitBurst          int
	APIBackpressureMaxInFlight int
	APIBackpressureWait        time.Duration

	WorkerMetricsPort string
}

// fileConfig is the optional CONFIG_FILE overlay for ingestion and retrieval
// tuning. It is seeded from the current values, so keys absent from the file
// keep them.
type fileConfig struct {
	Chunking  chunkingFile        `yaml:"chunking"`
	Ingest    ingestFile          `yaml:"ingest"`
	Retrieval domain.FilterPolicy `yaml:"retrieval"`
	Prompt    promptFile          `yaml:"prompt"`
}

type chunkingFile struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

type ingestFile struct {
	BatchSize         int `yaml:"batch_size"`
	UpsertConcurrency int `yaml:"upsert_concurrency"`
}

type promptFile struct {
	Instructions string `yaml:"instructions"`
}

func defaults() Config {
	return Config{
		ChunkSize:               500,
		ChunkOverlap:            50,
		IngestBatchSize:         100,
		IngestUpsertConcurrency: 1,
		Retrieval:               domain.DefaultFilterPolicy(),
	}
}

// Load reads the environment, with tuning values taken from CONFIG_FILE
// first when it is set. Environment variables win over the file.
func Load() (Config, error) {
	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	cfg.APIPort = mustEnv("PORT", "8000")
	cfg.LogLevel = mustEnv("LOG_LEVEL", "info")
	cfg.LogFormat = mustEnv("LOG_FORMAT", "json")

	cfg.VectorBackend = strings.ToLower(mustEnv("VECTOR_BACKEND", VectorBackendPinecone))
	cfg.LLMProvider = strings.ToLower(mustEnv("LLM_PROVIDER", LLMProviderHosted))
	cfg.IngestMode = strings.ToLower(mustEnv("INGEST_MODE", IngestModeSync))

	cfg.PineconeAPIKey = mustEnv("PINECONE_API_KEY", "")
	cfg.PineconeIndexName = mustEnv("PINECONE_INDEX_NAME", "")
	cfg.PineconeCloud = mustEnv("PINECONE_CLOUD", "aws")
	cfg.PineconeRegion = mustEnv("PINECONE_REGION", "")
	cfg.PineconeControlURL = mustEnv("PINECONE_CONTROL_URL", "https://api.pinecone.io")

	cfg.GroqAPIKey = mustEnv("GROQ_API_KEY", "")
	cfg.GroqBaseURL = mustEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1")
	cfg.GroqModel = mustEnv("GROQ_MODEL", "llama3-70b-8192")
	cfg.GoogleAPIKey = mustEnv("GOOGLE_API_KEY", "")
	cfg.EmbedBaseURL = mustEnv("EMBED_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai")
	cfg.EmbedModel = mustEnv("EMBED_MODEL", "text-embedding-004")
	cfg.EmbedDimension = mustEnvInt("EMBED_DIMENSION", 768)

	cfg.OllamaURL = mustEnv("OLLAMA_URL", "http://localhost:11434")
	cfg.OllamaGenModel = mustEnv("OLLAMA_GEN_MODEL", "llama3.1:8b")
	cfg.OllamaEmbedModel = mustEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text")

	cfg.QdrantURL = mustEnv("QDRANT_URL", "http://localhost:6333")
	cfg.QdrantCollection = mustEnv("QDRANT_COLLECTION", "ragindex")

	cfg.NATSURL = mustEnv("NATS_URL", "nats://localhost:4222")
	cfg.NATSSubject = mustEnv("NATS_SUBJECT", "documents.staged")

	cfg.UploadDir = mustEnv("UPLOAD_DIR", "./uploaded_files")
	cfg.MaxUploadBytes = int64(mustEnvInt("MAX_UPLOAD_BYTES", 64<<20))

	cfg.ChunkSize = mustEnvInt("CHUNK_SIZE", cfg.ChunkSize)
	cfg.ChunkOverlap = mustEnvInt("CHUNK_OVERLAP", cfg.ChunkOverlap)
	cfg.IngestBatchSize = mustEnvInt("INGEST_BATCH_SIZE", cfg.IngestBatchSize)
	cfg.IngestUpsertConcurrency = mustEnvInt("INGEST_UPSERT_CONCURRENCY", cfg.IngestUpsertConcurrency)
	cfg.Retrieval.TopK = mustEnvInt("RAG_TOP_K", cfg.Retrieval.TopK)
	cfg.Retrieval.MaxCandidates = mustEnvInt("RAG_MAX_CANDIDATES", cfg.Retrieval.MaxCandidates)
	cfg.PromptInstructions = mustEnv("PROMPT_INSTRUCTIONS", cfg.PromptInstructions)

	cfg.EmbedTimeout = mustEnvDuration("EMBED_TIMEOUT", 30*time.Second)
	cfg.SearchTimeout = mustEnvDuration("SEARCH_TIMEOUT", 15*time.Second)
	cfg.ChatTimeout = mustEnvDuration("CHAT_TIMEOUT", 60*time.Second)
	cfg.UpsertTimeout = mustEnvDuration("UPSERT_TIMEOUT", 30*time.Second)
	cfg.IndexReadyTimeout = mustEnvDuration("INDEX_READY_TIMEOUT", 2*time.Minute)
	cfg.WorkerProcessTimeout = mustEnvDuration("WORKER_PROCESS_TIMEOUT", 10*time.Minute)

	cfg.ResilienceRetryMaxAttempts = mustEnvInt("RESILIENCE_RETRY_MAX_ATTEMPTS", 3)
	cfg.ResilienceRetryAfterMax = mustEnvDuration("RESILIENCE_RETRY_AFTER_MAX", 5*time.Second)
	cfg.ResilienceBreakerEnabled = mustEnvBool("RESILIENCE_BREAKER_ENABLED", true)

	cfg.APIRateLimitRPS = mustEnvFloat("API_RATE_LIMIT_RPS", 0)
	cfg.APIRateLimitBurst = mustEnvInt("API_RATE_LIMIT_BURST", 10)
	cfg.APIBackpressureMaxInFlight = mustEnvInt("API_BACKPRESSURE_MAX_IN_FLIGHT", 0)
	cfg.APIBackpressureWait = mustEnvDuration("API_BACKPRESSURE_WAIT", 250*time.Millisecond)

	cfg.WorkerMetricsPort = mustEnv("WORKER_METRICS_PORT", "9090")

	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	fc := fileConfig{
		Chunking:  chunkingFile{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap},
		Ingest:    ingestFile{BatchSize: cfg.IngestBatchSize, UpsertConcurrency: cfg.IngestUpsertConcurrency},
		Retrieval: cfg.Retrieval,
		Prompt:    promptFile{Instructions: cfg.PromptInstructions},
	}
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "parse config file", err)
	}

	if fc.Chunking.Size > 0 {
		cfg.ChunkSize = fc.Chunking.Size
	}
	if fc.Chunking.Overlap >= 0 {
		cfg.ChunkOverlap = fc.Chunking.Overlap
	}
	if fc.Ingest.BatchSize > 0 {
		cfg.IngestBatchSize = fc.Ingest.BatchSize
	}
	if fc.Ingest.UpsertConcurrency > 0 {
		cfg.IngestUpsertConcurrency = fc.Ingest.UpsertConcurrency
	}
	cfg.Retrieval = fc.Retrieval.Normalize()
	cfg.PromptInstructions = strings.TrimSpace(fc.Prompt.Instructions)
	return nil
}

// Validate fails fast on missing credentials and unknown modes.
func (c Config) Validate() error {
	var missing []string
	require := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}

	require("PORT", c.APIPort)
	switch c.VectorBackend {
	case VectorBackendPinecone:
		require("PINECONE_API_KEY", c.PineconeAPIKey)
		require("PINECONE_INDEX_NAME", c.PineconeIndexName)
		require("PINECONE_REGION", c.PineconeRegion)
	case VectorBackendQdrant:
		require("QDRANT_URL", c.QdrantURL)
	default:
		return domain.WrapError(domain.ErrInvalidInput, "validate config", fmt.Errorf("unknown VECTOR_BACKEND %q", c.VectorBackend))
	}
	switch c.LLMProvider {
	case LLMProviderHosted:
		require("GROQ_API_KEY", c.GroqAPIKey)
		require("GOOGLE_API_KEY", c.GoogleAPIKey)
	case LLMProviderOllama:
		require("OLLAMA_URL", c.OllamaURL)
	default:
		return domain.WrapError(domain.ErrInvalidInput, "validate config", fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider))
	}
	switch c.IngestMode {
	case IngestModeSync:
	case IngestModeAsync:
		require("NATS_URL", c.NATSURL)
	default:
		return domain.WrapError(domain.ErrInvalidInput, "validate config", fmt.Errorf("unknown INGEST_MODE %q", c.IngestMode))
	}
	if len(missing) > 0 {
		return domain.WrapError(domain.ErrInvalidInput, "validate config", fmt.Errorf("missing required settings: %s", strings.Join(missing, ", ")))
	}

	if c.EmbedDimension <= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "validate config", fmt.Errorf("EMBED_DIMENSION must be positive, got %d", c.EmbedDimension))
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return domain.WrapError(domain.ErrInvalidInput, "validate config", fmt.Errorf("chunk overlap %d must be below chunk size %d", c.ChunkOverlap, c.ChunkSize))
	}
	return nil
}

func (c Config) AsyncIngest() bool {
	return c.IngestMode == IngestModeAsync
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
