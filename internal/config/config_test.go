package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Nishant142k2/pdf-rag/internal/core/domain"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("VECTOR_BACKEND", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("INGEST_MODE", "")
	t.Setenv("PINECONE_API_KEY", "pc-key")
	t.Setenv("PINECONE_INDEX_NAME", "ragindex")
	t.Setenv("PINECONE_REGION", "us-east-1")
	t.Setenv("GROQ_API_KEY", "groq-key")
	t.Setenv("GOOGLE_API_KEY", "google-key")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "")
	t.Setenv("CHUNK_SIZE", "")
	t.Setenv("CHUNK_OVERLAP", "")
	t.Setenv("EMBED_DIMENSION", "")
	t.Setenv("SEARCH_TIMEOUT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIPort != "8000" {
		t.Fatalf("expected default port 8000, got %q", cfg.APIPort)
	}
	if cfg.ChunkSize != 500 || cfg.ChunkOverlap != 50 {
		t.Fatalf("expected chunking 500/50, got %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.EmbedDimension != 768 {
		t.Fatalf("expected embed dimension 768, got %d", cfg.EmbedDimension)
	}
	if cfg.Retrieval != domain.DefaultFilterPolicy() {
		t.Fatalf("unexpected retrieval policy: %+v", cfg.Retrieval)
	}
	if cfg.SearchTimeout != 15*time.Second {
		t.Fatalf("expected search timeout 15s, got %s", cfg.SearchTimeout)
	}
	if cfg.VectorBackend != VectorBackendPinecone || cfg.LLMProvider != LLMProviderHosted || cfg.AsyncIngest() {
		t.Fatalf("unexpected modes: %s/%s/%s", cfg.VectorBackend, cfg.LLMProvider, cfg.IngestMode)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("CHAT_TIMEOUT", "5s")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("INGEST_MODE", "ASYNC")
	t.Setenv("RAG_TOP_K", "20")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIPort != "9000" {
		t.Fatalf("expected port override, got %q", cfg.APIPort)
	}
	if cfg.ChatTimeout != 5*time.Second {
		t.Fatalf("expected chat timeout 5s, got %s", cfg.ChatTimeout)
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected rps 2.5, got %v", cfg.APIRateLimitRPS)
	}
	if !cfg.AsyncIngest() {
		t.Fatalf("expected async ingest mode, got %q", cfg.IngestMode)
	}
	if cfg.Retrieval.TopK != 20 {
		t.Fatalf("expected top k 20, got %d", cfg.Retrieval.TopK)
	}
}

func TestLoadAppliesConfigFileBelowEnv(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	content := `chunking:
  size: 800
  overlap: 100
ingest:
  batch_size: 50
retrieval:
  top_k: 12
  max_candidates: 4
  min_content_length: 3
  min_text_length: 30
prompt:
  instructions: "Answer briefly."
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("CHUNK_SIZE", "")
	t.Setenv("CHUNK_OVERLAP", "120")
	t.Setenv("INGEST_BATCH_SIZE", "")
	t.Setenv("RAG_TOP_K", "")
	t.Setenv("RAG_MAX_CANDIDATES", "")
	t.Setenv("PROMPT_INSTRUCTIONS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ChunkSize != 800 {
		t.Fatalf("expected chunk size from file, got %d", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap != 120 {
		t.Fatalf("expected env to win for overlap, got %d", cfg.ChunkOverlap)
	}
	if cfg.IngestBatchSize != 50 {
		t.Fatalf("expected batch size 50, got %d", cfg.IngestBatchSize)
	}
	if cfg.Retrieval.TopK != 12 || cfg.Retrieval.MaxCandidates != 4 || cfg.Retrieval.MinTextLength != 30 {
		t.Fatalf("unexpected retrieval policy: %+v", cfg.Retrieval)
	}
	if cfg.PromptInstructions != "Answer briefly." {
		t.Fatalf("unexpected instructions: %q", cfg.PromptInstructions)
	}
}

func writeConfigFile(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
}

func TestLoadPartialRetrievalBlockKeepsOtherThresholds(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RAG_TOP_K", "")
	t.Setenv("RAG_MAX_CANDIDATES", "")
	writeConfigFile(t, "retrieval:\n  top_k: 20\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := domain.DefaultFilterPolicy()
	want.TopK = 20
	if cfg.Retrieval != want {
		t.Fatalf("expected %+v after partial overlay, got %+v", want, cfg.Retrieval)
	}
}

func TestLoadConfigFileCanDisableOverlap(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CHUNK_SIZE", "")
	t.Setenv("CHUNK_OVERLAP", "")
	writeConfigFile(t, "chunking:\n  overlap: 0\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ChunkSize != 500 || cfg.ChunkOverlap != 0 {
		t.Fatalf("expected chunking 500/0, got %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestLoadRejectsBrokenConfigFile(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("chunking: [unclosed"), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	if _, err := Load(); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestValidateReportsMissingKeys(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PINECONE_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	err = cfg.Validate()
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
	for _, key := range []string{"PINECONE_API_KEY", "GROQ_API_KEY"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected %s in error, got %v", key, err)
		}
	}
}

func TestValidateLocalStackNeedsNoCloudKeys(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PINECONE_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("VECTOR_BACKEND", "qdrant")
	t.Setenv("LLM_PROVIDER", "ollama")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidateRejectsUnknownBackendAndBadChunking(t *testing.T) {
	cfg := defaults()
	cfg.APIPort = "8000"
	cfg.VectorBackend = "milvus"
	cfg.LLMProvider = LLMProviderOllama
	cfg.IngestMode = IngestModeSync
	if err := cfg.Validate(); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid backend error, got %v", err)
	}

	cfg.VectorBackend = VectorBackendQdrant
	cfg.QdrantURL = "http://localhost:6333"
	cfg.OllamaURL = "http://localhost:11434"
	cfg.EmbedDimension = 768
	cfg.ChunkOverlap = cfg.ChunkSize
	if err := cfg.Validate(); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected chunking error, got %v", err)
	}
}
