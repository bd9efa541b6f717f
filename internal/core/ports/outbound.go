package ports

import (
	"context"
	"io"

	"github.com/Nishant142k2/pdf-rag/internal/core/domain"
)

// ObjectStorage stages uploaded documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Path(key string) string
}

// DocumentParser extracts per-page text and document info from a staged file.
type DocumentParser interface {
	Parse(ctx context.Context, file domain.StagedFile) (*domain.ParsedDocument, error)
}

// Chunker splits text into overlapping chunks.
type Chunker interface {
	Split(text string) []string
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore upserts records by id and runs top-K similarity queries.
type VectorStore interface {
	EnsureIndex(ctx context.Context) error
	Upsert(ctx context.Context, records []domain.VectorRecord) error
	Query(ctx context.Context, vector []float32, topK int) ([]domain.Match, error)
	Stats(ctx context.Context) (domain.IndexStats, error)
}

// ChatModel runs a single-turn completion of a rendered prompt.
type ChatModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Retriever returns candidates for a question, in ranked order.
type Retriever interface {
	Retrieve(ctx context.Context, question string) ([]domain.Candidate, error)
}

// AnswerSynthesizer turns candidates into an answer envelope. It does not
// return errors; failures are folded into the envelope.
type AnswerSynthesizer interface {
	Synthesize(ctx context.Context, question string, candidates []domain.Candidate) domain.AnswerEnvelope
}

// IngestQueue publishes/consumes staged files for async ingestion.
type IngestQueue interface {
	PublishStagedFile(ctx context.Context, file domain.StagedFile) error
	SubscribeStagedFiles(ctx context.Context, handler func(context.Context, domain.StagedFile) error) error
}
