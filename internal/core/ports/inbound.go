package ports

import (
	"context"

	"github.com/Nishant142k2/pdf-rag/internal/core/domain"
)

// DocumentIngestor is the inbound contract for upload processing. It never
// fails as a whole: per-file problems are reported inside the report.
type DocumentIngestor interface {
	Ingest(ctx context.Context, files []domain.UploadedFile) domain.IngestReport
}

// StagedFileProcessor indexes files that were already staged, used by the worker.
type StagedFileProcessor interface {
	ProcessStaged(ctx context.Context, files []domain.StagedFile) domain.IngestReport
}

// ChatService answers a question from indexed documents.
type ChatService interface {
	Ask(ctx context.Context, question string) (*domain.AnswerEnvelope, error)
}
