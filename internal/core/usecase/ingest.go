package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Nishant142k2/pdf-rag/internal/core/domain"
	"github.com/Nishant142k2/pdf-rag/internal/core/ports"
)

const previewRunes = 100

type IngestOptions struct {
	BatchSize         int
	UpsertConcurrency int
	Dimension         int
	EmbedTimeout      time.Duration
	UpsertTimeout     time.Duration
}

func (o IngestOptions) normalize() IngestOptions {
	out := o
	if out.BatchSize <= 0 {
		out.BatchSize = 100
	}
	if out.UpsertConcurrency <= 0 {
		out.UpsertConcurrency = 1
	}
	return out
}

// IngestUseCase stages uploads and turns them into vector records. With a
// queue configured, Ingest only stages and publishes; ProcessStaged does the
// indexing on the worker side.
type IngestUseCase struct {
	storage  ports.ObjectStorage
	parser   ports.DocumentParser
	chunker  ports.Chunker
	embedder ports.Embedder
	store    ports.VectorStore
	queue    ports.IngestQueue
	opts     IngestOptions
}

func NewIngestUseCase(
	storage ports.ObjectStorage,
	parser ports.DocumentParser,
	chunker ports.Chunker,
	embedder ports.Embedder,
	store ports.VectorStore,
	queue ports.IngestQueue,
	opts IngestOptions,
) *IngestUseCase {
	return &IngestUseCase{
		storage:  storage,
		parser:   parser,
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		queue:    queue,
		opts:     opts.normalize(),
	}
}

func (uc *IngestUseCase) Ingest(ctx context.Context, files []domain.UploadedFile) domain.IngestReport {
	var report domain.IngestReport
	for _, file := range files {
		staged, err := uc.Stage(ctx, file)
		if err != nil {
			slog.Error("ingest_stage_failed", "filename", file.Filename, "error", err)
			report.Add(domain.FileResult{Filename: file.Filename, Error: err.Error()})
			continue
		}

		if uc.queue != nil {
			report.Add(uc.enqueue(ctx, staged))
			continue
		}
		report.Add(uc.processFile(ctx, staged))
	}

	if uc.queue == nil {
		uc.logIndexStats(ctx, report)
	}
	return report
}

func (uc *IngestUseCase) ProcessStaged(ctx context.Context, files []domain.StagedFile) domain.IngestReport {
	var report domain.IngestReport
	for _, staged := range files {
		report.Add(uc.processFile(ctx, staged))
	}
	uc.logIndexStats(ctx, report)
	return report
}

// Stage persists the upload under its sanitized name. Re-uploading the same
// name overwrites the staged file.
func (uc *IngestUseCase) Stage(ctx context.Context, file domain.UploadedFile) (domain.StagedFile, error) {
	if file.Body == nil {
		return domain.StagedFile{}, domain.WrapError(domain.ErrInvalidInput, "stage upload", errors.New("empty body"))
	}
	key := sanitizeFilename(file.Filename)
	if err := uc.storage.Save(ctx, key, file.Body); err != nil {
		return domain.StagedFile{}, fmt.Errorf("save to upload dir: %w", err)
	}

	filename := file.Filename
	if strings.TrimSpace(filename) == "" {
		filename = key
	}
	return domain.StagedFile{
		ID:       uuid.NewString(),
		Key:      key,
		Filename: filename,
		StagedAt: time.Now().UTC(),
	}, nil
}

func (uc *IngestUseCase) enqueue(ctx context.Context, staged domain.StagedFile) domain.FileResult {
	result := domain.FileResult{Filename: staged.Filename}
	if err := uc.queue.PublishStagedFile(ctx, staged); err != nil {
		slog.Error("ingest_publish_failed", "filename", staged.Filename, "error", err)
		result.Error = fmt.Sprintf("publish ingestion event: %v", err)
		return result
	}
	slog.Info("ingest_file_queued", "filename", staged.Filename, "staged_id", staged.ID)
	result.Queued = true
	return result
}

func (uc *IngestUseCase) processFile(ctx context.Context, staged domain.StagedFile) domain.FileResult {
	result := domain.FileResult{Filename: staged.Filename}
	fail := func(err error) domain.FileResult {
		slog.Error("ingest_file_failed", "filename", staged.Filename, "error", err)
		result.Error = err.Error()
		return result
	}

	doc, err := uc.parser.Parse(ctx, staged)
	if err != nil {
		return fail(fmt.Errorf("parse document: %w", err))
	}
	if doc.CharCount() == 0 {
		slog.Warn("ingest_file_skipped", "filename", staged.Filename, "pages", doc.TotalPages, "reason", "no extractable text")
		result.Error = domain.ErrEmptyDocument.Error()
		return result
	}

	chunks := uc.buildChunks(staged, doc)
	result.Chunks = len(chunks)
	if len(chunks) == 0 {
		slog.Warn("ingest_file_skipped", "filename", staged.Filename, "reason", "no chunks")
		result.Error = domain.ErrEmptyDocument.Error()
		return result
	}
	slog.Debug("ingest_chunks_built",
		"filename", staged.Filename,
		"pages", doc.TotalPages,
		"chars", doc.CharCount(),
		"chunks", len(chunks),
		"sample", preview(chunks[0].Text),
	)

	vectors, err := uc.embed(ctx, chunks)
	if err != nil {
		return fail(err)
	}

	records := make([]domain.VectorRecord, 0, len(chunks))
	for i, chunk := range chunks {
		records = append(records, domain.NewVectorRecord(chunk, vectors[i]))
	}

	result.Upserted = uc.upsertBatches(ctx, staged.Filename, records)
	slog.Info("ingest_file_done",
		"filename", staged.Filename,
		"chunks", result.Chunks,
		"upserted", result.Upserted,
	)
	return result
}

// buildChunks numbers chunks across all pages so ids are unique per file.
func (uc *IngestUseCase) buildChunks(staged domain.StagedFile, doc *domain.ParsedDocument) []domain.Chunk {
	stem := strings.TrimSuffix(staged.Key, filepath.Ext(staged.Key))
	var out []domain.Chunk
	for _, page := range doc.Pages {
		for _, text := range uc.chunker.Split(page.Text) {
			out = append(out, domain.Chunk{
				ID:   fmt.Sprintf("%s-%d", stem, len(out)),
				Text: text,
				Metadata: domain.ChunkMetadata{
					Filename:   staged.Key,
					Source:     doc.Source,
					Page:       page.Number,
					PageLabel:  page.Label,
					TotalPages: doc.TotalPages,
					Info:       doc.Info,
				},
			})
		}
	}
	return out
}

func (uc *IngestUseCase) embed(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Text)
	}

	embedCtx, cancel := withOptionalTimeout(ctx, uc.opts.EmbedTimeout)
	defer cancel()
	vectors, err := uc.embedder.EmbedDocuments(embedCtx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}
	if uc.opts.Dimension > 0 && len(vectors[0]) != uc.opts.Dimension {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("embedding dimension %d does not match index dimension %d", len(vectors[0]), uc.opts.Dimension),
		)
	}
	slog.Debug("ingest_embedded", "vectors", len(vectors), "dimension", len(vectors[0]))
	return vectors, nil
}

// upsertBatches returns how many records were stored. A failed batch is
// logged and does not stop its siblings.
func (uc *IngestUseCase) upsertBatches(ctx context.Context, filename string, records []domain.VectorRecord) int {
	var (
		upserted atomic.Int64
		g        errgroup.Group
	)
	g.SetLimit(uc.opts.UpsertConcurrency)

	for start, batch := 0, 0; start < len(records); start, batch = start+uc.opts.BatchSize, batch+1 {
		end := start + uc.opts.BatchSize
		if end > len(records) {
			end = len(records)
		}
		part := records[start:end]
		batchNo := batch

		g.Go(func() error {
			upsertCtx, cancel := withOptionalTimeout(ctx, uc.opts.UpsertTimeout)
			defer cancel()
			if err := uc.store.Upsert(upsertCtx, part); err != nil {
				slog.Error("ingest_batch_failed",
					"filename", filename,
					"batch", batchNo,
					"size", len(part),
					"error", err,
				)
				return nil
			}
			upserted.Add(int64(len(part)))
			return nil
		})
	}
	_ = g.Wait()
	return int(upserted.Load())
}

func (uc *IngestUseCase) logIndexStats(ctx context.Context, report domain.IngestReport) {
	slog.Info("ingest_complete", "files", len(report.Files), "total_upserted", report.TotalUpserted)
	if report.TotalUpserted == 0 {
		return
	}
	stats, err := uc.store.Stats(ctx)
	if err != nil {
		slog.Warn("index_stats_failed", "error", err)
		return
	}
	slog.Info("index_stats", "total_vectors", stats.TotalVectorCount, "dimension", stats.Dimension)
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewRunes {
		return text
	}
	return string(runes[:previewRunes]) + "..."
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	base = strings.TrimLeft(base, ".")
	if base == "" {
		return "document.pdf"
	}
	return base
}
