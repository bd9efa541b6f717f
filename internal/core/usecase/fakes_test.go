package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/Nishant142k2/pdf-rag/internal/core/domain"
)

type memStorage struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func newMemStorage() *memStorage {
	return &memStorage{files: map[string][]byte{}}
}

func (s *memStorage) Save(_ context.Context, key string, data io.Reader) error {
	if s.err != nil {
		return s.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[key] = raw
	return nil
}

func (s *memStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.files[key]
	if !ok {
		return nil, errors.New("missing")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *memStorage) Path(key string) string {
	return "uploaded_files/" + key
}

// fakeParser treats staged bytes as pages separated by form feeds.
type fakeParser struct {
	storage *memStorage
	info    domain.DocumentInfo
	err     error
	calls   int
}

func (p *fakeParser) Parse(ctx context.Context, file domain.StagedFile) (*domain.ParsedDocument, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	rc, err := p.storage.Open(ctx, file.Key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	raw, _ := io.ReadAll(rc)
	if strings.HasPrefix(string(raw), "BROKEN") {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse pdf", errors.New("malformed"))
	}

	parts := strings.Split(string(raw), "\f")
	doc := &domain.ParsedDocument{
		Source:     p.storage.Path(file.Key),
		Info:       p.info,
		TotalPages: len(parts),
	}
	for i, text := range parts {
		doc.Pages = append(doc.Pages, domain.Page{Number: i, Label: string(rune('1' + i)), Text: text})
	}
	return doc, nil
}

// paragraphChunker splits on blank lines.
type paragraphChunker struct{}

func (paragraphChunker) Split(text string) []string {
	var out []string
	for _, part := range strings.Split(text, "\n\n") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type fakeEmbedder struct {
	mu        sync.Mutex
	dimension int
	docCalls  int
	queryErr  error
	docErr    error
	lastQuery string
}

func (e *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.docCalls++
	if e.docErr != nil {
		return nil, e.docErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, e.dimension)
	}
	return out, nil
}

func (e *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastQuery = text
	if e.queryErr != nil {
		return nil, e.queryErr
	}
	return make([]float32, e.dimension), nil
}

type fakeStore struct {
	mu        sync.Mutex
	records   map[string]domain.VectorRecord
	batches   int
	failOnID  string
	matches   []domain.Match
	queryErr  error
	lastTopK  int
	statCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]domain.VectorRecord{}}
}

func (s *fakeStore) EnsureIndex(context.Context) error { return nil }

func (s *fakeStore) Upsert(_ context.Context, records []domain.VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches++
	for _, r := range records {
		if r.ID == s.failOnID {
			return errors.New("upsert rejected")
		}
	}
	for _, r := range records {
		s.records[r.ID] = r
	}
	return nil
}

func (s *fakeStore) Query(_ context.Context, _ []float32, topK int) ([]domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTopK = topK
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.matches, nil
}

func (s *fakeStore) Stats(context.Context) (domain.IndexStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statCalls++
	return domain.IndexStats{TotalVectorCount: int64(len(s.records))}, nil
}

type fakeQueue struct {
	published []domain.StagedFile
	err       error
}

func (q *fakeQueue) PublishStagedFile(_ context.Context, file domain.StagedFile) error {
	if q.err != nil {
		return q.err
	}
	q.published = append(q.published, file)
	return nil
}

func (q *fakeQueue) SubscribeStagedFiles(context.Context, func(context.Context, domain.StagedFile) error) error {
	return errors.New("not implemented")
}

type fakeChatModel struct {
	answer string
	err    error
	calls  int
	prompt string
}

func (m *fakeChatModel) Complete(_ context.Context, prompt string) (string, error) {
	m.calls++
	m.prompt = prompt
	if m.err != nil {
		return "", m.err
	}
	return m.answer, nil
}

func upload(name, body string) domain.UploadedFile {
	return domain.UploadedFile{Filename: name, MimeType: "application/pdf", Body: strings.NewReader(body)}
}
