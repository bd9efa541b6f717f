package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/Nishant142k2/pdf-rag/internal/core/domain"
	"github.com/Nishant142k2/pdf-rag/internal/core/ports"
)

// Extractor reads staged PDFs page by page. Pages without extractable text
// are kept with empty Text so numbering stays aligned with the document.
type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Parse(ctx context.Context, file domain.StagedFile) (*domain.ParsedDocument, error) {
	reader, err := e.storage.Open(ctx, file.Key)
	if err != nil {
		return nil, domain.WrapError(domain.ErrNotFound, "open staged pdf", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read staged pdf: %w", err)
	}

	doc, err := Parse(ctx, raw)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse pdf "+file.Filename, err)
	}
	doc.Source = e.storage.Path(file.Key)
	return doc, nil
}

// Parse extracts pages and the /Info dictionary from raw PDF bytes.
func Parse(ctx context.Context, raw []byte) (doc *domain.ParsedDocument, err error) {
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, err
	}

	total := r.NumPage()
	doc = &domain.ParsedDocument{
		Info:       readInfo(r),
		TotalPages: total,
		Pages:      make([]domain.Page, 0, total),
	}
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := domain.Page{Number: i - 1, Label: strconv.Itoa(i)}
		p := r.Page(i)
		if !p.V.IsNull() {
			text, textErr := p.GetPlainText(nil)
			if textErr == nil {
				page.Text = text
			}
		}
		doc.Pages = append(doc.Pages, page)
	}
	return doc, nil
}

func readInfo(r *pdf.Reader) domain.DocumentInfo {
	info := r.Trailer().Key("Info")
	if info.IsNull() {
		return domain.DocumentInfo{}
	}
	return domain.DocumentInfo{
		Title:    strings.TrimSpace(info.Key("Title").Text()),
		Subject:  strings.TrimSpace(info.Key("Subject").Text()),
		Keywords: strings.TrimSpace(info.Key("Keywords").Text()),
		Author:   strings.TrimSpace(info.Key("Author").Text()),
	}
}
