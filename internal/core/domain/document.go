package domain

import (
	"io"
	"time"
	"unicode/utf8"
)

// UploadedFile is a raw blob received from a caller, not yet staged.
type UploadedFile struct {
	Filename string
	MimeType string
	Body     io.Reader
}

// StagedFile is a file persisted in the upload directory and waiting for indexing.
// It is also the payload of async ingestion messages.
type StagedFile struct {
	ID       string    `json:"id"`
	Key      string    `json:"key"`
	Filename string    `json:"filename"`
	StagedAt time.Time `json:"staged_at"`
}

type DocumentInfo struct {
	Title    string `json:"title,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Keywords string `json:"keywords,omitempty"`
	Author   string `json:"author,omitempty"`
}

// Page holds the text of one PDF page. Number is zero-based, Label is the
// human page number.
type Page struct {
	Number int
	Label  string
	Text   string
}

type ParsedDocument struct {
	Source     string
	Info       DocumentInfo
	Pages      []Page
	TotalPages int
}

func (d *ParsedDocument) CharCount() int {
	if d == nil {
		return 0
	}
	total := 0
	for _, page := range d.Pages {
		total += utf8.RuneCountInString(page.Text)
	}
	return total
}

type FileResult struct {
	Filename string `json:"filename"`
	Chunks   int    `json:"chunks"`
	Upserted int    `json:"upserted"`
	Queued   bool   `json:"queued,omitempty"`
	Error    string `json:"error,omitempty"`
}

// IngestReport aggregates a batch of uploads. Partial success is normal.
type IngestReport struct {
	Files         []FileResult `json:"files"`
	TotalUpserted int          `json:"total_upserted"`
	Queued        int          `json:"queued"`
}

func (r *IngestReport) Add(result FileResult) {
	r.Files = append(r.Files, result)
	r.TotalUpserted += result.Upserted
	if result.Queued {
		r.Queued++
	}
}

func (r IngestReport) Success() bool {
	return r.TotalUpserted > 0 || r.Queued > 0
}
