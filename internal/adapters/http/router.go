package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/Nishant142k2/pdf-rag/internal/config"
	"github.com/Nishant142k2/pdf-rag/internal/core/domain"
	"github.com/Nishant142k2/pdf-rag/internal/core/ports"
	"github.com/Nishant142k2/pdf-rag/internal/observability/metrics"
)

const (
	multipartMemory = 32 << 20
	maxChatBodySize = 1 << 20
)

type Router struct {
	cfg      config.Config
	ingestor ports.DocumentIngestor
	chat     ports.ChatService
	metrics  *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	ingestor ports.DocumentIngestor,
	chat ports.ChatService,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:      cfg,
		ingestor: ingestor,
		chat:     chat,
		metrics:  httpMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/upload", rt.upload)
	mux.HandleFunc("/upload/{$}", rt.upload)
	mux.HandleFunc("/chat", rt.ask)
	mux.HandleFunc("/chat/{$}", rt.ask)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIBackpressureMaxInFlight, rt.cfg.APIBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = corsMiddleware(handler)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type uploadResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Error   string              `json:"error,omitempty"`
	Chunks  int                 `json:"chunks"`
	Queued  int                 `json:"queued,omitempty"`
	Files   []domain.FileResult `json:"files,omitempty"`
}

func (rt *Router) upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if limit := rt.cfg.MaxUploadBytes; limit > 0 {
		if r.ContentLength > limit {
			writeJSON(w, http.StatusRequestEntityTooLarge, uploadResponse{
				Error: fmt.Sprintf("upload exceeds %d bytes", limit),
			})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, uploadResponse{
				Error: fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit),
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, uploadResponse{Error: "multipart field 'file' is required"})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := append(r.MultipartForm.File["file"], r.MultipartForm.File["files"]...)
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, uploadResponse{Error: "multipart field 'file' is required"})
		return
	}

	files := make([]domain.UploadedFile, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			err = domain.WrapError(domain.ErrInvalidInput, "open multipart file", err)
			writeJSON(w, mapErrorToHTTPStatus(err), uploadResponse{Error: err.Error()})
			return
		}
		defer file.Close()

		files = append(files, domain.UploadedFile{
			Filename: header.Filename,
			MimeType: header.Header.Get("Content-Type"),
			Body:     file,
		})
	}

	start := time.Now()
	report := rt.ingestor.Ingest(r.Context(), files)
	rt.recordIngest(r.Context(), report, time.Since(start))

	switch {
	case report.Queued > 0 && report.TotalUpserted == 0:
		writeJSON(w, http.StatusAccepted, uploadResponse{
			Success: true,
			Message: fmt.Sprintf("Queued %d file(s) for indexing", report.Queued),
			Queued:  report.Queued,
			Files:   report.Files,
		})
	case report.Success():
		writeJSON(w, http.StatusOK, uploadResponse{
			Success: true,
			Message: fmt.Sprintf("Indexed %d chunk(s) from %d file(s)", report.TotalUpserted, indexedFiles(report)),
			Chunks:  report.TotalUpserted,
			Queued:  report.Queued,
			Files:   report.Files,
		})
	default:
		writeJSON(w, http.StatusUnprocessableEntity, uploadResponse{
			Error: "no content could be indexed from the uploaded file(s)",
			Files: report.Files,
		})
	}
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodySize)
	question, err := readQuestion(r)
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	start := time.Now()
	envelope, err := rt.chat.Ask(r.Context(), question)
	if err != nil {
		if status := mapErrorToHTTPStatus(err); status == http.StatusBadRequest {
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}
		loggerFromContext(r.Context()).Error("chat_failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":      "Internal server error: " + err.Error(),
			"request_id": requestIDFromContext(r.Context()),
		})
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordAnswer(len(envelope.Sources), envelope.Error != "", time.Since(start))
	}
	writeJSON(w, http.StatusOK, envelope)
}

// readQuestion accepts a form field (urlencoded or multipart) or a JSON body
// with either "question" or "query". The caller caps the body size.
func readQuestion(r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req struct {
			Question string `json:"question"`
			Query    string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", domain.WrapError(domain.ErrInvalidInput, "decode chat request", err)
		}
		if strings.TrimSpace(req.Question) != "" {
			return req.Question, nil
		}
		return req.Query, nil
	}

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxChatBodySize); err != nil {
			return "", domain.WrapError(domain.ErrInvalidInput, "parse chat form", err)
		}
	} else if err := r.ParseForm(); err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "parse chat form", err)
	}
	if question := r.FormValue("question"); strings.TrimSpace(question) != "" {
		return question, nil
	}
	return r.FormValue("query"), nil
}

func (rt *Router) recordIngest(ctx context.Context, report domain.IngestReport, duration time.Duration) {
	failed := 0
	for _, file := range report.Files {
		if file.Error != "" || (!file.Queued && file.Upserted == 0) {
			failed++
		}
	}
	loggerFromContext(ctx).Info("upload_processed",
		"files", len(report.Files),
		"indexed", indexedFiles(report),
		"queued", report.Queued,
		"failed", failed,
		"total_upserted", report.TotalUpserted,
		"duration_ms", duration.Milliseconds(),
	)
	if rt.metrics != nil {
		rt.metrics.RecordIngest(indexedFiles(report), report.Queued, failed, report.TotalUpserted, duration)
	}
}

func indexedFiles(report domain.IngestReport) int {
	n := 0
	for _, file := range report.Files {
		if file.Upserted > 0 {
			n++
		}
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
