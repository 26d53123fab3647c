package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/phennig/dms-pipeline/internal/core/domain"
	"github.com/phennig/dms-pipeline/internal/core/ports"
	"github.com/phennig/dms-pipeline/internal/observability/metrics"
)

// multipart boundary, field headers and metadata fields on top of the file
// itself
const formOverheadBytes = 1 << 20

type Router struct {
	ingestor       ports.DocumentIngestor
	reader         ports.DocumentReader
	metrics        *metrics.HTTPServerMetrics
	service        string
	maxUploadBytes int64
	log            *slog.Logger
}

func NewRouter(
	ingestor ports.DocumentIngestor,
	reader ports.DocumentReader,
	m *metrics.HTTPServerMetrics,
	service string,
	maxUploadBytes int64,
	log *slog.Logger,
) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		ingestor:       ingestor,
		reader:         reader,
		metrics:        m,
		service:        service,
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/documents/", rt.getDocumentByID)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = metricsMiddleware(rt.metrics, rt.service, handler)
	handler = accessLogMiddleware(rt.log, handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	// Hard cap on the request body so an oversized upload cannot buffer
	// unbounded data before validation sees the declared size.
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes+formOverheadBytes)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			rt.countRejected("too_large")
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return
		}
		rt.countRejected("missing_file")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	meta, err := parseMetadata(r)
	if err != nil {
		rt.countRejected("bad_metadata")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	doc, err := rt.ingestor.Ingest(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		fileHeader.Size,
		meta,
		file,
	)
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		if status == http.StatusBadRequest {
			rt.countRejected("validation")
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	if rt.metrics != nil {
		rt.metrics.ObserveUpload(rt.service, doc.SizeBytes)
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	doc, err := rt.reader.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func parseMetadata(r *http.Request) (domain.Metadata, error) {
	meta := domain.Metadata{
		Title:    r.FormValue("title"),
		Location: r.FormValue("location"),
		Author:   r.FormValue("author"),
	}

	raw := strings.TrimSpace(r.FormValue("creation_date"))
	if raw == "" {
		return meta, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			parsed = parsed.UTC()
			meta.CreationDate = &parsed
			return meta, nil
		}
	}
	return domain.Metadata{}, domain.WrapError(domain.ErrInvalidInput, "parse metadata",
		errors.New("creation_date must be RFC3339 or YYYY-MM-DD"))
}

func (rt *Router) countRejected(reason string) {
	if rt.metrics != nil {
		rt.metrics.CountRejectedUpload(rt.service, reason)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
