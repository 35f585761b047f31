package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/mvne-doc-ingest/internal/config"
	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
	"github.com/kirillkom/mvne-doc-ingest/internal/core/ports"
	"github.com/kirillkom/mvne-doc-ingest/internal/observability/metrics"
)

const (
	serviceName        = "api"
	uploadField        = "file"
	multipartOverhead  = 1 << 20
	backpressureWait   = 250 * time.Millisecond
	defaultMaxInFlight = 64
)

type Router struct {
	cfg     config.Config
	ingest  ports.FileIngestor
	files   ports.FileReader
	metrics *metrics.HTTPServerMetrics
}

type Option func(*Router)

func WithMetrics(m *metrics.HTTPServerMetrics) Option {
	return func(rt *Router) { rt.metrics = m }
}

func NewRouter(cfg config.Config, ingest ports.FileIngestor, files ports.FileReader, opts ...Option) *Router {
	rt := &Router{
		cfg:    cfg,
		ingest: ingest,
		files:  files,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", rt.healthz)
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	r.Route("/v1/files", func(r chi.Router) {
		r.Post("/", rt.uploadFile)
		r.Get("/", rt.listFiles)
		r.Get("/{id}", rt.getFile)
		r.Post("/{id}/retry", rt.retryFile)
	})

	var h http.Handler = r
	maxInFlight := rt.cfg.APIMaxInFlight
	if maxInFlight == 0 {
		maxInFlight = defaultMaxInFlight
	}
	h = backpressureMiddleware(h, maxInFlight, backpressureWait, rt.onReject("overloaded"))
	h = rateLimitMiddleware(h, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.onReject("rate_limited"))
	h = recoverMiddleware(h)
	if rt.metrics != nil {
		h = rt.metrics.Middleware(serviceName, h)
	}
	h = accessLogMiddleware(h)
	return requestIDMiddleware(h)
}

func (rt *Router) onReject(reason string) func() {
	return func() {
		if rt.metrics != nil {
			rt.metrics.RecordRejected(serviceName, reason)
		}
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadFile(w http.ResponseWriter, r *http.Request) {
	if rt.ingest == nil {
		writeError(w, http.StatusServiceUnavailable, "upload is not configured")
		return
	}
	maxBytes := rt.cfg.UploadMaxBytes
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	}

	part, err := findFilePart(r)
	if err != nil {
		rt.recordUpload(0, err)
		rt.writeDomainError(w, r, err)
		return
	}
	defer part.Close()

	rec, err := rt.ingest.Upload(r.Context(), part.FileName(), part.Header.Get("Content-Type"), part)
	if err != nil {
		rt.recordUpload(0, err)
		rt.writeDomainError(w, r, err)
		return
	}
	rt.recordUpload(rec.SizeBytes, nil)
	writeJSON(w, http.StatusAccepted, rec)
}

// findFilePart streams the multipart body and returns the first part named
// "file" without buffering the rest of the form.
func findFilePart(r *http.Request) (*multipart.Part, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("multipart field '%s' is required", uploadField))
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("multipart field '%s' is required", uploadField))
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, err
			}
			return nil, domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("read multipart: %w", err))
		}
		if part.FormName() == uploadField {
			return part, nil
		}
		_ = part.Close()
	}
}

func (rt *Router) recordUpload(size int64, err error) {
	if rt.metrics != nil {
		rt.metrics.RecordUpload(serviceName, size, err)
	}
}

func (rt *Router) getFile(w http.ResponseWriter, r *http.Request) {
	rec, err := rt.files.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type listResponse struct {
	Files  []domain.FileRecord `json:"files"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

func (rt *Router) listFiles(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	records, err := rt.files.List(r.Context(), filter)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	filter = filter.Normalize()
	writeJSON(w, http.StatusOK, listResponse{Files: records, Limit: filter.Limit, Offset: filter.Offset})
}

// parseFilter reads status (repeatable or comma separated), q, limit and offset.
func parseFilter(r *http.Request) (domain.FileFilter, error) {
	q := r.URL.Query()
	var filter domain.FileFilter
	for _, raw := range q["status"] {
		for _, s := range strings.Split(raw, ",") {
			s = strings.ToLower(strings.TrimSpace(s))
			if s != "" {
				filter.Statuses = append(filter.Statuses, domain.FileStatus(s))
			}
		}
	}
	filter.Query = q.Get("q")

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		return filter, domain.WrapError(domain.ErrInvalidInput, "list files", fmt.Errorf("limit: %w", err))
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		return filter, domain.WrapError(domain.ErrInvalidInput, "list files", fmt.Errorf("offset: %w", err))
	}
	return filter, nil
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return n, nil
}

func (rt *Router) retryFile(w http.ResponseWriter, r *http.Request) {
	if rt.ingest == nil {
		writeError(w, http.StatusServiceUnavailable, "upload is not configured")
		return
	}
	rec, err := rt.ingest.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, rec)
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("http_handler_error", "request_id", requestIDFromContext(r.Context()), "path", r.URL.Path, "error", err)
		message = "internal server error"
	}
	writeError(w, status, message)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
