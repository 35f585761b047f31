package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/mvne-doc-ingest/internal/config"
	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
	"github.com/kirillkom/mvne-doc-ingest/internal/observability/metrics"
)

type ingestFake struct {
	err        error
	retryErr   error
	gotName    string
	gotMime    string
	gotBody    string
	retriedIDs []string
}

func (f *ingestFake) Upload(_ context.Context, filename, mimeType string, body io.Reader) (*domain.FileRecord, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	f.gotName, f.gotMime, f.gotBody = filename, mimeType, string(raw)
	now := time.Now().UTC()
	return &domain.FileRecord{
		ID:          "file-1",
		Filename:    filename,
		MimeType:    mimeType,
		SizeBytes:   int64(len(raw)),
		StoragePath: "file-1_" + filename,
		Status:      domain.StatusUploading,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (f *ingestFake) Retry(_ context.Context, id string) (*domain.FileRecord, error) {
	if f.retryErr != nil {
		return nil, f.retryErr
	}
	f.retriedIDs = append(f.retriedIDs, id)
	return &domain.FileRecord{ID: id, Status: domain.StatusProcessing}, nil
}

type filesFake struct {
	err        error
	lastFilter domain.FileFilter
}

func (f *filesFake) GetByID(_ context.Context, id string) (*domain.FileRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.FileRecord{ID: id, Filename: "a.csv", Status: domain.StatusStored}, nil
}

func (f *filesFake) List(_ context.Context, filter domain.FileFilter) ([]domain.FileRecord, error) {
	f.lastFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	return []domain.FileRecord{{ID: "a"}, {ID: "b"}}, nil
}

func newTestHandler(cfg config.Config, ingest *ingestFake, files *filesFake) http.Handler {
	if ingest == nil {
		ingest = &ingestFake{}
	}
	if files == nil {
		files = &filesFake{}
	}
	return NewRouter(cfg, ingest, files, WithMetrics(metrics.NewHTTPServerMetrics("api"))).Handler()
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("note", "ignored"); err != nil {
		t.Fatalf("WriteField() error = %v", err)
	}
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestHealthzEndpoint(t *testing.T) {
	handler := newTestHandler(config.Config{}, nil, nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestRequestIDEchoedWhenSafe(t *testing.T) {
	handler := newTestHandler(config.Config{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "upload-42")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if got := res.Header().Get(requestIDHeader); got != "upload-42" {
		t.Fatalf("expected caller request id, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, strings.Repeat("x", maxRequestIDLength+1))
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if got := res.Header().Get(requestIDHeader); len(got) > maxRequestIDLength || got == "" {
		t.Fatalf("expected generated request id, got %q", got)
	}
}

func TestUploadFileSuccess(t *testing.T) {
	ingest := &ingestFake{}
	handler := newTestHandler(config.Config{UploadMaxBytes: 1024}, ingest, nil)

	body, contentType := multipartBody(t, "file", "bill.csv", "amount,date\n150,2026-01-01\n")
	req := httptest.NewRequest(http.MethodPost, "/v1/files", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	var got map[string]any
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got["id"] != "file-1" || got["status"] != "uploading" {
		t.Fatalf("unexpected response: %+v", got)
	}
	if ingest.gotName != "bill.csv" || !strings.HasPrefix(ingest.gotBody, "amount,date") {
		t.Fatalf("unexpected upload name=%q body=%q", ingest.gotName, ingest.gotBody)
	}
}

func TestUploadFileMissingMultipartField(t *testing.T) {
	handler := newTestHandler(config.Config{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/files", bytes.NewBufferString("plain-text"))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}

	body, contentType := multipartBody(t, "attachment", "a.txt", "x")
	req = httptest.NewRequest(http.MethodPost, "/v1/files", body)
	req.Header.Set("Content-Type", contentType)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing file part, got %d", res.Code)
	}
}

func TestUploadFileMapsInvalidInputTo400(t *testing.T) {
	ingest := &ingestFake{err: domain.WrapError(domain.ErrInvalidInput, "upload", errors.New(`extension "exe" is not allowed`))}
	handler := newTestHandler(config.Config{}, ingest, nil)

	body, contentType := multipartBody(t, "file", "malware.exe", "MZ")
	req := httptest.NewRequest(http.MethodPost, "/v1/files", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "not allowed") {
		t.Fatalf("expected error message, got %s", res.Body.String())
	}
}

func TestUploadFileTooLargeReturns413(t *testing.T) {
	handler := newTestHandler(config.Config{UploadMaxBytes: 8}, nil, nil)

	body, contentType := multipartBody(t, "file", "big.txt", strings.Repeat("x", multipartOverhead+64))
	req := httptest.NewRequest(http.MethodPost, "/v1/files", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", res.Code)
	}
}

func TestGetFileReturns404ForNotFound(t *testing.T) {
	files := &filesFake{err: domain.WrapError(domain.ErrFileNotFound, "get", errors.New("id=missing"))}
	handler := newTestHandler(config.Config{}, nil, files)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/files/missing", nil))

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestGetFileReturnsRecord(t *testing.T) {
	handler := newTestHandler(config.Config{}, nil, nil)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/files/abc", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var got domain.FileRecord
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != "abc" || got.Status != domain.StatusStored {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestListFilesParsesFilter(t *testing.T) {
	files := &filesFake{}
	handler := newTestHandler(config.Config{}, nil, files)

	req := httptest.NewRequest(http.MethodGet, "/v1/files?status=stored,failed&status=quarantined&q=bill&limit=10&offset=20", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	f := files.lastFilter
	if len(f.Statuses) != 3 || f.Statuses[2] != domain.StatusQuarantined {
		t.Fatalf("unexpected statuses %v", f.Statuses)
	}
	if f.Query != "bill" || f.Limit != 10 || f.Offset != 20 {
		t.Fatalf("unexpected filter %+v", f)
	}

	var got listResponse
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got.Files) != 2 || got.Limit != 10 || got.Offset != 20 {
		t.Fatalf("unexpected response %+v", got)
	}
}

func TestListFilesRejectsBadPaging(t *testing.T) {
	handler := newTestHandler(config.Config{}, nil, nil)

	for _, query := range []string{"limit=abc", "offset=-1"} {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/files?"+query, nil))
		if res.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", query, res.Code)
		}
	}
}

func TestRetryFile(t *testing.T) {
	ingest := &ingestFake{}
	handler := newTestHandler(config.Config{}, ingest, nil)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/files/f-9/retry", nil))
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	if len(ingest.retriedIDs) != 1 || ingest.retriedIDs[0] != "f-9" {
		t.Fatalf("unexpected retries %v", ingest.retriedIDs)
	}
}

func TestRetryQuarantinedFileReturns409(t *testing.T) {
	ingest := &ingestFake{retryErr: domain.WrapError(domain.ErrInvalidTransition, "retry", errors.New("quarantined"))}
	handler := newTestHandler(config.Config{}, ingest, nil)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/files/f-9/retry", nil))
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	files := &filesFake{err: errors.New("pq: connection refused to 10.0.0.5")}
	handler := newTestHandler(config.Config{}, nil, files)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/files", nil))
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if strings.Contains(res.Body.String(), "10.0.0.5") {
		t.Fatalf("internal error leaked: %s", res.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	handler := newTestHandler(config.Config{}, nil, nil)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "mvne_http_requests_total") {
		t.Fatalf("unexpected metrics response %d", res.Code)
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.WrapError(domain.ErrInvalidInput, "op", errors.New("x")), http.StatusBadRequest},
		{domain.WrapError(domain.ErrFileNotFound, "op", errors.New("x")), http.StatusNotFound},
		{domain.WrapError(domain.ErrTerminalState, "op", errors.New("x")), http.StatusConflict},
		{domain.WrapError(domain.ErrTemporary, "op", errors.New("x")), http.StatusServiceUnavailable},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
			t.Fatalf("mapErrorToHTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
