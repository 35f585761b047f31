package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
	"github.com/kirillkom/mvne-doc-ingest/internal/core/ports"
)

const (
	DefaultUploadMaxBytes = 100 << 20
	maxDisplayNameRunes   = 255
)

var DefaultAllowedExtensions = []string{
	"pdf", "doc", "docx", "xls", "xlsx", "csv", "txt", "json", "xml",
	"html", "htm", "md", "jpg", "jpeg", "png", "gif", "zip",
}

// UploadPolicy is the static pre-validation applied before a file enters
// the pipeline. A "*" entry allows every extension.
type UploadPolicy struct {
	MaxBytes          int64
	AllowedExtensions []string
}

func (p UploadPolicy) maxBytes() int64 {
	if p.MaxBytes <= 0 {
		return DefaultUploadMaxBytes
	}
	return p.MaxBytes
}

func (p UploadPolicy) allows(ext string) bool {
	allowed := p.AllowedExtensions
	if len(allowed) == 0 {
		allowed = DefaultAllowedExtensions
	}
	for _, a := range allowed {
		a = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(a)), ".")
		if a == "*" || a == ext {
			return true
		}
	}
	return false
}

type IngestFileUseCase struct {
	repo    ports.FileRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
	policy  UploadPolicy
}

func NewIngestFileUseCase(
	repo ports.FileRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	policy UploadPolicy,
) *IngestFileUseCase {
	return &IngestFileUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
		policy:  policy,
	}
}

func (uc *IngestFileUseCase) Upload(
	ctx context.Context,
	filename, mimeType string,
	body io.Reader,
) (*domain.FileRecord, error) {
	name := DisplayName(filename)
	if name == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("filename is required"))
	}
	ext := domain.FileExtension(name)
	if !uc.policy.allows(ext) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("extension %q is not allowed", ext))
	}

	limit := uc.policy.maxBytes()
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("file exceeds %d bytes", limit))
	}
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("file is empty"))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(name))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	raw := domain.RawFile{Name: name, DeclaredMimeType: mimeType, SizeBytes: int64(len(data))}
	rec := domain.NewFileRecord(id, raw, storageKey, now)
	if err := uc.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create file record: %w", err)
	}

	if err := uc.queue.PublishFileUploaded(ctx, rec.ID); err != nil {
		uc.abandon(ctx, rec)
		return nil, fmt.Errorf("publish upload event: %w", err)
	}

	slog.Info("file_uploaded", "file_id", rec.ID, "filename", rec.Filename, "size_bytes", rec.SizeBytes)
	return uc.latest(ctx, rec), nil
}

// Retry re-queues a failed record. Quarantined and stored records are final.
func (uc *IngestFileUseCase) Retry(ctx context.Context, id string) (*domain.FileRecord, error) {
	rec, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch file record: %w", err)
	}
	if err := rec.Retry(time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := uc.repo.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save file record: %w", err)
	}
	if err := uc.queue.PublishFileUploaded(ctx, rec.ID); err != nil {
		uc.abandon(ctx, rec)
		return nil, fmt.Errorf("publish upload event: %w", err)
	}
	slog.Info("file_retry_queued", "file_id", rec.ID)
	return uc.latest(ctx, rec), nil
}

// latest re-reads rec after publishing. An in-process queue has already run
// the pipeline by then, so the stored copy is the final state.
func (uc *IngestFileUseCase) latest(ctx context.Context, rec *domain.FileRecord) *domain.FileRecord {
	fresh, err := uc.repo.GetByID(ctx, rec.ID)
	if err != nil {
		slog.Warn("file_reload_failed", "file_id", rec.ID, "error", err)
		return rec
	}
	return fresh
}

// abandon fails a record that could not be queued so it never stays in a
// non-terminal state.
func (uc *IngestFileUseCase) abandon(ctx context.Context, rec *domain.FileRecord) {
	now := time.Now().UTC()
	if rec.Status == domain.StatusUploading {
		_ = rec.Transition(domain.StatusProcessing, now)
	}
	rec.AddReasons("could not queue file for processing")
	if err := rec.Transition(domain.StatusFailed, now); err != nil {
		slog.Error("mark_failed_error", "file_id", rec.ID, "error", err)
		return
	}
	if err := uc.repo.Save(context.WithoutCancel(ctx), rec); err != nil {
		slog.Error("mark_failed_error", "file_id", rec.ID, "error", err)
	}
}

// DisplayName strips directories and control characters from a client
// supplied name. Other characters are kept for the security checks.
func DisplayName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == "/" {
		return ""
	}
	base = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, base)
	base = strings.TrimSpace(base)
	if runes := []rune(base); len(runes) > maxDisplayNameRunes {
		base = string(runes[len(runes)-maxDisplayNameRunes:])
	}
	return base
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
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
	if base == "" {
		return "file.bin"
	}
	return base
}
