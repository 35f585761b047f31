package ports

import (
	"context"
	"io"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
)

// FileIngestor is the inbound contract of the upload surface.
type FileIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.FileRecord, error)
	Retry(ctx context.Context, id string) (*domain.FileRecord, error)
}

// FileReader is the inbound read model for file records.
type FileReader interface {
	GetByID(ctx context.Context, id string) (*domain.FileRecord, error)
	List(ctx context.Context, filter domain.FileFilter) ([]domain.FileRecord, error)
}

// FileProcessor is the inbound contract for asynchronous pipeline runs.
type FileProcessor interface {
	ProcessByID(ctx context.Context, fileID string) error
}
