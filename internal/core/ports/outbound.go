package ports

import (
	"context"
	"io"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
)

// FileRepository persists and reads file record state.
type FileRepository interface {
	Create(ctx context.Context, rec *domain.FileRecord) error
	GetByID(ctx context.Context, id string) (*domain.FileRecord, error)
	Save(ctx context.Context, rec *domain.FileRecord) error
	List(ctx context.Context, filter domain.FileFilter) ([]domain.FileRecord, error)
}

// ObjectStorage stores raw uploads and archived records.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes upload events.
type MessageQueue interface {
	PublishFileUploaded(ctx context.Context, fileID string) error
	SubscribeFileUploaded(ctx context.Context, handler func(context.Context, string) error) error
}

// Notifier delivers security and compliance alerts.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// Persister receives the full record on transition to stored, and only then.
type Persister interface {
	Persist(ctx context.Context, rec *domain.FileRecord, raw domain.RawFile) error
}

// ContentExtractor turns a raw file into a bounded text sample. Unreadable
// content degrades to a placeholder; only cancellation is returned as error.
type ContentExtractor interface {
	Extract(ctx context.Context, raw domain.RawFile) (domain.ExtractedSample, error)
}

// DocumentClassifier scores a sample against the document type catalog.
type DocumentClassifier interface {
	Classify(textSample, filename string) domain.ClassificationResult
}

// FieldExtractor pulls structured fields out of extracted text.
type FieldExtractor interface {
	Extract(text string, cls domain.ClassificationResult) domain.FieldExtraction
}

// QualityAssessor derives quality score and initial risk tier.
type QualityAssessor interface {
	Assess(sample domain.ExtractedSample, cls domain.ClassificationResult, fields domain.FieldExtraction, sizeBytes int64) domain.QualityAssessment
}

// ThreatScanner scans raw bytes independently of the analysis stages.
type ThreatScanner interface {
	Scan(ctx context.Context, raw domain.RawFile) (domain.ThreatReport, error)
}

// ComplianceChecker runs every ruleset and merges their results.
type ComplianceChecker interface {
	Evaluate(ctx context.Context, in domain.ComplianceInput) (domain.ComplianceReport, error)
}
