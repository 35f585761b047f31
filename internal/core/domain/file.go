package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

type FileStatus string

const (
	StatusUploading   FileStatus = "uploading"
	StatusProcessing  FileStatus = "processing"
	StatusQuarantined FileStatus = "quarantined"
	StatusValidated   FileStatus = "validated"
	StatusStored      FileStatus = "stored"
	StatusFailed      FileStatus = "failed"
)

var allowedTransitions = map[FileStatus][]FileStatus{
	StatusUploading:  {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusQuarantined, StatusValidated, StatusFailed},
	StatusValidated:  {StatusStored, StatusFailed},
}

// IsTerminal reports whether no further forward transition exists.
func (s FileStatus) IsTerminal() bool {
	switch s {
	case StatusStored, StatusFailed, StatusQuarantined:
		return true
	default:
		return false
	}
}

func (s FileStatus) Valid() bool {
	switch s {
	case StatusUploading, StatusProcessing, StatusQuarantined, StatusValidated, StatusStored, StatusFailed:
		return true
	default:
		return false
	}
}

func CanTransition(from, to FileStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RawFile is the immutable upload handed to the pipeline.
type RawFile struct {
	Name             string
	DeclaredMimeType string
	SizeBytes        int64
	Content          []byte
}

// Extension returns the lowercase extension without the leading dot.
func (f RawFile) Extension() string {
	return FileExtension(f.Name)
}

func FileExtension(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

type FileRecord struct {
	ID             string                `json:"id"`
	Filename       string                `json:"filename"`
	MimeType       string                `json:"mime_type"`
	SizeBytes      int64                 `json:"size_bytes"`
	StoragePath    string                `json:"storage_path"`
	Status         FileStatus            `json:"status"`
	Sample         *ExtractedSample      `json:"sample,omitempty"`
	Classification *ClassificationResult `json:"classification,omitempty"`
	Fields         *FieldSet             `json:"fields,omitempty"`
	Quality        *QualityAssessment    `json:"quality,omitempty"`
	Threat         *ThreatReport         `json:"threat,omitempty"`
	Compliance     *ComplianceReport     `json:"compliance,omitempty"`
	Reasons        []string              `json:"reasons,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// FileFilter narrows the presentation read model.
type FileFilter struct {
	Statuses []FileStatus
	Query    string
	Limit    int
	Offset   int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

func (f FileFilter) Normalize() FileFilter {
	out := f
	if out.Limit <= 0 {
		out.Limit = DefaultListLimit
	}
	if out.Limit > MaxListLimit {
		out.Limit = MaxListLimit
	}
	if out.Offset < 0 {
		out.Offset = 0
	}
	return out
}

func NewFileRecord(id string, raw RawFile, storagePath string, now time.Time) *FileRecord {
	return &FileRecord{
		ID:          id,
		Filename:    raw.Name,
		MimeType:    raw.DeclaredMimeType,
		SizeBytes:   raw.SizeBytes,
		StoragePath: storagePath,
		Status:      StatusUploading,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Transition moves the record forward. Terminal records never change.
func (r *FileRecord) Transition(to FileStatus, now time.Time) error {
	if r.Status.IsTerminal() {
		return WrapError(ErrTerminalState, "transition", fmt.Errorf("%s -> %s", r.Status, to))
	}
	if !CanTransition(r.Status, to) {
		return WrapError(ErrInvalidTransition, "transition", fmt.Errorf("%s -> %s", r.Status, to))
	}
	r.Status = to
	r.UpdatedAt = now
	return nil
}

// Retry is the only backward transition: a failed record goes back to
// processing with its previous results discarded. Quarantine is final.
func (r *FileRecord) Retry(now time.Time) error {
	if r.Status != StatusFailed {
		return WrapError(ErrInvalidTransition, "retry", fmt.Errorf("retry is only allowed from %s, got %s", StatusFailed, r.Status))
	}
	r.Status = StatusProcessing
	r.Sample = nil
	r.Classification = nil
	r.Fields = nil
	r.Quality = nil
	r.Threat = nil
	r.Compliance = nil
	r.Reasons = nil
	r.UpdatedAt = now
	return nil
}

func (r *FileRecord) AddReasons(reasons ...string) {
	r.Reasons = Dedupe(append(r.Reasons, reasons...))
}

// ApplyQuality stores the assessment without ever lowering an already
// recorded risk level.
func (r *FileRecord) ApplyQuality(q QualityAssessment) {
	if r.Quality != nil {
		q.RiskLevel = MaxRisk(r.Quality.RiskLevel, q.RiskLevel)
	}
	r.Quality = &q
}

func (r *FileRecord) RiskLevel() RiskLevel {
	if r.Quality == nil {
		return ""
	}
	return r.Quality.RiskLevel
}

// Dedupe drops blanks and repeats while keeping first-seen order.
func Dedupe(items []string) []string {
	if len(items) == 0 {
		return items
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
