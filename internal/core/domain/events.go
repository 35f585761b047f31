package domain

import "time"

type NotificationKind string

const (
	NotificationSecurity   NotificationKind = "security"
	NotificationCompliance NotificationKind = "compliance"
	NotificationSystem     NotificationKind = "system"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
)

type Notification struct {
	FileID    string           `json:"file_id"`
	Filename  string           `json:"filename"`
	Kind      NotificationKind `json:"kind"`
	Severity  Severity         `json:"severity"`
	Status    FileStatus       `json:"status"`
	Summary   string           `json:"summary"`
	CreatedAt time.Time        `json:"created_at"`
}

// FieldExtraction is the field extractor output; RecordCount is a projection,
// not an exact count, and is nil when nothing supports an estimate.
type FieldExtraction struct {
	Fields      *FieldSet
	RecordCount *int
}

// ComplianceInput is the shared immutable input of every ruleset evaluator.
type ComplianceInput struct {
	Classification ClassificationResult
	Fields         *FieldSet
	RiskLevel      RiskLevel
	Filename       string
	RecordCount    *int
}

func (in ComplianceInput) Records() int {
	if in.RecordCount == nil {
		return 0
	}
	return *in.RecordCount
}
