package quality

import (
	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
)

const (
	maxScore           = 100
	maxFieldPoints     = 40
	pointsPerField     = 10
	shortTextChars     = 100
	longTextChars      = 1000
	largeFileBytes     = 10 * 1024 * 1024
	structuredPoints   = 20
	semiStructPoints   = 10
	textLengthPoints   = 20
	defaultUnknownRisk = domain.RiskMedium
)

// personalFields escalate risk by one tier when any of them was extracted.
var personalFields = []string{"id_number", "phone_number", "msisdn", "email"}

type Assessor struct{}

func NewAssessor() *Assessor { return &Assessor{} }

func (a *Assessor) Assess(
	sample domain.ExtractedSample,
	cls domain.ClassificationResult,
	fields domain.FieldExtraction,
	sizeBytes int64,
) domain.QualityAssessment {
	return domain.QualityAssessment{
		QualityScore: Score(sample, fields.Fields),
		RecordCount:  fields.RecordCount,
		RiskLevel:    Risk(cls, fields.Fields, sizeBytes),
	}
}

func Score(sample domain.ExtractedSample, fields *domain.FieldSet) int {
	score := 0
	length := len([]rune(sample.TextSample))
	if length > shortTextChars {
		score += textLengthPoints
	}
	if length > longTextChars {
		score += textLengthPoints
	}
	score += min(pointsPerField*fields.Count(), maxFieldPoints)

	switch sample.StructureKind {
	case domain.StructureStructured:
		score += structuredPoints
	case domain.StructureSemiStructured:
		score += semiStructPoints
	}
	return min(score, maxScore)
}

// Risk starts at the type's tier and only ever escalates.
func Risk(cls domain.ClassificationResult, fields *domain.FieldSet, sizeBytes int64) domain.RiskLevel {
	level := cls.RiskTier
	if cls.IsUnknown() || !level.Valid() {
		level = defaultUnknownRisk
	}

	for _, name := range personalFields {
		if fields.Has(name) {
			level = level.Escalate()
			break
		}
	}

	if sizeBytes > largeFileBytes && level == domain.RiskLow {
		level = domain.RiskMedium
	}
	return level
}
