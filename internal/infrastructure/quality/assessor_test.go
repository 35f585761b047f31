package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
)

func fieldSet(names ...string) *domain.FieldSet {
	fs := domain.NewFieldSet()
	for _, n := range names {
		fs.Fields[n] = domain.ScalarValue("x")
	}
	return fs
}

func TestScoreComponents(t *testing.T) {
	cases := []struct {
		name   string
		sample domain.ExtractedSample
		fields *domain.FieldSet
		want   int
	}{
		{"empty", domain.ExtractedSample{StructureKind: domain.StructureUnstructured}, fieldSet(), 0},
		{"short semi", domain.ExtractedSample{TextSample: strings.Repeat("a", 101), StructureKind: domain.StructureSemiStructured}, fieldSet("a"), 20 + 10 + 10},
		{"long structured", domain.ExtractedSample{TextSample: strings.Repeat("a", 1001), StructureKind: domain.StructureStructured}, fieldSet("a", "b", "c"), 20 + 20 + 30 + 20},
		{"capped", domain.ExtractedSample{TextSample: strings.Repeat("a", 5000), StructureKind: domain.StructureStructured}, fieldSet("a", "b", "c", "d", "e", "f"), 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Score(tc.sample, tc.fields))
		})
	}
}

func TestRiskEscalation(t *testing.T) {
	low := domain.ClassificationResult{DocumentType: "network_report", RiskTier: domain.RiskLow}
	high := domain.ClassificationResult{DocumentType: "rica_form", RiskTier: domain.RiskHigh}
	unknown := domain.ClassificationResult{DocumentType: domain.UnknownDocumentType}

	assert.Equal(t, domain.RiskLow, Risk(low, fieldSet("latency"), 10))
	assert.Equal(t, domain.RiskMedium, Risk(low, fieldSet("email"), 10))
	assert.Equal(t, domain.RiskMedium, Risk(unknown, fieldSet(), 10))
	assert.Equal(t, domain.RiskHigh, Risk(unknown, fieldSet("id_number", "phone_number"), 10))
	assert.Equal(t, domain.RiskHigh, Risk(high, fieldSet("id_number"), 10))
	assert.Equal(t, domain.RiskMedium, Risk(low, fieldSet(), largeFileBytes+1))
	// personal data escalates low to medium first, size rule then has nothing left to raise
	assert.Equal(t, domain.RiskMedium, Risk(low, fieldSet("email"), largeFileBytes+1))
}

func TestRiskEscalatesOnMSISDNOnly(t *testing.T) {
	low := domain.ClassificationResult{DocumentType: "network_report", RiskTier: domain.RiskLow}
	unknown := domain.ClassificationResult{DocumentType: domain.UnknownDocumentType}

	assert.Equal(t, domain.RiskMedium, Risk(low, fieldSet("msisdn"), 10))
	assert.Equal(t, domain.RiskHigh, Risk(unknown, fieldSet("msisdn", "call_duration"), 10))
}

func TestAssessCarriesRecordCount(t *testing.T) {
	n := 40
	q := NewAssessor().Assess(
		domain.ExtractedSample{TextSample: "short", StructureKind: domain.StructureStructured},
		domain.ClassificationResult{DocumentType: "invoice", RiskTier: domain.RiskMedium},
		domain.FieldExtraction{Fields: fieldSet("amount"), RecordCount: &n},
		1024,
	)
	assert.Equal(t, 30, q.QualityScore)
	assert.Equal(t, &n, q.RecordCount)
	assert.Equal(t, domain.RiskMedium, q.RiskLevel)
}
