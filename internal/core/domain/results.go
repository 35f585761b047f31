package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type StructureKind string

const (
	StructureStructured     StructureKind = "structured"
	StructureSemiStructured StructureKind = "semi-structured"
	StructureUnstructured   StructureKind = "unstructured"
)

// ExtractedSample is the bounded, normalized text view of a file. Text holds
// the full extracted text used by field extraction and is never serialized.
type ExtractedSample struct {
	TextSample       string        `json:"text_sample"`
	Text             string        `json:"-"`
	StructureKind    StructureKind `json:"structure_kind"`
	DetectedLanguage string        `json:"detected_language"`
	DetectedEncoding string        `json:"detected_encoding"`
	Placeholder      bool          `json:"placeholder,omitempty"`
}

// FullText falls back to the sample when the full text was not retained.
func (s ExtractedSample) FullText() string {
	if s.Text != "" {
		return s.Text
	}
	return s.TextSample
}

const UnknownDocumentType = "unknown"

type ClassificationResult struct {
	DocumentType string    `json:"document_type"`
	Name         string    `json:"name,omitempty"`
	Category     string    `json:"category,omitempty"`
	Confidence   float64   `json:"confidence"`
	Score        int       `json:"score"`
	RiskTier     RiskLevel `json:"risk_tier,omitempty"`
}

func (c ClassificationResult) IsUnknown() bool {
	return c.DocumentType == "" || c.DocumentType == UnknownDocumentType
}

// FieldValue is either a scalar or a list of extracted values.
type FieldValue struct {
	Scalar string
	List   []string
	IsList bool
}

func ScalarValue(v string) FieldValue { return FieldValue{Scalar: v} }

func ListValue(values []string) FieldValue {
	return FieldValue{List: append([]string(nil), values...), IsList: true}
}

func (v FieldValue) Values() []string {
	if v.IsList {
		return v.List
	}
	if v.Scalar == "" {
		return nil
	}
	return []string{v.Scalar}
}

func (v FieldValue) Len() int { return len(v.Values()) }

func (v FieldValue) MarshalJSON() ([]byte, error) {
	if v.IsList {
		list := v.List
		if list == nil {
			list = []string{}
		}
		return json.Marshal(list)
	}
	return json.Marshal(v.Scalar)
}

func (v *FieldValue) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("decode field list: %w", err)
		}
		*v = ListValue(list)
		return nil
	}
	var scalar string
	if err := json.Unmarshal(data, &scalar); err != nil {
		return fmt.Errorf("decode field scalar: %w", err)
	}
	*v = ScalarValue(scalar)
	return nil
}

// FieldSet maps field names to extracted values. Headers and SampleRecords
// are the reserved keys populated for delimited content.
type FieldSet struct {
	Fields        map[string]FieldValue `json:"fields"`
	Headers       []string              `json:"_headers,omitempty"`
	SampleRecords []map[string]string   `json:"_sample_records,omitempty"`
}

func NewFieldSet() *FieldSet {
	return &FieldSet{Fields: map[string]FieldValue{}}
}

func (f *FieldSet) Has(name string) bool {
	if f == nil {
		return false
	}
	v, ok := f.Fields[name]
	return ok && v.Len() > 0
}

func (f *FieldSet) Get(name string) []string {
	if f == nil {
		return nil
	}
	return f.Fields[name].Values()
}

func (f *FieldSet) Count() int {
	if f == nil {
		return 0
	}
	return len(f.Fields)
}

// Names returns the sorted field names plus normalized header names.
func (f *FieldSet) Names() []string {
	if f == nil {
		return nil
	}
	names := make([]string, 0, len(f.Fields)+len(f.Headers))
	for name := range f.Fields {
		names = append(names, name)
	}
	for _, header := range f.Headers {
		normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(header)), " ", "_")
		if normalized != "" {
			names = append(names, normalized)
		}
	}
	sort.Strings(names)
	return Dedupe(names)
}

// HasNameContaining reports whether any field name contains one of the fragments.
func (f *FieldSet) HasNameContaining(fragments ...string) bool {
	for _, name := range f.Names() {
		for _, fragment := range fragments {
			if strings.Contains(name, fragment) {
				return true
			}
		}
	}
	return false
}

// MaxListLength is the longest value list across fields.
func (f *FieldSet) MaxListLength() int {
	if f == nil {
		return 0
	}
	longest := 0
	for _, v := range f.Fields {
		if n := v.Len(); n > longest {
			longest = n
		}
	}
	return longest
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func (r RiskLevel) rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	default:
		return 0
	}
}

func (r RiskLevel) Valid() bool { return r.rank() > 0 }

// Escalate moves one tier up; high stays high.
func (r RiskLevel) Escalate() RiskLevel {
	switch r {
	case RiskLow:
		return RiskMedium
	case RiskMedium, RiskHigh:
		return RiskHigh
	default:
		return RiskMedium
	}
}

func MaxRisk(a, b RiskLevel) RiskLevel {
	if a.rank() >= b.rank() {
		return a
	}
	return b
}

type QualityAssessment struct {
	QualityScore int       `json:"quality_score"`
	RecordCount  *int      `json:"record_count,omitempty"`
	RiskLevel    RiskLevel `json:"risk_level"`
}

type ThreatReport struct {
	Clean            bool     `json:"clean"`
	Threats          []string `json:"threats"`
	Warnings         []string `json:"warnings"`
	RiskScore        int      `json:"risk_score"`
	ThreatCategories []string `json:"threat_categories"`
	ContentHash      string   `json:"content_hash"`
	HeaderHex        string   `json:"header_hex,omitempty"`
	ScannedBytes     int      `json:"scanned_bytes"`
	Entropy          float64  `json:"entropy"`
	BinaryRatio      float64  `json:"binary_ratio"`
}

func (t ThreatReport) HasCategory(category string) bool {
	for _, c := range t.ThreatCategories {
		if c == category {
			return true
		}
	}
	return false
}

type Ruleset string

const (
	RulesetDataProtection  Ruleset = "data_protection"
	RulesetNumbering       Ruleset = "numbering"
	RulesetNetworkOperator Ruleset = "network_operator"
	RulesetRetention       Ruleset = "retention"
	RulesetSecurity        Ruleset = "security"
)

// Rulesets lists the evaluators in reporting order.
var Rulesets = []Ruleset{
	RulesetDataProtection,
	RulesetNumbering,
	RulesetNetworkOperator,
	RulesetRetention,
	RulesetSecurity,
}

type RulesetResult struct {
	Ruleset         Ruleset  `json:"ruleset"`
	Compliant       bool     `json:"compliant"`
	Errors          []string `json:"errors"`
	Warnings        []string `json:"warnings"`
	Recommendations []string `json:"recommendations"`
}

type ComplianceReport struct {
	Compliant       bool             `json:"compliant"`
	Errors          []string         `json:"errors"`
	Warnings        []string         `json:"warnings"`
	Recommendations []string         `json:"recommendations"`
	Rulesets        map[Ruleset]bool `json:"rulesets"`
	Results         []RulesetResult  `json:"results,omitempty"`
}
