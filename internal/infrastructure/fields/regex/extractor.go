package regex

import (
	"encoding/csv"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
)

const (
	DefaultProjectionFactor = 20
	maxSampleRecords        = 5
)

type universalPattern struct {
	field string
	re    *regexp.Regexp
}

// Universal patterns run over every document. A pattern with a capture group
// stores the first group instead of the whole match.
var universalPatterns = []universalPattern{
	{field: "phone_number", re: regexp.MustCompile(`(?:\+27|\b0)\d{9}\b`)},
	{field: "email", re: regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)},
	{field: "id_number", re: regexp.MustCompile(`\b\d{13}\b`)},
	{field: "amount", re: regexp.MustCompile(`\bR?\s?\d{1,3}(?:,?\d{3})*\.\d{2}\b`)},
	{field: "date", re: regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b|\b\d{1,2}/\d{1,2}/\d{4}\b`)},
	{field: "msisdn", re: regexp.MustCompile(`(?:^|[^+\d])(27\d{9})\b`)},
}

type CatalogSource interface {
	Current() *domain.Catalog
}

type Extractor struct {
	source           CatalogSource
	projectionFactor int

	mu       sync.RWMutex
	compiled map[string]*regexp.Regexp
}

func NewExtractor(source CatalogSource, projectionFactor int) *Extractor {
	if projectionFactor <= 0 {
		projectionFactor = DefaultProjectionFactor
	}
	return &Extractor{
		source:           source,
		projectionFactor: projectionFactor,
		compiled:         make(map[string]*regexp.Regexp),
	}
}

func (e *Extractor) Extract(text string, cls domain.ClassificationResult) domain.FieldExtraction {
	fields := domain.NewFieldSet()

	for _, p := range universalPatterns {
		if values := findAll(p.re, text); len(values) > 0 {
			fields.Fields[p.field] = domain.ListValue(values)
		}
	}

	for _, field := range e.typeFields(cls) {
		if fields.Has(field) {
			continue
		}
		if value := e.labelledValue(field, text); value != "" {
			fields.Fields[field] = domain.ScalarValue(value)
		}
	}

	headers, records := sampleRecords(text)
	if len(headers) > 0 {
		fields.Headers = headers
		fields.SampleRecords = records
	}

	return domain.FieldExtraction{
		Fields:      fields,
		RecordCount: e.recordCount(fields),
	}
}

func (e *Extractor) typeFields(cls domain.ClassificationResult) []string {
	if cls.IsUnknown() || e.source == nil {
		return nil
	}
	cat := e.source.Current()
	if cat == nil {
		return nil
	}
	docType, ok := cat.Lookup(cls.DocumentType)
	if !ok {
		return nil
	}
	return docType.Fields
}

// labelledValue captures "<field words>[:] value" up to end of line or comma.
func (e *Extractor) labelledValue(field, text string) string {
	m := e.fieldPattern(field).FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func (e *Extractor) fieldPattern(field string) *regexp.Regexp {
	e.mu.RLock()
	re, ok := e.compiled[field]
	e.mu.RUnlock()
	if ok {
		return re
	}

	spaced := strings.ReplaceAll(field, "_", " ")
	re = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(spaced) + `\b[ \t]*:?[ \t]*([^\n,]+)`)

	e.mu.Lock()
	e.compiled[field] = re
	e.mu.Unlock()
	return re
}

// recordCount projects a row estimate from the sample; it is not exact.
func (e *Extractor) recordCount(fields *domain.FieldSet) *int {
	var n int
	switch {
	case len(fields.SampleRecords) > 0:
		n = len(fields.SampleRecords) * e.projectionFactor
	case fields.MaxListLength() > 0:
		n = fields.MaxListLength()
	default:
		return nil
	}
	return &n
}

func findAll(re *regexp.Regexp, text string) []string {
	matches := re.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		value := m[0]
		if len(m) > 1 {
			value = m[1]
		}
		out = append(out, strings.TrimSpace(value))
	}
	return domain.Dedupe(out)
}

// sampleRecords treats the first non-blank line of comma bearing content as
// a header row and maps the next non-blank lines onto it. Lines are parsed
// one at a time so an unbalanced quote cannot swallow the rest of the text.
func sampleRecords(text string) ([]string, []map[string]string) {
	if !strings.Contains(text, ",") {
		return nil, nil
	}
	var (
		headers []string
		records = make([]map[string]string, 0, maxSampleRecords)
	)
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if len(records) == maxSampleRecords {
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		values := splitRow(line)
		if headers == nil {
			headers = values
			continue
		}
		record := make(map[string]string, len(values))
		for i, v := range values {
			key := "column_" + strconv.Itoa(i+1)
			if i < len(headers) && headers[i] != "" {
				key = headers[i]
			}
			record[key] = v
		}
		records = append(records, record)
	}
	if len(headers) == 0 {
		return nil, nil
	}
	return headers, records
}

func splitRow(line string) []string {
	r := csv.NewReader(strings.NewReader(line))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	parts, err := r.Read()
	if err != nil {
		parts = strings.Split(line, ",")
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
