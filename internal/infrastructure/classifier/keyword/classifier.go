package keyword

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
)

const (
	keywordWeight  = 10
	fieldWeight    = 5
	filenameWeight = 20

	DefaultConfidenceDivisor = 50.0
)

// CatalogSource yields the catalog active at call time.
type CatalogSource interface {
	Current() *domain.Catalog
}

// Classifier scores samples against the document type catalog. It is a pure
// function of (sample, filename, catalog).
type Classifier struct {
	source            CatalogSource
	confidenceDivisor float64
}

func NewClassifier(source CatalogSource, confidenceDivisor float64) *Classifier {
	if confidenceDivisor <= 0 {
		confidenceDivisor = DefaultConfidenceDivisor
	}
	return &Classifier{source: source, confidenceDivisor: confidenceDivisor}
}

func (c *Classifier) Classify(textSample, filename string) domain.ClassificationResult {
	unknown := domain.ClassificationResult{DocumentType: domain.UnknownDocumentType}
	cat := c.source.Current()
	if cat == nil {
		return unknown
	}

	text := strings.ToLower(textSample)
	name := strings.ToLower(filename)

	var (
		best      domain.DocumentType
		bestScore int
	)
	for _, docType := range cat.Types() {
		score := Score(docType, text, name)
		if score > bestScore {
			best, bestScore = docType, score
		}
	}
	if bestScore == 0 {
		return unknown
	}

	return domain.ClassificationResult{
		DocumentType: best.ID,
		Name:         best.Name,
		Category:     best.Category,
		Confidence:   math.Min(float64(bestScore)/c.confidenceDivisor, 1.0),
		Score:        bestScore,
		RiskTier:     best.RiskTier,
	}
}

// Score expects lowercase text and filename.
func Score(docType domain.DocumentType, text, filename string) int {
	score := 0
	for _, kw := range docType.Keywords {
		if containsWord(text, kw) {
			score += keywordWeight
		}
	}
	for _, field := range docType.Fields {
		spaced := strings.ReplaceAll(field, "_", " ")
		if strings.Contains(text, spaced) || strings.Contains(text, field) {
			score += fieldWeight
		}
	}
	if n := docType.NormalizedName(); n != "" && strings.Contains(filename, n) {
		score += filenameWeight
	}
	return score
}

func containsWord(text, word string) bool {
	if word == "" {
		return false
	}
	for offset := 0; offset < len(text); {
		idx := strings.Index(text[offset:], word)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(word)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return false
}

func boundaryBefore(text string, pos int) bool {
	if pos == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:pos])
	return !isWordRune(r)
}

func boundaryAfter(text string, pos int) bool {
	if pos >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[pos:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
