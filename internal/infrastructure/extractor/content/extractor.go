package content

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
)

const (
	DefaultMaxSampleChars = 10000
	DefaultMaxCSVLines    = 100
	DefaultMaxTextBytes   = 1 << 20
)

type Options struct {
	MaxSampleChars int
	MaxCSVLines    int
	MaxTextBytes   int
}

func (o Options) normalize() Options {
	out := o
	if out.MaxSampleChars <= 0 {
		out.MaxSampleChars = DefaultMaxSampleChars
	}
	if out.MaxCSVLines <= 0 {
		out.MaxCSVLines = DefaultMaxCSVLines
	}
	if out.MaxTextBytes <= 0 {
		out.MaxTextBytes = DefaultMaxTextBytes
	}
	return out
}

// OCR recognizes text in images. Nil means image text extraction is disabled.
type OCR interface {
	Recognize(ctx context.Context, raw domain.RawFile) (string, error)
}

type Extractor struct {
	opts Options
	ocr  OCR
}

func NewExtractor(opts Options, ocr OCR) *Extractor {
	return &Extractor{opts: opts.normalize(), ocr: ocr}
}

type extraction struct {
	text     string
	kind     domain.StructureKind
	encoding string
}

// Extract never fails on content: unreadable input degrades to a placeholder.
// The only error is a cancelled context.
func (e *Extractor) Extract(ctx context.Context, raw domain.RawFile) (domain.ExtractedSample, error) {
	if err := ctx.Err(); err != nil {
		return domain.ExtractedSample{}, err
	}

	out, err := e.safeExtract(ctx, raw)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.ExtractedSample{}, ctxErr
		}
		slog.Debug("content_extraction_degraded", "filename", raw.Name, "error", err)
		return e.placeholder(raw, "unreadable content"), nil
	}
	text := strings.TrimSpace(out.text)
	if text == "" {
		return e.placeholder(raw, "no extractable text"), nil
	}

	text = truncateBytes(text, e.opts.MaxTextBytes)
	return domain.ExtractedSample{
		TextSample:       truncateRunes(text, e.opts.MaxSampleChars),
		Text:             text,
		StructureKind:    out.kind,
		DetectedLanguage: detectLanguage(text),
		DetectedEncoding: out.encoding,
	}, nil
}

// safeExtract shields the pipeline from panics inside third-party parsers.
func (e *Extractor) safeExtract(ctx context.Context, raw domain.RawFile) (out extraction, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parser panic: %v", r)
		}
	}()
	return e.dispatch(ctx, raw)
}

func (e *Extractor) dispatch(ctx context.Context, raw domain.RawFile) (extraction, error) {
	data := raw.Content
	switch formatOf(raw) {
	case "csv":
		return e.extractDelimited(data, ","), nil
	case "tsv":
		return e.extractDelimited(data, "\t"), nil
	case "json":
		return e.extractJSON(data), nil
	case "xml":
		return e.extractMarkup(data, true), nil
	case "html":
		return e.extractMarkup(data, false), nil
	case "docx":
		return e.extractDOCX(data)
	case "xlsx":
		return e.extractXLSX(data)
	case "pdf":
		return e.extractPDF(data), nil
	case "text":
		text, enc := decodeText(truncateUTF8(data, e.opts.MaxTextBytes))
		return extraction{text: text, kind: domain.StructureSemiStructured, encoding: enc}, nil
	case "image":
		return e.extractImage(ctx, raw)
	case "archive":
		return extraction{}, nil
	default:
		return extraction{
			text:     printableRuns(data, e.opts.MaxTextBytes),
			kind:     domain.StructureUnstructured,
			encoding: "binary",
		}, nil
	}
}

func (e *Extractor) extractImage(ctx context.Context, raw domain.RawFile) (extraction, error) {
	if e.ocr == nil {
		return extraction{}, nil
	}
	text, err := e.ocr.Recognize(ctx, raw)
	if err != nil {
		return extraction{}, fmt.Errorf("ocr: %w", err)
	}
	return extraction{text: text, kind: domain.StructureUnstructured, encoding: "utf-8"}, nil
}

func (e *Extractor) placeholder(raw domain.RawFile, reason string) domain.ExtractedSample {
	kind := formatOf(raw)
	var text string
	if kind == "image" {
		text = fmt.Sprintf("[image content: %s, %d bytes; text extraction requires OCR]", raw.Name, len(raw.Content))
	} else {
		text = fmt.Sprintf("[%s: %s, %d bytes, format %s]", reason, raw.Name, len(raw.Content), kind)
	}
	return domain.ExtractedSample{
		TextSample:       text,
		StructureKind:    domain.StructureUnstructured,
		DetectedLanguage: "unknown",
		DetectedEncoding: "binary",
		Placeholder:      true,
	}
}

var mimeFormats = map[string]string{
	"text/csv":                  "csv",
	"text/tab-separated-values": "tsv",
	"application/json":          "json",
	"application/xml":           "xml",
	"text/xml":                  "xml",
	"text/html":                 "html",
	"application/pdf":           "pdf",
	"text/plain":                "text",
	"text/markdown":             "text",
	"application/zip":           "archive",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "docx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       "xlsx",
}

var extensionFormats = map[string]string{
	"csv": "csv", "tsv": "tsv", "json": "json", "xml": "xml",
	"html": "html", "htm": "html", "docx": "docx", "xlsx": "xlsx", "pdf": "pdf",
	"txt": "text", "md": "text", "log": "text", "text": "text",
	"jpg": "image", "jpeg": "image", "png": "image", "gif": "image",
	"bmp": "image", "tif": "image", "tiff": "image", "webp": "image",
	"zip": "archive", "gz": "archive", "tar": "archive", "7z": "archive", "rar": "archive",
}

func formatOf(raw domain.RawFile) string {
	if f, ok := extensionFormats[raw.Extension()]; ok {
		return f
	}
	mime := strings.ToLower(strings.TrimSpace(raw.DeclaredMimeType))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if f, ok := mimeFormats[mime]; ok {
		return f
	}
	if strings.HasPrefix(mime, "image/") {
		return "image"
	}
	return "binary"
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

func truncateBytes(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return string(truncateUTF8([]byte(s), limit))
}

// truncateUTF8 cuts at limit without splitting a trailing multi-byte rune.
func truncateUTF8(b []byte, limit int) []byte {
	if limit <= 0 || len(b) <= limit {
		return b
	}
	cut := limit
	for i := 0; i < utf8.UTFMax && cut > 0; i++ {
		if utf8.RuneStart(b[cut]) {
			break
		}
		cut--
	}
	return b[:cut]
}
