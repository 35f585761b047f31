package content

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
)

func (e *Extractor) extractDelimited(data []byte, sep string) extraction {
	text, enc := decodeText(truncateUTF8(data, e.opts.MaxTextBytes))
	lines := make([]string, 0, e.opts.MaxCSVLines)
	rest := text
	for rest != "" && len(lines) < e.opts.MaxCSVLines {
		var line string
		line, rest, _ = strings.Cut(rest, "\n")
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if sep != "," {
			line = strings.ReplaceAll(line, sep, ",")
		}
		lines = append(lines, line)
	}
	return extraction{text: strings.Join(lines, "\n"), kind: domain.StructureStructured, encoding: enc}
}

// extractJSON flattens a document into "key: value" lines so that labelled
// field patterns match nested values.
func (e *Extractor) extractJSON(data []byte) extraction {
	text, enc := decodeText(truncateUTF8(data, e.opts.MaxTextBytes))
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return extraction{text: text, kind: domain.StructureSemiStructured, encoding: enc}
	}
	var lines []string
	flattenJSON("", doc, &lines, e.opts.MaxTextBytes)
	return extraction{text: strings.Join(lines, "\n"), kind: domain.StructureStructured, encoding: enc}
}

func flattenJSON(key string, v any, lines *[]string, budget int) {
	if len(*lines) >= budget {
		return
	}
	label := strings.ReplaceAll(key, "_", " ")
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flattenJSON(k, t[k], lines, budget)
		}
	case []any:
		for _, item := range t {
			flattenJSON(key, item, lines, budget)
		}
	case nil:
	default:
		value := fmt.Sprint(t)
		if label == "" {
			*lines = append(*lines, value)
			return
		}
		*lines = append(*lines, label+": "+value)
	}
}

var skippedHTMLElements = map[string]bool{"script": true, "style": true, "noscript": true, "head": true}

// extractMarkup reads XML or HTML text nodes. XML leaves become
// "tag: text" lines; HTML yields visible text only.
func (e *Extractor) extractMarkup(data []byte, labelled bool) extraction {
	text, enc := decodeText(truncateUTF8(data, e.opts.MaxTextBytes))
	kind := domain.StructureSemiStructured
	if labelled {
		kind = domain.StructureStructured
	}
	return extraction{text: markupText(strings.NewReader(text), labelled, ""), kind: kind, encoding: enc}
}

// markupText walks tokens; a non-empty lineBreak tag starts a new line when it closes.
func markupText(r io.Reader, labelled bool, lineBreak string) string {
	z := html.NewTokenizer(r)
	var (
		stack []string
		out   strings.Builder
		line  strings.Builder
	)
	endLine := func() {
		if s := strings.TrimSpace(line.String()); s != "" {
			out.WriteString(s)
			out.WriteByte('\n')
		}
		line.Reset()
	}
	for {
		switch z.Next() {
		case html.ErrorToken:
			endLine()
			return strings.TrimSpace(out.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			stack = append(stack, string(name))
		case html.EndTagToken:
			name, _ := z.TagName()
			if lineBreak != "" && string(name) == lineBreak {
				endLine()
			}
			if n := len(stack); n > 0 {
				stack = stack[:n-1]
			}
		case html.TextToken:
			text := strings.TrimSpace(string(z.Text()))
			if text == "" {
				continue
			}
			top := ""
			if n := len(stack); n > 0 {
				top = stack[n-1]
			}
			if !labelled && skippedHTMLElements[top] {
				continue
			}
			switch {
			case lineBreak != "":
				if line.Len() > 0 {
					line.WriteByte(' ')
				}
				line.WriteString(text)
			case labelled && top != "":
				line.WriteString(strings.ReplaceAll(localName(top), "_", " ") + ": " + text)
				endLine()
			default:
				line.WriteString(text)
				endLine()
			}
		}
	}
}

func localName(tag string) string {
	if i := strings.LastIndexByte(tag, ':'); i >= 0 {
		return tag[i+1:]
	}
	return tag
}

func (e *Extractor) extractDOCX(data []byte) (extraction, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return extraction{}, fmt.Errorf("open docx: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return extraction{}, fmt.Errorf("open docx body: %w", err)
		}
		defer rc.Close()
		body := io.LimitReader(rc, int64(e.opts.MaxTextBytes)*4)
		return extraction{
			text:     markupText(body, false, "w:p"),
			kind:     domain.StructureSemiStructured,
			encoding: "utf-8",
		}, nil
	}
	return extraction{}, fmt.Errorf("docx body not found")
}

func (e *Extractor) extractXLSX(data []byte) (extraction, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return extraction{}, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return extraction{}, nil
	}
	// Stream rows so the line cap bounds the work, not only the output.
	rows, err := f.Rows(sheets[0])
	if err != nil {
		return extraction{}, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	defer rows.Close()

	lines := make([]string, 0, e.opts.MaxCSVLines)
	for len(lines) < e.opts.MaxCSVLines && rows.Next() {
		row, err := rows.Columns()
		if err != nil {
			return extraction{}, fmt.Errorf("read row in %q: %w", sheets[0], err)
		}
		line := strings.Join(row, ",")
		if strings.Trim(line, ", ") == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := rows.Error(); err != nil {
		return extraction{}, fmt.Errorf("iterate sheet %q: %w", sheets[0], err)
	}
	return extraction{text: strings.Join(lines, "\n"), kind: domain.StructureStructured, encoding: "utf-8"}, nil
}

// extractPDF prefers the parsed text layer and falls back to printable runs
// for documents the parser rejects.
func (e *Extractor) extractPDF(data []byte) extraction {
	if text, err := pdfText(data, e.opts.MaxTextBytes); err == nil && strings.TrimSpace(text) != "" {
		return extraction{text: text, kind: domain.StructureSemiStructured, encoding: "utf-8"}
	}
	return extraction{
		text:     printableRuns(data, e.opts.MaxTextBytes),
		kind:     domain.StructureSemiStructured,
		encoding: "binary",
	}
}

func pdfText(data []byte, limit int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	b, err := io.ReadAll(io.LimitReader(plain, int64(limit)))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
