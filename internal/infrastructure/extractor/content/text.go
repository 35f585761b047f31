package content

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText returns UTF-8 text and the detected source encoding. Invalid
// UTF-8 that still looks like text is read as Windows-1252.
func decodeText(b []byte) (string, string) {
	b = bytes.TrimPrefix(b, utf8BOM)
	if utf8.Valid(b) {
		return string(b), "utf-8"
	}
	if looksBinary(b) {
		return printableRuns(b, len(b)), "binary"
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return printableRuns(b, len(b)), "binary"
	}
	return string(decoded), "windows-1252"
}

func looksBinary(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	if bytes.IndexByte(b, 0) >= 0 {
		return true
	}
	control := 0
	for _, c := range b {
		if c < 0x20 && c != '\t' && c != '\n' && c != '\r' {
			control++
		}
	}
	return float64(control)/float64(len(b)) > 0.3
}

const minRunLength = 4

// printableRuns keeps ASCII runs of at least minRunLength characters, one
// run per line, bounded by limit bytes.
func printableRuns(b []byte, limit int) string {
	var (
		out strings.Builder
		run []byte
	)
	flush := func() {
		if len(run) >= minRunLength {
			if out.Len() > 0 {
				out.WriteByte('\n')
			}
			out.Write(run)
		}
		run = run[:0]
	}
	for _, c := range b {
		if limit > 0 && out.Len() >= limit {
			break
		}
		if (c >= 0x20 && c < 0x7f) || c == '\t' {
			run = append(run, c)
			continue
		}
		flush()
	}
	flush()
	return out.String()
}

var stopWords = map[string][]string{
	"en": {"the", "and", "of", "to", "is", "for", "with", "this", "that"},
	"af": {"die", "en", "van", "het", "vir", "met", "nie", "word", "hierdie"},
	"zu": {"ukuthi", "futhi", "kanye", "ngoba", "noma", "lokhu", "uma", "kodwa"},
}

var languageOrder = []string{"en", "af", "zu"}

// detectLanguage is a stop-word vote over the first words of the text.
func detectLanguage(text string) string {
	words := strings.FieldsFunc(strings.ToLower(truncateRunes(text, 4000)), func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	})
	if len(words) == 0 {
		return "unknown"
	}
	counts := make(map[string]int, len(languageOrder))
	for _, w := range words {
		for _, lang := range languageOrder {
			for _, sw := range stopWords[lang] {
				if w == sw {
					counts[lang]++
				}
			}
		}
	}
	best, bestCount := "unknown", 1
	for _, lang := range languageOrder {
		if counts[lang] > bestCount {
			best, bestCount = lang, counts[lang]
		}
	}
	return best
}
