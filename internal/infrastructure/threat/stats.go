package threat

import (
	"bytes"
	"math"
	"unicode/utf8"
)

const (
	maxLineLength        = 10000
	minRepeatUnit        = 10
	maxRepeatUnit        = 32
	minRepeats           = 5
	structuralScanWindow = 1 << 20
)

// shannonEntropy returns bits per byte in [0, 8].
func shannonEntropy(b []byte) float64 {
	if len(b) == 0 {
		return 0
	}
	var counts [256]int
	for _, c := range b {
		counts[c]++
	}
	n := float64(len(b))
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}

// binaryRatio is the share of bytes that cannot be part of readable text.
// High bytes count only when the content is not valid UTF-8.
func binaryRatio(b []byte) float64 {
	if len(b) == 0 {
		return 0
	}
	validUTF8 := utf8.Valid(b)
	n := 0
	for _, c := range b {
		switch {
		case c == '\t' || c == '\n' || c == '\r':
		case c < 0x20 || c == 0x7F:
			n++
		case c >= 0x80 && !validUTF8:
			n++
		}
	}
	return float64(n) / float64(len(b))
}

func hasLongLine(b []byte, limit int) bool {
	for len(b) > 0 {
		i := bytes.IndexByte(b, '\n')
		if i < 0 {
			return len(b) > limit
		}
		if i > limit {
			return true
		}
		b = b[i+1:]
	}
	return false
}

// hasRepeatedRun reports a unit of minRepeatUnit..maxRepeatUnit bytes
// repeated at least minRepeats times back to back, examining only the
// leading structuralScanWindow bytes.
func hasRepeatedRun(b []byte) bool {
	if len(b) > structuralScanWindow {
		b = b[:structuralScanWindow]
	}
	for unit := minRepeatUnit; unit <= maxRepeatUnit; unit++ {
		need := unit * (minRepeats - 1)
		if len(b) < unit+need {
			break
		}
		run := 0
		for i := 0; i+unit < len(b); i++ {
			if b[i] != b[i+unit] {
				run = 0
				continue
			}
			run++
			if run >= need {
				return true
			}
		}
	}
	return false
}
