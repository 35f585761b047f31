package threat

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
)

func newScanner(t *testing.T, cfg Config, opts ...Option) *Scanner {
	t.Helper()
	s, err := NewScanner(cfg, opts...)
	require.NoError(t, err)
	return s
}

func scan(t *testing.T, s *Scanner, name string, content []byte) domain.ThreatReport {
	t.Helper()
	report, err := s.Scan(context.Background(), domain.RawFile{Name: name, SizeBytes: int64(len(content)), Content: content})
	require.NoError(t, err)
	return report
}

func TestScanDangerousExtension(t *testing.T) {
	report := scan(t, newScanner(t, DefaultConfig()), "malware.exe", []byte("MZ\x90\x00"))

	assert.False(t, report.Clean)
	assert.True(t, report.HasCategory(CategoryDangerousExtension))
	assert.False(t, report.HasCategory(CategoryEmbeddedBinary))
	assert.Equal(t, scoreDangerousExtension+scoreSuspiciousName, report.RiskScore)
}

func TestScanScriptTag(t *testing.T) {
	report := scan(t, newScanner(t, DefaultConfig()), "page.html", []byte(`<html><body><script>alert(1)</script></body></html>`))

	assert.False(t, report.Clean)
	assert.True(t, report.HasCategory(CategoryXSS))
	assert.GreaterOrEqual(t, report.RiskScore, 25)
}

func TestScanHeaderMismatch(t *testing.T) {
	report := scan(t, newScanner(t, DefaultConfig()), "image.png", []byte("%PDF-1.4 quarterly report"))

	assert.False(t, report.Clean)
	assert.Equal(t, []string{CategoryHeaderMismatch}, report.ThreatCategories)
	assert.Equal(t, scoreHeaderMismatch, report.RiskScore)
}

func TestScanSpoofedImageWithSQL(t *testing.T) {
	report := scan(t, newScanner(t, DefaultConfig()), "photo.png", []byte("SELECT name FROM users UNION SELECT password FROM admins"))

	assert.False(t, report.Clean)
	assert.True(t, report.HasCategory(CategoryHeaderMismatch))
	assert.True(t, report.HasCategory(CategorySQLInjection))
	assert.GreaterOrEqual(t, report.RiskScore, 55)
}

func TestScanOneDetectionPerCategory(t *testing.T) {
	report := scan(t, newScanner(t, DefaultConfig()), "query.txt", []byte("1 UNION SELECT x; DROP TABLE y; xp_cmdshell"))

	assert.Len(t, report.Threats, 1)
	assert.Contains(t, report.Threats[0], "union select")
	assert.Equal(t, scoreSignature, report.RiskScore)
}

func TestScanCleanText(t *testing.T) {
	content := []byte("Quarterly revenue grew across all regions.")
	report := scan(t, newScanner(t, DefaultConfig()), "notes.txt", content)

	assert.True(t, report.Clean)
	assert.Zero(t, report.RiskScore)
	assert.Empty(t, report.Threats)
	assert.Len(t, report.ContentHash, 64)
	assert.Equal(t, len(content), report.ScannedBytes)
	assert.NotEmpty(t, report.HeaderHex)
}

func TestScanCleanThresholdIsConfigurable(t *testing.T) {
	content := []byte("hello")

	lenient := scan(t, newScanner(t, DefaultConfig()), "invoice.pdf.txt", content)
	assert.Equal(t, scoreDoubleExtension, lenient.RiskScore)
	assert.True(t, lenient.Clean)

	cfg := DefaultConfig()
	cfg.CleanThreshold = 20
	strict := scan(t, newScanner(t, cfg), "invoice.pdf.txt", content)
	assert.False(t, strict.Clean)
	assert.Empty(t, strict.Threats)
}

func TestScanOversizeSamplesPrefix(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxScanBytes = 100
	cfg.OversizeSampleBytes = 10
	report := scan(t, newScanner(t, cfg), "big.txt", []byte(strings.Repeat("ab ", 70)))

	assert.Equal(t, 10, report.ScannedBytes)
	assert.Equal(t, scoreOversize, report.RiskScore)
	assert.Len(t, report.Warnings, 1)
	assert.True(t, report.Clean)
}

func TestScanHighEntropyBinary(t *testing.T) {
	var content []byte
	for i := 0; i < 8; i++ {
		for b := 0; b < 256; b++ {
			content = append(content, byte(b))
		}
	}
	report := scan(t, newScanner(t, DefaultConfig()), "blob.bin", content)

	assert.InDelta(t, 8.0, report.Entropy, 0.001)
	assert.Greater(t, report.BinaryRatio, binaryRatioLimit)
	assert.Equal(t, scoreEntropy+scoreBinaryRatio, report.RiskScore)
	assert.True(t, report.Clean)
}

func TestScanEmbeddedCompression(t *testing.T) {
	report := scan(t, newScanner(t, DefaultConfig()), "notes.txt", []byte("hello PK\x03\x04 world"))
	assert.Equal(t, scoreCompression, report.RiskScore)
	assert.Contains(t, report.Warnings[0], "zip")
}

func TestScanEmbeddedExecutable(t *testing.T) {
	report := scan(t, newScanner(t, DefaultConfig()), "report.csv", []byte("\x7fELF\x02\x01\x01"))
	assert.True(t, report.HasCategory(CategoryEmbeddedBinary))
	assert.False(t, report.Clean)
}

func TestScanHashFailureFallsBack(t *testing.T) {
	failing := func([]byte) (string, error) { return "", errors.New("hash unavailable") }
	s := newScanner(t, DefaultConfig(), WithHasher(failing))

	first := scan(t, s, "notes.txt", []byte("hello"))
	second := scan(t, s, "notes.txt", []byte("hello"))

	assert.True(t, strings.HasPrefix(first.ContentHash, "fallback-"))
	assert.NotEqual(t, first.ContentHash, second.ContentHash)
	assert.Contains(t, first.Warnings, "content hash unavailable; fallback identifier recorded")
	assert.True(t, first.Clean)
}

func TestScanCachedReportIsIsolated(t *testing.T) {
	s := newScanner(t, DefaultConfig())
	content := []byte("<script>x</script>")

	first := scan(t, s, "a.html", content)
	first.Threats[0] = "mutated"
	second := scan(t, s, "a.html", content)

	assert.NotEqual(t, "mutated", second.Threats[0])
	assert.Equal(t, first.ContentHash, second.ContentHash)
}

func TestScanCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newScanner(t, DefaultConfig()).Scan(ctx, domain.RawFile{Name: "a.txt", Content: []byte("x")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHasRepeatedRun(t *testing.T) {
	unit := "abcdefghij"
	assert.True(t, hasRepeatedRun([]byte("xx"+strings.Repeat(unit, 5)+"yy")))
	assert.False(t, hasRepeatedRun([]byte(strings.Repeat(unit, 4))))
	assert.False(t, hasRepeatedRun([]byte("short")))
}

func TestHasLongLine(t *testing.T) {
	long := bytes.Repeat([]byte("a"), maxLineLength+1)
	assert.True(t, hasLongLine(append([]byte("ok\n"), long...), maxLineLength))
	assert.False(t, hasLongLine([]byte("ok\nfine\n"), maxLineLength))
}

func TestScanBusinessTextWithParenthesesIsClean(t *testing.T) {
	s := newScanner(t, DefaultConfig())
	for name, content := range map[string]string{
		"billing_notes.txt":  "The billing system (BSS) migration completes in March; exec (board) sign-off pending.",
		"network_report.txt": "Latency benchmark (2024 Q1) shows throughput above target. Maintenance windows sleep (2 hours) nightly.",
	} {
		report := scan(t, s, name, []byte(content))
		assert.True(t, report.Clean, name)
		assert.Empty(t, report.Threats, name)
		assert.Zero(t, report.RiskScore, name)
	}
}

func TestScanCodeExecutionAndTimeBasedSQL(t *testing.T) {
	s := newScanner(t, DefaultConfig())

	shell := scan(t, s, "snippet.txt", []byte(`$out = shell_exec('whoami');`))
	assert.True(t, shell.HasCategory(CategoryScriptInjection))
	assert.Contains(t, shell.Threats[0], "exec call")

	delayed := scan(t, s, "params.txt", []byte(`id=1' AND SLEEP(5)-- `))
	assert.True(t, delayed.HasCategory(CategorySQLInjection))
	assert.Contains(t, delayed.Threats[0], "time-based injection")

	bench := scan(t, s, "query.txt", []byte(`SELECT BENCHMARK(5000000,MD5('x'))`))
	assert.True(t, bench.HasCategory(CategorySQLInjection))
}

func TestScanUnsafeFilenameCharacters(t *testing.T) {
	report := scan(t, newScanner(t, DefaultConfig()), "report$final.txt", []byte("hello"))

	assert.Equal(t, scoreUnsafeName, report.RiskScore)
	assert.Contains(t, report.Warnings, "filename contains unsafe characters")
	assert.True(t, report.Clean)
}

func TestScanSuspiciousURL(t *testing.T) {
	report := scan(t, newScanner(t, DefaultConfig()), "notes.txt", []byte("Download the update from http://10.20.30.40/update now."))

	assert.Equal(t, scoreSuspiciousURL, report.RiskScore)
	assert.Contains(t, report.Warnings, "suspicious URL or IP address pattern")
}

func TestScanLongLine(t *testing.T) {
	// Pseudo-random letters avoid tripping the repeated-run check.
	line := make([]byte, maxLineLength+1)
	seed := uint32(7)
	for i := range line {
		seed = seed*1103515245 + 12345
		line[i] = 'a' + byte((seed>>16)%26)
	}
	report := scan(t, newScanner(t, DefaultConfig()), "dump.txt", line)

	assert.Equal(t, scoreLongLine, report.RiskScore)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "line longer than")
}

func TestScanRepeatedSubstring(t *testing.T) {
	report := scan(t, newScanner(t, DefaultConfig()), "notes.txt", []byte(strings.Repeat("0123456789", 6)))

	assert.Equal(t, scoreRepeatedRun, report.RiskScore)
	assert.Contains(t, report.Warnings, "repeated content pattern detected")
}

func TestScanBinaryRatioNeedsMoreThanMinLength(t *testing.T) {
	s := newScanner(t, DefaultConfig())

	atLimit := scan(t, s, "blob.bin", bytes.Repeat([]byte{0x01}, binaryRatioMinLength))
	assert.Greater(t, atLimit.BinaryRatio, binaryRatioLimit)
	assert.Zero(t, atLimit.RiskScore)

	overLimit := scan(t, s, "blob2.bin", bytes.Repeat([]byte{0x01}, binaryRatioMinLength+1))
	assert.Equal(t, scoreBinaryRatio, overLimit.RiskScore)
}
