package threat

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
)

const (
	DefaultCleanThreshold      = 30
	DefaultMaxScanBytes        = 50 << 20
	DefaultOversizeSampleBytes = 1 << 20
	DefaultCacheSize           = 512

	headerBytes = 512
)

const (
	scoreOversize           = 10
	scoreDangerousExtension = 50
	scoreDoubleExtension    = 20
	scoreSuspiciousName     = 15
	scoreUnsafeName         = 5
	scoreSignature          = 25
	scoreBinaryRatio        = 10
	scoreEntropy            = 15
	scoreSuspiciousURL      = 10
	scoreHeaderMismatch     = 30
	scoreRepeatedRun        = 5
	scoreLongLine           = 10
	scoreCompression        = 5

	binaryRatioLimit     = 0.3
	binaryRatioMinLength = 1000
	entropyLimit         = 7.5
	textLikeBinaryRatio  = 0.05
)

type Config struct {
	CleanThreshold      int
	MaxScanBytes        int
	OversizeSampleBytes int
	CacheSize           int
}

func DefaultConfig() Config {
	return Config{
		CleanThreshold:      DefaultCleanThreshold,
		MaxScanBytes:        DefaultMaxScanBytes,
		OversizeSampleBytes: DefaultOversizeSampleBytes,
		CacheSize:           DefaultCacheSize,
	}
}

// Hasher computes the content hash recorded on every report.
type Hasher func([]byte) (string, error)

func SHA256Hex(b []byte) (string, error) {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

type Option func(*Scanner)

func WithHasher(h Hasher) Option {
	return func(s *Scanner) { s.hash = h }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

type Scanner struct {
	cfg   Config
	hash  Hasher
	now   func() time.Time
	cache *lru.Cache[string, domain.ThreatReport]
}

func NewScanner(cfg Config, opts ...Option) (*Scanner, error) {
	if cfg.CleanThreshold <= 0 {
		cfg.CleanThreshold = DefaultCleanThreshold
	}
	if cfg.MaxScanBytes <= 0 {
		cfg.MaxScanBytes = DefaultMaxScanBytes
	}
	if cfg.OversizeSampleBytes <= 0 || cfg.OversizeSampleBytes > cfg.MaxScanBytes {
		cfg.OversizeSampleBytes = min(DefaultOversizeSampleBytes, cfg.MaxScanBytes)
	}

	s := &Scanner{cfg: cfg, hash: SHA256Hex, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, domain.ThreatReport](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create scan cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

func (s *Scanner) CleanThreshold() int { return s.cfg.CleanThreshold }

type findings struct {
	threats    []string
	warnings   []string
	categories []string
	score      int
}

func (f *findings) threat(category, message string, score int) {
	f.threats = append(f.threats, message)
	f.categories = append(f.categories, category)
	f.score += score
}

func (f *findings) warn(message string, score int) {
	f.warnings = append(f.warnings, message)
	f.score += score
}

// Scan reports threats found in the file name and content. Results are
// cached by content hash and name; a cancelled context aborts between checks.
func (s *Scanner) Scan(ctx context.Context, raw domain.RawFile) (domain.ThreatReport, error) {
	if err := ctx.Err(); err != nil {
		return domain.ThreatReport{}, err
	}

	var f findings
	hash, hashed := s.contentHash(raw.Content)
	if !hashed {
		f.warn("content hash unavailable; fallback identifier recorded", 0)
	}
	key := hash + "|" + raw.Name
	if hashed && s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			return cloneReport(cached), nil
		}
	}

	content := raw.Content
	size := max(int64(len(content)), raw.SizeBytes)
	if size > int64(s.cfg.MaxScanBytes) {
		if len(content) > s.cfg.OversizeSampleBytes {
			content = content[:s.cfg.OversizeSampleBytes]
		}
		f.warn(fmt.Sprintf("file exceeds %d byte scan limit; only the first %d bytes were scanned",
			s.cfg.MaxScanBytes, s.cfg.OversizeSampleBytes), scoreOversize)
	}

	ext := raw.Extension()
	checkFilename(&f, raw.Name, ext)
	if err := ctx.Err(); err != nil {
		return domain.ThreatReport{}, err
	}

	checkSignatures(&f, content, ext)
	if err := ctx.Err(); err != nil {
		return domain.ThreatReport{}, err
	}

	ratio := binaryRatio(content)
	entropy := shannonEntropy(content)
	if ratio > binaryRatioLimit && len(content) > binaryRatioMinLength {
		f.warn(fmt.Sprintf("high proportion of binary characters (%.2f)", ratio), scoreBinaryRatio)
	}
	if entropy > entropyLimit {
		f.warn(fmt.Sprintf("high entropy content (%.2f bits per byte) may be packed or encrypted", entropy), scoreEntropy)
	}
	if suspiciousURLPattern.Match(content) {
		f.warn("suspicious URL or IP address pattern", scoreSuspiciousURL)
	}

	checkHeader(&f, content, ext)
	if err := ctx.Err(); err != nil {
		return domain.ThreatReport{}, err
	}

	checkStructure(&f, content, ext, ratio)

	report := domain.ThreatReport{
		Threats:          domain.Dedupe(f.threats),
		Warnings:         domain.Dedupe(f.warnings),
		RiskScore:        f.score,
		ThreatCategories: domain.Dedupe(f.categories),
		ContentHash:      hash,
		HeaderHex:        hex.EncodeToString(content[:min(headerBytes, len(content))]),
		ScannedBytes:     len(content),
		Entropy:          entropy,
		BinaryRatio:      ratio,
	}
	report.Clean = len(report.Threats) == 0 && report.RiskScore < s.cfg.CleanThreshold

	if hashed && s.cache != nil {
		s.cache.Add(key, cloneReport(report))
	}
	return report, nil
}

func (s *Scanner) contentHash(b []byte) (string, bool) {
	hash, err := s.hash(b)
	if err == nil && hash != "" {
		return hash, true
	}
	slog.Warn("content_hash_failed", "error", err)
	return fmt.Sprintf("fallback-%d-%s", s.now().UnixNano(), uuid.NewString()), false
}

func checkFilename(f *findings, name, ext string) {
	if dangerousExtensions[ext] {
		f.threat(CategoryDangerousExtension, fmt.Sprintf("dangerous file extension .%s", ext), scoreDangerousExtension)
	}
	if m := doubleExtensionPattern.FindStringSubmatch(name); m != nil && !compoundExtensions[strings.ToLower(m[1])] {
		f.warn(fmt.Sprintf("double extension .%s.%s in filename", m[1], m[2]), scoreDoubleExtension)
	}
	lower := strings.ToLower(name)
	for _, kw := range suspiciousNameKeywords {
		if strings.Contains(lower, kw) {
			f.warn(fmt.Sprintf("suspicious keyword %q in filename", kw), scoreSuspiciousName)
			break
		}
	}
	if unsafeNamePattern.MatchString(name) {
		f.warn("filename contains unsafe characters", scoreUnsafeName)
	}
}

func checkSignatures(f *findings, content []byte, ext string) {
	for _, cat := range signatureCategories {
		// Executable headers are expected under executable extensions,
		// which are already reported as dangerous.
		if cat.name == CategoryEmbeddedBinary && dangerousExtensions[ext] {
			continue
		}
		for _, sig := range cat.signatures {
			if sig.match(content) {
				f.threat(cat.name, fmt.Sprintf("%s signature detected: %s", cat.label, sig.name), scoreSignature)
				break
			}
		}
	}
}

func checkHeader(f *findings, content []byte, ext string) {
	m, ok := headerTable[ext]
	if !ok {
		return
	}
	if len(content) == 0 {
		f.warn("empty file", 0)
		return
	}
	head := content
	if ext == "xml" {
		head = bytes.TrimLeft(bytes.TrimPrefix(content, []byte{0xEF, 0xBB, 0xBF}), " \t\r\n")
	}
	if !m.matches(head) {
		f.threat(CategoryHeaderMismatch, fmt.Sprintf("file header does not match .%s extension", ext), scoreHeaderMismatch)
	}
}

func checkStructure(f *findings, content []byte, ext string, ratio float64) {
	if textExtensions[ext] || ratio <= textLikeBinaryRatio {
		if hasRepeatedRun(content) {
			f.warn("repeated content pattern detected", scoreRepeatedRun)
		}
		if hasLongLine(content, maxLineLength) {
			f.warn(fmt.Sprintf("line longer than %d characters; consider reformatting", maxLineLength), scoreLongLine)
		}
	}
	if archiveExtensions[ext] {
		return
	}
	if kind := compressionKind(content); kind != "" {
		f.warn(fmt.Sprintf("embedded %s compressed data detected", kind), scoreCompression)
	}
}

// compressionKind names the first archive signature found past offset zero,
// or gzip at the start of a non-archive file.
func compressionKind(content []byte) string {
	if bytes.HasPrefix(content, gzipMagic) {
		return "gzip"
	}
	if len(content) < 2 {
		return ""
	}
	for _, cm := range compressionMagic {
		if bytes.Contains(content[1:], cm.magic) {
			return cm.name
		}
	}
	return ""
}

func cloneReport(r domain.ThreatReport) domain.ThreatReport {
	out := r
	out.Threats = append([]string(nil), r.Threats...)
	out.Warnings = append([]string(nil), r.Warnings...)
	out.ThreatCategories = append([]string(nil), r.ThreatCategories...)
	return out
}
