package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
)

type repoFake struct {
	mu        sync.Mutex
	records   map[string]domain.FileRecord
	saves     []domain.FileStatus
	createErr error
	saveErr   error
	getErr    error
	listCalls []domain.FileFilter
}

func newRepoFake(recs ...*domain.FileRecord) *repoFake {
	f := &repoFake{records: map[string]domain.FileRecord{}}
	for _, r := range recs {
		f.records[r.ID] = *r
	}
	return f
}

func (f *repoFake) Create(_ context.Context, rec *domain.FileRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.records[rec.ID] = *rec
	return nil
}

func (f *repoFake) GetByID(_ context.Context, id string) (*domain.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	rec, ok := f.records[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrFileNotFound, "get file", errors.New(id))
	}
	return &rec, nil
}

func (f *repoFake) Save(_ context.Context, rec *domain.FileRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, rec.Status)
	if f.saveErr != nil {
		return f.saveErr
	}
	f.records[rec.ID] = *rec
	return nil
}

func (f *repoFake) List(_ context.Context, filter domain.FileFilter) ([]domain.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = append(f.listCalls, filter)
	out := make([]domain.FileRecord, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r)
	}
	return out, nil
}

func (f *repoFake) get(id string) domain.FileRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[id]
}

type storageFake struct {
	objects map[string][]byte
	saveErr error
	openErr error
}

func newStorageFake() *storageFake { return &storageFake{objects: map[string][]byte{}} }

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects[key] = raw
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	raw, ok := f.objects[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrFileNotFound, "open", errors.New(key))
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type queueFake struct {
	published []string
	err       error
	// handle runs synchronously on publish, like the in-process queue.
	handle func(fileID string)
}

func (f *queueFake) PublishFileUploaded(_ context.Context, fileID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, fileID)
	if f.handle != nil {
		f.handle(fileID)
	}
	return nil
}

func (f *queueFake) SubscribeFileUploaded(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

type notifierFake struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (f *notifierFake) Notify(_ context.Context, n domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return f.err
}

type persisterFake struct {
	persisted []domain.FileRecord
	err       error
}

func (f *persisterFake) Persist(_ context.Context, rec *domain.FileRecord, _ domain.RawFile) error {
	if f.err != nil {
		return f.err
	}
	f.persisted = append(f.persisted, *rec)
	return nil
}

type extractorFake struct {
	sample domain.ExtractedSample
	err    error
}

func (f *extractorFake) Extract(context.Context, domain.RawFile) (domain.ExtractedSample, error) {
	return f.sample, f.err
}

type classifierFake struct {
	cls   domain.ClassificationResult
	panic bool
}

func (f *classifierFake) Classify(string, string) domain.ClassificationResult {
	if f.panic {
		panic("classifier exploded")
	}
	return f.cls
}

type fieldsFake struct {
	out domain.FieldExtraction
}

func (f *fieldsFake) Extract(string, domain.ClassificationResult) domain.FieldExtraction { return f.out }

type qualityFake struct {
	out domain.QualityAssessment
}

func (f *qualityFake) Assess(domain.ExtractedSample, domain.ClassificationResult, domain.FieldExtraction, int64) domain.QualityAssessment {
	return f.out
}

type threatFake struct {
	report domain.ThreatReport
	err    error
}

func (f *threatFake) Scan(context.Context, domain.RawFile) (domain.ThreatReport, error) {
	return f.report, f.err
}

type complianceFake struct {
	mu     sync.Mutex
	report domain.ComplianceReport
	err    error
	calls  int
	input  domain.ComplianceInput
}

func (f *complianceFake) Evaluate(_ context.Context, in domain.ComplianceInput) (domain.ComplianceReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.input = in
	return f.report, f.err
}

type observerFake struct {
	mu       sync.Mutex
	stages   map[string]int
	outcomes []domain.FileStatus
}

func (f *observerFake) ObserveStage(stage string, _ time.Duration, _ error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stages == nil {
		f.stages = map[string]int{}
	}
	f.stages[stage]++
}

func (f *observerFake) ObserveOutcome(status domain.FileStatus, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, status)
}

func cleanAnalyzers() (Analyzers, *complianceFake) {
	compliance := &complianceFake{report: domain.ComplianceReport{Compliant: true}}
	return Analyzers{
		Extractor:  &extractorFake{sample: domain.ExtractedSample{TextSample: "text", StructureKind: domain.StructureSemiStructured}},
		Classifier: &classifierFake{cls: domain.ClassificationResult{DocumentType: "invoice", Category: "billing", Confidence: 1}},
		Fields:     &fieldsFake{out: domain.FieldExtraction{Fields: domain.NewFieldSet()}},
		Quality:    &qualityFake{out: domain.QualityAssessment{QualityScore: 40, RiskLevel: domain.RiskMedium}},
		Threat:     &threatFake{report: domain.ThreatReport{Clean: true, ContentHash: "abc"}},
		Compliance: compliance,
	}, compliance
}
