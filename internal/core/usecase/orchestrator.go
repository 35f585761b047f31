package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
	"github.com/kirillkom/mvne-doc-ingest/internal/core/ports"
)

const (
	StageThreatScan = "threat_scan"
	StageExtract    = "extract"
	StageClassify   = "classify"
	StageFields     = "fields"
	StageQuality    = "quality"
	StageCompliance = "compliance"
	StagePersist    = "persist"
	StageLoad       = "load"
)

// SystemErrorReason is the only reason callers see for internal failures;
// the cause is logged with the file id.
const SystemErrorReason = "internal system error during processing"

const cancelledReason = "processing cancelled before completion"

// PipelineObserver receives per-stage and per-file timings.
type PipelineObserver interface {
	ObserveStage(stage string, elapsed time.Duration, err error)
	ObserveOutcome(status domain.FileStatus, elapsed time.Duration)
}

type Analyzers struct {
	Extractor  ports.ContentExtractor
	Classifier ports.DocumentClassifier
	Fields     ports.FieldExtractor
	Quality    ports.QualityAssessor
	Threat     ports.ThreatScanner
	Compliance ports.ComplianceChecker
}

type OrchestratorOption func(*IngestionOrchestrator)

func WithObserver(observer PipelineObserver) OrchestratorOption {
	return func(o *IngestionOrchestrator) { o.observer = observer }
}

func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *IngestionOrchestrator) { o.now = now }
}

// IngestionOrchestrator drives one file through the pipeline and owns its
// status transitions.
type IngestionOrchestrator struct {
	analyzers Analyzers
	persister ports.Persister
	notifier  ports.Notifier
	observer  PipelineObserver
	now       func() time.Time
}

func NewIngestionOrchestrator(
	analyzers Analyzers,
	persister ports.Persister,
	notifier ports.Notifier,
	opts ...OrchestratorOption,
) *IngestionOrchestrator {
	o := &IngestionOrchestrator{
		analyzers: analyzers,
		persister: persister,
		notifier:  notifier,
		observer:  noopObserver{},
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type analysis struct {
	sample         domain.ExtractedSample
	classification domain.ClassificationResult
	fields         domain.FieldExtraction
	quality        domain.QualityAssessment
}

// Run processes rec to a terminal state. Findings and internal failures are
// recorded on rec and yield a nil error; only cancellation is returned, after
// the record has been marked failed.
func (o *IngestionOrchestrator) Run(ctx context.Context, rec *domain.FileRecord, raw domain.RawFile) (err error) {
	started := o.now()
	defer func() {
		if r := recover(); r != nil {
			o.Fail(ctx, rec, "orchestrator", fmt.Errorf("panic: %v", r))
			err = nil
		}
		o.observer.ObserveOutcome(rec.Status, o.now().Sub(started))
	}()

	if rec.Status == domain.StatusUploading {
		if err := rec.Transition(domain.StatusProcessing, o.now()); err != nil {
			return err
		}
	}
	if rec.Status != domain.StatusProcessing {
		return domain.WrapError(domain.ErrInvalidTransition, "run pipeline", fmt.Errorf("file %s is %s", rec.ID, rec.Status))
	}

	threat, threatErr, result, analysisErr := o.scanAndAnalyze(ctx, raw)

	// A completed dirty verdict wins over cancellation.
	if threatErr == nil && !threat.Clean {
		rec.Threat = &threat
		o.quarantine(ctx, rec, threat)
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		o.cancel(ctx, rec, ctxErr)
		return ctxErr
	}
	if threatErr != nil {
		o.Fail(ctx, rec, StageThreatScan, threatErr)
		return nil
	}
	rec.Threat = &threat
	if analysisErr != nil {
		o.Fail(ctx, rec, stageOf(analysisErr), analysisErr)
		return nil
	}

	rec.Sample = &result.sample
	rec.Classification = &result.classification
	rec.Fields = result.fields.Fields
	rec.ApplyQuality(result.quality)

	if ctxErr := ctx.Err(); ctxErr != nil {
		o.cancel(ctx, rec, ctxErr)
		return ctxErr
	}

	report, err := o.evaluateCompliance(ctx, rec, result)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			o.cancel(ctx, rec, ctxErr)
			return ctxErr
		}
		o.Fail(ctx, rec, StageCompliance, err)
		return nil
	}
	rec.Compliance = &report
	if !report.Compliant {
		o.rejectCompliance(ctx, rec, report)
		return nil
	}

	if err := rec.Transition(domain.StatusValidated, o.now()); err != nil {
		return err
	}
	o.store(ctx, rec, raw)
	return nil
}

// scanAndAnalyze runs the threat scan alongside extraction and analysis. A
// dirty verdict cancels the analysis branch at its next stage boundary.
func (o *IngestionOrchestrator) scanAndAnalyze(ctx context.Context, raw domain.RawFile) (
	threat domain.ThreatReport,
	threatErr error,
	result analysis,
	analysisErr error,
) {
	analysisCtx, cancelAnalysis := context.WithCancel(ctx)
	defer cancelAnalysis()

	var g errgroup.Group
	g.Go(func() error {
		threatErr = o.guard(StageThreatScan, func() error {
			var err error
			threat, err = o.analyzers.Threat.Scan(ctx, raw)
			return err
		})
		if threatErr == nil && !threat.Clean {
			cancelAnalysis()
		}
		return nil
	})
	g.Go(func() error {
		result, analysisErr = o.analyze(analysisCtx, raw)
		return nil
	})
	_ = g.Wait()
	return threat, threatErr, result, analysisErr
}

func (o *IngestionOrchestrator) analyze(ctx context.Context, raw domain.RawFile) (analysis, error) {
	var out analysis

	err := o.guard(StageExtract, func() error {
		var err error
		out.sample, err = o.analyzers.Extractor.Extract(ctx, raw)
		return err
	})
	if err != nil {
		return out, err
	}

	steps := []struct {
		stage string
		run   func()
	}{
		{StageClassify, func() { out.classification = o.analyzers.Classifier.Classify(out.sample.TextSample, raw.Name) }},
		{StageFields, func() { out.fields = o.analyzers.Fields.Extract(out.sample.FullText(), out.classification) }},
		{StageQuality, func() {
			out.quality = o.analyzers.Quality.Assess(out.sample, out.classification, out.fields, raw.SizeBytes)
		}},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if err := o.guard(step.stage, func() error { step.run(); return nil }); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (o *IngestionOrchestrator) evaluateCompliance(ctx context.Context, rec *domain.FileRecord, result analysis) (domain.ComplianceReport, error) {
	var report domain.ComplianceReport
	err := o.guard(StageCompliance, func() error {
		var err error
		report, err = o.analyzers.Compliance.Evaluate(ctx, domain.ComplianceInput{
			Classification: result.classification,
			Fields:         result.fields.Fields,
			RiskLevel:      rec.RiskLevel(),
			Filename:       rec.Filename,
			RecordCount:    result.fields.RecordCount,
		})
		return err
	})
	return report, err
}

// store hands a stored snapshot to the persister and commits the transition
// only when persistence succeeds.
func (o *IngestionOrchestrator) store(ctx context.Context, rec *domain.FileRecord, raw domain.RawFile) {
	snapshot := *rec
	snapshot.Status = domain.StatusStored
	snapshot.UpdatedAt = o.now()

	err := o.guard(StagePersist, func() error {
		return o.persister.Persist(ctx, &snapshot, raw)
	})
	if err != nil {
		o.Fail(ctx, rec, StagePersist, err)
		return
	}
	if err := rec.Transition(domain.StatusStored, snapshot.UpdatedAt); err != nil {
		o.Fail(ctx, rec, StagePersist, err)
		return
	}
	slog.Info("file_stored", "file_id", rec.ID, "document_type", classificationType(rec), "risk_level", rec.RiskLevel())
}

func (o *IngestionOrchestrator) quarantine(ctx context.Context, rec *domain.FileRecord, threat domain.ThreatReport) {
	reasons := threat.Threats
	if len(reasons) == 0 {
		reasons = []string{fmt.Sprintf("risk score %d exceeds the clean threshold", threat.RiskScore)}
	}
	rec.AddReasons(reasons...)
	if err := rec.Transition(domain.StatusQuarantined, o.now()); err != nil {
		o.Fail(ctx, rec, StageThreatScan, err)
		return
	}
	slog.Warn("file_quarantined",
		"file_id", rec.ID,
		"filename", rec.Filename,
		"risk_score", threat.RiskScore,
		"threat_categories", threat.ThreatCategories,
	)
	o.notify(ctx, rec, domain.NotificationSecurity, domain.SeverityCritical)
}

func (o *IngestionOrchestrator) rejectCompliance(ctx context.Context, rec *domain.FileRecord, report domain.ComplianceReport) {
	rec.AddReasons(report.Errors...)
	if len(rec.Reasons) == 0 {
		rec.AddReasons("compliance evaluation failed")
	}
	if err := rec.Transition(domain.StatusFailed, o.now()); err != nil {
		slog.Error("stage_failed", "file_id", rec.ID, "stage", StageCompliance, "error", err)
		return
	}
	slog.Warn("file_compliance_failed", "file_id", rec.ID, "errors", report.Errors)
	o.notify(ctx, rec, domain.NotificationCompliance, domain.SeverityHigh)
}

// Fail marks rec failed with the generic system reason. Terminal records are
// left untouched.
func (o *IngestionOrchestrator) Fail(ctx context.Context, rec *domain.FileRecord, stage string, cause error) {
	slog.Error("stage_failed", "file_id", rec.ID, "stage", stage, "error", cause)
	if rec.Status.IsTerminal() {
		return
	}
	rec.AddReasons(SystemErrorReason)
	if rec.Status == domain.StatusUploading {
		_ = rec.Transition(domain.StatusProcessing, o.now())
	}
	if err := rec.Transition(domain.StatusFailed, o.now()); err != nil {
		slog.Error("mark_failed_error", "file_id", rec.ID, "error", err)
		return
	}
	o.notify(ctx, rec, domain.NotificationSystem, domain.SeverityMedium)
}

func (o *IngestionOrchestrator) cancel(ctx context.Context, rec *domain.FileRecord, cause error) {
	slog.Warn("file_processing_cancelled", "file_id", rec.ID, "error", cause)
	if rec.Status.IsTerminal() {
		return
	}
	rec.AddReasons(cancelledReason)
	_ = rec.Transition(domain.StatusFailed, o.now())
	o.notify(context.WithoutCancel(ctx), rec, domain.NotificationSystem, domain.SeverityMedium)
}

func (o *IngestionOrchestrator) notify(ctx context.Context, rec *domain.FileRecord, kind domain.NotificationKind, severity domain.Severity) {
	if o.notifier == nil {
		return
	}
	n := domain.Notification{
		FileID:    rec.ID,
		Filename:  rec.Filename,
		Kind:      kind,
		Severity:  severity,
		Status:    rec.Status,
		Summary:   strings.Join(rec.Reasons, "; "),
		CreatedAt: o.now(),
	}
	if err := o.notifier.Notify(context.WithoutCancel(ctx), n); err != nil {
		slog.Warn("notification_failed", "file_id", rec.ID, "kind", kind, "error", err)
	}
}

type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func stageOf(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage
	}
	return "analysis"
}

// guard times a stage and converts a panic into a stage error.
func (o *IngestionOrchestrator) guard(stage string, fn func() error) (err error) {
	started := o.now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			err = &stageError{stage: stage, err: err}
		}
		o.observer.ObserveStage(stage, o.now().Sub(started), err)
	}()
	return fn()
}

func classificationType(rec *domain.FileRecord) string {
	if rec.Classification == nil {
		return domain.UnknownDocumentType
	}
	return rec.Classification.DocumentType
}

type noopObserver struct{}

func (noopObserver) ObserveStage(string, time.Duration, error) {}
func (noopObserver) ObserveOutcome(domain.FileStatus, time.Duration) {}
