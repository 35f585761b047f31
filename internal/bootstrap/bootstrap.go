package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kirillkom/mvne-doc-ingest/internal/config"
	"github.com/kirillkom/mvne-doc-ingest/internal/core/ports"
	"github.com/kirillkom/mvne-doc-ingest/internal/core/usecase"
	"github.com/kirillkom/mvne-doc-ingest/internal/infrastructure/archive"
	"github.com/kirillkom/mvne-doc-ingest/internal/infrastructure/catalog"
	"github.com/kirillkom/mvne-doc-ingest/internal/infrastructure/classifier/keyword"
	"github.com/kirillkom/mvne-doc-ingest/internal/infrastructure/compliance"
	"github.com/kirillkom/mvne-doc-ingest/internal/infrastructure/extractor/content"
	"github.com/kirillkom/mvne-doc-ingest/internal/infrastructure/fields/regex"
	"github.com/kirillkom/mvne-doc-ingest/internal/infrastructure/notify"
	"github.com/kirillkom/mvne-doc-ingest/internal/infrastructure/quality"
	"github.com/kirillkom/mvne-doc-ingest/internal/infrastructure/queue/inline"
	natsqueue "github.com/kirillkom/mvne-doc-ingest/internal/infrastructure/queue/nats"
	"github.com/kirillkom/mvne-doc-ingest/internal/infrastructure/repository/memory"
	"github.com/kirillkom/mvne-doc-ingest/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/mvne-doc-ingest/internal/infrastructure/resilience"
	"github.com/kirillkom/mvne-doc-ingest/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/mvne-doc-ingest/internal/infrastructure/storage/s3"
	"github.com/kirillkom/mvne-doc-ingest/internal/infrastructure/threat"
	"github.com/kirillkom/mvne-doc-ingest/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Catalog *catalog.Registry
	Queue   ports.MessageQueue
	Repo    ports.FileRepository

	IngestUC  *usecase.IngestFileUseCase
	ProcessUC *usecase.ProcessFileUseCase
	QueryUC   *usecase.QueryFilesUseCase

	closeFns []func()
}

type Option func(*options)

type options struct {
	metrics *metrics.PipelineMetrics
}

// WithPipelineMetrics reports stage timings, outcomes, queue lag and
// outbound retries to m.
func WithPipelineMetrics(m *metrics.PipelineMetrics) Option {
	return func(o *options) { o.metrics = m }
}

func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	app := &App{Config: cfg}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	app.Catalog = catalog.NewRegistry(cat)

	analyzers, err := NewAnalyzers(cfg, app.Catalog)
	if err != nil {
		return nil, err
	}

	var execOpts []resilience.Option
	if o.metrics != nil {
		execOpts = append(execOpts, resilience.WithHooks(o.metrics.ResilienceHooks()))
	}
	executor := resilience.NewExecutor(
		resilience.OutboundConfig(cfg.OutboundRetryMaxAttempts, cfg.OutboundBreakerEnabled),
		execOpts...,
	)

	repo, err := app.openRepository(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Repo = repo

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	archiveStore, err := openArchiveStorage(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	persister := archive.NewPersister(archiveStore, executor)

	var (
		queue    ports.MessageQueue
		inlineQ  *inline.Queue
		notifier = notify.NewFanout(notify.LogNotifier{})
	)
	switch cfg.QueueBackend {
	case config.QueueBackendInline:
		inlineQ = inline.New()
		queue = inlineQ
	case config.QueueBackendNATS, "":
		natsOpts := natsqueue.Options{
			AlertSubject:       cfg.NATSAlertSubject,
			ResilienceExecutor: executor,
		}
		if o.metrics != nil {
			natsOpts.OnDeliver = o.metrics.ObserveQueueLag
		}
		q, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, natsOpts)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.closeFns = append(app.closeFns, q.Close)
		queue = q
		notifier = notify.NewFanout(notify.LogNotifier{}, q)
	default:
		app.Close()
		return nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
	app.Queue = queue

	var orchOpts []usecase.OrchestratorOption
	if o.metrics != nil {
		orchOpts = append(orchOpts, usecase.WithObserver(o.metrics))
	}
	orchestrator := usecase.NewIngestionOrchestrator(analyzers, persister, notifier, orchOpts...)

	app.IngestUC = usecase.NewIngestFileUseCase(repo, storage, queue, usecase.UploadPolicy{
		MaxBytes:          cfg.UploadMaxBytes,
		AllowedExtensions: cfg.UploadAllowedExtensions,
	})
	app.ProcessUC = usecase.NewProcessFileUseCase(repo, storage, orchestrator)
	app.QueryUC = usecase.NewQueryFilesUseCase(repo)

	if inlineQ != nil {
		inlineQ.SetHandler(app.ProcessUC.ProcessByID)
	}

	slog.Info("app_initialized",
		"store_backend", cfg.StoreBackend,
		"queue_backend", cfg.QueueBackend,
		"archive_backend", cfg.ArchiveBackend,
		"document_types", cat.Len(),
	)
	return app, nil
}

// NewAnalyzers builds the pipeline stages from configuration. The CLI uses it
// directly to run the pipeline without any infrastructure.
func NewAnalyzers(cfg config.Config, registry *catalog.Registry) (usecase.Analyzers, error) {
	scanner, err := NewThreatScanner(cfg)
	if err != nil {
		return usecase.Analyzers{}, err
	}
	return usecase.Analyzers{
		Extractor: content.NewExtractor(content.Options{
			MaxSampleChars: cfg.ExtractMaxSampleChars,
			MaxCSVLines:    cfg.ExtractMaxCSVLines,
		}, nil),
		Classifier: keyword.NewClassifier(registry, cfg.ClassifierConfidenceDivisor),
		Fields:     regex.NewExtractor(registry, cfg.FieldsRecordProjectionFactor),
		Quality:    quality.NewAssessor(),
		Threat:     scanner,
		Compliance: compliance.NewEngine(),
	}, nil
}

func NewThreatScanner(cfg config.Config) (*threat.Scanner, error) {
	scanner, err := threat.NewScanner(threat.Config{
		CleanThreshold:      cfg.ThreatCleanThreshold,
		MaxScanBytes:        cfg.ThreatMaxScanBytes,
		OversizeSampleBytes: cfg.ThreatOversizeSampleBytes,
		CacheSize:           cfg.ThreatCacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("init threat scanner: %w", err)
	}
	return scanner, nil
}

func (a *App) openRepository(ctx context.Context, cfg config.Config) (ports.FileRepository, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendMemory:
		return memory.NewFileRepository(), nil
	case config.StoreBackendPostgres, "":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closeFns = append(a.closeFns, func() { _ = db.Close() })
		repo := postgres.NewFileRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func openArchiveStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	switch cfg.ArchiveBackend {
	case config.ArchiveBackendS3:
		store, err := s3.New(ctx, s3.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
			Prefix:    cfg.S3Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("init s3 archive: %w", err)
		}
		return store, nil
	case config.ArchiveBackendLocalFS, "":
		store, err := localfs.New(cfg.ArchivePath)
		if err != nil {
			return nil, fmt.Errorf("init archive storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.ArchiveBackend)
	}
}

// ReloadCatalog re-reads CATALOG_PATH and swaps the catalog for every stage.
func (a *App) ReloadCatalog() error {
	if err := a.Catalog.Reload(a.Config.CatalogPath); err != nil {
		return fmt.Errorf("reload catalog: %w", err)
	}
	slog.Info("catalog_reloaded", "path", a.Config.CatalogPath, "document_types", a.Catalog.Current().Len())
	return nil
}

// ReloadCatalogOn calls ReloadCatalog for every value received on signals
// until ctx is done. A failed reload keeps the previous catalog.
func (a *App) ReloadCatalogOn(ctx context.Context, signals <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			if err := a.ReloadCatalog(); err != nil {
				slog.Error("catalog_reload_failed", "error", err)
			}
		}
	}
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}
