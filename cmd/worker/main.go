package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/mvne-doc-ingest/internal/bootstrap"
	"github.com/kirillkom/mvne-doc-ingest/internal/config"
	"github.com/kirillkom/mvne-doc-ingest/internal/observability/logging"
	"github.com/kirillkom/mvne-doc-ingest/internal/observability/metrics"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logging.Install(os.Stdout, "worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipelineMetrics := metrics.NewPipelineMetrics("worker")
	app, err := bootstrap.New(ctx, cfg, bootstrap.WithPipelineMetrics(pipelineMetrics))
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	defer signal.Stop(reload)
	go app.ReloadCatalogOn(ctx, reload)

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           pipelineMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	timeout := time.Duration(cfg.ProcessTimeoutSeconds) * time.Second
	slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "queue_backend", cfg.QueueBackend, "process_timeout", timeout)
	err = app.Queue.SubscribeFileUploaded(ctx, func(handlerCtx context.Context, fileID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, timeout)
		defer cancel()

		pipelineMetrics.StartFile()
		started := time.Now()
		err := app.ProcessUC.ProcessByID(processCtx, fileID)
		pipelineMetrics.FinishFile(time.Since(started), err)
		return err
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
