package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	mcpadapter "github.com/kirillkom/mvne-doc-ingest/internal/adapters/mcp"
	"github.com/kirillkom/mvne-doc-ingest/internal/bootstrap"
	"github.com/kirillkom/mvne-doc-ingest/internal/config"
	"github.com/kirillkom/mvne-doc-ingest/internal/observability/logging"
)

// The stdio transport owns stdout, so logs go to stderr. Without an explicit
// QUEUE_BACKEND the server processes uploads in-process.
func main() {
	_ = godotenv.Load()
	if os.Getenv("QUEUE_BACKEND") == "" {
		_ = os.Setenv("QUEUE_BACKEND", config.QueueBackendInline)
	}
	cfg := config.Load()
	logging.Install(os.Stderr, "mcp", cfg.LogLevel)

	app, err := bootstrap.New(context.Background(), cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := mcpadapter.New(app.IngestUC, app.QueryUC).Serve(); err != nil {
		slog.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}
