package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kirillkom/mvne-doc-ingest/internal/bootstrap"
	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
	"github.com/kirillkom/mvne-doc-ingest/internal/core/ports"
	"github.com/kirillkom/mvne-doc-ingest/internal/core/usecase"
	"github.com/kirillkom/mvne-doc-ingest/internal/infrastructure/archive"
	"github.com/kirillkom/mvne-doc-ingest/internal/infrastructure/catalog"
	"github.com/kirillkom/mvne-doc-ingest/internal/infrastructure/notify"
	"github.com/kirillkom/mvne-doc-ingest/internal/infrastructure/resilience"
	"github.com/kirillkom/mvne-doc-ingest/internal/infrastructure/storage/localfs"
)

type discardPersister struct{}

func (discardPersister) Persist(context.Context, *domain.FileRecord, domain.RawFile) error { return nil }

func newProcessCommand(opts *rootOptions) *cobra.Command {
	var (
		archiveDir  string
		catalogPath string
	)
	cmd := &cobra.Command{
		Use:   "process <path>",
		Short: "Run the full pipeline in memory and print the resulting record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readRawFile(args[0])
			if err != nil {
				return err
			}
			cfg := opts.loadConfig()
			if catalogPath != "" {
				cfg.CatalogPath = catalogPath
			}
			cat, err := catalog.Load(cfg.CatalogPath)
			if err != nil {
				return err
			}
			analyzers, err := bootstrap.NewAnalyzers(cfg, catalog.NewRegistry(cat))
			if err != nil {
				return err
			}

			var persister ports.Persister = discardPersister{}
			if archiveDir != "" {
				store, err := localfs.New(archiveDir)
				if err != nil {
					return err
				}
				persister = archive.NewPersister(store, resilience.NewExecutor(resilience.OutboundConfig(1, false)))
			}
			orchestrator := usecase.NewIngestionOrchestrator(analyzers, persister, notify.LogNotifier{})

			rec := domain.NewFileRecord(uuid.NewString(), raw, raw.Name, time.Now().UTC())
			if err := orchestrator.Run(cmd.Context(), rec, raw); err != nil {
				return err
			}
			return opts.writeJSON(cmd.OutOrStdout(), rec)
		},
	}
	cmd.Flags().StringVar(&archiveDir, "archive", "", "directory that receives stored records")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "document type catalog YAML (defaults to CATALOG_PATH or the built-in catalog)")
	return cmd
}
