package main

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kirillkom/mvne-doc-ingest/internal/config"
	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
	"github.com/kirillkom/mvne-doc-ingest/internal/observability/logging"
)

type rootOptions struct {
	logLevel string
	pretty   bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "ingestctl",
		Short:         "Inspect files with the ingestion pipeline without running the services",
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logging.Install(cmd.ErrOrStderr(), "ingestctl", opts.logLevel)
		},
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level written to stderr")
	root.PersistentFlags().BoolVar(&opts.pretty, "pretty", false, "indent JSON output")

	root.AddCommand(newScanCommand(opts), newProcessCommand(opts))
	return root
}

func (o *rootOptions) loadConfig() config.Config {
	return config.Load()
}

func readRawFile(path string) (domain.RawFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return domain.RawFile{}, fmt.Errorf("read %s: %w", path, err)
	}
	name := filepath.Base(path)
	return domain.RawFile{
		Name:             name,
		DeclaredMimeType: mime.TypeByExtension(filepath.Ext(name)),
		SizeBytes:        int64(len(content)),
		Content:          content,
	}, nil
}

func (o *rootOptions) writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	if o.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
