package main

import (
	"github.com/spf13/cobra"

	"github.com/kirillkom/mvne-doc-ingest/internal/bootstrap"
)

func newScanCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <path>",
		Short: "Run only the threat scanner and print its report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readRawFile(args[0])
			if err != nil {
				return err
			}
			scanner, err := bootstrap.NewThreatScanner(opts.loadConfig())
			if err != nil {
				return err
			}
			report, err := scanner.Scan(cmd.Context(), raw)
			if err != nil {
				return err
			}
			return opts.writeJSON(cmd.OutOrStdout(), report)
		},
	}
}
