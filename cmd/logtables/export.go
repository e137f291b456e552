package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	lterrors "github.com/logflow/logtables/pkg/errors"
	"github.com/logflow/logtables/pkg/logtables"
	"github.com/logflow/logtables/pkg/sink"
	"github.com/logflow/logtables/pkg/tui"
	"github.com/logflow/logtables/pkg/xes"
)

// Export flags
var (
	exportOutput   string
	exportMetadata string
	traceKey       string
)

var exportCmd = &cobra.Command{
	Use:   "export <events.parquet|events.arrow>",
	Short: "Export an event table to XES",
	Long: `Export an event table written by import back to XES. A destination ending
in .gz is gzip compressed. Log metadata is read from metadata.json next to
the table unless --metadata is given.

Examples:
  logtables export out/events.parquet -o orders.xes.gz
  logtables export out/events.arrow -o orders.xes --trace-key order_id`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Destination .xes or .xes.gz file (required)")
	exportCmd.Flags().StringVar(&exportMetadata, "metadata", "", "Log metadata sidecar (default: metadata.json beside the table)")
	exportCmd.Flags().StringVar(&traceKey, "trace-key", "", "Column grouping events into traces (default case:concept:name)")
	exportCmd.MarkFlagRequired("output")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	defer startTelemetry(ctx)()

	events, err := sink.ReadTable(ctx, args[0])
	if err != nil {
		return err
	}

	var meta *xes.LogMetadata
	metaPath := exportMetadata
	if metaPath == "" {
		metaPath = filepath.Join(filepath.Dir(args[0]), sink.MetadataFile)
		if _, err := os.Stat(metaPath); err != nil {
			metaPath = ""
		}
	}
	if metaPath != "" {
		if meta, err = sink.ReadMetadata(metaPath); err != nil {
			return err
		}
	}

	key := cfg.Export.TraceKey
	if cmd.Flags().Changed("trace-key") {
		key = traceKey
	}
	var warnings []lterrors.Warning
	err = logtables.ExportXES(ctx, events, meta, exportOutput,
		logtables.WithTraceKey(key),
		logtables.WithLogger(logger()),
		logtables.WithWarningHandler(func(w lterrors.Warning) { warnings = append(warnings, w) }),
	)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d events to %s\n", events.NumRows(), exportOutput)
	tui.PrintWarnings(cmd.OutOrStdout(), warnings)
	return nil
}
