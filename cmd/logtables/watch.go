package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/logflow/logtables/pkg/storage/s3"
	"github.com/logflow/logtables/pkg/tui"
	"github.com/logflow/logtables/pkg/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch <input>",
	Short: "Re-import an event log whenever it changes",
	Long: `Import a local event log, then watch it and re-import after every change.
Failed imports are reported and the previous output is left in place.

Examples:
  logtables watch orders.xes -o out/
  logtables watch orders.jsonocel -o out/ --sink duckdb`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	addImportFlags(watchCmd)
	watchCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (default from config)")
	watchCmd.Flags().StringVar(&sinkFlag, "sink", "", "Output kind: parquet, arrow, xlsx, duckdb")
	watchCmd.Flags().StringVar(&compressionFlag, "compression", "", "Parquet compression: snappy, zstd, gzip, lz4, none")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	input := args[0]
	if s3.IsURI(input) {
		return fmt.Errorf("watch needs a local file, got %s", input)
	}
	defer startTelemetry(ctx)()

	s, err := resolveImport(cmd, input)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	run := func(ctx context.Context, _ string) error {
		report, err := importAndWrite(ctx, cmd, s, false)
		if err != nil {
			return err
		}
		tui.PrintReport(out, report)
		return nil
	}

	if err := run(ctx, input); err != nil {
		tui.PrintError(cmd.ErrOrStderr(), err)
	}

	w, err := watch.NewWatcher(cfg.Watch.Debounce, logger())
	if err != nil {
		return err
	}
	defer w.Close()
	w.OnError = func(path string, err error) { tui.PrintError(cmd.ErrOrStderr(), err) }
	if err := w.Watch(input); err != nil {
		return err
	}
	fmt.Fprintf(out, "watching %s (ctrl-c to stop)\n", input)

	if err := w.Run(ctx, run); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
