package main

import (
	"context"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	lterrors "github.com/logflow/logtables/pkg/errors"
	"github.com/logflow/logtables/pkg/logtables"
	"github.com/logflow/logtables/pkg/ocel"
	"github.com/logflow/logtables/pkg/sink"
	"github.com/logflow/logtables/pkg/source"
	"github.com/logflow/logtables/pkg/storage/s3"
	"github.com/logflow/logtables/pkg/tui"
)

// Import flags, shared with watch and info.
var (
	formatFlag      string
	outputDir       string
	sinkFlag        string
	compressionFlag string
	dateFormat      string
	debugOutput     bool
	integrityFlag   string
	traceAttributes bool
	sortByTime      bool
	noProgress      bool
)

var importCmd = &cobra.Command{
	Use:   "import <input>",
	Short: "Import an event log and write its tables",
	Long: `Import an XES or OCEL 2.0 event log and write the resulting tables.

The input may be a local path or s3://bucket/key and may be gzip compressed.
XES imports also write metadata.json, which the export command reads back.

Examples:
  logtables import orders.xes.gz -o out/
  logtables import orders.jsonocel -o out/ --sink duckdb --integrity drop
  logtables import s3://logs/orders.xmlocel --date-format "%d-%m-%Y %H:%M:%S"`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	addImportFlags(importCmd)
	importCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (default from config)")
	importCmd.Flags().StringVar(&sinkFlag, "sink", "", "Output kind: parquet, arrow, xlsx, duckdb")
	importCmd.Flags().StringVar(&compressionFlag, "compression", "", "Parquet compression: snappy, zstd, gzip, lz4, none")
	importCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
}

func addImportFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&formatFlag, "format", "f", "", "Input format: xes, ocel2-xml, ocel2-json (detected from the name if empty)")
	cmd.Flags().StringVar(&dateFormat, "date-format", "", "Primary timestamp pattern (strftime), ISO 8601 is the fallback")
	cmd.Flags().BoolVar(&debugOutput, "debug", false, "Print importer diagnostics")
	cmd.Flags().StringVar(&integrityFlag, "integrity", "", "OCEL dangling reference policy: abort, drop, ignore")
	cmd.Flags().BoolVar(&traceAttributes, "trace-attributes", false, "Copy all XES trace attributes onto event rows")
	cmd.Flags().BoolVar(&sortByTime, "sort", false, "Sort OCEL events and relations by time")
}

// importSettings merges config and flags for one input.
type importSettings struct {
	input  string
	format logtables.Format
	opts   []logtables.Option
	size   int64
}

func resolveImport(cmd *cobra.Command, input string) (*importSettings, error) {
	imp := cfg.Import
	if cmd.Flags().Changed("date-format") {
		imp.DateFormat = dateFormat
	}
	if cmd.Flags().Changed("debug") {
		imp.DebugOutput = debugOutput
	}
	if cmd.Flags().Changed("integrity") {
		imp.Integrity = integrityFlag
	}
	if cmd.Flags().Changed("trace-attributes") {
		imp.TraceAttributes = traceAttributes
	}
	if cmd.Flags().Changed("sort") {
		imp.SortByTimestamp = sortByTime
	}

	var (
		format logtables.Format
		err    error
	)
	if formatFlag != "" {
		if format, err = logtables.ParseFormat(formatFlag); err != nil {
			return nil, err
		}
	} else if format, err = logtables.DetectFormat(input); err != nil {
		// Import sniffs the content.
		format = logtables.FormatUnknown
	}

	integrity, ok := ocel.ParseIntegrity(imp.Integrity)
	if !ok {
		return nil, lterrors.Newf(lterrors.CodeUnsupportedFormat, "unknown integrity policy %q", imp.Integrity).
			WithContext("accepted", "abort, drop, ignore")
	}

	s := &importSettings{input: input, format: format, size: -1}
	if !s3.IsURI(input) {
		if st, err := os.Stat(input); err == nil {
			s.size = st.Size()
		}
	}
	s.opts = []logtables.Option{
		logtables.WithDateFormat(imp.DateFormat),
		logtables.WithDebug(imp.DebugOutput),
		logtables.WithIntegrity(integrity),
		logtables.WithTraceAttributes(imp.TraceAttributes),
		logtables.WithSortByTimestamp(imp.SortByTimestamp),
	}
	if verbose {
		s.opts = append(s.opts, logtables.WithLogger(logger().With("input", input)))
	}
	return s, nil
}

// importWith runs the import with an optional progress bar.
func (s *importSettings) importWith(ctx context.Context, progress bool) (*logtables.Result, error) {
	src := source.Config{S3: cfg.S3}
	var bar *progressbar.ProgressBar
	if progress {
		bar = tui.ShowProgress(os.Stderr, s.size, "importing")
		src.Progress = func(n int64) { bar.Set64(n) }
	}
	res, err := logtables.Import(ctx, s.format, s.input, append(s.opts, logtables.WithSourceConfig(src))...)
	if bar != nil {
		bar.Finish()
	}
	return res, err
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	defer startTelemetry(ctx)()

	s, err := resolveImport(cmd, args[0])
	if err != nil {
		return err
	}
	report, err := importAndWrite(ctx, cmd, s, !noProgress)
	if err != nil {
		return err
	}
	tui.PrintReport(cmd.OutOrStdout(), report)
	return nil
}

// importAndWrite imports s and writes every table to the configured sink.
func importAndWrite(ctx context.Context, cmd *cobra.Command, s *importSettings, progress bool) (*tui.Report, error) {
	out := cfg.Output
	if cmd.Flags().Changed("output") {
		out.Dir = outputDir
	}
	if cmd.Flags().Changed("sink") {
		out.Sink = sinkFlag
	}
	if cmd.Flags().Changed("compression") {
		out.Compression = compressionFlag
	}
	kind, err := sink.ParseKind(out.Sink)
	if err != nil {
		return nil, err
	}
	compression, err := sink.ParseCompression(out.Compression)
	if err != nil {
		return nil, lterrors.Wrap(err, lterrors.CodeUnsupportedFormat, "invalid compression")
	}

	start := time.Now()
	res, err := s.importWith(ctx, progress)
	if err != nil {
		return nil, err
	}

	paths, err := sink.Write(ctx, kind, out.Dir, res.Tables(), sink.Options{Compression: compression, Logger: logger()})
	if err != nil {
		return nil, err
	}
	if res.Metadata != nil {
		path, err := sink.WriteMetadata(out.Dir, res.Metadata)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}

	return &tui.Report{
		Source:     s.input,
		Format:     res.Format.String(),
		InputSize:  res.Source.Size,
		Compressed: res.Source.Compressed,
		Tables:     res.Tables(),
		Outputs:    paths,
		Warnings:   res.Warnings,
		Duration:   time.Since(start),
	}, nil
}
