// Package logtables is the entry point for importing process-mining event
// logs into typed columnar tables and exporting event tables back to XES.
//
// Basic usage:
//
//	// XES: one event table plus log metadata
//	res, err := logtables.Import(ctx, logtables.FormatXES, "orders.xes.gz")
//
//	// OCEL 2.0: objects, events, relations, o2o and object_changes
//	res, err := logtables.Import(ctx, logtables.FormatOCEL2JSON, "orders.jsonocel",
//	    logtables.WithDateFormat("%d-%m-%Y %H:%M:%S"),
//	    logtables.WithIntegrity(ocel.IntegrityDrop),
//	)
//
//	// Back to XES
//	err = logtables.ExportXES(ctx, res.Events, res.Metadata, "orders.xes.gz")
package logtables

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/logflow/logtables/pkg/attr"
	lterrors "github.com/logflow/logtables/pkg/errors"
	"github.com/logflow/logtables/pkg/ocel"
	"github.com/logflow/logtables/pkg/source"
	"github.com/logflow/logtables/pkg/table"
	"github.com/logflow/logtables/pkg/xes"
)

// Format is an input log format.
type Format int

const (
	FormatUnknown Format = iota
	FormatXES
	FormatOCEL2XML
	FormatOCEL2JSON
)

// String returns the name accepted by ParseFormat.
func (f Format) String() string {
	switch f {
	case FormatXES:
		return "xes"
	case FormatOCEL2XML:
		return "ocel2-xml"
	case FormatOCEL2JSON:
		return "ocel2-json"
	}
	return "unknown"
}

// ParseFormat parses xes, ocel2-xml or ocel2-json.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "xes":
		return FormatXES, nil
	case "ocel2-xml", "ocel2xml", "xmlocel":
		return FormatOCEL2XML, nil
	case "ocel2-json", "ocel2json", "jsonocel":
		return FormatOCEL2JSON, nil
	}
	return FormatUnknown, lterrors.UnsupportedFormat(s).WithContext("accepted", "xes, ocel2-xml, ocel2-json")
}

// DetectFormat guesses the format from a file name. A trailing .gz is
// ignored.
func DetectFormat(name string) (Format, error) {
	base := strings.ToLower(filepath.Base(name))
	base = strings.TrimSuffix(base, ".gz")
	switch filepath.Ext(base) {
	case ".xes":
		return FormatXES, nil
	case ".xmlocel", ".xml":
		return FormatOCEL2XML, nil
	case ".jsonocel", ".json":
		return FormatOCEL2JSON, nil
	}
	return FormatUnknown, lterrors.UnsupportedFormat(filepath.Base(name)).WithContext("hint", "pass the format explicitly")
}

// Result is the outcome of Import. XES imports fill Events and Metadata;
// OCEL imports fill OCEL.
type Result struct {
	Format   Format
	Source   source.Info
	Events   *table.Table
	Metadata *xes.LogMetadata
	OCEL     *ocel.Result
	Warnings []lterrors.Warning
}

// Tables returns every produced table: the event table for XES, the five
// OCEL tables in fixed order otherwise.
func (r *Result) Tables() []*table.Table {
	if r.OCEL != nil {
		return r.OCEL.Tables()
	}
	return []*table.Table{r.Events}
}

type options struct {
	dateFormat      string
	debug           bool
	logger          *slog.Logger
	integrity       ocel.Integrity
	traceAttributes bool
	sortByTimestamp bool
	traceKey        string
	onWarning       func(lterrors.Warning)
	source          source.Config
}

// Option configures Import and ExportXES.
type Option func(*options)

// WithDateFormat sets the primary timestamp pattern (strftime or Go layout).
// Values it does not match fall back to ISO 8601.
func WithDateFormat(format string) Option {
	return func(o *options) { o.dateFormat = format }
}

// WithDebug writes diagnostics to stderr unless a logger is set. It has no
// effect on the produced tables.
func WithDebug(debug bool) Option {
	return func(o *options) { o.debug = debug }
}

// WithLogger sets the diagnostics logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithIntegrity sets the OCEL dangling reference policy.
func WithIntegrity(i ocel.Integrity) Option {
	return func(o *options) { o.integrity = i }
}

// WithTraceAttributes copies every XES trace attribute onto event rows.
func WithTraceAttributes(on bool) Option {
	return func(o *options) { o.traceAttributes = on }
}

// WithSortByTimestamp orders OCEL events and relations by event time.
func WithSortByTimestamp(on bool) Option {
	return func(o *options) { o.sortByTimestamp = on }
}

// WithTraceKey sets the column grouping events into traces on export.
func WithTraceKey(key string) Option {
	return func(o *options) { o.traceKey = key }
}

// WithWarningHandler receives export warnings as they occur. Without it they
// are logged.
func WithWarningHandler(fn func(lterrors.Warning)) Option {
	return func(o *options) { o.onWarning = fn }
}

// WithSourceConfig sets object storage credentials and progress reporting.
func WithSourceConfig(cfg source.Config) Option {
	return func(o *options) { o.source = cfg }
}

func buildOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		if o.debug {
			o.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		} else {
			o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
	}
	if o.source.Logger == nil {
		o.source.Logger = o.logger
	}
	return o
}

func (o *options) timeParser() (*attr.TimeParser, error) {
	if o.dateFormat == "" {
		return attr.DefaultTimeParser, nil
	}
	return attr.NewTimeParser(o.dateFormat)
}

// Import reads the log at location, a local path or s3://bucket/key, which
// may be gzip compressed. FormatUnknown detects the format from the file name,
// then from the content. On error no tables are returned.
func Import(ctx context.Context, format Format, location string, opts ...Option) (*Result, error) {
	o := buildOptions(opts)

	r, info, err := source.Open(ctx, location, o.source)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var in io.Reader = r
	if format == FormatUnknown {
		if format, err = DetectFormat(info.Name()); err != nil {
			if format, in, err = sniff(r); err != nil {
				return nil, err
			}
		}
		o.logger.Debug("detected format", "format", format.String(), "source", location)
	}

	res, err := ImportReader(ctx, format, in, opts...)
	if err != nil {
		var e *lterrors.Error
		if errors.As(err, &e) {
			e.WithContext("source", location)
		}
		return nil, err
	}
	res.Source = info
	o.logger.Debug("import finished", "format", format.String(), "source", location, "tables", len(res.Tables()), "warnings", len(res.Warnings))
	return res, nil
}

// ImportReader is Import over an already opened, uncompressed stream.
func ImportReader(ctx context.Context, format Format, r io.Reader, opts ...Option) (*Result, error) {
	o := buildOptions(opts)
	tp, err := o.timeParser()
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatXES:
		res, err := xes.Import(ctx, r, xes.Options{
			TimeParser:      tp,
			TraceAttributes: o.traceAttributes,
			Logger:          o.logger,
		})
		if err != nil {
			return nil, err
		}
		return &Result{Format: format, Events: res.Events, Metadata: res.Metadata, Warnings: res.Warnings}, nil

	case FormatOCEL2XML, FormatOCEL2JSON:
		ocelOpts := ocel.Options{
			TimeParser:      tp,
			Integrity:       o.integrity,
			SortByTimestamp: o.sortByTimestamp,
			Logger:          o.logger,
		}
		var (
			res *ocel.Result
			err error
		)
		if format == FormatOCEL2XML {
			res, err = ocel.ImportXML(ctx, r, ocelOpts)
		} else {
			res, err = ocel.ImportJSON(ctx, r, ocelOpts)
		}
		if err != nil {
			return nil, err
		}
		return &Result{Format: format, OCEL: res, Warnings: res.Warnings}, nil
	}
	return nil, lterrors.UnsupportedFormat(format.String())
}

// ExportXES writes events as XES to dest, gzip compressed when dest ends in
// ".gz". meta may be nil.
func ExportXES(ctx context.Context, events *table.Table, meta *xes.LogMetadata, dest string, opts ...Option) error {
	o := buildOptions(opts)
	return xes.ExportFile(ctx, events, meta, dest, xes.ExportOptions{
		TraceKey:  o.traceKey,
		Logger:    o.logger,
		OnWarning: o.onWarning,
	})
}
