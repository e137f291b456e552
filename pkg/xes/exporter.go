package xes

import (
	"bufio"
	"context"
	"encoding/xml"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.opentelemetry.io/otel/attribute"

	"github.com/logflow/logtables/pkg/attr"
	lterrors "github.com/logflow/logtables/pkg/errors"
	"github.com/logflow/logtables/pkg/table"
	"github.com/logflow/logtables/pkg/telemetry"
)

// TimestampLayout is the layout of exported date attributes. Nanoseconds are
// kept so that a re-import yields the same instants.
const TimestampLayout = time.RFC3339Nano

const xesNamespace = "http://www.xes-standard.org/"

// ExportOptions configures an export.
type ExportOptions struct {
	// TraceKey is the column grouping events into traces. Defaults to
	// TraceIDColumn.
	TraceKey string

	// Logger receives debug diagnostics. Nil discards them.
	Logger *slog.Logger

	// OnWarning receives non-fatal conditions, such as a case:* column whose
	// values disagree within one trace. Nil logs them at warn level.
	OnWarning func(lterrors.Warning)
}

// ExportFile writes events as XES to path. A path ending in ".gz" is gzip
// compressed. The file is written under a temporary name and renamed once
// complete.
func ExportFile(ctx context.Context, events *table.Table, meta *LogMetadata, path string, opts ExportOptions) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return lterrors.Wrap(err, lterrors.CodeWriteFailed, "failed to create directory").WithContext("path", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return lterrors.Wrap(err, lterrors.CodeWriteFailed, "failed to create temp file").WithContext("path", path)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	var out io.Writer = tmp
	var gz *gzip.Writer
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz = gzip.NewWriter(tmp)
		out = gz
	}

	if err := Export(ctx, events, meta, out, opts); err != nil {
		cleanup()
		return err
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			cleanup()
			return lterrors.Wrap(err, lterrors.CodeWriteFailed, "failed to finish gzip stream").WithContext("path", path)
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return lterrors.Wrap(err, lterrors.CodeWriteFailed, "failed to close temp file").WithContext("path", path)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return lterrors.Wrap(err, lterrors.CodeWriteFailed, "failed to rename temp file").WithContext("path", path)
	}
	return nil
}

type traceGroup struct {
	id   attr.Value
	rows []int
}

// Export writes events as an XES document to w. Events are grouped into one
// trace per distinct TraceKey value in first-seen order; case:* columns become
// trace attributes taken from the first row of the trace that has them.
func Export(ctx context.Context, events *table.Table, meta *LogMetadata, w io.Writer, opts ExportOptions) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "xes.export",
		attribute.Int("table.rows", events.NumRows()),
		attribute.Int("table.columns", events.NumCols()))
	defer func() { telemetry.EndSpan(span, err) }()

	if opts.TraceKey == "" {
		opts.TraceKey = TraceIDColumn
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if meta == nil {
		meta = &LogMetadata{}
	}
	warn := opts.OnWarning
	if warn == nil {
		warn = func(w lterrors.Warning) { logger.Warn(w.String()) }
	}

	if _, ok := events.Column(opts.TraceKey); !ok {
		return lterrors.Structuralf("trace key column %q not found", opts.TraceKey)
	}
	ts, ok := events.Column(KeyTimestamp)
	if !ok {
		return lterrors.Structuralf("column %q not found", KeyTimestamp)
	}
	for i, v := range ts.Values {
		if v.Kind() != attr.KindTimestamp {
			return lterrors.Structuralf("event without %s", KeyTimestamp).WithContext("row", i)
		}
	}

	var traceCols, eventCols []*table.Column
	for _, c := range events.Columns() {
		switch {
		case c.Name == opts.TraceKey:
		case strings.HasPrefix(c.Name, CasePrefix):
			traceCols = append(traceCols, c)
		default:
			eventCols = append(eventCols, c)
		}
	}

	groups := groupTraces(events, opts.TraceKey)
	logger.Debug("exporting xes", "traces", len(groups), "events", events.NumRows())

	bw := bufio.NewWriterSize(w, 64*1024)
	x := &xmlWriter{w: bw}

	x.raw(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	x.open(0, "log", "xes.version", orDefault(meta.Version, "1849-2016"), "xes.features", meta.Features, "xmlns", xesNamespace)
	for _, ext := range meta.Extensions {
		x.empty(1, "extension", "name", ext.Name, "prefix", ext.Prefix, "uri", ext.URI)
	}
	if len(meta.GlobalTrace) > 0 {
		x.open(1, "global", "scope", "trace")
		for _, a := range meta.GlobalTrace {
			x.attribute(2, a.Key, a.Value)
		}
		x.close(1, "global")
	}
	if len(meta.GlobalEvent) > 0 {
		x.open(1, "global", "scope", "event")
		for _, a := range meta.GlobalEvent {
			x.attribute(2, a.Key, a.Value)
		}
		x.close(1, "global")
	}
	for _, c := range meta.Classifiers {
		x.empty(1, "classifier", "name", c.Name, "scope", c.Scope, "keys", joinClassifierKeys(c.Keys))
	}
	for _, a := range meta.Attributes {
		x.attribute(1, a.Key, a.Value)
	}

	for _, g := range groups {
		select {
		case <-ctx.Done():
			return lterrors.ContextCanceled("xes.export", ctx.Err())
		default:
		}

		x.open(1, "trace")
		if !g.id.IsNull() {
			x.attribute(2, KeyConceptName, g.id)
		}
		for _, c := range traceCols {
			if v, ok := traceValue(c, g, warn); ok {
				x.attribute(2, strings.TrimPrefix(c.Name, CasePrefix), v)
			}
		}
		for _, r := range g.rows {
			x.open(2, "event")
			for _, c := range eventCols {
				x.attribute(3, c.Name, c.Values[r])
			}
			x.close(2, "event")
		}
		x.close(1, "trace")
		if x.err != nil {
			break
		}
	}
	x.close(0, "log")

	if x.err == nil {
		x.err = bw.Flush()
	}
	if x.err != nil {
		return lterrors.Wrap(x.err, lterrors.CodeWriteFailed, "failed to write XES")
	}
	telemetry.SetSpanAttributes(ctx, attribute.Int("xes.traces", len(groups)))
	return nil
}

func groupTraces(events *table.Table, key string) []*traceGroup {
	col, _ := events.Column(key)
	var groups []*traceGroup
	index := make(map[string]*traceGroup)
	for r, v := range col.Values {
		k := v.Kind().String() + "\x00" + v.String()
		g, ok := index[k]
		if !ok {
			g = &traceGroup{id: v}
			index[k] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, r)
	}
	return groups
}

// traceValue returns the first non-null value of c within the trace and
// warns once when a later row carries a different one.
func traceValue(c *table.Column, g *traceGroup, warn func(lterrors.Warning)) (attr.Value, bool) {
	var first attr.Value
	found := false
	for _, r := range g.rows {
		v := c.Values[r]
		if v.IsNull() {
			continue
		}
		if !found {
			first, found = v, true
			continue
		}
		if !v.Equal(first) {
			warn(lterrors.NewWarning(lterrors.CodeConflictingValues, "trace attribute differs between events, keeping the first",
				"column", c.Name, "trace", g.id.String(), "kept", first.String(), "dropped", v.String()))
			break
		}
	}
	return first, found
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func sortedKeys(m map[string]attr.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// xmlWriter writes indented elements and keeps the first write error.
type xmlWriter struct {
	w   *bufio.Writer
	err error
}

func (x *xmlWriter) raw(s string) {
	if x.err == nil {
		_, x.err = x.w.WriteString(s)
	}
}

func (x *xmlWriter) indent(depth int) {
	x.raw(strings.Repeat("\t", depth))
}

// tag writes <name k="v" ...> with empty values omitted.
func (x *xmlWriter) tag(depth int, name string, selfClose bool, kv ...string) {
	x.indent(depth)
	x.raw("<" + name)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" && kv[i] != "key" && kv[i] != "value" {
			continue
		}
		x.raw(" " + kv[i] + `="`)
		if x.err == nil {
			x.err = xml.EscapeText(x.w, []byte(kv[i+1]))
		}
		x.raw(`"`)
	}
	if selfClose {
		x.raw("/>\n")
	} else {
		x.raw(">\n")
	}
}

func (x *xmlWriter) open(depth int, name string, kv ...string) {
	x.tag(depth, name, false, kv...)
}

func (x *xmlWriter) empty(depth int, name string, kv ...string) {
	x.tag(depth, name, true, kv...)
}

func (x *xmlWriter) close(depth int, name string) {
	x.indent(depth)
	x.raw("</" + name + ">\n")
}

// attribute writes one typed attribute element. Nulls are omitted; list
// items carry no key.
func (x *xmlWriter) attribute(depth int, key string, v attr.Value) {
	x.item(depth, true, key, v)
}

func (x *xmlWriter) item(depth int, keyed bool, key string, v attr.Value) {
	var kv []string
	if keyed {
		kv = append(kv, "key", key)
	}
	switch v.Kind() {
	case attr.KindNull:
		return
	case attr.KindList:
		x.open(depth, "list", kv...)
		x.open(depth+1, "values")
		for _, item := range v.List() {
			x.item(depth+2, false, "", item)
		}
		x.close(depth+1, "values")
		x.close(depth, "list")
	case attr.KindMap:
		x.open(depth, "container", kv...)
		m := v.Map()
		for _, k := range sortedKeys(m) {
			x.item(depth+1, true, k, m[k])
		}
		x.close(depth, "container")
	case attr.KindTimestamp:
		x.empty(depth, "date", append(kv, "value", v.Time().UTC().Format(TimestampLayout))...)
	default:
		x.empty(depth, v.Kind().XESTag(), append(kv, "value", v.String())...)
	}
}
