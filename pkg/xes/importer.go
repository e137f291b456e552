// Package xes imports XES event logs into a single event table plus log
// metadata, and exports event tables back to XES.
package xes

import (
	"context"
	"io"
	"log/slog"
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	"github.com/logflow/logtables/pkg/attr"
	lterrors "github.com/logflow/logtables/pkg/errors"
	"github.com/logflow/logtables/pkg/table"
	"github.com/logflow/logtables/pkg/telemetry"
	"github.com/logflow/logtables/pkg/xmlwalk"
)

// Standard keys and column names.
const (
	KeyConceptName = "concept:name"
	KeyTimestamp   = "time:timestamp"

	// CasePrefix qualifies trace attributes copied onto event rows.
	CasePrefix = "case:"

	// TraceIDColumn holds the trace identifier of every event row.
	TraceIDColumn = CasePrefix + KeyConceptName

	// EventsTable is the name of the produced table.
	EventsTable = "events"
)

// Options configures an import.
type Options struct {
	// TimeParser parses date attributes. Nil uses attr.DefaultTimeParser.
	TimeParser *attr.TimeParser

	// TraceAttributes copies every trace attribute onto the trace's event
	// rows as a case:<key> column. The trace identifier is always copied.
	TraceAttributes bool

	// Logger receives debug diagnostics. Nil discards them.
	Logger *slog.Logger
}

// Result is the outcome of an import.
type Result struct {
	Events   *table.Table
	Metadata *LogMetadata
	Warnings []lterrors.Warning
}

type pendingEvent struct {
	attrs  []Attribute
	offset int64
	line   int
}

type importer struct {
	ctx    context.Context
	w      *xmlwalk.Walker
	opts   Options
	log    *slog.Logger
	meta   *LogMetadata
	events *table.Builder
	traces int
	unseen map[string]bool
}

// Import reads an XES document from r. On error no table is returned.
func Import(ctx context.Context, r io.Reader, opts Options) (res *Result, err error) {
	ctx, span := telemetry.StartSpan(ctx, "xes.import")
	defer func() { telemetry.EndSpan(span, err) }()

	if opts.TimeParser == nil {
		opts.TimeParser = attr.DefaultTimeParser
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	imp := &importer{
		ctx:    ctx,
		w:      xmlwalk.New(r),
		opts:   opts,
		log:    logger.With("format", "xes"),
		meta:   &LogMetadata{},
		events: table.NewBuilder(EventsTable),
		unseen: make(map[string]bool),
	}
	if err := imp.run(); err != nil {
		return nil, err
	}

	events, warnings, err := imp.events.Finish(ctx)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		imp.log.Debug("column widened", "warning", w.String())
	}
	imp.log.Debug("import finished",
		"traces", imp.traces,
		"rows", events.NumRows(),
		"columns", events.NumCols(),
		"extensions", len(imp.meta.Extensions),
		"classifiers", len(imp.meta.Classifiers))
	telemetry.SetSpanAttributes(ctx,
		attribute.Int("xes.traces", imp.traces),
		attribute.Int("table.rows", events.NumRows()),
		attribute.Int("table.columns", events.NumCols()),
	)

	return &Result{Events: events, Metadata: imp.meta, Warnings: warnings}, nil
}

func (imp *importer) run() error {
	w := imp.w
	// Find the root element.
	for w.Next() {
		if w.Kind() != xmlwalk.StartElement {
			continue
		}
		if w.Name() != "log" {
			return w.Structural("root element is <%s>, expected <log>", w.Name())
		}
		imp.meta.Version, _ = w.Attr("xes.version")
		imp.meta.Features, _ = w.Attr("xes.features")
		return imp.readLog()
	}
	if err := w.Err(); err != nil {
		return err
	}
	return w.Structural("document has no <log> element")
}

func (imp *importer) readLog() error {
	w := imp.w
	for w.Next() {
		if w.IsEnd("log") {
			return imp.expectEOF()
		}
		if w.Kind() != xmlwalk.StartElement {
			continue
		}
		switch name := w.Name(); name {
		case "extension":
			ext := Extension{}
			ext.Name, _ = w.Attr("name")
			ext.Prefix, _ = w.Attr("prefix")
			ext.URI, _ = w.Attr("uri")
			imp.meta.Extensions = append(imp.meta.Extensions, ext)
			if err := w.Skip(); err != nil {
				return err
			}
		case "classifier":
			c := Classifier{}
			c.Name, _ = w.Attr("name")
			c.Scope, _ = w.Attr("scope")
			keys, _ := w.Attr("keys")
			c.Keys = SplitClassifierKeys(keys)
			imp.meta.Classifiers = append(imp.meta.Classifiers, c)
			if err := w.Skip(); err != nil {
				return err
			}
		case "global":
			if err := imp.readGlobal(); err != nil {
				return err
			}
		case "trace":
			if err := imp.readTrace(); err != nil {
				return err
			}
		case "event":
			return w.Structural("event outside of a trace")
		default:
			if isAttributeTag(name) {
				key, v, err := imp.readAttribute(true)
				if err != nil {
					return err
				}
				imp.meta.Attributes = put(imp.meta.Attributes, key, v)
				continue
			}
			imp.skipUnknown()
			if err := w.Skip(); err != nil {
				return err
			}
		}
	}
	if err := w.Err(); err != nil {
		return err
	}
	return lterrors.UnexpectedEOF(nil).WithContext("path", "log")
}

// expectEOF drains trailing misc tokens after </log>.
func (imp *importer) expectEOF() error {
	if imp.w.Next() {
		return imp.w.Structural("content after </log>")
	}
	return imp.w.Err()
}

func (imp *importer) readGlobal() error {
	w := imp.w
	scope, _ := w.Attr("scope")
	if scope == "" {
		scope = "event"
	}
	for w.Next() {
		if w.IsEnd("global") {
			return nil
		}
		if w.Kind() != xmlwalk.StartElement {
			continue
		}
		if !isAttributeTag(w.Name()) {
			imp.skipUnknown()
			if err := w.Skip(); err != nil {
				return err
			}
			continue
		}
		key, v, err := imp.readAttribute(true)
		if err != nil {
			return err
		}
		switch scope {
		case "trace":
			imp.meta.GlobalTrace = put(imp.meta.GlobalTrace, key, v)
		default:
			imp.meta.GlobalEvent = put(imp.meta.GlobalEvent, key, v)
		}
	}
	return w.Err()
}

func (imp *importer) readTrace() error {
	w := imp.w
	var traceAttrs []Attribute
	var events []pendingEvent

	for w.Next() {
		if w.IsEnd("trace") {
			return imp.flushTrace(traceAttrs, events)
		}
		if w.Kind() != xmlwalk.StartElement {
			continue
		}
		switch name := w.Name(); {
		case name == "event":
			select {
			case <-imp.ctx.Done():
				return lterrors.ContextCanceled("xes.import", imp.ctx.Err())
			default:
			}
			ev, err := imp.readEvent()
			if err != nil {
				return err
			}
			events = append(events, ev)
		case isAttributeTag(name):
			key, v, err := imp.readAttribute(true)
			if err != nil {
				return err
			}
			traceAttrs = put(traceAttrs, key, v)
		default:
			imp.skipUnknown()
			if err := w.Skip(); err != nil {
				return err
			}
		}
	}
	return w.Err()
}

func (imp *importer) readEvent() (pendingEvent, error) {
	w := imp.w
	ev := pendingEvent{}
	ev.offset, ev.line = w.Pos()
	path := w.Path()

	for w.Next() {
		if w.IsEnd("event") {
			return ev, imp.checkTimestamp(&ev, path)
		}
		if w.Kind() != xmlwalk.StartElement {
			continue
		}
		if !isAttributeTag(w.Name()) {
			imp.skipUnknown()
			if err := w.Skip(); err != nil {
				return ev, err
			}
			continue
		}
		key, v, err := imp.readAttribute(true)
		if err != nil {
			return ev, err
		}
		ev.attrs = put(ev.attrs, key, v)
	}
	return ev, w.Err()
}

// checkTimestamp enforces a timestamp-typed time:timestamp on every event.
// A timestamp written as a string attribute is parsed.
func (imp *importer) checkTimestamp(ev *pendingEvent, path string) error {
	for i := range ev.attrs {
		a := &ev.attrs[i]
		if a.Key != KeyTimestamp {
			continue
		}
		switch a.Value.Kind() {
		case attr.KindTimestamp:
			return nil
		case attr.KindString:
			t, err := imp.opts.TimeParser.Parse(a.Value.Str())
			if err != nil {
				return imp.locateEvent(lterrors.InvalidTimestamp(a.Value.Str()), ev, path)
			}
			a.Value = attr.Timestamp(t)
			return nil
		}
		return imp.locateEvent(lterrors.Structuralf("%s has type %s", KeyTimestamp, a.Value.Kind()), ev, path)
	}
	return imp.locateEvent(lterrors.Structural("event without "+KeyTimestamp), ev, path)
}

func (imp *importer) locateEvent(e *lterrors.Error, ev *pendingEvent, path string) error {
	return e.WithContext("path", path).
		WithContext("offset", ev.offset).
		WithContext("line", ev.line)
}

func (imp *importer) flushTrace(traceAttrs []Attribute, events []pendingEvent) error {
	id := strconv.Itoa(imp.traces)
	if v, ok := lookup(traceAttrs, KeyConceptName); ok && !v.IsNull() {
		id = v.String()
	}
	imp.traces++

	for _, ev := range events {
		imp.events.Row()
		imp.events.Set(TraceIDColumn, attr.String(id))
		if imp.opts.TraceAttributes {
			for _, a := range traceAttrs {
				if a.Key != KeyConceptName {
					imp.events.Set(CasePrefix+a.Key, a.Value)
				}
			}
		}
		for _, a := range ev.attrs {
			imp.events.Set(a.Key, a.Value)
		}
	}
	return nil
}

// readAttribute reads the attribute element the walker is on, including
// nested list items and container entries. Meta-attributes nested under a
// scalar are skipped.
func (imp *importer) readAttribute(needKey bool) (string, attr.Value, error) {
	w := imp.w
	tag := w.Name()
	key, hasKey := w.Attr("key")
	if needKey && !hasKey {
		return "", attr.Null(), w.Structural("<%s> without key", tag)
	}
	raw, _ := w.Attr("value")

	switch tag {
	case "list":
		items, err := imp.readList()
		return key, attr.List(items...), err
	case "container":
		m, err := imp.readContainer()
		return key, attr.Map(m), err
	}

	v, err := attr.Parse(tag, raw, imp.opts.TimeParser)
	if err != nil {
		return "", attr.Null(), imp.valueError(err, tag, key, raw)
	}
	if err := w.Skip(); err != nil {
		return "", attr.Null(), err
	}
	return key, v, nil
}

func (imp *importer) valueError(err error, tag, key, raw string) error {
	w := imp.w
	var e *lterrors.Error
	if lterrors.IsCode(err, lterrors.CodeTimestampParse) {
		e = lterrors.Wrap(err, lterrors.CodeTimestampParse, "invalid date attribute")
	} else {
		e = lterrors.Wrap(err, lterrors.CodeValueParse, "invalid attribute value")
	}
	offset, line := w.Pos()
	return e.WithContext("path", w.Path()).
		WithContext("offset", offset).
		WithContext("line", line).
		WithContext("key", key).
		WithContext("type", tag).
		WithContext("value", raw)
}

// readList accepts both <list><values>...</values></list> and items placed
// directly under <list>. When a <values> wrapper is present, attributes
// outside it are meta-attributes and are dropped.
func (imp *importer) readList() ([]attr.Value, error) {
	w := imp.w
	var wrapped, loose []attr.Value
	sawValues := false
	depth := w.Depth()
	for w.Next() {
		if w.Kind() == xmlwalk.EndElement {
			if w.Depth() < depth {
				if sawValues {
					return append([]attr.Value{}, wrapped...), nil
				}
				return append([]attr.Value{}, loose...), nil
			}
			continue
		}
		if w.Name() == "values" && w.Depth() == depth+1 {
			sawValues = true
			continue
		}
		if !isAttributeTag(w.Name()) {
			imp.skipUnknown()
			if err := w.Skip(); err != nil {
				return nil, err
			}
			continue
		}
		inValues := w.Depth() == depth+2
		_, v, err := imp.readAttribute(false)
		if err != nil {
			return nil, err
		}
		if inValues {
			wrapped = append(wrapped, v)
		} else {
			loose = append(loose, v)
		}
	}
	return nil, w.Err()
}

func (imp *importer) readContainer() (map[string]attr.Value, error) {
	w := imp.w
	m := map[string]attr.Value{}
	for w.Next() {
		if w.Kind() == xmlwalk.EndElement {
			return m, nil
		}
		if !isAttributeTag(w.Name()) {
			imp.skipUnknown()
			if err := w.Skip(); err != nil {
				return nil, err
			}
			continue
		}
		key, v, err := imp.readAttribute(false)
		if err != nil {
			return nil, err
		}
		m[key] = v
	}
	return nil, w.Err()
}

func (imp *importer) skipUnknown() {
	name := imp.w.Name()
	if !imp.unseen[name] {
		imp.unseen[name] = true
		imp.log.Debug("skipping unknown element", "element", name, "path", imp.w.Path())
	}
}

func isAttributeTag(name string) bool {
	switch name {
	case "string", "date", "int", "float", "boolean", "id", "list", "container":
		return true
	}
	return false
}
