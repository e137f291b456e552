package ocel

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/logflow/logtables/pkg/attr"
	lterrors "github.com/logflow/logtables/pkg/errors"
	"github.com/logflow/logtables/pkg/table"
)

// Options configures an import.
type Options struct {
	// TimeParser parses event times, attribute times and time-typed values.
	// Nil uses attr.DefaultTimeParser.
	TimeParser *attr.TimeParser

	// Integrity selects the handling of dangling references and duplicate
	// ids. The zero value aborts.
	Integrity Integrity

	// SortByTimestamp stable-sorts events and relations by event time.
	// Otherwise rows follow document order.
	SortByTimestamp bool

	// Logger receives debug diagnostics. Nil discards them.
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.TimeParser == nil {
		o.TimeParser = attr.DefaultTimeParser
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// Result holds the five tables of an import.
type Result struct {
	Objects       *table.Table
	Events        *table.Table
	Relations     *table.Table
	O2O           *table.Table
	ObjectChanges *table.Table

	// Warnings lists widened columns and, unless the policy aborts, every
	// integrity violation.
	Warnings []lterrors.Warning
}

// Tables returns the tables in a fixed order.
func (r *Result) Tables() []*table.Table {
	return []*table.Table{r.Objects, r.Events, r.Relations, r.O2O, r.ObjectChanges}
}

// Builder collects records from either encoding and produces the tables once
// the whole document is read. Declarations may arrive in any order relative
// to the records they type.
type Builder struct {
	opts        Options
	log         *slog.Logger
	objectTypes map[string]map[string]attr.Kind
	eventTypes  map[string]map[string]attr.Kind
	objects     []Object
	events      []Event
	o2o         []O2O

	mu         sync.Mutex
	undeclared map[string]bool
}

// NewBuilder returns an empty builder.
func NewBuilder(opts Options) *Builder {
	opts = opts.withDefaults()
	return &Builder{
		opts:        opts,
		log:         opts.Logger,
		objectTypes: make(map[string]map[string]attr.Kind),
		eventTypes:  make(map[string]map[string]attr.Kind),
		undeclared:  make(map[string]bool),
	}
}

// DeclareObjectType records the attribute kinds of an object type.
func (b *Builder) DeclareObjectType(name string, attrs []AttributeType) {
	declare(b.objectTypes, name, attrs)
}

// DeclareEventType records the attribute kinds of an event type.
func (b *Builder) DeclareEventType(name string, attrs []AttributeType) {
	declare(b.eventTypes, name, attrs)
}

func declare(types map[string]map[string]attr.Kind, name string, attrs []AttributeType) {
	kinds, ok := types[name]
	if !ok {
		kinds = make(map[string]attr.Kind, len(attrs))
		types[name] = kinds
	}
	for _, a := range attrs {
		kinds[a.Name] = a.Kind
	}
}

// AddObject appends an object record.
func (b *Builder) AddObject(o Object) { b.objects = append(b.objects, o) }

// AddEvent appends an event record.
func (b *Builder) AddEvent(e Event) { b.events = append(b.events, e) }

// AddO2O appends a top-level object-to-object record.
func (b *Builder) AddO2O(r O2O) { b.o2o = append(b.o2o, r) }

// relKey addresses the j-th relationship of the i-th event or object.
type relKey struct{ owner, rel int }

// verdict is the outcome of the integrity check.
type verdict struct {
	objectIndex map[string]int
	dropObject  map[int]bool
	dropEvent   map[int]bool
	dropE2O     map[relKey]bool
	dropObjO2O  map[relKey]bool
	dropO2O     map[int]bool
	violations  []*lterrors.Error
}

// check looks for duplicate ids and references to undeclared objects. It
// runs after all records are merged so that forward references resolve.
func (b *Builder) check() *verdict {
	v := &verdict{
		objectIndex: make(map[string]int, len(b.objects)),
		dropObject:  make(map[int]bool),
		dropEvent:   make(map[int]bool),
		dropE2O:     make(map[relKey]bool),
		dropObjO2O:  make(map[relKey]bool),
		dropO2O:     make(map[int]bool),
	}

	for i, o := range b.objects {
		if _, dup := v.objectIndex[o.ID]; dup {
			v.dropObject[i] = true
			v.violate(lterrors.New(lterrors.CodeDuplicateID, "duplicate object id").WithContext("id", o.ID), o.Loc)
			continue
		}
		v.objectIndex[o.ID] = i
	}

	eventIDs := make(map[string]bool, len(b.events))
	for i, e := range b.events {
		if eventIDs[e.ID] {
			v.dropEvent[i] = true
			v.violate(lterrors.New(lterrors.CodeDuplicateID, "duplicate event id").WithContext("id", e.ID), e.Loc)
			continue
		}
		eventIDs[e.ID] = true
		for j, r := range e.Relationships {
			if _, ok := v.objectIndex[r.ObjectID]; !ok {
				v.dropE2O[relKey{i, j}] = true
				v.violate(lterrors.DanglingReference("e2o", e.ID, r.ObjectID), e.Loc)
			}
		}
	}

	for i, o := range b.objects {
		if v.dropObject[i] {
			continue
		}
		for j, r := range o.Relationships {
			if _, ok := v.objectIndex[r.ObjectID]; !ok {
				v.dropObjO2O[relKey{i, j}] = true
				v.violate(lterrors.DanglingReference("o2o", o.ID, r.ObjectID), o.Loc)
			}
		}
	}

	for i, r := range b.o2o {
		for _, id := range []string{r.SourceID, r.TargetID} {
			if _, ok := v.objectIndex[id]; !ok {
				v.dropO2O[i] = true
				v.violate(lterrors.DanglingReference("o2o", r.SourceID, r.TargetID).WithContext("missing", id), r.Loc)
				break
			}
		}
	}
	return v
}

func (v *verdict) violate(e *lterrors.Error, loc Location) {
	v.violations = append(v.violations, located(e, loc))
}

func located(e *lterrors.Error, loc Location) *lterrors.Error {
	if loc.Path != "" {
		e.WithContext("path", loc.Path)
	}
	e.WithContext("offset", loc.Offset)
	if loc.Line > 0 {
		e.WithContext("line", loc.Line)
	}
	return e
}

// Build checks integrity and produces the tables. The builder must not be
// used afterwards.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	v := b.check()

	var warnings []lterrors.Warning
	if n := len(v.violations); n > 0 {
		if b.opts.Integrity == IntegrityAbort {
			return nil, v.violations[0].WithContext("violations", n)
		}
		for _, e := range v.violations {
			warnings = append(warnings, lterrors.Warning{Code: e.Code, Message: e.Message, Context: e.Context})
		}
		b.log.Debug("integrity violations", "count", n, "policy", b.opts.Integrity.String())
	}
	if b.opts.Integrity == IntegrityIgnore {
		v.dropObject = nil
		v.dropEvent = nil
		v.dropE2O = nil
		v.dropObjO2O = nil
		v.dropO2O = nil
	}

	order := make([]int, len(b.events))
	for i := range order {
		order[i] = i
	}
	if b.opts.SortByTimestamp {
		sort.SliceStable(order, func(x, y int) bool {
			return b.events[order[x]].Time.Before(b.events[order[y]].Time)
		})
	}

	res := &Result{}
	builds := []struct {
		out   **table.Table
		build func(context.Context) (*table.Table, []lterrors.Warning, error)
	}{
		{&res.Objects, func(ctx context.Context) (*table.Table, []lterrors.Warning, error) { return b.buildObjects(ctx, v) }},
		{&res.Events, func(ctx context.Context) (*table.Table, []lterrors.Warning, error) {
			return b.buildEvents(ctx, v, order)
		}},
		{&res.Relations, func(ctx context.Context) (*table.Table, []lterrors.Warning, error) {
			return b.buildRelations(ctx, v, order)
		}},
		{&res.O2O, func(ctx context.Context) (*table.Table, []lterrors.Warning, error) { return b.buildO2O(ctx, v) }},
		{&res.ObjectChanges, func(ctx context.Context) (*table.Table, []lterrors.Warning, error) { return b.buildChanges(ctx, v) }},
	}

	perTable := make([][]lterrors.Warning, len(builds))
	g, gctx := errgroup.WithContext(ctx)
	for i, bt := range builds {
		i, bt := i, bt
		g.Go(func() error {
			t, w, err := bt.build(gctx)
			if err != nil {
				return err
			}
			*bt.out = t
			perTable[i] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, w := range perTable {
		warnings = append(warnings, w...)
	}
	res.Warnings = warnings

	b.log.Debug("tables built",
		"objects", res.Objects.NumRows(),
		"events", res.Events.NumRows(),
		"relations", res.Relations.NumRows(),
		"o2o", res.O2O.NumRows(),
		"object_changes", res.ObjectChanges.NumRows())
	return res, nil
}

// typed converts a value read from the document to its declared kind.
// Undeclared values keep the kind they were read with. Blank text declared
// as a non-string kind is null.
func (b *Builder) typed(kinds map[string]attr.Kind, owner string, a Attribute, loc Location) (attr.Value, error) {
	val := a.Value
	k, ok := kinds[a.Name]
	if !ok {
		key := owner + "\x00" + a.Name
		b.mu.Lock()
		first := !b.undeclared[key]
		b.undeclared[key] = true
		b.mu.Unlock()
		if first {
			b.log.Debug("undeclared attribute", "type", owner, "attribute", a.Name)
		}
		return val, nil
	}
	if val.IsNull() || val.Kind() == k {
		return val, nil
	}
	if val.Kind() == attr.KindString && k != attr.KindString && strings.TrimSpace(val.Str()) == "" {
		return attr.Null(), nil
	}
	out, err := val.Convert(k, b.opts.TimeParser)
	if err != nil {
		code := lterrors.CodeValueParse
		if lterrors.IsCode(err, lterrors.CodeTimestampParse) {
			code = lterrors.CodeTimestampParse
		}
		e := lterrors.Wrap(err, code, "attribute does not match its declared type").
			WithContext("attribute", a.Name).
			WithContext("type", k.String()).
			WithContext("value", val.String())
		return attr.Null(), located(e, loc)
	}
	return out, nil
}

func canceled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return lterrors.ContextCanceled("ocel.build", err)
	}
	return nil
}

func (b *Builder) buildObjects(ctx context.Context, v *verdict) (*table.Table, []lterrors.Warning, error) {
	tb := table.NewBuilder(TableObjects, ColObjectID, ColType)
	for i, o := range b.objects {
		if v.dropObject[i] {
			continue
		}
		tb.Row()
		tb.Set(ColObjectID, attr.String(o.ID))
		tb.Set(ColType, attr.String(o.Type))
		for _, a := range o.Attributes {
			if !a.Baseline() {
				continue
			}
			val, err := b.typed(b.objectTypes[o.Type], o.Type, a, o.Loc)
			if err != nil {
				return nil, nil, err
			}
			tb.Set(a.Name, val)
		}
	}
	if err := canceled(ctx); err != nil {
		return nil, nil, err
	}
	return tb.Finish(ctx)
}

func (b *Builder) buildEvents(ctx context.Context, v *verdict, order []int) (*table.Table, []lterrors.Warning, error) {
	tb := table.NewBuilder(TableEvents, ColEventID, ColActivity, ColTimestamp)
	for _, i := range order {
		if v.dropEvent[i] {
			continue
		}
		e := b.events[i]
		tb.Row()
		tb.Set(ColEventID, attr.String(e.ID))
		tb.Set(ColActivity, attr.String(e.Type))
		tb.Set(ColTimestamp, attr.Timestamp(e.Time))
		for _, a := range e.Attributes {
			val, err := b.typed(b.eventTypes[e.Type], e.Type, a, e.Loc)
			if err != nil {
				return nil, nil, err
			}
			tb.Set(a.Name, val)
		}
	}
	if err := canceled(ctx); err != nil {
		return nil, nil, err
	}
	return tb.Finish(ctx)
}

func (b *Builder) buildRelations(ctx context.Context, v *verdict, order []int) (*table.Table, []lterrors.Warning, error) {
	tb := table.NewBuilder(TableRelations, ColEventID, ColActivity, ColTimestamp, ColObjectID, ColType, ColQualifier)
	for _, i := range order {
		if v.dropEvent[i] {
			continue
		}
		e := b.events[i]
		for j, r := range e.Relationships {
			if v.dropE2O[relKey{i, j}] {
				continue
			}
			tb.Row()
			tb.Set(ColEventID, attr.String(e.ID))
			tb.Set(ColActivity, attr.String(e.Type))
			tb.Set(ColTimestamp, attr.Timestamp(e.Time))
			tb.Set(ColObjectID, attr.String(r.ObjectID))
			if k, ok := v.objectIndex[r.ObjectID]; ok {
				tb.Set(ColType, attr.String(b.objects[k].Type))
			}
			tb.Set(ColQualifier, attr.String(r.Qualifier))
		}
	}
	if err := canceled(ctx); err != nil {
		return nil, nil, err
	}
	return tb.Finish(ctx)
}

func (b *Builder) buildO2O(ctx context.Context, v *verdict) (*table.Table, []lterrors.Warning, error) {
	tb := table.NewBuilder(TableO2O, ColObjectID, ColObjectID2, ColQualifier)
	add := func(src, dst, qualifier string) {
		tb.Row()
		tb.Set(ColObjectID, attr.String(src))
		tb.Set(ColObjectID2, attr.String(dst))
		tb.Set(ColQualifier, attr.String(qualifier))
	}
	for i, o := range b.objects {
		if v.dropObject[i] {
			continue
		}
		for j, r := range o.Relationships {
			if !v.dropObjO2O[relKey{i, j}] {
				add(o.ID, r.ObjectID, r.Qualifier)
			}
		}
	}
	for i, r := range b.o2o {
		if !v.dropO2O[i] {
			add(r.SourceID, r.TargetID, r.Qualifier)
		}
	}
	if err := canceled(ctx); err != nil {
		return nil, nil, err
	}
	return tb.Finish(ctx)
}

// buildChanges writes one row per timed attribute value, stable-sorted by
// time so that declaration order breaks ties.
func (b *Builder) buildChanges(ctx context.Context, v *verdict) (*table.Table, []lterrors.Warning, error) {
	type change struct{ obj, attr int }
	var changes []change
	for i, o := range b.objects {
		if v.dropObject[i] {
			continue
		}
		for j, a := range o.Attributes {
			if !a.Baseline() {
				changes = append(changes, change{i, j})
			}
		}
	}
	sort.SliceStable(changes, func(x, y int) bool {
		ax := b.objects[changes[x].obj].Attributes[changes[x].attr]
		ay := b.objects[changes[y].obj].Attributes[changes[y].attr]
		return ax.Time.Before(ay.Time)
	})

	tb := table.NewBuilder(TableObjectChanges, ColObjectID, ColType, ColTimestamp, ColField)
	for _, c := range changes {
		o := b.objects[c.obj]
		a := o.Attributes[c.attr]
		val, err := b.typed(b.objectTypes[o.Type], o.Type, a, o.Loc)
		if err != nil {
			return nil, nil, err
		}
		tb.Row()
		tb.Set(ColObjectID, attr.String(o.ID))
		tb.Set(ColType, attr.String(o.Type))
		tb.Set(ColTimestamp, attr.Timestamp(a.Time))
		tb.Set(ColField, attr.String(a.Name))
		tb.Set(a.Name, val)
	}
	if err := canceled(ctx); err != nil {
		return nil, nil, err
	}
	return tb.Finish(ctx)
}
