package ocel

import (
	"context"
	"io"
	"log/slog"
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	"github.com/logflow/logtables/pkg/attr"
	lterrors "github.com/logflow/logtables/pkg/errors"
	"github.com/logflow/logtables/pkg/telemetry"
	"github.com/logflow/logtables/pkg/xmlwalk"
)

// ImportXML reads an OCEL 2.0 XML document from r. On error no tables are
// returned.
func ImportXML(ctx context.Context, r io.Reader, opts Options) (res *Result, err error) {
	ctx, span := telemetry.StartSpan(ctx, "ocel.import", attribute.String("ocel.encoding", "xml"))
	defer func() { telemetry.EndSpan(span, err) }()

	opts = opts.withDefaults()
	x := &xmlReader{
		ctx:  ctx,
		w:    xmlwalk.New(r),
		b:    NewBuilder(opts),
		opts: opts,
		log:  opts.Logger.With("format", "ocel2-xml"),
	}
	if err := x.run(); err != nil {
		return nil, err
	}
	res, err = x.b.Build(ctx)
	if err != nil {
		return nil, err
	}
	recordSpan(ctx, res)
	return res, nil
}

type xmlReader struct {
	ctx  context.Context
	w    *xmlwalk.Walker
	b    *Builder
	opts Options
	log  *slog.Logger

	sawObjects, sawEvents bool
}

func (x *xmlReader) run() error {
	w := x.w
	for w.Next() {
		if w.Kind() != xmlwalk.StartElement {
			continue
		}
		if w.Name() != "log" {
			return w.Structural("root element is <%s>, expected <log>", w.Name())
		}
		if err := x.children(x.readSection); err != nil {
			return err
		}
		if !x.sawObjects {
			return w.Structural("document has no <objects> section")
		}
		if !x.sawEvents {
			return w.Structural("document has no <events> section")
		}
		if w.Next() {
			return w.Structural("content after </log>")
		}
		return w.Err()
	}
	if err := w.Err(); err != nil {
		return err
	}
	return w.Structural("document has no <log> element")
}

// children calls fn for every child element of the current element. fn must
// consume the child it is called on. children returns after the end tag of
// the current element.
func (x *xmlReader) children(fn func(name string) error) error {
	w := x.w
	depth := w.Depth()
	for w.Next() {
		switch w.Kind() {
		case xmlwalk.EndElement:
			if w.Depth() < depth {
				return nil
			}
		case xmlwalk.StartElement:
			if err := fn(w.Name()); err != nil {
				return err
			}
		}
	}
	if err := w.Err(); err != nil {
		return err
	}
	return lterrors.UnexpectedEOF(nil).WithContext("path", w.Path())
}

func (x *xmlReader) readSection(name string) error {
	switch name {
	case "object-types":
		return x.children(x.typeReader("object-type", x.b.DeclareObjectType))
	case "event-types":
		return x.children(x.typeReader("event-type", x.b.DeclareEventType))
	case "objects":
		x.sawObjects = true
		n := 0
		return x.children(func(name string) error {
			if name != "object" {
				return x.skip()
			}
			n++
			return x.readObject(n - 1)
		})
	case "events":
		x.sawEvents = true
		n := 0
		return x.children(func(name string) error {
			if name != "event" {
				return x.skip()
			}
			n++
			return x.readEvent(n - 1)
		})
	}
	return x.skip()
}

func (x *xmlReader) skip() error {
	x.log.Debug("skipping unknown element", "element", x.w.Name(), "path", x.w.Path())
	return x.w.Skip()
}

func (x *xmlReader) typeReader(elem string, declare func(string, []AttributeType)) func(string) error {
	return func(name string) error {
		if name != elem {
			return x.skip()
		}
		typeName, ok := x.w.Attr("name")
		if !ok {
			return x.w.Structural("<%s> without name", elem)
		}
		var attrs []AttributeType
		err := x.children(func(name string) error {
			if name != "attributes" {
				return x.skip()
			}
			return x.children(func(name string) error {
				if name != "attribute" {
					return x.skip()
				}
				at := AttributeType{}
				at.Name, _ = x.w.Attr("name")
				tag, _ := x.w.Attr("type")
				at.Kind = declaredKind(x.log, typeName, at.Name, tag)
				attrs = append(attrs, at)
				return x.w.Skip()
			})
		})
		if err != nil {
			return err
		}
		declare(typeName, attrs)
		return nil
	}
}

// declaredKind maps a declared attribute type to a kind. Unknown types read
// as strings.
func declaredKind(log *slog.Logger, typeName, name, tag string) attr.Kind {
	k, ok := attr.KindForTag(tag)
	if !ok || k == attr.KindList || k == attr.KindMap {
		log.Debug("unknown attribute type, reading as string", "type", typeName, "attribute", name, "declared", tag)
		return attr.KindString
	}
	return k
}

func (x *xmlReader) location(index int) Location {
	offset, line := x.w.Pos()
	return Location{Path: x.w.Path() + "[" + strconv.Itoa(index) + "]", Offset: offset, Line: line}
}

func (x *xmlReader) readObject(index int) error {
	if err := x.ctx.Err(); err != nil {
		return lterrors.ContextCanceled("ocel.import", err)
	}
	w := x.w
	o := Object{Loc: x.location(index)}
	var ok bool
	if o.ID, ok = w.Attr("id"); !ok {
		return w.Structural("<object> without id")
	}
	if o.Type, ok = w.Attr("type"); !ok {
		return w.Structural("<object> without type").WithContext("id", o.ID)
	}
	err := x.children(func(name string) error {
		switch name {
		case "attributes":
			return x.children(func(name string) error {
				if name != "attribute" {
					return x.skip()
				}
				a, err := x.readAttribute(true)
				if err != nil {
					return err
				}
				o.Attributes = append(o.Attributes, a)
				return nil
			})
		case "objects":
			return x.children(func(name string) error {
				if name != "relationship" {
					return x.skip()
				}
				r, err := x.readRelationship()
				if err != nil {
					return err
				}
				o.Relationships = append(o.Relationships, r)
				return nil
			})
		}
		return x.skip()
	})
	if err != nil {
		return err
	}
	x.b.AddObject(o)
	return nil
}

func (x *xmlReader) readEvent(index int) error {
	if err := x.ctx.Err(); err != nil {
		return lterrors.ContextCanceled("ocel.import", err)
	}
	w := x.w
	e := Event{Loc: x.location(index)}
	var ok bool
	if e.ID, ok = w.Attr("id"); !ok {
		return w.Structural("<event> without id")
	}
	if e.Type, ok = w.Attr("type"); !ok {
		return w.Structural("<event> without type").WithContext("id", e.ID)
	}
	raw, ok := w.Attr("time")
	if !ok {
		return w.Structural("<event> without time").WithContext("id", e.ID)
	}
	t, err := x.opts.TimeParser.Parse(raw)
	if err != nil {
		return x.timeError(raw, "id", e.ID)
	}
	e.Time = t

	err = x.children(func(name string) error {
		switch name {
		case "attributes":
			return x.children(func(name string) error {
				if name != "attribute" {
					return x.skip()
				}
				a, err := x.readAttribute(false)
				if err != nil {
					return err
				}
				e.Attributes = append(e.Attributes, a)
				return nil
			})
		case "objects":
			return x.children(func(name string) error {
				if name != "relationship" {
					return x.skip()
				}
				r, err := x.readRelationship()
				if err != nil {
					return err
				}
				e.Relationships = append(e.Relationships, r)
				return nil
			})
		}
		return x.skip()
	})
	if err != nil {
		return err
	}
	x.b.AddEvent(e)
	return nil
}

// readAttribute reads <attribute name="" [time=""]>text</attribute>.
func (x *xmlReader) readAttribute(timed bool) (Attribute, error) {
	w := x.w
	a := Attribute{}
	var ok bool
	if a.Name, ok = w.Attr("name"); !ok {
		return a, w.Structural("<attribute> without name")
	}
	if raw, ok := w.Attr("time"); ok && timed {
		t, err := x.opts.TimeParser.Parse(raw)
		if err != nil {
			return a, x.timeError(raw, "attribute", a.Name)
		}
		a.Time, a.Timed = t, true
	}
	text, err := w.Text()
	if err != nil {
		return a, err
	}
	a.Value = attr.String(text)
	return a, nil
}

func (x *xmlReader) readRelationship() (Relationship, error) {
	w := x.w
	r := Relationship{}
	var ok bool
	if r.ObjectID, ok = w.Attr("object-id"); !ok {
		return r, w.Structural("<relationship> without object-id")
	}
	r.Qualifier, _ = w.Attr("qualifier")
	return r, w.Skip()
}

func (x *xmlReader) timeError(raw, key, value string) error {
	offset, line := x.w.Pos()
	return lterrors.InvalidTimestamp(raw).
		WithContext(key, value).
		WithContext("path", x.w.Path()).
		WithContext("offset", offset).
		WithContext("line", line)
}

func recordSpan(ctx context.Context, res *Result) {
	telemetry.SetSpanAttributes(ctx,
		attribute.Int("ocel.objects", res.Objects.NumRows()),
		attribute.Int("ocel.events", res.Events.NumRows()),
		attribute.Int("ocel.relations", res.Relations.NumRows()),
		attribute.Int("ocel.o2o", res.O2O.NumRows()),
		attribute.Int("ocel.object_changes", res.ObjectChanges.NumRows()),
	)
}
