package ocel

import (
	"context"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/logflow/logtables/pkg/attr"
	lterrors "github.com/logflow/logtables/pkg/errors"
	"github.com/logflow/logtables/pkg/jsonwalk"
	"github.com/logflow/logtables/pkg/telemetry"
)

// ImportJSON reads an OCEL 2.0 JSON document from r. On error no tables are
// returned.
func ImportJSON(ctx context.Context, r io.Reader, opts Options) (res *Result, err error) {
	ctx, span := telemetry.StartSpan(ctx, "ocel.import", attribute.String("ocel.encoding", "json"))
	defer func() { telemetry.EndSpan(span, err) }()

	opts = opts.withDefaults()
	j := &jsonReader{
		ctx:  ctx,
		w:    jsonwalk.New(r),
		b:    NewBuilder(opts),
		opts: opts,
		log:  opts.Logger.With("format", "ocel2-json"),
	}
	if err := j.run(); err != nil {
		return nil, err
	}
	res, err = j.b.Build(ctx)
	if err != nil {
		return nil, err
	}
	recordSpan(ctx, res)
	return res, nil
}

type jsonReader struct {
	ctx  context.Context
	w    *jsonwalk.Walker
	b    *Builder
	opts Options
	log  *slog.Logger
}

func (j *jsonReader) run() error {
	var sawObjects, sawEvents bool
	ok, err := j.w.EnterObject()
	if err != nil {
		return err
	}
	if !ok {
		return j.w.Structural("document is null")
	}
	err = j.members(func(key string) error {
		switch key {
		case "objectTypes":
			return j.array(func() error { return j.readType(j.b.DeclareObjectType) })
		case "eventTypes":
			return j.array(func() error { return j.readType(j.b.DeclareEventType) })
		case "objects":
			sawObjects = true
			return j.array(j.readObject)
		case "events":
			sawEvents = true
			return j.array(j.readEvent)
		case "o2o":
			return j.array(j.readO2O)
		}
		j.log.Debug("skipping unknown member", "key", key)
		return j.w.Skip()
	})
	if err != nil {
		return err
	}
	if !sawObjects {
		return j.w.Structural("document has no objects list")
	}
	if !sawEvents {
		return j.w.Structural("document has no events list")
	}
	return nil
}

// members calls fn for every member of the object the walker has entered and
// consumes its closing brace. fn must consume the member value.
func (j *jsonReader) members(fn func(key string) error) error {
	for j.w.More() {
		key, err := j.w.Key()
		if err != nil {
			return err
		}
		if err := fn(key); err != nil {
			return err
		}
	}
	return j.w.Exit()
}

// object enters the next value as an object. Null is an empty object.
func (j *jsonReader) object(fn func(key string) error) error {
	ok, err := j.w.EnterObject()
	if err != nil || !ok {
		return err
	}
	return j.members(fn)
}

// array calls fn for every element of the next value. Null is an empty
// array.
func (j *jsonReader) array(fn func() error) error {
	ok, err := j.w.EnterArray()
	if err != nil || !ok {
		return err
	}
	for j.w.More() {
		if err := fn(); err != nil {
			return err
		}
	}
	return j.w.Exit()
}

func (j *jsonReader) location() Location {
	return Location{Path: j.w.Path(), Offset: j.w.Offset()}
}

func (j *jsonReader) readType(declare func(string, []AttributeType)) error {
	var name string
	var attrs []AttributeType
	err := j.object(func(key string) error {
		switch key {
		case "name":
			var err error
			name, err = j.w.String()
			return err
		case "attributes":
			return j.array(func() error {
				at := AttributeType{}
				var tag string
				err := j.object(func(key string) error {
					var err error
					switch key {
					case "name":
						at.Name, err = j.w.String()
					case "type":
						tag, err = j.w.String()
					default:
						err = j.w.Skip()
					}
					return err
				})
				if err != nil {
					return err
				}
				at.Kind = declaredKind(j.log, name, at.Name, tag)
				attrs = append(attrs, at)
				return nil
			})
		}
		return j.w.Skip()
	})
	if err != nil {
		return err
	}
	if name == "" {
		return j.w.Structural("type without name")
	}
	declare(name, attrs)
	return nil
}

func (j *jsonReader) readObject() error {
	if err := j.ctx.Err(); err != nil {
		return lterrors.ContextCanceled("ocel.import", err)
	}
	o := Object{Loc: j.location()}
	var hasID, hasType bool
	err := j.object(func(key string) error {
		var err error
		switch key {
		case "id":
			hasID = true
			o.ID, err = j.w.String()
		case "type":
			hasType = true
			o.Type, err = j.w.String()
		case "attributes":
			err = j.array(func() error {
				a, err := j.readAttribute(true)
				if err == nil {
					o.Attributes = append(o.Attributes, a)
				}
				return err
			})
		case "relationships":
			err = j.array(func() error {
				r, err := j.readRelationship()
				if err == nil {
					o.Relationships = append(o.Relationships, r)
				}
				return err
			})
		default:
			err = j.w.Skip()
		}
		return err
	})
	if err != nil {
		return err
	}
	if !hasID {
		return located(lterrors.Structural("object without id"), o.Loc)
	}
	if !hasType {
		return located(lterrors.Structural("object without type").WithContext("id", o.ID), o.Loc)
	}
	j.b.AddObject(o)
	return nil
}

func (j *jsonReader) readEvent() error {
	if err := j.ctx.Err(); err != nil {
		return lterrors.ContextCanceled("ocel.import", err)
	}
	e := Event{Loc: j.location()}
	var hasID, hasType, hasTime bool
	var rawTime string
	err := j.object(func(key string) error {
		var err error
		switch key {
		case "id":
			hasID = true
			e.ID, err = j.w.String()
		case "type":
			hasType = true
			e.Type, err = j.w.String()
		case "time":
			rawTime, err = j.w.String()
			hasTime = rawTime != ""
		case "attributes":
			err = j.array(func() error {
				a, err := j.readAttribute(false)
				if err == nil {
					e.Attributes = append(e.Attributes, a)
				}
				return err
			})
		case "relationships":
			err = j.array(func() error {
				r, err := j.readRelationship()
				if err == nil {
					e.Relationships = append(e.Relationships, r)
				}
				return err
			})
		default:
			err = j.w.Skip()
		}
		return err
	})
	if err != nil {
		return err
	}
	switch {
	case !hasID:
		return located(lterrors.Structural("event without id"), e.Loc)
	case !hasType:
		return located(lterrors.Structural("event without type").WithContext("id", e.ID), e.Loc)
	case !hasTime:
		return located(lterrors.Structural("event without time").WithContext("id", e.ID), e.Loc)
	}
	t, err := j.opts.TimeParser.Parse(rawTime)
	if err != nil {
		return located(lterrors.InvalidTimestamp(rawTime).WithContext("id", e.ID), e.Loc)
	}
	e.Time = t
	j.b.AddEvent(e)
	return nil
}

// readAttribute reads {"name": ..., "value": ..., "time": ...}. Values keep
// the kind of their JSON literal until they are typed by the builder.
func (j *jsonReader) readAttribute(timed bool) (Attribute, error) {
	a := Attribute{Value: attr.Null()}
	var rawTime string
	err := j.object(func(key string) error {
		var err error
		switch key {
		case "name":
			a.Name, err = j.w.String()
		case "value":
			a.Value, err = j.w.Value()
		case "time":
			rawTime, err = j.w.String()
		default:
			err = j.w.Skip()
		}
		return err
	})
	if err != nil {
		return a, err
	}
	if a.Name == "" {
		return a, j.w.Structural("attribute without name")
	}
	if timed && rawTime != "" {
		t, err := j.opts.TimeParser.Parse(rawTime)
		if err != nil {
			return a, located(lterrors.InvalidTimestamp(rawTime).WithContext("attribute", a.Name), j.location())
		}
		a.Time, a.Timed = t, true
	}
	return a, nil
}

func (j *jsonReader) readRelationship() (Relationship, error) {
	r := Relationship{}
	err := j.object(func(key string) error {
		var err error
		switch key {
		case "objectId":
			r.ObjectID, err = j.w.String()
		case "qualifier":
			r.Qualifier, err = j.w.String()
		default:
			err = j.w.Skip()
		}
		return err
	})
	if err != nil {
		return r, err
	}
	if r.ObjectID == "" {
		return r, j.w.Structural("relationship without objectId")
	}
	return r, nil
}

// readO2O reads a top-level {"source", "target", "qualifier"} entry.
func (j *jsonReader) readO2O() error {
	r := O2O{Loc: j.location()}
	err := j.object(func(key string) error {
		var err error
		switch key {
		case "source":
			r.SourceID, err = j.w.String()
		case "target":
			r.TargetID, err = j.w.String()
		case "qualifier":
			r.Qualifier, err = j.w.String()
		default:
			err = j.w.Skip()
		}
		return err
	})
	if err != nil {
		return err
	}
	if r.SourceID == "" || r.TargetID == "" {
		return located(lterrors.Structural("o2o entry without source or target"), r.Loc)
	}
	j.b.AddO2O(r)
	return nil
}
