package ocel

import (
	"sort"
	"time"

	"github.com/logflow/logtables/pkg/attr"
	lterrors "github.com/logflow/logtables/pkg/errors"
	"github.com/logflow/logtables/pkg/table"
)

type change struct {
	at    int64
	value attr.Value
}

// History answers "value of field F of object O at time t" from an objects
// table and an object_changes table.
type History struct {
	baseline map[string]map[string]attr.Value
	changes  map[string]map[string][]change
}

// History indexes the objects and object_changes tables of r.
func (r *Result) History() (*History, error) {
	return NewHistory(r.Objects, r.ObjectChanges)
}

// NewHistory indexes an objects table and an object_changes table.
func NewHistory(objects, changes *table.Table) (*History, error) {
	h := &History{
		baseline: make(map[string]map[string]attr.Value),
		changes:  make(map[string]map[string][]change),
	}

	ids, ok := objects.Column(ColObjectID)
	if !ok {
		return nil, lterrors.Structuralf("table %s has no %s column", objects.Name(), ColObjectID)
	}
	for _, c := range objects.Columns() {
		if c.Name == ColObjectID || c.Name == ColType {
			continue
		}
		for i, v := range c.Values {
			if v.IsNull() {
				continue
			}
			oid := ids.Values[i].String()
			fields, ok := h.baseline[oid]
			if !ok {
				fields = make(map[string]attr.Value)
				h.baseline[oid] = fields
			}
			if _, seen := fields[c.Name]; !seen {
				fields[c.Name] = v
			}
		}
	}

	for _, name := range []string{ColObjectID, ColTimestamp, ColField} {
		if _, ok := changes.Column(name); !ok {
			return nil, lterrors.Structuralf("table %s has no %s column", changes.Name(), name)
		}
	}
	for i := 0; i < changes.NumRows(); i++ {
		oid := changes.Value(i, ColObjectID).String()
		field := changes.Value(i, ColField).String()
		ts := changes.Value(i, ColTimestamp)
		if ts.Kind() != attr.KindTimestamp {
			return nil, lterrors.Structural("change without timestamp").WithContext("row", i)
		}
		fields, ok := h.changes[oid]
		if !ok {
			fields = make(map[string][]change)
			h.changes[oid] = fields
		}
		fields[field] = append(fields[field], change{at: ts.Nanos(), value: changes.Value(i, field)})
	}
	for _, fields := range h.changes {
		for _, cs := range fields {
			sort.SliceStable(cs, func(a, b int) bool { return cs[a].at < cs[b].at })
		}
	}
	return h, nil
}

// ValueAt returns the value of the latest change of field at or before t.
// Among changes with the same time the later declared one wins. Without such
// a change the baseline value is returned; ok is false when there is none.
func (h *History) ValueAt(oid, field string, t time.Time) (v attr.Value, ok bool) {
	cs := h.changes[oid][field]
	at := t.UnixNano()
	i := sort.Search(len(cs), func(i int) bool { return cs[i].at > at })
	if i > 0 {
		return cs[i-1].value, true
	}
	v, ok = h.baseline[oid][field]
	return v, ok
}

// Changes returns the number of recorded changes of field.
func (h *History) Changes(oid, field string) int {
	return len(h.changes[oid][field])
}
