package ocel

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/logflow/logtables/pkg/attr"
	lterrors "github.com/logflow/logtables/pkg/errors"
	"github.com/logflow/logtables/pkg/table"
)

const orderJSON = `{
  "objectTypes": [
    {"name": "order", "attributes": [{"name": "price", "type": "float"}, {"name": "status", "type": "string"}]},
    {"name": "item", "attributes": [{"name": "weight", "type": "integer"}]}
  ],
  "eventTypes": [
    {"name": "place order", "attributes": [{"name": "channel", "type": "string"}]},
    {"name": "pack", "attributes": []}
  ],
  "objects": [
    {"id": "o1", "type": "order",
     "attributes": [
       {"name": "price", "value": "10", "time": "1970-01-01T00:00:00Z"},
       {"name": "price", "value": "20", "time": "2024-01-03T00:00:00Z"},
       {"name": "status", "value": "open"},
       {"name": "price", "value": "15", "time": "2024-01-02T00:00:00Z"},
       {"name": "price", "value": "25", "time": "2024-01-03T00:00:00Z"}
     ],
     "relationships": [{"objectId": "i1", "qualifier": "contains"}]},
    {"id": "i1", "type": "item", "attributes": [{"name": "weight", "value": "3", "time": "1970-01-01T00:00:00Z"}]}
  ],
  "events": [
    {"id": "e2", "type": "pack", "time": "2024-01-05T00:00:00Z",
     "relationships": [{"objectId": "i1", "qualifier": "packed"}, {"objectId": "o1", "qualifier": "for"}]},
    {"id": "e1", "type": "place order", "time": "2024-01-01T00:00:00Z",
     "attributes": [{"name": "channel", "value": "web"}],
     "relationships": [{"objectId": "o1", "qualifier": "places"}]}
  ],
  "extensions": {"ignored": true}
}`

const orderXML = `<?xml version="1.0" encoding="UTF-8"?>
<log>
  <object-types>
    <object-type name="order">
      <attributes>
        <attribute name="price" type="float"/>
        <attribute name="status" type="string"/>
      </attributes>
    </object-type>
    <object-type name="item">
      <attributes><attribute name="weight" type="integer"/></attributes>
    </object-type>
  </object-types>
  <event-types>
    <event-type name="place order"><attributes><attribute name="channel" type="string"/></attributes></event-type>
    <event-type name="pack"><attributes/></event-type>
  </event-types>
  <objects>
    <object id="o1" type="order">
      <attributes>
        <attribute name="price" time="1970-01-01T00:00:00Z">10</attribute>
        <attribute name="price" time="2024-01-03T00:00:00Z">20</attribute>
        <attribute name="status">open</attribute>
        <attribute name="price" time="2024-01-02T00:00:00Z">15</attribute>
        <attribute name="price" time="2024-01-03T00:00:00Z">25</attribute>
      </attributes>
      <objects><relationship object-id="i1" qualifier="contains"/></objects>
    </object>
    <object id="i1" type="item">
      <attributes><attribute name="weight" time="1970-01-01T00:00:00Z">3</attribute></attributes>
    </object>
  </objects>
  <events>
    <event id="e2" type="pack" time="2024-01-05T00:00:00Z">
      <objects>
        <relationship object-id="i1" qualifier="packed"/>
        <relationship object-id="o1" qualifier="for"/>
      </objects>
    </event>
    <event id="e1" type="place order" time="2024-01-01T00:00:00Z">
      <attributes><attribute name="channel">web</attribute></attributes>
      <objects><relationship object-id="o1" qualifier="places"/></objects>
    </event>
  </events>
</log>`

const danglingJSON = `{
  "objects": [{"id": "o1", "type": "order"}],
  "events": [{"id": "e1", "type": "place order", "time": "2024-01-01T00:00:00Z",
              "relationships": [{"objectId": "o9", "qualifier": "places"}]}]
}`

func day(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

func importJSON(t *testing.T, doc string, opts Options) *Result {
	t.Helper()
	res, err := ImportJSON(context.Background(), strings.NewReader(doc), opts)
	if err != nil {
		t.Fatalf("ImportJSON failed: %v", err)
	}
	return res
}

func importXML(t *testing.T, doc string, opts Options) *Result {
	t.Helper()
	res, err := ImportXML(context.Background(), strings.NewReader(doc), opts)
	if err != nil {
		t.Fatalf("ImportXML failed: %v", err)
	}
	return res
}

func columnStrings(tbl *table.Table, name string) []string {
	col, ok := tbl.Column(name)
	if !ok {
		return nil
	}
	out := make([]string, len(col.Values))
	for i, v := range col.Values {
		out[i] = v.String()
	}
	return out
}

func TestImportJSON_SingleRelation(t *testing.T) {
	doc := `{
	  "objectTypes": [{"name": "order", "attributes": []}],
	  "eventTypes": [{"name": "place order", "attributes": []}],
	  "objects": [{"id": "o1", "type": "order"}],
	  "events": [{"id": "e1", "type": "place order", "time": "2024-01-01T00:00:00Z",
	              "relationships": [{"objectId": "o1", "qualifier": "places"}]}]
	}`
	res := importJSON(t, doc, Options{})

	if res.Relations.NumRows() != 1 {
		t.Fatalf("Expected 1 relation, got %d", res.Relations.NumRows())
	}
	got := []string{
		res.Relations.Value(0, ColEventID).Str(),
		res.Relations.Value(0, ColObjectID).Str(),
		res.Relations.Value(0, ColQualifier).Str(),
	}
	if strings.Join(got, ",") != "e1,o1,places" {
		t.Errorf("Expected (e1,o1,places), got %v", got)
	}
	if v := res.Relations.Value(0, ColType).Str(); v != "order" {
		t.Errorf("Expected object type order, got %q", v)
	}
	if res.ObjectChanges.NumRows() != 0 {
		t.Errorf("Expected 0 object changes, got %d", res.ObjectChanges.NumRows())
	}
	if res.Objects.NumRows() != 1 || res.Events.NumRows() != 1 {
		t.Errorf("Expected 1 object and 1 event, got %d and %d", res.Objects.NumRows(), res.Events.NumRows())
	}
	if len(res.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", res.Warnings)
	}
}

func TestImportJSON_DanglingReference(t *testing.T) {
	_, err := ImportJSON(context.Background(), strings.NewReader(danglingJSON), Options{})
	if err == nil {
		t.Fatal("Expected referential integrity error")
	}
	if !errors.Is(err, lterrors.ErrReferentialIntegrity) {
		t.Fatalf("Expected referential integrity error, got %v", err)
	}
	var e *lterrors.Error
	errors.As(err, &e)
	if to, _ := e.Get("to"); to != "o9" {
		t.Errorf("Expected dangling id o9, got %v", to)
	}
	if n, _ := e.Get("violations"); n != 1 {
		t.Errorf("Expected 1 violation, got %v", n)
	}

	res := importJSON(t, danglingJSON, Options{Integrity: IntegrityIgnore})
	if res.Relations.NumRows() != 1 {
		t.Fatalf("Expected relation kept, got %d rows", res.Relations.NumRows())
	}
	if v := res.Relations.Value(0, ColObjectID).Str(); v != "o9" {
		t.Errorf("Expected o9, got %q", v)
	}
	if !res.Relations.Value(0, ColType).IsNull() {
		t.Error("Expected null object type for unknown object")
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Code != lterrors.CodeReferentialIntegrity {
		t.Errorf("Expected one integrity warning, got %v", res.Warnings)
	}

	res = importJSON(t, danglingJSON, Options{Integrity: IntegrityDrop})
	if res.Relations.NumRows() != 0 {
		t.Errorf("Expected dangling relation dropped, got %d rows", res.Relations.NumRows())
	}
	if res.Relations.NumCols() != 6 {
		t.Errorf("Expected 6 relation columns, got %d", res.Relations.NumCols())
	}
	if len(res.Warnings) != 1 {
		t.Errorf("Expected 1 warning, got %d", len(res.Warnings))
	}
}

func checkOrderLog(t *testing.T, res *Result) {
	t.Helper()

	if got := strings.Join(res.Objects.ColumnNames(), ","); got != "ocel:oid,ocel:type,price,status,weight" {
		t.Errorf("Unexpected object columns %s", got)
	}
	price, _ := res.Objects.Column("price")
	if price.Kind != attr.KindFloat || price.Values[0].Float() != 10 || !price.Values[1].IsNull() {
		t.Errorf("Unexpected baseline prices %v", price.Values)
	}
	weight, _ := res.Objects.Column("weight")
	if weight.Kind != attr.KindInt || weight.Values[1].Int() != 3 {
		t.Errorf("Unexpected weights %v", weight.Values)
	}

	if got := strings.Join(columnStrings(res.Events, ColEventID), ","); got != "e2,e1" {
		t.Errorf("Expected document order e2,e1, got %s", got)
	}
	if !res.Events.Value(0, "channel").IsNull() || res.Events.Value(1, "channel").Str() != "web" {
		t.Error("Unexpected channel values")
	}

	if got := strings.Join(columnStrings(res.Relations, ColQualifier), ","); got != "packed,for,places" {
		t.Errorf("Unexpected qualifiers %s", got)
	}
	if got := strings.Join(columnStrings(res.Relations, ColType), ","); got != "item,order,order" {
		t.Errorf("Unexpected relation types %s", got)
	}

	if res.O2O.NumRows() != 1 || res.O2O.Value(0, ColObjectID2).Str() != "i1" || res.O2O.Value(0, ColQualifier).Str() != "contains" {
		t.Errorf("Unexpected o2o table with %d rows", res.O2O.NumRows())
	}

	changes := res.ObjectChanges
	if got := strings.Join(changes.ColumnNames(), ","); got != "ocel:oid,ocel:type,ocel:timestamp,ocel:field,price" {
		t.Errorf("Unexpected change columns %s", got)
	}
	if got := strings.Join(columnStrings(changes, "price"), ","); got != "15,20,25" {
		t.Errorf("Expected changes ordered 15,20,25, got %s", got)
	}
	if !changes.Value(0, ColTimestamp).Time().Equal(day(2)) {
		t.Errorf("Unexpected first change time %v", changes.Value(0, ColTimestamp))
	}
}

func TestImportJSON_OrderLog(t *testing.T) {
	checkOrderLog(t, importJSON(t, orderJSON, Options{}))
}

func TestImportXML_OrderLog(t *testing.T) {
	checkOrderLog(t, importXML(t, orderXML, Options{}))
}

func TestImport_EncodingsAgree(t *testing.T) {
	fromJSON := importJSON(t, orderJSON, Options{})
	fromXML := importXML(t, orderXML, Options{})
	a, b := fromJSON.Tables(), fromXML.Tables()
	for i := range a {
		if d := a[i].Diff(b[i]); d != "" {
			t.Errorf("Table %s differs: %s", a[i].Name(), d)
		}
	}
}

func TestImport_Idempotent(t *testing.T) {
	a := importJSON(t, orderJSON, Options{})
	b := importJSON(t, orderJSON, Options{})
	for i, tbl := range a.Tables() {
		if !tbl.Equal(b.Tables()[i]) {
			t.Errorf("Table %s differs between imports", tbl.Name())
		}
	}
}

func TestImport_SortByTimestamp(t *testing.T) {
	res := importJSON(t, orderJSON, Options{SortByTimestamp: true})
	if got := strings.Join(columnStrings(res.Events, ColEventID), ","); got != "e1,e2" {
		t.Errorf("Expected e1,e2, got %s", got)
	}
	if got := strings.Join(columnStrings(res.Relations, ColEventID), ","); got != "e1,e2,e2" {
		t.Errorf("Expected e1,e2,e2, got %s", got)
	}
}

func TestImport_ReferentialCompleteness(t *testing.T) {
	for _, res := range []*Result{importJSON(t, orderJSON, Options{}), importXML(t, orderXML, Options{})} {
		objects := map[string]bool{}
		for _, id := range columnStrings(res.Objects, ColObjectID) {
			objects[id] = true
		}
		events := map[string]bool{}
		for _, id := range columnStrings(res.Events, ColEventID) {
			events[id] = true
		}
		for i := 0; i < res.Relations.NumRows(); i++ {
			if !events[res.Relations.Value(i, ColEventID).Str()] || !objects[res.Relations.Value(i, ColObjectID).Str()] {
				t.Errorf("Relation row %d references unknown ids", i)
			}
		}
		for i := 0; i < res.O2O.NumRows(); i++ {
			if !objects[res.O2O.Value(i, ColObjectID).Str()] || !objects[res.O2O.Value(i, ColObjectID2).Str()] {
				t.Errorf("O2O row %d references unknown ids", i)
			}
		}
	}
}

func TestHistory_ValueAt(t *testing.T) {
	res := importJSON(t, orderJSON, Options{})
	h, err := res.History()
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}

	cases := []struct {
		at   time.Time
		want float64
	}{
		{day(1), 10},
		{day(2).Add(-time.Nanosecond), 10},
		{day(2), 15},
		{day(3), 25},
		{day(30), 25},
	}
	for _, tc := range cases {
		v, ok := h.ValueAt("o1", "price", tc.at)
		if !ok || v.Float() != tc.want {
			t.Errorf("ValueAt(%v): expected %v, got %v", tc.at, tc.want, v)
		}
	}
	if n := h.Changes("o1", "price"); n != 3 {
		t.Errorf("Expected 3 changes, got %d", n)
	}
	if v, ok := h.ValueAt("o1", "status", day(30)); !ok || v.Str() != "open" {
		t.Errorf("Expected baseline status open, got %v", v)
	}
	if _, ok := h.ValueAt("i1", "price", day(30)); ok {
		t.Error("Expected no value for unset field")
	}
}

func TestImportJSON_O2OList(t *testing.T) {
	doc := `{
	  "objects": [{"id": "a", "type": "t"}, {"id": "b", "type": "t"}],
	  "events": [],
	  "o2o": [{"source": "a", "target": "b", "qualifier": "next"}, {"source": "a", "target": "zz", "qualifier": "bad"}]
	}`
	if _, err := ImportJSON(context.Background(), strings.NewReader(doc), Options{}); !lterrors.IsCode(err, lterrors.CodeReferentialIntegrity) {
		t.Fatalf("Expected integrity error, got %v", err)
	}
	res := importJSON(t, doc, Options{Integrity: IntegrityDrop})
	if res.O2O.NumRows() != 1 || res.O2O.Value(0, ColQualifier).Str() != "next" {
		t.Errorf("Expected one o2o row, got %d", res.O2O.NumRows())
	}
	if res.Events.NumRows() != 0 || res.Events.NumCols() != 3 {
		t.Errorf("Expected empty events table with 3 columns, got %dx%d", res.Events.NumRows(), res.Events.NumCols())
	}
}

func TestImportJSON_UndeclaredValues(t *testing.T) {
	doc := `{
	  "objects": [],
	  "events": [
	    {"id": "e1", "type": "x", "time": "2024-01-01T00:00:00Z", "attributes": [{"name": "n", "value": 3}, {"name": "ok", "value": true}]},
	    {"id": "e2", "type": "x", "time": "2024-01-02T00:00:00Z", "attributes": [{"name": "n", "value": 2.5}]}
	  ]
	}`
	res := importJSON(t, doc, Options{})
	n, _ := res.Events.Column("n")
	if n.Kind != attr.KindFloat || n.Values[0].Float() != 3 {
		t.Errorf("Expected n widened to float, got %s %v", n.Kind, n.Values)
	}
	ok, _ := res.Events.Column("ok")
	if ok.Kind != attr.KindBool || !ok.Values[0].Bool() {
		t.Errorf("Expected boolean column, got %s", ok.Kind)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Code != lterrors.CodeTypeUnification {
		t.Errorf("Expected one unification warning, got %v", res.Warnings)
	}
}

func TestImport_DuplicateIDs(t *testing.T) {
	doc := `{
	  "objects": [{"id": "o1", "type": "order"}, {"id": "o1", "type": "item"}],
	  "events": []
	}`
	_, err := ImportJSON(context.Background(), strings.NewReader(doc), Options{})
	if !errors.Is(err, lterrors.ErrDuplicateID) {
		t.Fatalf("Expected duplicate id error, got %v", err)
	}
	res := importJSON(t, doc, Options{Integrity: IntegrityDrop})
	if res.Objects.NumRows() != 1 || res.Objects.Value(0, ColType).Str() != "order" {
		t.Errorf("Expected first declaration kept, got %d rows", res.Objects.NumRows())
	}
	res = importJSON(t, doc, Options{Integrity: IntegrityIgnore})
	if res.Objects.NumRows() != 2 {
		t.Errorf("Expected both rows kept, got %d", res.Objects.NumRows())
	}
}

func TestImportJSON_Errors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		code lterrors.Code
	}{
		{"missing events", `{"objects": []}`, lterrors.CodeStructural},
		{"missing objects", `{"events": []}`, lterrors.CodeStructural},
		{"not an object", `[]`, lterrors.CodeStructural},
		{"empty", ``, lterrors.CodeStructural},
		{"malformed", `{"objects": ?}`, lterrors.CodeStructural},
		{"truncated", `{"objects": [{"id": "o1"`, lterrors.CodeUnexpectedEOF},
		{"event without time", `{"objects": [], "events": [{"id": "e1", "type": "x"}]}`, lterrors.CodeStructural},
		{"bad event time", `{"objects": [], "events": [{"id": "e1", "type": "x", "time": "later"}]}`, lterrors.CodeTimestampParse},
		{"object without id", `{"objects": [{"type": "x"}], "events": []}`, lterrors.CodeStructural},
		{"declared type mismatch", `{"objectTypes": [{"name": "x", "attributes": [{"name": "n", "type": "integer"}]}],
		  "objects": [{"id": "o1", "type": "x", "attributes": [{"name": "n", "value": "many"}]}], "events": []}`, lterrors.CodeValueParse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := ImportJSON(context.Background(), strings.NewReader(tc.doc), Options{})
			if res != nil {
				t.Error("Expected no result on error")
			}
			if !lterrors.IsCode(err, tc.code) {
				t.Errorf("Expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestImportXML_Errors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		code lterrors.Code
	}{
		{"missing events", `<log><objects/></log>`, lterrors.CodeStructural},
		{"wrong root", `<ocel/>`, lterrors.CodeStructural},
		{"truncated", `<log><objects><object id="o1" type="x">`, lterrors.CodeUnexpectedEOF},
		{"event without time", `<log><objects/><events><event id="e1" type="x"/></events></log>`, lterrors.CodeStructural},
		{"bad attribute time", `<log><objects><object id="o1" type="x"><attributes><attribute name="a" time="soon">1</attribute></attributes></object></objects><events/></log>`, lterrors.CodeTimestampParse},
		{"relationship without id", `<log><objects/><events><event id="e1" type="x" time="2024-01-01T00:00:00Z"><objects><relationship qualifier="q"/></objects></event></events></log>`, lterrors.CodeStructural},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ImportXML(context.Background(), strings.NewReader(tc.doc), Options{})
			if !lterrors.IsCode(err, tc.code) {
				t.Errorf("Expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestImport_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ImportJSON(ctx, strings.NewReader(orderJSON), Options{}); !lterrors.IsCode(err, lterrors.CodeContextCanceled) {
		t.Errorf("Expected cancellation, got %v", err)
	}
	if _, err := ImportXML(ctx, strings.NewReader(orderXML), Options{}); !lterrors.IsCode(err, lterrors.CodeContextCanceled) {
		t.Errorf("Expected cancellation, got %v", err)
	}
}

func TestParseIntegrity(t *testing.T) {
	for in, want := range map[string]Integrity{"": IntegrityAbort, "Drop": IntegrityDrop, "ignore": IntegrityIgnore} {
		got, ok := ParseIntegrity(in)
		if !ok || got != want {
			t.Errorf("ParseIntegrity(%q): expected %s, got %s", in, want, got)
		}
	}
	if _, ok := ParseIntegrity("maybe"); ok {
		t.Error("Expected unknown policy to fail")
	}
}
