package table

import (
	"context"
	"testing"
	"time"

	"github.com/apache/arrow/go/v14/arrow/memory"

	"github.com/logflow/logtables/pkg/attr"
	lterrors "github.com/logflow/logtables/pkg/errors"
)

func buildSample(t *testing.T) (*Table, []lterrors.Warning) {
	t.Helper()
	b := NewBuilder("events")

	b.Row()
	b.Set("concept:name", attr.String("A"))
	b.Set("cost", attr.Int(3))

	b.Row()
	b.Set("concept:name", attr.String("B"))
	b.Set("cost", attr.Float(2.5))
	b.Set("note", attr.String("first"))
	b.Set("note", attr.String("second"))

	b.Row()
	b.Set("concept:name", attr.String("C"))
	b.Set("flag", attr.Bool(true))
	b.Set("flag", attr.Null())

	tbl, warnings, err := b.Finish(context.Background())
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	return tbl, warnings
}

func TestBuilder_PaddingAndOrder(t *testing.T) {
	tbl, _ := buildSample(t)

	if tbl.NumRows() != 3 {
		t.Fatalf("Expected 3 rows, got %d", tbl.NumRows())
	}
	want := []string{"concept:name", "cost", "note", "flag"}
	got := tbl.ColumnNames()
	if len(got) != len(want) {
		t.Fatalf("Expected columns %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Column %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	// Column totality: every column has a cell for every row.
	for _, c := range tbl.Columns() {
		if len(c.Values) != tbl.NumRows() {
			t.Errorf("Column %s: expected %d cells, got %d", c.Name, tbl.NumRows(), len(c.Values))
		}
	}

	if v := tbl.Value(1, "note"); v.Str() != "second" {
		t.Errorf("Expected last value to win, got %v", v)
	}
	if v := tbl.Value(0, "note"); !v.IsNull() {
		t.Errorf("Expected padding null, got %v", v)
	}

	flag, _ := tbl.Column("flag")
	if flag.Kind != attr.KindNull {
		t.Errorf("Expected cleared column to stay null, got %s", flag.Kind)
	}
}

func TestBuilder_Unification(t *testing.T) {
	tbl, warnings := buildSample(t)

	cost, ok := tbl.Column("cost")
	if !ok {
		t.Fatal("Expected cost column")
	}
	if cost.Kind != attr.KindFloat {
		t.Errorf("Expected float, got %s", cost.Kind)
	}
	if !cost.Values[0].Equal(attr.Float(3)) {
		t.Errorf("Expected 3.0, got %v", cost.Values[0])
	}

	if len(warnings) != 1 {
		t.Fatalf("Expected 1 warning, got %d", len(warnings))
	}
	w := warnings[0]
	if w.Code != lterrors.CodeTypeUnification {
		t.Errorf("Expected %s, got %s", lterrors.CodeTypeUnification, w.Code)
	}
	if w.String() != "[E302] column widened (table=events, column=cost, observed=int|float, to=float)" {
		t.Errorf("Unexpected warning %q", w.String())
	}
}

func TestBuilder_WidenToString(t *testing.T) {
	b := NewBuilder("t")
	b.Row()
	b.Set("x", attr.Int(1))
	b.Row()
	b.Set("x", attr.String("one"))
	b.Row()
	b.Set("x", attr.Bool(false))

	tbl, warnings, err := b.Finish(context.Background())
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	x, _ := tbl.Column("x")
	if x.Kind != attr.KindString {
		t.Fatalf("Expected string, got %s", x.Kind)
	}
	want := []string{"1", "one", "false"}
	for i, s := range want {
		if x.Values[i].Str() != s {
			t.Errorf("Row %d: expected %q, got %q", i, s, x.Values[i].Str())
		}
	}
	if len(warnings) != 1 {
		t.Errorf("Expected 1 warning, got %d", len(warnings))
	}
}

func TestBuilder_FixedColumns(t *testing.T) {
	b := NewBuilder("relations", "ocel:eid", "ocel:type")
	b.Row()
	b.Set("ocel:eid", attr.String("e1"))

	tbl, _, err := b.Finish(context.Background())
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	if tbl.NumCols() != 2 {
		t.Fatalf("Expected 2 columns, got %d", tbl.NumCols())
	}
	if !tbl.Value(0, "ocel:type").IsNull() {
		t.Error("Expected null type")
	}
}

func TestBuilder_Canceled(t *testing.T) {
	b := NewBuilder("t")
	b.Set("a", attr.Int(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := b.Finish(ctx); err == nil {
		t.Error("Expected cancellation error")
	}
}

func TestTable_SelectAndSort(t *testing.T) {
	b := NewBuilder("t")
	for _, n := range []int64{3, 1, 2, 1} {
		b.Row()
		b.Set("n", attr.Int(n))
	}
	b.Row()
	b.Set("n", attr.Int(0))
	b.Set("tag", attr.String("last"))

	tbl, _, err := b.Finish(context.Background())
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	order := tbl.SortStable(func(a, b int) bool {
		return tbl.Value(a, "n").Int() < tbl.Value(b, "n").Int()
	})
	want := []int{4, 1, 3, 2, 0}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("Expected order %v, got %v", want, order)
		}
	}

	sorted := tbl.Select(order)
	if sorted.Value(0, "tag").Str() != "last" {
		t.Errorf("Expected tag to follow its row, got %v", sorted.Value(0, "tag"))
	}
	if sorted.NumRows() != 5 {
		t.Errorf("Expected 5 rows, got %d", sorted.NumRows())
	}
	if tbl.Equal(sorted) {
		t.Error("Expected reordered table to differ")
	}
	if d := tbl.Diff(tbl.Select([]int{0, 1, 2, 3, 4})); d != "" {
		t.Errorf("Expected identity selection to be equal: %s", d)
	}
}

func TestTable_ArrowRoundTrip(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 123456789, time.UTC)
	b := NewBuilder("events", "empty")
	b.Row()
	b.Set("s", attr.String("x"))
	b.Set("i", attr.Int(7))
	b.Set("f", attr.Float(1.25))
	b.Set("b", attr.Bool(true))
	b.Set("ts", attr.Timestamp(ts))
	b.Set("l", attr.List(attr.Int(1), attr.String("two")))
	b.Set("m", attr.Map(map[string]attr.Value{"k": attr.Bool(false)}))
	b.Row()
	b.Set("s", attr.String("y"))

	tbl, _, err := b.Finish(context.Background())
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rec := tbl.Record(mem)
	defer rec.Release()

	if rec.NumRows() != 2 || rec.NumCols() != 8 {
		t.Fatalf("Expected 2x8 record, got %dx%d", rec.NumRows(), rec.NumCols())
	}

	back, err := FromRecord("", rec)
	if err != nil {
		t.Fatalf("FromRecord failed: %v", err)
	}
	if back.Name() != "events" {
		t.Errorf("Expected name events, got %s", back.Name())
	}
	if d := tbl.Diff(back); d != "" {
		t.Errorf("Round trip mismatch: %s", d)
	}
}

func TestNew_RaggedColumns(t *testing.T) {
	_, err := New("t", []*Column{
		{Name: "a", Values: make([]attr.Value, 2)},
		{Name: "b", Values: make([]attr.Value, 3)},
	})
	if err == nil {
		t.Error("Expected error for ragged columns")
	}
}
