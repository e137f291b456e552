package table

import (
	"fmt"
	"sort"

	"github.com/logflow/logtables/pkg/attr"
)

// Column is a finalized column. Every value is Null or of Kind.
type Column struct {
	Name   string
	Kind   attr.Kind
	Values []attr.Value
}

// Table is an immutable set of equally long columns in a fixed order.
type Table struct {
	name    string
	columns []*Column
	index   map[string]int
	rows    int
}

// New assembles a table. All columns must have the same length and distinct
// names.
func New(name string, columns []*Column) (*Table, error) {
	t := &Table{name: name, columns: columns, index: make(map[string]int, len(columns))}
	for i, c := range columns {
		if _, dup := t.index[c.Name]; dup {
			return nil, fmt.Errorf("table %s: duplicate column %q", name, c.Name)
		}
		t.index[c.Name] = i
		if i == 0 {
			t.rows = len(c.Values)
		} else if len(c.Values) != t.rows {
			return nil, fmt.Errorf("table %s: column %q has %d rows, expected %d", name, c.Name, len(c.Values), t.rows)
		}
	}
	return t, nil
}

// Empty returns a table with the given columns and no rows. Column kinds are
// Null.
func Empty(name string, columns ...string) *Table {
	cols := make([]*Column, len(columns))
	for i, c := range columns {
		cols[i] = &Column{Name: c, Values: []attr.Value{}}
	}
	t, _ := New(name, cols)
	return t
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// NumRows returns the row count.
func (t *Table) NumRows() int { return t.rows }

// NumCols returns the column count.
func (t *Table) NumCols() int { return len(t.columns) }

// Columns returns the columns in order. The slice must not be modified.
func (t *Table) Columns() []*Column { return t.columns }

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// Value returns the cell at row i of the named column, Null when the column
// does not exist.
func (t *Table) Value(i int, name string) attr.Value {
	c, ok := t.Column(name)
	if !ok {
		return attr.Null()
	}
	return c.Values[i]
}

// Row returns row i in column order.
func (t *Table) Row(i int) []attr.Value {
	row := make([]attr.Value, len(t.columns))
	for j, c := range t.columns {
		row[j] = c.Values[i]
	}
	return row
}

// Select returns a table holding the given rows, in the given order.
func (t *Table) Select(rows []int) *Table {
	cols := make([]*Column, len(t.columns))
	for j, c := range t.columns {
		values := make([]attr.Value, len(rows))
		for k, r := range rows {
			values[k] = c.Values[r]
		}
		cols[j] = &Column{Name: c.Name, Kind: c.Kind, Values: values}
	}
	out, _ := New(t.name, cols)
	return out
}

// SortStable returns the row order sorted by less, equal rows keeping their
// current order.
func (t *Table) SortStable(less func(a, b int) bool) []int {
	order := make([]int, t.rows)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool { return less(order[x], order[y]) })
	return order
}

// Equal reports whether both tables have the same columns, in the same order,
// with the same kinds and cell values.
func (t *Table) Equal(o *Table) bool {
	if t.rows != o.rows || len(t.columns) != len(o.columns) {
		return false
	}
	for j, c := range t.columns {
		oc := o.columns[j]
		if c.Name != oc.Name || c.Kind != oc.Kind {
			return false
		}
		for i := range c.Values {
			if !c.Values[i].Equal(oc.Values[i]) {
				return false
			}
		}
	}
	return true
}

// Diff describes the first difference between two tables, or "" when they
// are equal.
func (t *Table) Diff(o *Table) string {
	if t.rows != o.rows {
		return fmt.Sprintf("row count %d != %d", t.rows, o.rows)
	}
	if len(t.columns) != len(o.columns) {
		return fmt.Sprintf("columns %v != %v", t.ColumnNames(), o.ColumnNames())
	}
	for j, c := range t.columns {
		oc := o.columns[j]
		if c.Name != oc.Name {
			return fmt.Sprintf("column %d: %q != %q", j, c.Name, oc.Name)
		}
		if c.Kind != oc.Kind {
			return fmt.Sprintf("column %q: kind %s != %s", c.Name, c.Kind, oc.Kind)
		}
		for i := range c.Values {
			if !c.Values[i].Equal(oc.Values[i]) {
				return fmt.Sprintf("column %q row %d: %v != %v", c.Name, i, c.Values[i], oc.Values[i])
			}
		}
	}
	return ""
}
