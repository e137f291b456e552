// Package table accumulates rows of typed attribute values into columns and
// finalizes them into immutable tables with one unified kind per column.
package table

import (
	"context"
	"runtime"
	"strings"

	"github.com/RoaringBitmap/roaring"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/logflow/logtables/pkg/attr"
	lterrors "github.com/logflow/logtables/pkg/errors"
	"github.com/logflow/logtables/pkg/telemetry"
)

// column is a sparse accumulator: set holds the row numbers that received a
// value and values holds those values in row order.
type column struct {
	name   string
	set    *roaring.Bitmap
	values []attr.Value
}

// Builder accumulates rows. Columns are created the first time a key is set
// and keep first-seen order. A Builder is not safe for concurrent use.
type Builder struct {
	name  string
	cols  []*column
	index map[string]int
	rows  int
}

// NewBuilder returns an empty builder for a table called name. Columns listed
// in fixed are created up front, in order, even if they never get a value.
func NewBuilder(name string, fixed ...string) *Builder {
	b := &Builder{name: name, index: make(map[string]int)}
	for _, key := range fixed {
		b.column(key)
	}
	return b
}

// Row starts a new row and returns its index.
func (b *Builder) Row() int {
	b.rows++
	return b.rows - 1
}

// Rows returns the number of rows started so far.
func (b *Builder) Rows() int { return b.rows }

// Set stores v under key in the current row. Setting a key twice in one row
// keeps the last value; setting Null clears it.
func (b *Builder) Set(key string, v attr.Value) {
	if b.rows == 0 {
		b.Row()
	}
	row := uint32(b.rows - 1)
	c := b.column(key)

	if c.set.Contains(row) {
		// The current row is always the highest set row of a column.
		c.values = c.values[:len(c.values)-1]
		c.set.Remove(row)
	}
	if v.IsNull() {
		return
	}
	c.set.Add(row)
	c.values = append(c.values, v)
}

func (b *Builder) column(key string) *column {
	if i, ok := b.index[key]; ok {
		return b.cols[i]
	}
	c := &column{name: key, set: roaring.New()}
	b.index[key] = len(b.cols)
	b.cols = append(b.cols, c)
	return c
}

// Finish pads every column to the row count with nulls, unifies the kind of
// each column and converts its values. A column that observed more than one
// kind yields a TypeUnification warning. Columns are finalized concurrently.
func (b *Builder) Finish(ctx context.Context) (t *Table, warnings []lterrors.Warning, err error) {
	ctx, span := telemetry.StartSpan(ctx, "table.finish",
		attribute.String("table.name", b.name),
		attribute.Int("table.rows", b.rows),
		attribute.Int("table.columns", len(b.cols)))
	defer func() { telemetry.EndSpan(span, err) }()

	out := make([]*Column, len(b.cols))
	warns := make([]*lterrors.Warning, len(b.cols))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, c := range b.cols {
		i, c := i, c
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return lterrors.ContextCanceled("table.finish", err)
			}
			col, warn, err := finishColumn(c, b.rows)
			if err != nil {
				return err
			}
			out[i] = col
			warns[i] = warn
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	for _, w := range warns {
		if w != nil {
			w.Context = append([]lterrors.Field{{Key: "table", Value: b.name}}, w.Context...)
			warnings = append(warnings, *w)
		}
	}
	t, err = New(b.name, out)
	if err != nil {
		return nil, nil, err
	}
	return t, warnings, nil
}

func finishColumn(c *column, rows int) (*Column, *lterrors.Warning, error) {
	var seen uint16
	for _, v := range c.values {
		seen |= 1 << v.Kind()
	}
	kind := attr.KindNull
	var observed []string
	for k := attr.KindString; k <= attr.KindMap; k++ {
		if seen&(1<<k) != 0 {
			kind = attr.Unify(kind, k)
			observed = append(observed, k.String())
		}
	}

	values := make([]attr.Value, rows)
	it := c.set.Iterator()
	for j := 0; it.HasNext(); j++ {
		row := it.Next()
		v, err := c.values[j].Convert(kind, nil)
		if err != nil {
			return nil, nil, lterrors.Wrap(err, lterrors.CodeValueParse, "column conversion failed").
				WithContext("column", c.name).
				WithContext("row", row)
		}
		values[row] = v
	}

	var warn *lterrors.Warning
	if len(observed) > 1 {
		w := lterrors.NewWarning(lterrors.CodeTypeUnification, "column widened",
			"column", c.name,
			"observed", strings.Join(observed, "|"),
			"to", kind.String())
		warn = &w
	}
	return &Column{Name: c.name, Kind: kind, Values: values}, warn, nil
}
