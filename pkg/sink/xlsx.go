package sink

import (
	"context"
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/logflow/logtables/pkg/attr"
	lterrors "github.com/logflow/logtables/pkg/errors"
	"github.com/logflow/logtables/pkg/table"
)

// excelMaxRows is the sheet row limit, header included.
const excelMaxRows = 1048576

// writeXLSX writes one sheet per table with a header row of column names.
// Timestamps are written as UTC RFC 3339 text; lists and maps as JSON.
func writeXLSX(ctx context.Context, path string, tables []*table.Table) error {
	for _, t := range tables {
		if t.NumRows()+1 > excelMaxRows {
			return lterrors.Newf(lterrors.CodeWriteFailed, "table %s has too many rows for a sheet", t.Name()).
				WithContext("rows", t.NumRows())
		}
	}

	return replaceFile(path, func(out *os.File) error {
		f := excelize.NewFile()
		defer f.Close()

		for i, t := range tables {
			if i == 0 {
				if err := f.SetSheetName(f.GetSheetName(0), t.Name()); err != nil {
					return fmt.Errorf("failed to name sheet %s: %w", t.Name(), err)
				}
			} else if _, err := f.NewSheet(t.Name()); err != nil {
				return fmt.Errorf("failed to add sheet %s: %w", t.Name(), err)
			}
			if err := writeSheet(ctx, f, t); err != nil {
				return err
			}
		}
		return f.Write(out)
	})
}

func writeSheet(ctx context.Context, f *excelize.File, t *table.Table) error {
	sw, err := f.NewStreamWriter(t.Name())
	if err != nil {
		return fmt.Errorf("failed to open sheet %s: %w", t.Name(), err)
	}

	header := make([]interface{}, t.NumCols())
	for i, name := range t.ColumnNames() {
		header[i] = name
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	row := make([]interface{}, t.NumCols())
	for r := 0; r < t.NumRows(); r++ {
		if r%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return lterrors.ContextCanceled("sink.xlsx", err)
			}
		}
		for c, v := range t.Row(r) {
			row[c] = cellValue(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}
	return sw.Flush()
}

func cellValue(v attr.Value) interface{} {
	switch v.Kind() {
	case attr.KindNull:
		return nil
	case attr.KindInt:
		return v.Int()
	case attr.KindFloat:
		return v.Float()
	case attr.KindBool:
		return v.Bool()
	}
	return v.String()
}
