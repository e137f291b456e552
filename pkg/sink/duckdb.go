package sink

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/logflow/logtables/pkg/attr"
	lterrors "github.com/logflow/logtables/pkg/errors"
	"github.com/logflow/logtables/pkg/table"
)

// SQLType returns the DuckDB column type for a column kind.
func SQLType(k attr.Kind) string {
	switch k {
	case attr.KindInt:
		return "BIGINT"
	case attr.KindFloat:
		return "DOUBLE"
	case attr.KindBool:
		return "BOOLEAN"
	case attr.KindTimestamp:
		return "TIMESTAMP"
	default:
		return "VARCHAR"
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// writeDuckDB creates a fresh database at path with one SQL table per table.
// Timestamps are stored in UTC.
func writeDuckDB(ctx context.Context, path string, tables []*table.Table) error {
	tmp := path + ".tmp"
	os.Remove(tmp)

	db, err := sql.Open("duckdb", tmp)
	if err != nil {
		return lterrors.Wrap(err, lterrors.CodeWriteFailed, "failed to open duckdb").WithContext("path", path)
	}
	for _, t := range tables {
		if err := insertTable(ctx, db, t); err != nil {
			db.Close()
			os.Remove(tmp)
			return lterrors.Wrap(err, lterrors.CodeWriteFailed, "failed to write table").
				WithContext("path", path).
				WithContext("table", t.Name())
		}
	}
	if err := db.Close(); err != nil {
		os.Remove(tmp)
		return lterrors.Wrap(err, lterrors.CodeWriteFailed, "failed to close duckdb").WithContext("path", path)
	}
	os.Remove(tmp + ".wal")
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return lterrors.Wrap(err, lterrors.CodeWriteFailed, "failed to rename database").WithContext("path", path)
	}
	return nil
}

func insertTable(ctx context.Context, db *sql.DB, t *table.Table) error {
	cols := make([]string, t.NumCols())
	names := make([]string, t.NumCols())
	marks := make([]string, t.NumCols())
	for i, c := range t.Columns() {
		names[i] = quoteIdent(c.Name)
		cols[i] = names[i] + " " + SQLType(c.Kind)
		marks[i] = "?"
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(t.Name()), strings.Join(cols, ", "))); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	if t.NumRows() == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(t.Name()), strings.Join(names, ", "), strings.Join(marks, ", ")))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]interface{}, t.NumCols())
	for r := 0; r < t.NumRows(); r++ {
		for c, v := range t.Row(r) {
			args[c] = sqlValue(v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert row %d: %w", r, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func sqlValue(v attr.Value) interface{} {
	switch v.Kind() {
	case attr.KindNull:
		return nil
	case attr.KindTimestamp:
		return v.Time().UTC()
	case attr.KindList, attr.KindMap:
		return v.String()
	}
	return v.Native()
}
