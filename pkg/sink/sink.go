// Package sink persists finished tables as Parquet, Arrow IPC, XLSX or DuckDB
// and reads Parquet and Arrow files back.
package sink

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	lterrors "github.com/logflow/logtables/pkg/errors"
	"github.com/logflow/logtables/pkg/table"
)

// Kind selects an output backend.
type Kind string

const (
	Parquet Kind = "parquet"
	Arrow   Kind = "arrow"
	XLSX    Kind = "xlsx"
	DuckDB  Kind = "duckdb"
)

// Kinds lists every backend.
var Kinds = []Kind{Parquet, Arrow, XLSX, DuckDB}

// ParseKind parses a backend name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", lterrors.UnsupportedFormat(s).WithContext("accepted", "parquet, arrow, xlsx, duckdb")
}

// Options configures Write.
type Options struct {
	// Compression applies to Parquet output. Defaults to snappy.
	Compression Compression

	// Logger receives debug diagnostics. Nil discards them.
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

// Write stores tables under dir and returns the paths it created. Parquet and
// Arrow write one file per table concurrently; XLSX and DuckDB write a single
// file holding every table.
func Write(ctx context.Context, kind Kind, dir string, tables []*table.Table, opts Options) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, lterrors.Wrap(err, lterrors.CodeWriteFailed, "failed to create directory").WithContext("path", dir)
	}
	log := opts.logger().With("sink", string(kind))

	switch kind {
	case Parquet, Arrow:
		paths := make([]string, len(tables))
		g, ctx := errgroup.WithContext(ctx)
		for i, t := range tables {
			i, t := i, t
			paths[i] = filepath.Join(dir, t.Name()+"."+string(kind))
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return lterrors.ContextCanceled("sink.write", err)
				}
				var err error
				if kind == Parquet {
					err = writeParquet(paths[i], t, opts.Compression)
				} else {
					err = writeArrow(paths[i], t)
				}
				if err != nil {
					return err
				}
				log.Debug("wrote table", "table", t.Name(), "rows", t.NumRows(), "path", paths[i])
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return paths, nil

	case XLSX:
		path := filepath.Join(dir, "tables.xlsx")
		if err := writeXLSX(ctx, path, tables); err != nil {
			return nil, err
		}
		log.Debug("wrote workbook", "tables", len(tables), "path", path)
		return []string{path}, nil

	case DuckDB:
		path := filepath.Join(dir, "tables.duckdb")
		if err := writeDuckDB(ctx, path, tables); err != nil {
			return nil, err
		}
		log.Debug("wrote database", "tables", len(tables), "path", path)
		return []string{path}, nil
	}
	return nil, lterrors.UnsupportedFormat(string(kind))
}

// ReadTable loads a table written by Write from a .parquet or .arrow file.
func ReadTable(ctx context.Context, path string) (*table.Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return ReadParquet(ctx, path)
	case ".arrow":
		return ReadArrow(path)
	}
	return nil, lterrors.UnsupportedFormat(filepath.Ext(path)).WithContext("path", path)
}

func openForRead(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, lterrors.FileNotFound(path)
		}
		return nil, lterrors.Wrap(err, lterrors.CodeIO, "failed to open file").WithContext("path", path)
	}
	return f, nil
}

// keepOpen hides Close from writers that close their sink, leaving the file
// to replaceFile.
type keepOpen struct{ io.Writer }

// replaceFile writes to a temporary file beside path and renames it into
// place when write succeeds.
func replaceFile(path string, write func(f *os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return lterrors.Wrap(err, lterrors.CodeWriteFailed, "failed to create temp file").WithContext("path", path)
	}
	tmpPath := tmp.Name()
	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return lterrors.Wrap(err, lterrors.CodeWriteFailed, "failed to write table").WithContext("path", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return lterrors.Wrap(err, lterrors.CodeWriteFailed, "failed to close temp file").WithContext("path", path)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return lterrors.Wrap(err, lterrors.CodeWriteFailed, "failed to rename temp file").WithContext("path", path)
	}
	return nil
}
