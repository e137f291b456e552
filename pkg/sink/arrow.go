package sink

import (
	"fmt"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"

	lterrors "github.com/logflow/logtables/pkg/errors"
	"github.com/logflow/logtables/pkg/table"
)

func writeArrow(path string, t *table.Table) error {
	return replaceFile(path, func(f *os.File) error {
		rec := t.Record(memory.DefaultAllocator)
		defer rec.Release()

		w, err := ipc.NewFileWriter(keepOpen{f}, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(memory.DefaultAllocator))
		if err != nil {
			return fmt.Errorf("failed to create ipc writer: %w", err)
		}
		if err := w.Write(rec); err != nil {
			w.Close()
			return fmt.Errorf("failed to write record batch: %w", err)
		}
		return w.Close()
	})
}

// ReadArrow loads a table from an Arrow IPC file written by Write.
func ReadArrow(path string) (*table.Table, error) {
	f, err := openForRead(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, lterrors.Wrap(err, lterrors.CodeIO, "failed to read arrow file").WithContext("path", path)
	}
	defer r.Close()

	recs := make([]arrow.Record, 0, r.NumRecords())
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.RecordAt(i)
		if err != nil {
			releaseAll(recs)
			return nil, lterrors.Wrap(err, lterrors.CodeIO, "failed to read record batch").WithContext("path", path)
		}
		recs = append(recs, rec)
	}
	defer releaseAll(recs)
	tbl := array.NewTableFromRecords(r.Schema(), recs)
	defer tbl.Release()

	t, err := table.FromArrowTable("", tbl)
	if err != nil {
		return nil, lterrors.Wrap(err, lterrors.CodeIO, "failed to convert arrow file").WithContext("path", path)
	}
	return t, nil
}

func releaseAll(recs []arrow.Record) {
	for _, rec := range recs {
		rec.Release()
	}
}
