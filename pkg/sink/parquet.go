package sink

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	lterrors "github.com/logflow/logtables/pkg/errors"
	"github.com/logflow/logtables/pkg/table"
)

// Compression represents Parquet compression options.
type Compression uint8

const (
	CompressionSnappy Compression = iota
	CompressionNone
	CompressionGzip
	CompressionZstd
	CompressionLZ4
)

// String returns the compression type name.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "snappy"
	}
}

// ParseCompression parses a compression name. The empty string is snappy.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "snappy":
		return CompressionSnappy, nil
	case "none", "uncompressed":
		return CompressionNone, nil
	case "gzip":
		return CompressionGzip, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	}
	return 0, fmt.Errorf("unknown compression %q", s)
}

func (c Compression) codec() compress.Compression {
	switch c {
	case CompressionNone:
		return compress.Codecs.Uncompressed
	case CompressionGzip:
		return compress.Codecs.Gzip
	case CompressionZstd:
		return compress.Codecs.Zstd
	case CompressionLZ4:
		return compress.Codecs.Lz4
	default:
		return compress.Codecs.Snappy
	}
}

func writeParquet(path string, t *table.Table, c Compression) error {
	return replaceFile(path, func(f *os.File) error {
		rec := t.Record(memory.DefaultAllocator)
		defer rec.Release()

		writerProps := parquet.NewWriterProperties(
			parquet.WithCompression(c.codec()),
			parquet.WithDictionaryDefault(true),
			parquet.WithDataPageSize(1024*1024), // 1MB
			parquet.WithVersion(parquet.V2_LATEST),
		)
		arrowProps := pqarrow.NewArrowWriterProperties(
			pqarrow.WithStoreSchema(),
		)

		w, err := pqarrow.NewFileWriter(rec.Schema(), keepOpen{f}, writerProps, arrowProps)
		if err != nil {
			return fmt.Errorf("failed to create parquet writer: %w", err)
		}
		if err := w.Write(rec); err != nil {
			w.Close()
			return fmt.Errorf("failed to write record batch: %w", err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("failed to close parquet writer: %w", err)
		}
		return nil
	})
}

// ReadParquet loads a table from a Parquet file written by Write. Column
// kinds and the table name come from the file's key-value metadata.
func ReadParquet(ctx context.Context, path string) (*table.Table, error) {
	f, err := openForRead(path)
	if err != nil {
		return nil, err
	}

	rdr, err := file.NewParquetReader(f, file.WithReadProps(parquet.NewReaderProperties(memory.DefaultAllocator)))
	if err != nil {
		f.Close()
		return nil, lterrors.Wrap(err, lterrors.CodeIO, "failed to read parquet").WithContext("path", path)
	}
	defer rdr.Close()

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, lterrors.Wrap(err, lterrors.CodeIO, "failed to read parquet").WithContext("path", path)
	}
	tbl, err := fr.ReadTable(ctx)
	if err != nil {
		return nil, lterrors.Wrap(err, lterrors.CodeIO, "failed to read parquet").WithContext("path", path)
	}
	defer tbl.Release()

	kv := rdr.MetaData().KeyValueMetadata()
	t, err := table.FromArrowTableMetadata("", tbl, arrow.NewMetadata(kv.Keys(), kv.Values()))
	if err != nil {
		return nil, lterrors.Wrap(err, lterrors.CodeIO, "failed to convert parquet").WithContext("path", path)
	}
	return t, nil
}
