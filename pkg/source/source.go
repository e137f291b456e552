// Package source opens log documents from local paths or object storage and
// removes gzip compression transparently.
package source

import (
	"bufio"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"

	lterrors "github.com/logflow/logtables/pkg/errors"
	"github.com/logflow/logtables/pkg/storage/s3"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Config configures Open.
type Config struct {
	S3 s3.Config

	// Progress, if set, receives the number of compressed bytes read after
	// every read.
	Progress func(n int64)

	// Logger receives debug diagnostics. Nil discards them.
	Logger *slog.Logger
}

// Info describes an opened document.
type Info struct {
	Location   string
	Size       int64 // compressed size when Compressed, -1 if unknown
	ModTime    time.Time
	Compressed bool
}

// Name is the file name with any .gz suffix removed.
func (i Info) Name() string {
	name := filepath.Base(strings.TrimPrefix(i.Location, s3.Scheme))
	if strings.HasSuffix(strings.ToLower(name), ".gz") {
		name = name[:len(name)-3]
	}
	return name
}

// Open opens location for reading. Gzip streams are recognised by their magic
// bytes and decompressed.
func Open(ctx context.Context, location string, cfg Config) (io.ReadCloser, Info, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var (
		raw  io.ReadCloser
		info = Info{Location: location, Size: -1}
	)
	if s3.IsURI(location) {
		bucket, key, err := s3.ParseURI(location)
		if err != nil {
			return nil, info, lterrors.Wrap(err, lterrors.CodeIO, "invalid object location").WithContext("location", location)
		}
		client, err := s3.NewClient(ctx, cfg.S3)
		if err != nil {
			return nil, info, lterrors.Wrap(err, lterrors.CodeIO, "failed to create s3 client")
		}
		body, obj, err := client.Reader(ctx, bucket, key)
		if err != nil {
			return nil, info, lterrors.Wrap(err, lterrors.CodeIO, "failed to open object").WithContext("location", location)
		}
		raw = body
		info.Size = obj.Size
		info.ModTime = obj.LastModified
	} else {
		f, err := os.Open(location)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, info, lterrors.FileNotFound(location)
			}
			return nil, info, lterrors.Wrap(err, lterrors.CodeIO, "failed to open file").WithContext("path", location)
		}
		st, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, info, lterrors.Wrap(err, lterrors.CodeIO, "failed to stat file").WithContext("path", location)
		}
		if st.IsDir() {
			f.Close()
			return nil, info, lterrors.New(lterrors.CodeIO, "location is a directory").WithContext("path", location)
		}
		raw = f
		info.Size = st.Size()
		info.ModTime = st.ModTime()
	}

	counted := &countingReader{r: raw, progress: cfg.Progress}
	br := bufio.NewReaderSize(counted, 256*1024)
	magic, err := br.Peek(len(gzipMagic))
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		raw.Close()
		return nil, info, lterrors.Wrap(err, lterrors.CodeIO, "failed to read").WithContext("location", location)
	}

	if len(magic) == len(gzipMagic) && magic[0] == gzipMagic[0] && magic[1] == gzipMagic[1] {
		zr, err := gzip.NewReader(br)
		if err != nil {
			raw.Close()
			return nil, info, lterrors.Wrap(err, lterrors.CodeIO, "invalid gzip stream").WithContext("location", location)
		}
		info.Compressed = true
		logger.Debug("opened compressed source", "location", location, "size", info.Size)
		return &readCloser{Reader: zr, close: func() error {
			zr.Close()
			return raw.Close()
		}}, info, nil
	}

	logger.Debug("opened source", "location", location, "size", info.Size)
	return &readCloser{Reader: br, close: raw.Close}, info, nil
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r *readCloser) Close() error { return r.close() }

// countingReader reports cumulative bytes read.
type countingReader struct {
	r        io.Reader
	n        atomic.Int64
	progress func(int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		total := c.n.Add(int64(n))
		if c.progress != nil {
			c.progress(total)
		}
	}
	return n, err
}
