package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	lterrors "github.com/logflow/logtables/pkg/errors"
)

const doc = `<?xml version="1.0"?><log xes.version="1.0"></log>`

func writeGzip(t *testing.T, path string, data string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write([]byte(data)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	f.Close()
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	return string(data)
}

func TestOpen_Plain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.xes")
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	var seen int64
	rc, info, err := Open(context.Background(), path, Config{Progress: func(n int64) { seen = n }})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if got := readAll(t, rc); got != doc {
		t.Errorf("Expected %q, got %q", doc, got)
	}
	if info.Compressed {
		t.Error("Expected uncompressed source")
	}
	if info.Size != int64(len(doc)) {
		t.Errorf("Expected size %d, got %d", len(doc), info.Size)
	}
	if seen != int64(len(doc)) {
		t.Errorf("Expected progress %d, got %d", len(doc), seen)
	}
	if info.Name() != "log.xes" {
		t.Errorf("Expected name log.xes, got %s", info.Name())
	}
}

func TestOpen_GzipByMagic(t *testing.T) {
	dir := t.TempDir()

	// Compressed content is recognised with or without the suffix.
	for _, name := range []string{"log.xes.gz", "log.xes"} {
		path := filepath.Join(dir, name)
		writeGzip(t, path, doc)

		rc, info, err := Open(context.Background(), path, Config{})
		if err != nil {
			t.Fatalf("Open %s failed: %v", name, err)
		}
		if got := readAll(t, rc); got != doc {
			t.Errorf("%s: expected %q, got %q", name, doc, got)
		}
		if !info.Compressed {
			t.Errorf("%s: expected compressed source", name)
		}
		if info.Name() != "log.xes" {
			t.Errorf("%s: expected name log.xes, got %s", name, info.Name())
		}
	}
}

func TestOpen_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xes")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	rc, _, err := Open(context.Background(), path, Config{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if got := readAll(t, rc); got != "" {
		t.Errorf("Expected empty content, got %q", got)
	}
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()

	_, _, err := Open(context.Background(), filepath.Join(dir, "missing.xes"), Config{})
	if !errors.Is(err, lterrors.ErrFileNotFound) {
		t.Errorf("Expected %s, got %v", lterrors.CodeFileNotFound, err)
	}

	_, _, err = Open(context.Background(), dir, Config{})
	if !lterrors.IsCode(err, lterrors.CodeIO) {
		t.Errorf("Expected %s for a directory, got %v", lterrors.CodeIO, err)
	}

	_, _, err = Open(context.Background(), "s3://bucket-only", Config{})
	if !lterrors.IsCode(err, lterrors.CodeIO) {
		t.Errorf("Expected %s for a bad object location, got %v", lterrors.CodeIO, err)
	}
}
