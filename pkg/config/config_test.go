package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestManager(explicit string, env map[string]string) *Manager {
	m := NewManager(explicit)
	m.env = func(k string) string { return env[k] }
	return m
}

func TestLoad_Defaults(t *testing.T) {
	m := newTestManager("", nil)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg := m.Get()
	if cfg.Import.Integrity != "abort" {
		t.Errorf("Expected integrity abort, got %s", cfg.Import.Integrity)
	}
	if cfg.Output.Sink != "parquet" || cfg.Output.Compression != "snappy" {
		t.Errorf("Unexpected output defaults: %+v", cfg.Output)
	}
	if cfg.Watch.Debounce != 500*time.Millisecond {
		t.Errorf("Expected 500ms debounce, got %v", cfg.Watch.Debounce)
	}
}

func TestLoad_ExplicitFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logtables.yaml")
	yaml := `
import:
  date_format: "%d-%m-%Y %H:%M:%S"
  integrity: drop
  trace_attributes: true
export:
  trace_key: order
output:
  sink: duckdb
s3:
  region: eu-west-1
  use_path_style: true
watch:
  debounce: 2s
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	m := newTestManager(path, map[string]string{
		EnvIntegrity:    "IGNORE",
		EnvDebug:        "true",
		EnvOTLPEndpoint: "localhost:4317",
	})
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg := m.Get()

	if cfg.Import.DateFormat != "%d-%m-%Y %H:%M:%S" {
		t.Errorf("Expected date format from file, got %q", cfg.Import.DateFormat)
	}
	if cfg.Import.Integrity != "ignore" {
		t.Errorf("Expected env to override integrity, got %s", cfg.Import.Integrity)
	}
	if !cfg.Import.DebugOutput || !cfg.Import.TraceAttributes {
		t.Errorf("Expected debug and trace attributes on, got %+v", cfg.Import)
	}
	if cfg.Export.TraceKey != "order" || cfg.Output.Sink != "duckdb" {
		t.Errorf("Unexpected export/output: %+v %+v", cfg.Export, cfg.Output)
	}
	if cfg.Output.Compression != "snappy" {
		t.Errorf("Expected default compression to survive, got %s", cfg.Output.Compression)
	}
	if cfg.S3.Region != "eu-west-1" || !cfg.S3.UsePathStyle {
		t.Errorf("Unexpected s3 config: %+v", cfg.S3)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint != "localhost:4317" {
		t.Errorf("Expected telemetry from env, got %+v", cfg.Telemetry)
	}
	if cfg.Watch.Debounce != 2*time.Second {
		t.Errorf("Expected 2s debounce, got %v", cfg.Watch.Debounce)
	}

	paths := m.GetPaths()
	if len(paths) == 0 || paths[len(paths)-1] != path {
		t.Errorf("Expected %s to be the last loaded path, got %v", path, paths)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	if err := newTestManager(filepath.Join(dir, "missing.yaml"), nil).Load(); err == nil {
		t.Error("Expected error for a missing explicit file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("import: [unclosed"), 0644)
	if err := newTestManager(bad, nil).Load(); err == nil {
		t.Error("Expected error for invalid YAML")
	}

	if err := newTestManager("", map[string]string{EnvDebug: "maybe"}).Load(); err == nil {
		t.Error("Expected error for a non-boolean debug flag")
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	m := newTestManager("", nil)
	m.Load()
	m.Get().Output.Sink = "xlsx"
	if err := m.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded := newTestManager(path, nil)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if reloaded.Get().Output.Sink != "xlsx" {
		t.Errorf("Expected sink xlsx, got %s", reloaded.Get().Output.Sink)
	}
}
