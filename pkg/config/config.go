// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < explicit file < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/logflow/logtables/pkg/storage/s3"
)

// Environment variables read by Load.
const (
	EnvDateFormat   = "LOGTABLES_DATE_FORMAT"
	EnvDebug        = "LOGTABLES_DEBUG"
	EnvIntegrity    = "LOGTABLES_INTEGRITY"
	EnvOTLPEndpoint = "LOGTABLES_OTLP_ENDPOINT"
)

// Config holds all logtables configuration.
type Config struct {
	Version int `yaml:"version"`

	Import    ImportConfig    `yaml:"import"`
	Export    ExportConfig    `yaml:"export"`
	Output    OutputConfig    `yaml:"output"`
	S3        s3.Config       `yaml:"s3"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ImportConfig controls importers.
type ImportConfig struct {
	DateFormat      string `yaml:"date_format"` // strftime, empty = ISO 8601
	DebugOutput     bool   `yaml:"debug_output"`
	Integrity       string `yaml:"integrity"` // abort | drop | ignore
	TraceAttributes bool   `yaml:"trace_attributes"`
	SortByTimestamp bool   `yaml:"sort_by_timestamp"`
}

// ExportConfig controls the XES exporter.
type ExportConfig struct {
	TraceKey string `yaml:"trace_key"`
}

// OutputConfig controls where tables go.
type OutputConfig struct {
	Sink        string `yaml:"sink"`        // parquet | arrow | xlsx | duckdb
	Compression string `yaml:"compression"` // snappy | zstd | gzip | lz4 | none
	Dir         string `yaml:"dir"`
}

// TelemetryConfig for optional tracing.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	Insecure    bool    `yaml:"insecure"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// WatchConfig for the watch command.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Import: ImportConfig{
			Integrity: "abort",
		},
		Output: OutputConfig{
			Sink:        "parquet",
			Compression: "snappy",
			Dir:         ".",
		},
		S3: s3.DefaultConfig(),
		Telemetry: TelemetryConfig{
			ServiceName: "logtables",
			Insecure:    true,
			SampleRate:  1.0,
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	paths    []string // Paths that were loaded
	explicit string
	env      func(string) string
}

// NewManager creates a new configuration manager. explicit names a file
// loaded after the standard locations; it must exist when set.
func NewManager(explicit string) *Manager {
	return &Manager{
		config:   Default(),
		explicit: explicit,
		env:      os.Getenv,
	}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range m.getConfigPaths() {
		if err := m.loadFile(path); err != nil {
			// Missing standard files are fine
			if !os.IsNotExist(err) {
				return fmt.Errorf("config %s: %w", path, err)
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}
	if m.explicit != "" {
		if err := m.loadFile(m.explicit); err != nil {
			return fmt.Errorf("config %s: %w", m.explicit, err)
		}
		m.paths = append(m.paths, m.explicit)
	}

	return m.loadEnv()
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	// System config
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/logtables/config.yaml")
	}

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".logtables", "config.yaml"))
	}

	// Project config (current directory)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".logtables.yaml"))
	}

	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return err
	}

	// Booleans can only be switched on by a file; yaml.v3 leaves absent
	// keys at their zero value.
	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	c := m.config

	// Import
	if src.Import.DateFormat != "" {
		c.Import.DateFormat = src.Import.DateFormat
	}
	if src.Import.DebugOutput {
		c.Import.DebugOutput = true
	}
	if src.Import.Integrity != "" {
		c.Import.Integrity = src.Import.Integrity
	}
	if src.Import.TraceAttributes {
		c.Import.TraceAttributes = true
	}
	if src.Import.SortByTimestamp {
		c.Import.SortByTimestamp = true
	}

	// Export
	if src.Export.TraceKey != "" {
		c.Export.TraceKey = src.Export.TraceKey
	}

	// Output
	if src.Output.Sink != "" {
		c.Output.Sink = src.Output.Sink
	}
	if src.Output.Compression != "" {
		c.Output.Compression = src.Output.Compression
	}
	if src.Output.Dir != "" {
		c.Output.Dir = src.Output.Dir
	}

	// S3
	if src.S3.Region != "" {
		c.S3.Region = src.S3.Region
	}
	if src.S3.Endpoint != "" {
		c.S3.Endpoint = src.S3.Endpoint
	}
	if src.S3.UsePathStyle {
		c.S3.UsePathStyle = true
	}
	if src.S3.AccessKeyID != "" {
		c.S3.AccessKeyID = src.S3.AccessKeyID
	}
	if src.S3.SecretAccessKey != "" {
		c.S3.SecretAccessKey = src.S3.SecretAccessKey
	}
	if src.S3.SessionToken != "" {
		c.S3.SessionToken = src.S3.SessionToken
	}
	if src.S3.DownloadTimeout != 0 {
		c.S3.DownloadTimeout = src.S3.DownloadTimeout
	}

	// Telemetry
	if src.Telemetry.Enabled {
		c.Telemetry.Enabled = true
	}
	if src.Telemetry.Endpoint != "" {
		c.Telemetry.Endpoint = src.Telemetry.Endpoint
	}
	if src.Telemetry.ServiceName != "" {
		c.Telemetry.ServiceName = src.Telemetry.ServiceName
	}
	if src.Telemetry.SampleRate != 0 {
		c.Telemetry.SampleRate = src.Telemetry.SampleRate
	}

	// Watch
	if src.Watch.Debounce != 0 {
		c.Watch.Debounce = src.Watch.Debounce
	}
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() error {
	if v := m.env(EnvDateFormat); v != "" {
		m.config.Import.DateFormat = v
	}
	if v := m.env(EnvDebug); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDebug, err)
		}
		m.config.Import.DebugOutput = b
	}
	if v := m.env(EnvIntegrity); v != "" {
		m.config.Import.Integrity = strings.ToLower(v)
	}
	if v := m.env(EnvOTLPEndpoint); v != "" {
		m.config.Telemetry.Enabled = true
		m.config.Telemetry.Endpoint = v
	}
	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to path.
func (m *Manager) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
