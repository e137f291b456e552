// logtables converts process-mining event logs (XES, OCEL 2.0 XML/JSON) into
// typed columnar tables and exports event tables back to XES.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/logflow/logtables/pkg/config"
	"github.com/logflow/logtables/pkg/telemetry"
	"github.com/logflow/logtables/pkg/tui"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	configFile string
	verbose    bool
)

// cfg is loaded before every command runs.
var cfg *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		tui.PrintError(os.Stderr, err)
		if verbose {
			tui.PrintStack(os.Stderr, err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "logtables",
	Short: "Convert process-mining event logs to typed tables",
	Long: `logtables imports XES and OCEL 2.0 (XML or JSON) event logs into typed
columnar tables and writes them as Parquet, Arrow, XLSX or DuckDB. Event
tables can be exported back to XES.

Configuration is read from /etc/logtables/config.yaml, ~/.logtables/config.yaml,
./.logtables.yaml and --config, then LOGTABLES_* environment variables; flags
override all of them.`,
	Version:           fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(watchCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	m := config.NewManager(configFile)
	if err := m.Load(); err != nil {
		return err
	}
	cfg = m.Get()
	if verbose {
		logger().Debug("configuration loaded", "paths", m.GetPaths())
	}
	return nil
}

// logger writes diagnostics to stderr when --verbose or debug_output is set.
func logger() *slog.Logger {
	if verbose || (cfg != nil && cfg.Import.DebugOutput) {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startTelemetry installs the OTLP exporter when an endpoint is configured.
func startTelemetry(ctx context.Context) func() {
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint == "" {
		return func() {}
	}
	otlp := telemetry.DefaultOTLPConfig(cfg.Telemetry.ServiceName)
	otlp.Endpoint = cfg.Telemetry.Endpoint
	otlp.InsecureTLS = cfg.Telemetry.Insecure
	otlp.ServiceVersion = version
	if cfg.Telemetry.SampleRate > 0 {
		otlp.SamplingRatio = cfg.Telemetry.SampleRate
	}

	exp := telemetry.NewOTLPExporter(otlp)
	shutdown, err := exp.Init(ctx)
	if err != nil {
		logger().Warn("telemetry disabled", "error", err)
		return func() {}
	}
	if exp.IsInitialized() {
		logger().Debug("exporting traces", "endpoint", otlp.Endpoint, "sampling", otlp.SamplingRatio)
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			logger().Warn("failed to flush telemetry", "error", err)
		}
	}
}
