package main

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/logflow/logtables/pkg/sink"
	"github.com/logflow/logtables/pkg/table"
	"github.com/logflow/logtables/pkg/tui"
)

var infoCmd = &cobra.Command{
	Use:   "info <input>",
	Short: "Show the tables an event log or table file produces",
	Long: `Import an event log without writing anything and show the shape of every
table: columns, kinds and null counts. Parquet and Arrow files written by
import are shown directly.`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

func init() {
	addImportFlags(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	input := args[0]

	switch strings.ToLower(filepath.Ext(input)) {
	case ".parquet", ".arrow":
		t, err := sink.ReadTable(ctx, input)
		if err != nil {
			return err
		}
		tui.PrintTables(cmd.OutOrStdout(), []*table.Table{t})
		return nil
	}

	defer startTelemetry(ctx)()
	s, err := resolveImport(cmd, input)
	if err != nil {
		return err
	}
	res, err := s.importWith(ctx, false)
	if err != nil {
		return err
	}
	tui.PrintTables(cmd.OutOrStdout(), res.Tables())
	tui.PrintWarnings(cmd.OutOrStdout(), res.Warnings)
	return nil
}
