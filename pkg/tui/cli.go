// Package tui renders CLI output: import reports, table shapes and progress.
// Simple, streaming, no full-screen UI.
package tui

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/logflow/logtables/pkg/attr"
	lterrors "github.com/logflow/logtables/pkg/errors"
	"github.com/logflow/logtables/pkg/table"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	codeStyle    = lipgloss.NewStyle().Background(lipgloss.Color("#1a1a1a")).Foreground(white).Padding(0, 1)
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(muted).Padding(0, 1)
)

// Report summarizes one import.
type Report struct {
	Source     string
	Format     string
	InputSize  int64
	Compressed bool
	Tables     []*table.Table
	Outputs    []string
	Warnings   []lterrors.Warning
	Duration   time.Duration
}

// PrintReport prints the outcome of an import.
func PrintReport(w io.Writer, r *Report) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, successStyle.Render("  ✓ IMPORT COMPLETE"))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s %s\n", mutedStyle.Render("Source:"), titleStyle.Render(r.Source), mutedStyle.Render("("+r.Format+")"))
	if r.InputSize >= 0 {
		size := formatBytes(r.InputSize)
		if r.Compressed {
			size += " gzip"
		}
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Size:"), size)
	}
	for _, t := range r.Tables {
		fmt.Fprintf(w, "  %s %s rows × %d columns\n",
			mutedStyle.Render(fmt.Sprintf("%-15s", t.Name()+":")),
			titleStyle.Render(formatNumber(int64(t.NumRows()))), t.NumCols())
	}
	for _, out := range r.Outputs {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("→"), codeStyle.Render(out))
	}
	if r.Duration > 0 {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Time:"), titleStyle.Render(formatDuration(r.Duration)))
	}
	PrintWarnings(w, r.Warnings)
	fmt.Fprintln(w)
}

// PrintWarnings lists non-fatal diagnostics.
func PrintWarnings(w io.Writer, warnings []lterrors.Warning) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, accentStyle.Render(fmt.Sprintf("  ▸ %d WARNING(S)", len(warnings))))
	for _, warn := range warnings {
		fmt.Fprintf(w, "  %s\n", mutedStyle.Render(warn.String()))
	}
}

// PrintError prints a failure with its code and context, followed by a hint
// for failures the user can usually fix from the command line.
func PrintError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %s\n", accentStyle.Render("✗"), err.Error())
	if hint := errorHint(err); hint != "" {
		fmt.Fprintf(w, "  %s\n", mutedStyle.Render(hint))
	}
}

func errorHint(err error) string {
	switch {
	case errors.Is(err, lterrors.ErrFileNotFound):
		return "check the path, or the bucket and credentials for s3:// locations"
	case errors.Is(err, lterrors.ErrDuplicateID), errors.Is(err, lterrors.ErrReferentialIntegrity):
		return "use --integrity drop or --integrity ignore to import anyway"
	case errors.Is(err, lterrors.ErrWriteFailed):
		return "check that the output directory is writable and has free space"
	}
	return ""
}

// PrintStack prints the stack captured by a logtables error, if any.
func PrintStack(w io.Writer, err error) {
	var e *lterrors.Error
	if !errors.As(err, &e) || len(e.StackTrace) == 0 {
		return
	}
	fmt.Fprintln(w, mutedStyle.Render(string(lterrors.GetCode(err))+" raised"))
	fmt.Fprint(w, mutedStyle.Render(e.FormatStack()))
}

// PrintTables renders the shape of every table: columns, kinds and null
// counts.
func PrintTables(w io.Writer, tables []*table.Table) {
	for _, t := range tables {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s  %s\n", titleStyle.Render(t.Name()),
			mutedStyle.Render(fmt.Sprintf("%s rows, %d columns", formatNumber(int64(t.NumRows())), t.NumCols())))
		width := 0
		for _, c := range t.Columns() {
			if len(c.Name) > width {
				width = len(c.Name)
			}
		}
		for i, c := range t.Columns() {
			nulls := countNulls(c.Values)
			line := fmt.Sprintf("%-*s  %-9s", width, c.Name, c.Kind.String())
			if nulls > 0 {
				line += mutedStyle.Render(fmt.Sprintf("  %d null", nulls))
			}
			sb.WriteString(line)
			if i < t.NumCols()-1 {
				sb.WriteByte('\n')
			}
		}
		fmt.Fprintln(w, boxStyle.Render(sb.String()))
	}
}

func countNulls(values []attr.Value) int {
	n := 0
	for _, v := range values {
		if v.IsNull() {
			n++
		}
	}
	return n
}

// ShowProgress creates a byte progress bar. A negative total shows a spinner.
func ShowProgress(w io.Writer, total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}
