// Package report renders analysis reports and history trends for people
// and for other tools.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"pyscan/internal/core/app"
	"pyscan/internal/engine/defect"
)

type ConsoleOptions struct {
	// Color enables lipgloss styling. Use ColorEnabled to decide it for a file.
	Color       bool
	ShowMetrics bool
	// Root, when set, shortens file paths to be relative to it.
	Root string
}

// ColorEnabled reports whether f is an interactive terminal.
func ColorEnabled(f *os.File) bool {
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type consoleStyles struct {
	title    lipgloss.Style
	file     lipgloss.Style
	muted    lipgloss.Style
	ok       lipgloss.Style
	severity map[defect.Severity]lipgloss.Style
}

func newConsoleStyles(color bool) consoleStyles {
	plain := lipgloss.NewStyle()
	if !color {
		return consoleStyles{
			title: plain, file: plain, muted: plain, ok: plain,
			severity: map[defect.Severity]lipgloss.Style{},
		}
	}
	return consoleStyles{
		title: lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6")).Bold(true),
		file:  lipgloss.NewStyle().Underline(true),
		muted: lipgloss.NewStyle().Foreground(lipgloss.Color("#64748B")).Italic(true),
		ok:    lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true),
		severity: map[defect.Severity]lipgloss.Style{
			defect.Critical: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#B91C1C")).Bold(true),
			defect.High:     lipgloss.NewStyle().Foreground(lipgloss.Color("#F87171")).Bold(true),
			defect.Medium:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FBBF24")),
			defect.Low:      lipgloss.NewStyle().Foreground(lipgloss.Color("#94A3B8")),
		},
	}
}

func (s consoleStyles) badge(sev defect.Severity) string {
	label := fmt.Sprintf("%-8s", strings.ToUpper(sev.String()))
	if st, ok := s.severity[sev]; ok {
		return st.Render(label)
	}
	return label
}

// WriteConsole prints defects grouped by file, then diagnostics, then the
// run summary.
func WriteConsole(w io.Writer, r *app.Report, opts ConsoleOptions) error {
	st := newConsoleStyles(opts.Color)
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "%s %s\n\n",
		st.title.Render("pyscan"),
		st.muted.Render(fmt.Sprintf("run %s, %d files in %s", r.RunID, len(r.Files), r.Duration.Round(time.Millisecond))))

	current := ""
	for _, d := range r.Defects {
		if d.File != current {
			if current != "" {
				fmt.Fprintln(bw)
			}
			current = d.File
			fmt.Fprintln(bw, st.file.Render(displayPath(opts.Root, d.File)))
		}
		where := "fn"
		if d.Line > 0 {
			where = fmt.Sprintf("%d", d.Line)
		}
		fmt.Fprintf(bw, "  %5s  %s %-24s %s\n", where, st.badge(d.Severity), d.Pattern, d.Description)
		if d.Context != "" {
			fmt.Fprintf(bw, "         %s\n", st.muted.Render(d.Context))
		}
		if d.Suggestion != "" {
			fmt.Fprintf(bw, "         -> %s\n", d.Suggestion)
		}
	}
	if len(r.Defects) > 0 {
		fmt.Fprintln(bw)
	}

	if len(r.Diagnostics) > 0 {
		fmt.Fprintln(bw, st.title.Render("Diagnostics"))
		for _, d := range r.Diagnostics {
			loc := displayPath(opts.Root, d.File)
			if d.Line > 0 {
				loc = fmt.Sprintf("%s:%d", loc, d.Line)
			}
			if d.Pattern != "" {
				fmt.Fprintf(bw, "  %s %s (%s): %s\n", loc, d.Code, d.Pattern, d.Message)
			} else {
				fmt.Fprintf(bw, "  %s %s: %s\n", loc, d.Code, d.Message)
			}
		}
		fmt.Fprintln(bw)
	}

	writeSummary(bw, r, st, opts.ShowMetrics)
	return bw.Flush()
}

func writeSummary(w io.Writer, r *app.Report, st consoleStyles, showMetrics bool) {
	counts := defect.CountBySeverity(r.Defects)
	if len(r.Defects) == 0 {
		fmt.Fprintf(w, "%s (severity >= %s)\n", st.ok.Render("No defects found"), r.SeverityFilter)
	} else {
		fmt.Fprintf(w, "%d defects: critical %d, high %d, medium %d, low %d\n",
			len(r.Defects), counts[defect.Critical], counts[defect.High], counts[defect.Medium], counts[defect.Low])
	}

	t := r.Totals
	fmt.Fprintf(w, "Files: %d analyzed, %d failed, %d skipped\n", t.FilesAnalyzed, t.FilesFailed, t.FilesSkipped)
	if showMetrics {
		fmt.Fprintf(w, "Metrics: %d lines, %d functions, %d classes, avg complexity %.2f, %d call cycles\n",
			t.TotalLines, t.TotalFunctions, t.TotalClasses, t.AvgComplexity, t.Cycles)
	}
	if s := r.Symbolic; s.Functions > 0 {
		fmt.Fprintf(w, "Symbolic: %d functions, %d queries (sat %d, unsat %d, unknown %d)\n",
			s.Functions, s.Queries, s.Sat, s.Unsat, s.Inconclusive)
	}
	if r.Cancelled {
		fmt.Fprintln(w, st.severity[defect.High].Render("Run cancelled before every file was analyzed"))
	}
}

func displayPath(root, path string) string {
	if root == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}
