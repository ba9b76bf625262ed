// Package tui is the terminal dashboard shown by `pyscan watch --ui`.
package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pyscan/internal/core/app"
	"pyscan/internal/engine/defect"
)

var (
	titleStyle = lipgloss.NewStyle().
			MarginLeft(2).
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true).
			Render

	docStyle = lipgloss.NewStyle().Margin(1, 2)

	highStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171")).
			Bold(true)

	mediumStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FBBF24")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Italic(true)
)

type item struct {
	title, desc string
	severity    defect.Severity
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.title + i.desc }

// ReportMsg delivers a fresh analysis report to the model.
type ReportMsg struct {
	Report *app.Report
}

// ErrMsg stops the dashboard with an error.
type ErrMsg struct {
	Err error
}

type Model struct {
	list       list.Model
	root       string
	report     *app.Report
	lastUpdate time.Time
	runs       int
	err        error
}

// New returns an empty dashboard. Paths in the list are shown relative
// to root when possible.
func New(root string) Model {
	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Detected Defects"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)

	return Model{list: l, root: root}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.list.SetSize(msg.Width-h, msg.Height-v-4)
	case ErrMsg:
		m.err = msg.Err
		return m, tea.Quit
	case ReportMsg:
		if msg.Report == nil {
			return m, nil
		}
		m.report = msg.Report
		m.lastUpdate = time.Now()
		m.runs++
		cmd := m.list.SetItems(m.items())
		return m, cmd
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) items() []list.Item {
	r := m.report
	items := make([]list.Item, 0, len(r.Defects)+len(r.Diagnostics))
	for _, d := range r.Defects {
		items = append(items, item{
			title:    fmt.Sprintf("%s %s", strings.ToUpper(d.Severity.String()), d.Pattern),
			desc:     fmt.Sprintf("%s %s", m.location(d.File, d.Line), d.Description),
			severity: d.Severity,
		})
	}
	for _, d := range r.Diagnostics {
		items = append(items, item{
			title: "DIAGNOSTIC " + d.Code,
			desc:  fmt.Sprintf("%s %s", m.location(d.File, d.Line), d.Message),
		})
	}
	return items
}

func (m Model) location(path string, line int) string {
	if m.root != "" {
		if rel, err := filepath.Rel(m.root, path); err == nil && !strings.HasPrefix(rel, "..") {
			path = filepath.ToSlash(rel)
		}
	}
	if line > 0 {
		return fmt.Sprintf("%s:%d", path, line)
	}
	return path
}

// Err is the error that stopped the dashboard, if any.
func (m Model) Err() error { return m.err }

func (m Model) View() string {
	if m.report == nil {
		return docStyle.Render(titleStyle("pyscan watch") + "\n" + statusStyle.Render("Analyzing..."))
	}
	r := m.report
	status := statusStyle.Render(fmt.Sprintf("Last update: %v | run %d | %d files | %s",
		m.lastUpdate.Format("15:04:05"), m.runs, len(r.Files), r.Duration.Round(time.Millisecond)))

	var summary string
	if len(r.Defects) == 0 && len(r.Diagnostics) == 0 {
		summary = successStyle.Render("No defects")
	} else {
		counts := defect.CountBySeverity(r.Defects)
		summary = fmt.Sprintf("%s | %s | %d diagnostics",
			highStyle.Render(fmt.Sprintf("%d High+", counts[defect.High]+counts[defect.Critical])),
			mediumStyle.Render(fmt.Sprintf("%d Medium", counts[defect.Medium])),
			len(r.Diagnostics))
	}

	header := fmt.Sprintf("%s\n%s | %s\n", titleStyle("pyscan watch"), status, summary)
	return docStyle.Render(header + "\n" + m.list.View())
}
