package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"pyscan/internal/core/app"
)

// Run shows the dashboard while a watches roots. onReport, when set, sees
// every report before the dashboard does. Run returns when the user quits,
// ctx is cancelled or the watcher fails.
func Run(ctx context.Context, a *app.Analyzer, root string, roots []string, onReport func(*app.Report)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(New(root), tea.WithAltScreen(), tea.WithContext(ctx))

	watchErr := make(chan error, 1)
	go func() {
		err := a.Watch(ctx, roots, func(r *app.Report) {
			if onReport != nil {
				onReport(r)
			}
			p.Send(ReportMsg{Report: r})
		})
		if err != nil && ctx.Err() == nil {
			p.Send(ErrMsg{Err: err})
		}
		watchErr <- err
	}()

	final, err := p.Run()
	cancel()
	werr := <-watchErr

	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	if m, ok := final.(Model); ok && m.Err() != nil {
		return m.Err()
	}
	return werr
}
