package app

import (
	"context"
	"os"

	"pyscan/internal/core/watcher"
	"pyscan/internal/shared/util"
)

// Watch analyzes roots once and then again after every batch of file
// changes, handing each report to onReport. Each pass covers the whole
// current file set; unchanged files come from the result cache. Watch
// blocks until ctx is cancelled.
func (a *Analyzer) Watch(ctx context.Context, roots []string, onReport func(*Report)) error {
	scanner, err := NewScanner(a.cfg.Exclude.Dirs, a.cfg.Exclude.Files)
	if err != nil {
		return err
	}
	files, err := scanner.Scan(roots)
	if err != nil {
		return err
	}
	tracked := make(map[string]bool, len(files))
	for _, f := range files {
		tracked[f] = true
	}

	onReport(a.AnalyzeFiles(ctx, files))

	w, err := watcher.New(watcher.Options{
		Debounce:     a.cfg.Watch.Debounce,
		ExcludeDirs:  a.cfg.Exclude.Dirs,
		ExcludeFiles: a.cfg.Exclude.Files,
		MaxRate:      a.cfg.Watch.MaxRate,
	}, func(ctx context.Context, changed []string) {
		// Batches arrive one at a time from the watcher's dispatch loop.
		for _, path := range changed {
			if _, err := os.Stat(path); err != nil {
				delete(tracked, path)
				a.Forget(path)
				continue
			}
			tracked[path] = true
		}
		a.logger.Info("detected changes", "count", len(changed), "files", len(tracked))
		onReport(a.AnalyzeFiles(ctx, util.SortedKeys(tracked)))
	})
	if err != nil {
		return err
	}
	if err := w.Watch(ctx, roots); err != nil {
		_ = w.Close()
		return err
	}
	<-ctx.Done()
	return w.Close()
}
