// Package watcher turns file system events under a set of roots into
// debounced, rate-limited batches of changed Python files.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"

	"pyscan/internal/shared/observability"
	"pyscan/internal/shared/util"
)

type Options struct {
	Debounce     time.Duration
	ExcludeDirs  []string
	ExcludeFiles []string
	// MaxRate bounds batches per second; 0 disables the limit.
	MaxRate float64
}

type Watcher struct {
	fsWatcher    *fsnotify.Watcher
	debounce     time.Duration
	excludeDirs  []glob.Glob
	excludeFiles []glob.Glob
	limiter      *util.Limiter
	onChange     func(context.Context, []string)

	pendingMu sync.Mutex
	pending   map[string]struct{}
	timer     *time.Timer
	batches   chan []string

	hashMu sync.Mutex
	hashes map[string]string

	done chan struct{}
	wg   sync.WaitGroup
}

func New(opts Options, onChange func(context.Context, []string)) (*Watcher, error) {
	if onChange == nil {
		return nil, os.ErrInvalid
	}
	dirs, err := compileAll(opts.ExcludeDirs)
	if err != nil {
		return nil, err
	}
	files, err := compileAll(opts.ExcludeFiles)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fsWatcher:    fsw,
		debounce:     opts.Debounce,
		excludeDirs:  dirs,
		excludeFiles: files,
		limiter:      util.NewLimiter(opts.MaxRate, 1),
		onChange:     onChange,
		pending:      make(map[string]struct{}),
		batches:      make(chan []string, 16),
		hashes:       make(map[string]string),
		done:         make(chan struct{}),
	}, nil
}

func compileAll(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// Watch registers every non-excluded directory under roots and starts the
// event and dispatch loops. The loops stop when ctx is cancelled or Close
// is called. A root that is a file is watched through its directory.
func (w *Watcher) Watch(ctx context.Context, roots []string) error {
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			w.remember(root)
			if err := w.fsWatcher.Add(filepath.Dir(root)); err != nil {
				return err
			}
			continue
		}
		if err := w.watchRecursive(root); err != nil {
			return err
		}
	}
	w.wg.Add(2)
	go w.events(ctx)
	go w.dispatch(ctx)
	return nil
}

func (w *Watcher) watchRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && w.excludedDir(path) {
				return filepath.SkipDir
			}
			return w.fsWatcher.Add(path)
		}
		if !w.excludedFile(path) {
			w.remember(path)
		}
		return nil
	})
}

func (w *Watcher) events(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			observability.WatcherEventsTotal.Inc()

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !w.excludedDir(event.Name) {
						if err := w.watchRecursive(event.Name); err != nil {
							slog.Warn("failed to watch new directory", "path", event.Name, "error", err)
						}
						w.enqueueTree(event.Name)
					}
					continue
				}
			}
			if w.excludedFile(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.schedule(event.Name)
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Error("watcher error", "error", err)
		}
	}
}

// dispatch delivers batches one at a time, waiting on the rate limiter
// between them.
func (w *Watcher) dispatch(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case batch := <-w.batches:
			if !w.limiter.Allow() {
				observability.WatcherThrottledTotal.Inc()
				if err := w.limiter.Wait(ctx); err != nil {
					return
				}
			}
			w.onChange(ctx, batch)
		}
	}
}

func (w *Watcher) schedule(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.pendingMu.Lock()
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		if w.changed(path) {
			paths = append(paths, path)
		}
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	if len(paths) == 0 {
		return
	}
	sort.Strings(paths)
	select {
	case w.batches <- paths:
	case <-w.done:
	}
}

// changed compares the file's content hash with the last one seen. Removed
// files always count as changed.
func (w *Watcher) changed(path string) bool {
	data, err := os.ReadFile(path)
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	if err != nil {
		_, known := w.hashes[path]
		delete(w.hashes, path)
		return known || os.IsNotExist(err)
	}
	sum := util.ContentHash(data)
	if w.hashes[path] == sum {
		return false
	}
	w.hashes[path] = sum
	return true
}

func (w *Watcher) remember(path string) {
	if data, err := os.ReadFile(path); err == nil {
		w.hashMu.Lock()
		w.hashes[path] = util.ContentHash(data)
		w.hashMu.Unlock()
	}
}

func (w *Watcher) enqueueTree(root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || w.excludedFile(path) {
			return nil
		}
		w.schedule(path)
		return nil
	})
}

func (w *Watcher) excludedDir(path string) bool {
	base := filepath.Base(path)
	for _, g := range w.excludeDirs {
		if g.Match(base) {
			return true
		}
	}
	return false
}

func (w *Watcher) excludedFile(path string) bool {
	if !util.IsPythonSource(path) {
		return true
	}
	base := filepath.Base(path)
	for _, g := range w.excludeFiles {
		if g.Match(base) {
			return true
		}
	}
	return false
}

// Close stops both loops and releases the fsnotify handle. It is safe to
// call more than once.
func (w *Watcher) Close() error {
	w.pendingMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	select {
	case <-w.done:
		w.pendingMu.Unlock()
		return nil
	default:
		close(w.done)
	}
	w.pendingMu.Unlock()

	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}
