// Package watch converts source files again as they change on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/telhawk-systems/ctidoc/internal/batch"
	"github.com/telhawk-systems/ctidoc/internal/logging"
	"github.com/telhawk-systems/ctidoc/internal/stats"
)

// DefaultDebounce is how long a file must stay quiet before it is converted.
const DefaultDebounce = 500 * time.Millisecond

// Runner converts a set of files. *batch.Driver implements it.
type Runner interface {
	RunFiles(ctx context.Context, root string, files []string) (*stats.Summary, error)
}

// ReportFunc receives the summary of every incremental run.
type ReportFunc func(ctx context.Context, sum *stats.Summary)

// Watcher watches a source tree and feeds changed files to a Runner.
type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	runner   Runner
	logger   *logging.Logger
	debounce time.Duration
	report   ReportFunc
	ready    chan struct{}

	mu      sync.Mutex
	pending map[string]time.Time
	runs    int
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period. Non-positive values keep the default.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithReport registers fn to receive run summaries.
func WithReport(fn ReportFunc) Option {
	return func(w *Watcher) { w.report = fn }
}

// New creates a watcher for the directory root.
func New(root string, runner Runner, opts ...Option) (*Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("watch source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch source %s: not a directory", root)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		fsw:      fsw,
		root:     root,
		runner:   runner,
		logger:   logging.Discard(),
		debounce: DefaultDebounce,
		ready:    make(chan struct{}),
		pending:  make(map[string]time.Time),
	}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// Ready is closed once the initial directories are watched.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Runs returns the number of incremental runs so far.
func (w *Watcher) Runs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runs
}

// Run blocks until ctx is done. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	if err := w.addTree(w.root, false); err != nil {
		close(w.ready)
		return err
	}
	close(w.ready)
	w.logger.InfoContext(ctx, "watching for changes", logging.Path(w.root), "debounce", w.debounce.String())

	tick := time.NewTicker(max(w.debounce/4, 10*time.Millisecond))
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "watch stopped")
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watcher closed")
			}
			w.handle(ctx, ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			w.logger.ErrorContext(ctx, "watch error", logging.Error(err))

		case <-tick.C:
			if files := w.settled(time.Now()); len(files) > 0 {
				w.convert(ctx, files)
			}
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if hidden(w.root, ev.Name) {
		return
	}

	info, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		// files created before the directory was watched are queued too
		if err := w.addTree(ev.Name, true); err != nil {
			w.logger.WarnContext(ctx, "cannot watch new directory", logging.Path(ev.Name), logging.Error(err))
		}
		return
	}
	if batch.IsSourceFile(ev.Name) {
		w.touch(ev.Name, time.Now())
	}
}

// addTree watches dir and its non-hidden subdirectories. With queue set,
// the source files found are marked pending.
func (w *Watcher) addTree(dir string, queue bool) error {
	now := time.Now()
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != w.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if err := w.fsw.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
			return nil
		}
		if queue && d.Type().IsRegular() && batch.IsSourceFile(d.Name()) {
			w.touch(path, now)
		}
		return nil
	})
}

func (w *Watcher) touch(path string, at time.Time) {
	w.mu.Lock()
	w.pending[path] = at
	w.mu.Unlock()
}

// settled removes and returns the pending files quiet for the debounce period.
func (w *Watcher) settled(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var files []string
	for path, at := range w.pending {
		if now.Sub(at) < w.debounce {
			continue
		}
		delete(w.pending, path)
		if _, err := os.Stat(path); err == nil {
			files = append(files, path)
		}
	}
	sort.Strings(files)
	return files
}

func (w *Watcher) convert(ctx context.Context, files []string) {
	ctx = logging.WithRunID(ctx, logging.NewRunID())
	w.logger.WithContext(ctx).InfoContext(ctx, "converting changed files", "files", len(files))

	sum, err := w.runner.RunFiles(ctx, w.root, files)
	if err != nil && ctx.Err() == nil {
		w.logger.WithContext(ctx).ErrorContext(ctx, "incremental run failed", logging.Error(err))
	}

	if sum != nil && w.report != nil {
		w.report(ctx, sum)
	}

	w.mu.Lock()
	w.runs++
	w.mu.Unlock()
}

func hidden(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}
