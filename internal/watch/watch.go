// Package watch analyzes trace files as they appear in a directory.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultSettle is how long a trace must stay unchanged before it is analyzed.
const DefaultSettle = 500 * time.Millisecond

// Handler analyzes one settled trace file.
type Handler func(ctx context.Context, path string) error

// Options configures a Watcher.
type Options struct {
	// Extension selects the files to analyze. Defaults to ".xt".
	Extension string
	// Settle defaults to DefaultSettle.
	Settle time.Duration
	// Existing queues matching files already present when Run starts.
	Existing bool
	Logger   *zap.Logger
}

// Stats counts watcher activity.
type Stats struct {
	Events   int
	Analyzed int
	Errors   int
}

// Watcher runs a Handler for each trace file written to a directory, one
// file at a time.
type Watcher struct {
	dir     string
	handler Handler
	opts    Options
	log     *zap.Logger

	pending map[string]time.Time
	stats   Stats
}

// New returns a watcher for dir.
func New(dir string, handler Handler, opts Options) *Watcher {
	if opts.Extension == "" {
		opts.Extension = ".xt"
	}
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		dir:     dir,
		handler: handler,
		opts:    opts,
		log:     log,
		pending: make(map[string]time.Time),
	}
}

// Run watches until ctx is canceled. It returns nil on cancellation and an
// error only when the directory cannot be watched.
func (w *Watcher) Run(ctx context.Context) (Stats, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return w.stats, fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return w.stats, fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.log.Info("watching for traces", zap.String("dir", w.dir), zap.String("extension", w.opts.Extension))

	if w.opts.Existing {
		w.queueExisting()
	}

	tick := w.opts.Settle / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("watch stopped", zap.Int("analyzed", w.stats.Analyzed))
			return w.stats, nil

		case event, ok := <-fw.Events:
			if !ok {
				return w.stats, nil
			}
			w.handleEvent(event)

		case err, ok := <-fw.Errors:
			if !ok {
				return w.stats, nil
			}
			w.stats.Errors++
			w.log.Warn("watch error", zap.Error(err))

		case now := <-ticker.C:
			w.processSettled(ctx, now)
		}
	}
}

func (w *Watcher) matches(path string) bool {
	return strings.HasSuffix(path, w.opts.Extension)
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !w.matches(event.Name) {
		return
	}
	w.stats.Events++
	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.pending[event.Name] = time.Now()
		w.log.Debug("trace changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		delete(w.pending, event.Name)
	}
}

func (w *Watcher) queueExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.Warn("listing existing traces", zap.Error(err))
		return
	}
	for _, e := range entries {
		if !e.IsDir() && w.matches(e.Name()) {
			w.pending[filepath.Join(w.dir, e.Name())] = time.Time{}
		}
	}
}

// processSettled analyzes, in path order, every pending file unchanged for
// at least the settle interval.
func (w *Watcher) processSettled(ctx context.Context, now time.Time) {
	var ready []string
	for path, changed := range w.pending {
		if now.Sub(changed) >= w.opts.Settle {
			ready = append(ready, path)
		}
	}
	sort.Strings(ready)

	for _, path := range ready {
		if ctx.Err() != nil {
			return
		}
		delete(w.pending, path)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := w.handler(ctx, path); err != nil {
			w.stats.Errors++
			w.log.Warn("analyzing trace failed", zap.String("path", path), zap.Error(err))
			continue
		}
		w.stats.Analyzed++
	}
}
