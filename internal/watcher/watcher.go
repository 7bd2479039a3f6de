package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"gallery-pipeline/internal/logging"
	"gallery-pipeline/internal/metrics"
	"gallery-pipeline/internal/pipeline"
)

const (
	// DefaultDebounce is how long the tree must stay quiet before a re-run.
	DefaultDebounce = 2 * time.Second
)

// Runner runs the pipeline once. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context) (*pipeline.Summary, error)
}

// Config configures a watcher.
type Config struct {
	// Root is the source tree to watch.
	Root string
	// Debounce is the quiet period after the last event before a run.
	Debounce time.Duration
	// RescanInterval triggers a full run even without events, for mounts
	// where change notifications are not delivered. Zero disables it.
	RescanInterval time.Duration
	// Ignore lists directories whose events never trigger a run, such as an
	// output root inside the source tree.
	Ignore []string
}

// Watcher re-runs the pipeline whenever the source tree changes.
type Watcher struct {
	config Config
	runner Runner
	ignore []string

	// OnRun, if set, is called after every run with its outcome.
	OnRun func(summary *pipeline.Summary, err error)

	mu        sync.Mutex
	isRunning bool
	runs      int
	lastRun   time.Time
}

// New creates a watcher for runner.
func New(config Config, runner Runner) *Watcher {
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	ignore := make([]string, 0, len(config.Ignore))
	for _, dir := range config.Ignore {
		if abs, err := filepath.Abs(dir); err == nil {
			ignore = append(ignore, abs)
		}
	}
	return &Watcher{config: config, runner: runner, ignore: ignore}
}

// Status reports whether a run is in progress, how many runs finished and
// when the last one ended.
func (w *Watcher) Status() (running bool, runs int, lastRun time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.isRunning, w.runs, w.lastRun
}

// Run performs an initial run and then watches the tree until ctx is done.
// Events that arrive while a run is in progress schedule exactly one more
// run after it. Run returns nil on cancellation and waits for an in-flight
// run to finish first.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.config.Root)
	if err != nil {
		return fmt.Errorf("watch source root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch source root: %s is not a directory", w.config.Root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		metrics.WatcherErrors.Inc()
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer func() {
		if err := fsw.Close(); err != nil {
			logging.Error("failed to close file watcher: %v", err)
		}
	}()

	watchCount := w.addDirectories(fsw, w.config.Root)
	metrics.WatchedDirectories.Set(float64(watchCount))
	logging.Info("Watching %s (%d directories, debounce %v)", w.config.Root, watchCount, w.config.Debounce)

	debounce := time.NewTimer(w.config.Debounce)
	debounce.Stop()
	defer debounce.Stop()

	var rescan <-chan time.Time
	if w.config.RescanInterval > 0 {
		ticker := time.NewTicker(w.config.RescanInterval)
		defer ticker.Stop()
		rescan = ticker.C
	}

	runDone := make(chan struct{}, 1)
	pending := false
	start := func(reason string) {
		if !w.tryStartRun() {
			pending = true
			return
		}
		logging.Debug("Starting pipeline run (%s)", reason)
		go func() {
			w.runOnce(ctx)
			runDone <- struct{}{}
		}()
	}

	start("initial")

	for {
		select {
		case <-ctx.Done():
			if running, _, _ := w.Status(); running {
				<-runDone
			}
			logging.Info("Watcher stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.handleEvent(fsw, event) {
				debounce.Reset(w.config.Debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logging.Error("Watcher error: %v", err)
			metrics.WatcherErrors.Inc()

		case <-debounce.C:
			metrics.WatcherTriggeredRuns.Inc()
			start("source changed")

		case <-rescan:
			start("periodic rescan")

		case <-runDone:
			w.finishRun()
			if pending && ctx.Err() == nil {
				pending = false
				start("changes during previous run")
			}
		}
	}
}

func (w *Watcher) tryStartRun() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		return false
	}
	w.isRunning = true
	return true
}

func (w *Watcher) finishRun() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.isRunning = false
	w.runs++
	w.lastRun = time.Now()
}

func (w *Watcher) runOnce(ctx context.Context) {
	summary, err := w.runner.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error("Pipeline run failed: %v", err)
	}
	if w.OnRun != nil {
		w.OnRun(summary, err)
	}
}

// addDirectories adds root and every non-hidden, non-ignored directory below
// it. It returns the number of directories added.
func (w *Watcher) addDirectories(fsw *fsnotify.Watcher, root string) int {
	watchCount := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			logging.Warn("Error accessing path %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && (strings.HasPrefix(d.Name(), ".") || w.ignored(path)) {
			return filepath.SkipDir
		}
		if addErr := fsw.Add(path); addErr != nil {
			logging.Warn("failed to add path to watcher %s: %v", path, addErr)
			metrics.WatcherErrors.Inc()
		} else {
			watchCount++
		}
		return nil
	})
	if err != nil {
		logging.Error("failed to walk source directory for watcher: %v", err)
		metrics.WatcherErrors.Inc()
	}
	return watchCount
}

// handleEvent records an event and reports whether it should trigger a run.
func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, event fsnotify.Event) bool {
	if w.hidden(event.Name) || w.ignored(event.Name) {
		return false
	}

	eventType := getEventType(event.Op)
	metrics.WatcherEventsTotal.WithLabelValues(eventType).Inc()

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			added := w.addDirectories(fsw, event.Name)
			metrics.WatchedDirectories.Add(float64(added))
			logging.Debug("Added new directory to watcher: %s (%d directories)", event.Name, added)
		}
	}

	return eventType != "chmod"
}

func (w *Watcher) hidden(path string) bool {
	rel, err := filepath.Rel(w.config.Root, path)
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

func (w *Watcher) ignored(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, dir := range w.ignore {
		if abs == dir || strings.HasPrefix(abs, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// getEventType returns a string representation of the fsnotify operation
func getEventType(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "create"
	case op&fsnotify.Write != 0:
		return "write"
	case op&fsnotify.Remove != 0:
		return "remove"
	case op&fsnotify.Rename != 0:
		return "rename"
	case op&fsnotify.Chmod != 0:
		return "chmod"
	default:
		return "unknown"
	}
}
