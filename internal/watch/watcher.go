// Package watch re-runs the layer pipeline when source files change.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/zeebo/xxh3"

	"neurolint/internal/batch"
	"neurolint/internal/logging"
)

// History reports whether a file's content is output neurolint itself wrote.
// *store.RunStore satisfies it.
type History interface {
	WroteContent(path, code string) (bool, error)
}

// Options configures a Watcher.
type Options struct {
	Debounce   time.Duration
	Extensions []string
	Exclude    []string
	// History is consulted for files the watcher has not written during
	// this session. Optional.
	History History
	// OnResult is called after every pipeline run. Optional.
	OnResult func(batch.FileResult)
}

// Stats tracks watcher activity.
type Stats struct {
	FilesCreated  int
	FilesModified int
	FilesDeleted  int
	Runs          int
	Written       int
	Suppressed    int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
	LastEventType string
}

// Watcher watches a directory tree and feeds settled changes to a batch
// processor, one file at a time.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	processor   *batch.Processor
	root        string
	opts        Options
	debounceMap map[string]time.Time
	written     map[string]uint64
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	started     bool
	stopOnce    sync.Once
	closeOnce   sync.Once

	stats Stats
}

// New creates a watcher rooted at root.
func New(root string, processor *batch.Processor, opts Options) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}

	return &Watcher{
		watcher:     watcher,
		processor:   processor,
		root:        root,
		opts:        opts,
		debounceMap: make(map[string]time.Time),
		written:     make(map[string]uint64),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start registers the directory tree and begins watching. Non-blocking.
// A watcher runs once; Start after the loop has exited does nothing.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running || w.started {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addTree(w.root); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	logging.Watch("Watching %s (%d directories, debounce=%v)", w.root, len(w.watcher.WatchList()), w.opts.Debounce)

	w.mu.Lock()
	w.started = true
	w.mu.Unlock()
	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	started := w.started
	w.running = false
	w.mu.Unlock()

	if started {
		w.stopOnce.Do(func() { close(w.stopCh) })
		<-w.doneCh
	}

	w.closeOnce.Do(func() {
		if err := w.watcher.Close(); err != nil {
			logging.Get(logging.CategoryWatch).Error("Error closing watcher: %v", err)
		}
	})
	logging.Watch("Watcher stopped")
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.excluded(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			logging.Get(logging.CategoryWatch).Warn("Failed to watch %s: %v", path, err)
			return nil
		}
		logging.WatchDebug("Watching directory: %s", path)
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Watch("Context cancelled")
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryWatch).Error("Watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-debounceTicker.C:
			w.processDebouncedEvents(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.excluded(filepath.Base(event.Name)) {
				if err := w.addTree(event.Name); err != nil {
					logging.Get(logging.CategoryWatch).Warn("Failed to watch new directory %s: %v", event.Name, err)
				}
			}
			return
		}
	}
	if !w.relevant(event.Name) {
		return
	}

	var eventType string
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = "create"
	case event.Op&fsnotify.Write != 0:
		eventType = "modify"
	case event.Op&fsnotify.Remove != 0:
		eventType = "delete"
	case event.Op&fsnotify.Rename != 0:
		eventType = "rename"
	default:
		return
	}

	logging.WatchDebug("%s event for %s", eventType, event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.LastEventTime = time.Now()
	w.stats.LastEventPath = event.Name
	w.stats.LastEventType = eventType

	switch eventType {
	case "create":
		w.stats.FilesCreated++
	case "modify":
		w.stats.FilesModified++
	case "delete", "rename":
		w.stats.FilesDeleted++
		delete(w.debounceMap, event.Name)
		delete(w.written, event.Name)
		return
	}
	w.debounceMap[event.Name] = time.Now()
}

func (w *Watcher) processDebouncedEvents(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var toProcess []string
	for path, eventTime := range w.debounceMap {
		if now.Sub(eventTime) >= w.opts.Debounce {
			toProcess = append(toProcess, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	for _, path := range toProcess {
		if ctx.Err() != nil {
			return
		}
		w.processFile(ctx, path)
	}
}

func (w *Watcher) processFile(ctx context.Context, path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.WatchDebug("File gone before processing: %s", path)
			return
		}
		logging.Get(logging.CategoryWatch).Error("Failed to read %s: %v", path, err)
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		return
	}

	if w.selfWritten(path, content) {
		logging.WatchDebug("Ignoring own write: %s", path)
		w.mu.Lock()
		w.stats.Suppressed++
		w.mu.Unlock()
		return
	}

	res := w.processor.ProcessFile(ctx, path)

	w.mu.Lock()
	w.stats.Runs++
	if res.Err != nil {
		w.stats.Errors++
	}
	if res.Written {
		w.stats.Written++
		w.written[path] = xxh3.Hash([]byte(res.Run.CurrentCode))
	}
	w.mu.Unlock()

	if res.Run != nil {
		logging.Watch("%s", res.Run.Summary())
	}
	if w.opts.OnResult != nil {
		w.opts.OnResult(res)
	}
}

func (w *Watcher) selfWritten(path string, content []byte) bool {
	w.mu.RLock()
	hash, ok := w.written[path]
	w.mu.RUnlock()
	if ok {
		return hash == xxh3.Hash(content)
	}
	if w.opts.History == nil {
		return false
	}
	wrote, err := w.opts.History.WroteContent(path, string(content))
	if err != nil {
		logging.Get(logging.CategoryWatch).Warn("History lookup failed for %s: %v", path, err)
		return false
	}
	return wrote
}

func (w *Watcher) relevant(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part != "" && w.excluded(part) {
			return false
		}
	}
	if len(w.opts.Extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, e := range w.opts.Extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

func (w *Watcher) excluded(name string) bool {
	for _, pat := range w.opts.Exclude {
		if ok, _ := filepath.Match(pat, name); ok {
			return true
		}
	}
	return false
}

// Stats returns the current watcher statistics.
func (w *Watcher) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// ResetStats resets the watcher statistics.
func (w *Watcher) ResetStats() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats = Stats{}
}

// IsWatching reports whether the event loop is running.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// WatchedDirs returns the directories being watched.
func (w *Watcher) WatchedDirs() []string {
	return w.watcher.WatchList()
}
