package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/svnsync/internal/glob"
)

// Watcher watches directories with fsnotify.
type Watcher struct {
	mu sync.RWMutex

	watcher *fsnotify.Watcher
	config  Config
	ignore  *glob.Matcher

	// root is the first directory passed to WatchRecursive; ignore
	// patterns are matched relative to it.
	root  string
	paths map[string]bool

	events chan Event
	errors chan error

	startTime   time.Time
	totalEvents int64
	totalErrors int64
	lastError   error

	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// New creates a watcher and starts its event loop.
func New(opts ...Option) (*Watcher, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		watcher:   fsw,
		config:    config,
		ignore:    glob.Compile(config.IgnorePatterns),
		paths:     make(map[string]bool),
		events:    make(chan Event, config.BufferSize),
		errors:    make(chan error, config.BufferSize),
		startTime: time.Now(),
		closeCh:   make(chan struct{}),
	}

	w.wg.Add(1)
	go w.loop()

	return w, nil
}

// Watch watches a single directory (or file) without descending.
func (w *Watcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return ErrPathNotExist
		}
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if w.paths[abs] {
		return ErrAlreadyWatching
	}
	if w.config.MaxWatches > 0 && len(w.paths) >= w.config.MaxWatches {
		return ErrWatchLimit
	}
	if err := w.watcher.Add(abs); err != nil {
		return err
	}
	w.paths[abs] = true
	return nil
}

// WatchRecursive watches path and every directory below it that is not
// ignored or skipped.
func (w *Watcher) WatchRecursive(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrPathNotExist
		}
		return err
	}
	if !info.IsDir() {
		return w.Watch(abs)
	}

	w.mu.Lock()
	if w.root == "" {
		w.root = abs
	}
	w.mu.Unlock()

	return filepath.WalkDir(abs, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != abs && (w.skipped(p) || w.shouldIgnore(p, true)) {
			return filepath.SkipDir
		}
		if err := w.Watch(p); err != nil && err != ErrAlreadyWatching {
			w.recordError(err)
			if err == ErrWatchLimit || err == ErrWatcherClosed {
				return err
			}
		}
		return nil
	})
}

// Unwatch stops watching path.
func (w *Watcher) Unwatch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if !w.paths[abs] {
		return ErrNotWatching
	}
	if err := w.watcher.Remove(abs); err != nil {
		return err
	}
	delete(w.paths, abs)
	return nil
}

// Events returns the event channel. It is closed by Close.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the error channel. It is closed by Close.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return w.watcher.Close()
}

// Stats returns watcher statistics.
func (w *Watcher) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return Stats{
		WatchedPaths:  len(w.paths),
		PendingEvents: len(w.events),
		TotalEvents:   atomic.LoadInt64(&w.totalEvents),
		Errors:        atomic.LoadInt64(&w.totalErrors),
		LastError:     w.lastError,
		StartTime:     w.startTime,
	}
}

// IsWatching reports whether path is watched.
func (w *Watcher) IsWatching(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.paths[abs]
}

// WatchedPaths returns the watched paths, sorted.
func (w *Watcher) WatchedPaths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	paths := make([]string, 0, len(w.paths))
	for p := range w.paths {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.closeCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.recordError(err)
			w.sendError(err)
		}
	}
}

func (w *Watcher) handle(fsEvent fsnotify.Event) {
	op := convertOp(fsEvent.Op)
	if op == 0 {
		return
	}
	if w.shouldIgnore(fsEvent.Name, false) {
		return
	}

	w.sendEvent(Event{
		Path:      fsEvent.Name,
		Op:        op,
		Timestamp: time.Now(),
	})

	// fsnotify drops the watch of a removed directory on its own.
	if op.Has(OpRemove) || op.Has(OpRename) {
		w.mu.Lock()
		delete(w.paths, fsEvent.Name)
		w.mu.Unlock()
	}

	// New directories are watched as they appear, subject to the same
	// rules as the initial walk.
	if op.Has(OpCreate) && !w.skipped(fsEvent.Name) {
		if info, err := os.Stat(fsEvent.Name); err == nil && info.IsDir() {
			if err := w.WatchRecursive(fsEvent.Name); err != nil && err != ErrWatcherClosed {
				w.recordError(err)
			}
		}
	}
}

func convertOp(fsOp fsnotify.Op) Op {
	var op Op
	if fsOp.Has(fsnotify.Create) {
		op |= OpCreate
	}
	if fsOp.Has(fsnotify.Write) {
		op |= OpWrite
	}
	if fsOp.Has(fsnotify.Remove) {
		op |= OpRemove
	}
	if fsOp.Has(fsnotify.Rename) {
		op |= OpRename
	}
	if fsOp.Has(fsnotify.Chmod) {
		op |= OpChmod
	}
	return op
}

// skipped reports whether any component of path below the root is a
// skipped directory name.
func (w *Watcher) skipped(path string) bool {
	if len(w.config.SkipDirs) == 0 {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(w.relative(path)), "/") {
		if slices.Contains(w.config.SkipDirs, part) {
			return true
		}
	}
	return false
}

func (w *Watcher) shouldIgnore(path string, isDir bool) bool {
	if w.ignore.Len() == 0 {
		return false
	}
	return w.ignore.MatchDir(w.relative(path), isDir)
}

func (w *Watcher) relative(path string) string {
	w.mu.RLock()
	root := w.root
	w.mu.RUnlock()
	if root == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

func (w *Watcher) sendEvent(ev Event) {
	atomic.AddInt64(&w.totalEvents, 1)
	select {
	case w.events <- ev:
	default:
		atomic.AddInt64(&w.totalEvents, -1)
		w.recordError(fmt.Errorf("event buffer full, dropped %s %s", ev.Op, ev.Path))
	}
}

func (w *Watcher) sendError(err error) {
	select {
	case w.errors <- err:
	default:
	}
}

func (w *Watcher) recordError(err error) {
	atomic.AddInt64(&w.totalErrors, 1)
	w.mu.Lock()
	w.lastError = err
	w.mu.Unlock()
}

var _ Source = (*Watcher)(nil)
