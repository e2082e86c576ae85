package scm

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/dshills/svnsync/internal/concurrency"
	"github.com/dshills/svnsync/internal/config"
	"github.com/dshills/svnsync/internal/glob"
	"github.com/dshills/svnsync/internal/logging"
	"github.com/dshills/svnsync/internal/svn"
	"github.com/dshills/svnsync/internal/watcher"
)

const adminDir = ".svn"

// conflictMarkers matches a file still holding a full conflict block.
var conflictMarkers = regexp.MustCompile(`(?ms)^<{7}.+^={7}.+^>{7}`)

// fsTrigger turns file system events into repository work.
type fsTrigger struct {
	r *Repository

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	deleted []string
	watch   *watcher.Watcher
	done    chan struct{}

	adminChanged  *concurrency.Debouncer[string]
	refresh       *concurrency.Debouncer[struct{}]
	deletedAction *concurrency.Debouncer[struct{}]
	idleUpdate    *concurrency.Throttle[struct{}, struct{}]

	unsubscribe func()
}

func newFSTrigger(r *Repository) *fsTrigger {
	ctx, cancel := context.WithCancel(context.Background())
	t := &fsTrigger{r: r, ctx: ctx, cancel: cancel}

	onErr := concurrency.WithErrorHandler(t.reportError)
	t.adminChanged = concurrency.NewDebouncer(r.debounce, func(path string) error {
		r.emit(Event{Type: EventRepositoryChanged, Path: path})
		return nil
	}, onErr)
	t.refresh = concurrency.NewDebouncer(r.debounce, func(struct{}) error {
		go func() {
			if _, err := t.idleUpdate.Do(t.ctx, struct{}{}); err != nil {
				t.reportError(err)
			}
		}()
		return nil
	}, onErr)
	t.deletedAction = concurrency.NewDebouncer(r.debounce, func(struct{}) error {
		return t.actionForDeletedFiles(t.ctx)
	}, onErr)
	t.idleUpdate = concurrency.NewThrottle(func(ctx context.Context, _ struct{}) (struct{}, error) {
		return struct{}{}, r.updateWhenIdleAndWait(ctx)
	})

	// Deleted files are checked once the status reflects them.
	t.unsubscribe = r.Subscribe(func(Event) {
		t.deletedAction.Call(struct{}{})
	}, EventStatusChanged)

	return t
}

// WatchFiles starts watching the working copy. Changes trigger a status
// refresh when autorefresh is on, and changes to the admin directory emit
// repository.changed.
func (r *Repository) WatchFiles(ctx context.Context) error {
	return r.fs.start(ctx)
}

func (t *fsTrigger) start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.watch != nil {
		return watcher.ErrAlreadyWatching
	}
	if t.ctx.Err() != nil {
		return ErrClosed
	}

	root := t.r.client.Root()
	w, err := watcher.New(
		watcher.WithSkipDirs(adminDir),
		watcher.WithIgnorePatterns(watchIgnores(t.r.cfg.Settings())),
	)
	if err != nil {
		return err
	}
	if err := w.WatchRecursive(root); err != nil {
		w.Close()
		return err
	}
	if err := w.Watch(filepath.Join(root, adminDir)); err != nil && !errors.Is(err, watcher.ErrPathNotExist) {
		w.Close()
		return err
	}

	t.watch = w
	t.done = make(chan struct{})
	dctx, cancel := context.WithCancel(t.ctx)
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-dctx.Done():
		}
	}()
	go func() {
		defer close(t.done)
		defer cancel()
		watcher.Dispatch(dctx, w, t.r.HandleFileEvent, func(err error) {
			t.r.logger.Warn("file watcher error", logging.Err(err))
		})
	}()

	t.r.logger.Debug("watching working copy",
		slog.String("root", root),
		slog.Int("directories", w.Stats().WatchedPaths))
	return nil
}

// watchIgnores is files.exclude without the admin directory globs, which
// the watcher handles itself.
func watchIgnores(s config.Settings) []string {
	var out []string
	for _, g := range s.ExcludeGlobs() {
		if strings.Contains(strings.TrimPrefix(g, "!"), adminDir) {
			continue
		}
		out = append(out, g)
	}
	return out
}

func (t *fsTrigger) close() {
	t.cancel()
	t.unsubscribe()
	t.adminChanged.Cancel()
	t.refresh.Cancel()
	t.deletedAction.Cancel()

	t.mu.Lock()
	w, done := t.watch, t.done
	t.mu.Unlock()
	if w != nil {
		w.Close()
		<-done
	}
}

// HandleFileEvent reacts to one file system change under the working
// copy. It is exported for hosts that run their own watcher.
func (r *Repository) HandleFileEvent(ev watcher.Event) {
	if r.fs.ctx.Err() != nil {
		return
	}
	rel, err := filepath.Rel(r.client.Root(), ev.Path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	rel = filepath.ToSlash(rel)

	if inAdminDir(rel) {
		if !strings.Contains(rel, adminDir+"/tmp") {
			r.fs.adminChanged.Call(ev.Path)
		}
		return
	}

	if ev.Op.Has(watcher.OpRemove) || ev.Op.Has(watcher.OpRename) {
		r.fs.mu.Lock()
		r.fs.deleted = append(r.fs.deleted, ev.Path)
		r.fs.mu.Unlock()
	}

	if ev.Op.Has(watcher.OpWrite) {
		if res, ok := r.ResourceFromFile(ev.Path); ok && res.Status == svn.StatusConflicted {
			if content, err := os.ReadFile(ev.Path); err == nil {
				r.DidSaveFile(ev.Path, string(content))
			}
		}
	}

	if !r.cfg.Settings().AutoRefresh || !r.ops.IsIdle() {
		return
	}
	r.fs.refresh.Call(struct{}{})
}

func inAdminDir(rel string) bool {
	return slices.Contains(strings.Split(rel, "/"), adminDir)
}

// updateWhenIdleAndWait refreshes the status once the repository is idle
// and focused, then holds the slot for the settle delay so a burst of
// events produces one refresh.
func (r *Repository) updateWhenIdleAndWait(ctx context.Context) error {
	if err := r.WhenIdleAndFocused(ctx); err != nil {
		return err
	}
	if err := r.Status(ctx); err != nil {
		return err
	}
	return r.sleep(ctx, r.settle)
}

// actionForDeletedFiles handles files removed from disk but still
// versioned, per delete.actionForDeletedFiles.
func (t *fsTrigger) actionForDeletedFiles(ctx context.Context) error {
	t.mu.Lock()
	paths := t.deleted
	t.deleted = nil
	t.mu.Unlock()
	if len(paths) == 0 {
		return nil
	}

	r := t.r
	settings := r.cfg.Settings()
	if settings.DeleteAction == config.DeleteActionNone {
		return nil
	}

	rules := glob.Compile(settings.DeleteIgnoredRules)
	root := r.client.Root()

	var missing []string
	for _, p := range paths {
		res, ok := r.ResourceFromFile(p)
		if !ok || res.Status != svn.StatusMissing || slices.Contains(missing, res.Path) {
			continue
		}
		if rules.Len() > 0 {
			rel, err := filepath.Rel(root, res.Path)
			if (err == nil && rules.Match(rel)) || rules.Match(res.Path) {
				continue
			}
		}
		missing = append(missing, res.Path)
	}
	if len(missing) == 0 {
		return nil
	}

	switch settings.DeleteAction {
	case config.DeleteActionRemove:
		return r.Remove(ctx, false, missing...)
	case config.DeleteActionPrompt:
		if r.promptRemove != nil {
			return r.promptRemove(ctx, missing)
		}
	}
	return nil
}

// DidSaveFile tells the repository a file was saved with content. A
// conflicted file whose conflict markers are gone emits
// conflict.resolved.
func (r *Repository) DidSaveFile(path, content string) bool {
	res, ok := r.ResourceFromFile(path)
	if !ok || res.Status != svn.StatusConflicted {
		return false
	}
	if conflictMarkers.MatchString(content) {
		return false
	}

	r.emit(Event{Type: EventConflictResolved, Path: res.Path})
	if r.onResolved != nil {
		r.onResolved(res.Path)
	}
	return true
}

// SetFocused reports whether the host window has focus.
func (r *Repository) SetFocused(focused bool) {
	r.mu.Lock()
	changed := r.focused != focused
	r.focused = focused
	r.mu.Unlock()
	if changed {
		r.emit(Event{Type: EventFocusChanged})
	}
}

// Focused reports the last value passed to SetFocused. It starts true.
func (r *Repository) Focused() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.focused
}

// WhenIdleAndFocused blocks until no mutating operation is running and the
// host has focus.
func (r *Repository) WhenIdleAndFocused(ctx context.Context) error {
	for {
		wake := make(chan struct{}, 1)
		unsubscribe := r.Subscribe(func(Event) {
			select {
			case wake <- struct{}{}:
			default:
			}
		}, EventRunFinished, EventFocusChanged, EventStateChanged)

		r.mu.RLock()
		closed, focused := r.closed, r.focused
		r.mu.RUnlock()

		switch {
		case closed:
			unsubscribe()
			return ErrClosed
		case r.ops.IsIdle() && focused:
			unsubscribe()
			return nil
		}

		select {
		case <-wake:
			unsubscribe()
		case <-ctx.Done():
			unsubscribe()
			return ctx.Err()
		}
	}
}

func (t *fsTrigger) reportError(err error) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, ErrClosed):
	case errors.Is(err, ErrNotIdle):
		t.r.logger.Debug("refresh skipped, repository busy")
	default:
		t.r.logger.LogAttrs(context.Background(), slog.LevelWarn, "background refresh failed", logging.ErrorAttrs(err)...)
	}
}
