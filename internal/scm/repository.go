package scm

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/dshills/svnsync/internal/concurrency"
	"github.com/dshills/svnsync/internal/config"
	"github.com/dshills/svnsync/internal/logging"
	"github.com/dshills/svnsync/internal/secrets"
	"github.com/dshills/svnsync/internal/svn"
)

// State is the repository run state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDisposed:
		return "disposed"
	}
	return "unknown"
}

// DefaultSequenceKey serializes reconciliation across every repository in
// the process.
const DefaultSequenceKey = "updateModelState"

const tracerName = "github.com/dshills/svnsync/internal/scm"

// ProgressFunc is called when an operation that shows progress starts. The
// returned function is called when it finishes.
type ProgressFunc func(ctx context.Context, op Operation) (done func())

// Options configures a Repository. Every field is optional.
type Options struct {
	Config   config.Reader
	Secrets  secrets.Store
	Prompter Prompter

	Events         EventPublisher
	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
	Progress       ProgressFunc

	// OnRemove is called when the working copy disappears or svn no
	// longer recognises it.
	OnRemove func(*Repository)

	// PromptRemove is asked what to do with files deleted outside svn when
	// delete.actionForDeletedFiles is "prompt".
	PromptRemove func(ctx context.Context, paths []string) error

	// OnConflictResolved is called after a saved file's conflict markers
	// are gone.
	OnConflictResolved func(path string)

	// DisableRemotePolling skips the RemotePoller.
	DisableRemotePolling bool

	// SequenceKey overrides DefaultSequenceKey.
	SequenceKey string

	// LockBackoff is the wait before retry number attempt after a lock
	// error. Defaults to attempt² × 50ms.
	LockBackoff func(attempt int) time.Duration

	// DebounceDelay is the window for file system and poller triggers.
	// Defaults to one second.
	DebounceDelay time.Duration

	// SettleDelay is the pause after an idle-triggered refresh. Defaults
	// to five seconds.
	SettleDelay time.Duration

	// PollUnit is the unit of remoteChanges.checkFrequency. Defaults to
	// one second.
	PollUnit time.Duration
}

// Repository is one working copy under source control.
type Repository struct {
	client       Client
	cfg          config.Reader
	secrets      secrets.Store
	prompter     Prompter
	publisher    EventPublisher
	logger       *slog.Logger
	tracer       trace.Tracer
	progress     ProgressFunc
	onRemove     func(*Repository)
	promptRemove func(ctx context.Context, paths []string) error
	onResolved   func(path string)
	seqKey       string
	backoff      func(attempt int) time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
	debounce     time.Duration
	settle       time.Duration

	mu                 sync.RWMutex
	state              State
	closed             bool
	focused            bool
	statusExternal     []svn.StatusEntry
	statusIgnored      []svn.StatusEntry
	isIncomplete       bool
	needCleanUp        bool
	remoteChangedFiles int
	count              int
	currentBranch      string

	ops       *Operations
	groups    *GroupManager
	listeners *listeners
	opsStream *concurrency.Memo[*EventStream]

	updateModel *concurrency.Throttle[bool, struct{}]

	authMu      sync.Mutex
	pendingSave Credential
	canSaveAuth bool
	promptWait  chan struct{}
	prompts     singleflight.Group

	poller *RemotePoller
	fs     *fsTrigger

	closeOnce sync.Once
}

// New creates a repository without touching the working copy. Most callers
// want Open.
func New(client Client, opts Options) *Repository {
	if opts.Config == nil {
		opts.Config = config.NewStore()
	}
	if opts.Secrets == nil {
		opts.Secrets = secrets.NewMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	if opts.SequenceKey == "" {
		opts.SequenceKey = DefaultSequenceKey
	}
	if opts.LockBackoff == nil {
		opts.LockBackoff = lockBackoff
	}
	if opts.DebounceDelay <= 0 {
		opts.DebounceDelay = time.Second
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 5 * time.Second
	}

	r := &Repository{
		client:       client,
		cfg:          opts.Config,
		secrets:      opts.Secrets,
		prompter:     opts.Prompter,
		publisher:    opts.Events,
		logger:       opts.Logger.With(slog.String("component", "scm")),
		tracer:       opts.TracerProvider.Tracer(tracerName),
		progress:     opts.Progress,
		onRemove:     opts.OnRemove,
		promptRemove: opts.PromptRemove,
		onResolved:   opts.OnConflictResolved,
		seqKey:       opts.SequenceKey,
		backoff:      opts.LockBackoff,
		sleep:        concurrency.Sleep,
		debounce:     opts.DebounceDelay,
		settle:       opts.SettleDelay,
		focused:      true,
		ops:          newOperations(),
		groups:       NewGroupManager(),
		listeners:    &listeners{},
	}

	r.opsStream = concurrency.NewMemo(func() *EventStream {
		return &EventStream{l: r.listeners, types: []string{EventRunStarted, EventRunFinished}}
	})
	r.updateModel = concurrency.NewThrottle(func(ctx context.Context, checkRemote bool) (struct{}, error) {
		return concurrency.GlobalSequentialize(ctx, r.seqKey, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, r.updateModelState(ctx, checkRemote)
		})
	})
	r.fs = newFSTrigger(r)

	if !opts.DisableRemotePolling {
		r.poller = NewRemotePoller(r, r.cfg,
			WithPollerLogger(r.logger),
			WithPollerDebounce(opts.DebounceDelay),
			WithPollUnit(opts.PollUnit))
	}

	return r
}

// Open creates a repository, schedules the first remote check and runs
// the first status pass.
func Open(ctx context.Context, client Client, opts Options) (*Repository, error) {
	r := New(client, opts)
	if r.poller != nil {
		r.poller.Update()
	}
	if err := r.Status(ctx); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// Exec runs fn as op through the repository's retry and reconciliation
// pipeline and returns its result.
//
// Exec fails with ErrNotIdle, without calling fn, when op is mutating and
// another mutating operation is in flight. After a successful mutating
// operation the status is reconciled before Exec returns. An error that
// says the working copy is gone disposes the repository; the error is
// returned unchanged either way.
func Exec[T any](ctx context.Context, r *Repository, op Operation, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := r.begin(op); err != nil {
		return zero, err
	}

	runID := uuid.NewString()
	ctx, span := r.tracer.Start(ctx, "svnsync.run", trace.WithAttributes(
		attribute.String("svn.operation", string(op)),
		attribute.String("svnsync.run_id", runID),
		attribute.Bool("svn.read_only", op.ReadOnly()),
	))

	if op.ShowProgress() && r.progress != nil {
		if done := r.progress(ctx, op); done != nil {
			defer done()
		}
	}

	r.emit(Event{Type: EventRunStarted, Operation: op, RunID: runID})

	var err error
	defer func() {
		r.ops.end(op)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, logging.Sanitize(err.Error()))
		}
		span.End()
		r.emit(Event{Type: EventRunFinished, Operation: op, RunID: runID, Err: err})
	}()

	if fn == nil {
		fn = func(context.Context) (T, error) { return zero, nil }
	}

	var val T
	val, err = retryRun(ctx, r, fn)
	if err == nil && !op.ReadOnly() {
		err = r.UpdateModelState(ctx, op == OpStatusRemote)
	}
	if err != nil {
		r.handleRunError(op, err)
		return zero, err
	}
	return val, nil
}

// Run is Exec for operations without a result. A nil fn runs nothing but
// still reconciles status for mutating operations.
func (r *Repository) Run(ctx context.Context, op Operation, fn func(context.Context) error) error {
	var wrapped func(context.Context) (struct{}, error)
	if fn != nil {
		wrapped = func(ctx context.Context) (struct{}, error) {
			return struct{}{}, fn(ctx)
		}
	}
	_, err := Exec(ctx, r, op, wrapped)
	return err
}

// begin checks and marks op as started in one step.
func (r *Repository) begin(op Operation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.closed:
		return ErrClosed
	case r.state == StateDisposed:
		return ErrDisposed
	case !op.ReadOnly() && !r.ops.IsIdle():
		return ErrNotIdle
	}
	r.ops.start(op)
	return nil
}

func (r *Repository) handleRunError(op Operation, err error) {
	r.logger.Debug("operation failed",
		slog.String("operation", string(op)),
		logging.Err(err))

	gone := svn.IsNotRepository(err)
	if gone {
		r.setState(StateDisposed)
	}
	if !gone {
		if _, statErr := os.Stat(r.client.WorkspaceRoot()); errors.Is(statErr, os.ErrNotExist) {
			gone = true
		}
	}
	if gone && r.onRemove != nil {
		r.onRemove(r)
	}
}

// setState changes the lifecycle state. Groups are emptied on every
// change.
func (r *Repository) setState(s State) {
	r.mu.Lock()
	if r.state == s {
		r.mu.Unlock()
		return
	}
	r.state = s
	r.count = 0
	r.mu.Unlock()

	r.groups.ClearAll()
	r.emit(Event{Type: EventStateChanged, State: s})
}

func (r *Repository) emit(e Event) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return
	}

	e.Time = time.Now()
	if !r.listeners.emit(e) {
		return
	}
	if r.publisher != nil {
		r.publisher.Publish(e.Type, e.data(r.client.Root()))
	}
}

// Subscribe registers fn for events of the given types, or for every event
// when no type is given.
func (r *Repository) Subscribe(fn func(Event), types ...string) (unsubscribe func()) {
	return r.listeners.subscribe(fn, types...)
}

// OperationEvents returns the stream of run.started and run.finished
// events. The same stream is returned on every call.
func (r *Repository) OperationEvents() *EventStream {
	return r.opsStream.Get()
}

// Close stops timers and watchers and drops every subscriber. It is safe
// to call more than once.
func (r *Repository) Close() {
	r.closeOnce.Do(func() {
		if r.poller != nil {
			r.poller.Close()
		}
		r.fs.close()

		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()

		r.listeners.close()
	})
}

// State returns the run state. It is StateRunning while a mutating
// operation is in flight.
func (r *Repository) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state == StateIdle && !r.ops.IsIdle() {
		return StateRunning
	}
	return r.state
}

// Operations returns the in-flight operation table.
func (r *Repository) Operations() *Operations { return r.ops }

// Groups returns the group manager.
func (r *Repository) Groups() *GroupManager { return r.groups }

// Client returns the underlying client.
func (r *Repository) Client() Client { return r.client }

// Root returns the working-copy root.
func (r *Repository) Root() string { return r.client.Root() }

// WorkspaceRoot returns the directory the repository was opened from.
func (r *Repository) WorkspaceRoot() string { return r.client.WorkspaceRoot() }

// Changes returns the changes group contents.
func (r *Repository) Changes() []Resource { return r.groups.Changes().Resources() }

// Conflicts returns the conflicts group contents.
func (r *Repository) Conflicts() []Resource { return r.groups.Conflicts().Resources() }

// Unversioned returns the unversioned group contents.
func (r *Repository) Unversioned() []Resource { return r.groups.Unversioned().Resources() }

// RemoteChanges returns the remote changes group contents.
func (r *Repository) RemoteChanges() []Resource { return r.groups.RemoteChanges().Resources() }

// Changelists returns each changelist's contents by name.
func (r *Repository) Changelists() map[string][]Resource {
	out := make(map[string][]Resource)
	for _, g := range r.groups.Changelists() {
		out[g.Changelist] = g.Resources()
	}
	return out
}

// DisposeRemoteChanges removes the remote changes group.
func (r *Repository) DisposeRemoteChanges() { r.groups.DisposeRemoteChanges() }

// ResourceFromFile returns the working-copy resource for an absolute path.
func (r *Repository) ResourceFromFile(path string) (Resource, bool) {
	return r.groups.Find(path)
}

// Count returns the badge count of the last reconciliation.
func (r *Repository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// CurrentBranch returns the branch name found by the last reconciliation.
func (r *Repository) CurrentBranch() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentBranch
}

// IsIncomplete reports an interrupted update or switch.
func (r *Repository) IsIncomplete() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isIncomplete
}

// NeedCleanUp reports a locked working-copy root.
func (r *Repository) NeedCleanUp() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.needCleanUp
}

// RemoteChangedFiles returns the size of the last remote check.
func (r *Repository) RemoteChangedFiles() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.remoteChangedFiles
}

// StatusIgnored returns the ignored entries of the last pass.
func (r *Repository) StatusIgnored() []svn.StatusEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.statusIgnored)
}

// StatusExternal returns the externals of the last pass.
func (r *Repository) StatusExternal() []svn.StatusEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.statusExternal)
}
