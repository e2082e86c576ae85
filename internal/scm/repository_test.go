package scm

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/dshills/svnsync/internal/svn"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateRunning, "running"},
		{StateDisposed, "disposed"},
		{State(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestRun_FailsFastWhileBusy(t *testing.T) {
	client := newFakeClient(t.TempDir())
	r := newTestRepository(t, client, Options{})
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, OpAdd, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if r.State() != StateRunning {
		t.Errorf("State() = %v, want running", r.State())
	}
	if err := r.Run(ctx, OpRevert, func(context.Context) error { return nil }); !errors.Is(err, ErrNotIdle) {
		t.Errorf("second mutating run: got %v, want ErrNotIdle", err)
	}
	if _, err := r.Show(ctx, "a.txt", ""); err != nil {
		t.Errorf("read-only run while busy: %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
	if r.State() != StateIdle {
		t.Errorf("State() after run = %v, want idle", r.State())
	}
	if client.callCount("revert") != 0 {
		t.Error("rejected run reached the client")
	}
}

func TestRun_AtMostOneRunning(t *testing.T) {
	r := newTestRepository(t, newFakeClient(t.TempDir()), Options{})
	ctx := context.Background()

	var active, peak int32
	var wg sync.WaitGroup
	var ok, busy int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.Run(ctx, OpCommit, func(context.Context) error {
				n := atomic.AddInt32(&active, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case errors.Is(err, ErrNotIdle):
				atomic.AddInt32(&busy, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak > 1 {
		t.Errorf("%d operations ran at once", peak)
	}
	if ok == 0 {
		t.Error("no run succeeded")
	}
	if ok+busy != 20 {
		t.Errorf("ok=%d busy=%d, want 20 total", ok, busy)
	}
}

func TestRun_ReconcilesAfterMutation(t *testing.T) {
	root := t.TempDir()
	client := newFakeClient(root)
	client.setEntries(
		svn.StatusEntry{Path: ".", Status: svn.StatusNormal},
		svn.StatusEntry{Path: "a.txt", Status: svn.StatusAdded},
	)
	r := newTestRepository(t, client, Options{})
	rec := recordEvents(r)

	if err := r.Add(context.Background(), filepath.Join(root, "a.txt")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	want := []string{EventRunStarted, EventStatusChanged, EventRunFinished}
	if got := rec.types(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	changes := r.Changes()
	if len(changes) != 1 || changes[0].Path != filepath.Join(root, "a.txt") {
		t.Errorf("Changes() = %v", changes)
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
	if r.CurrentBranch() != "trunk" {
		t.Errorf("CurrentBranch() = %q", r.CurrentBranch())
	}
	if opts := client.statusOpts[0]; !opts.IncludeIgnored || opts.CheckRemoteChanges {
		t.Errorf("status options = %+v", opts)
	}
}

func TestRun_ReadOnlySkipsReconcile(t *testing.T) {
	client := newFakeClient(t.TempDir())
	r := newTestRepository(t, client, Options{})

	info, err := r.Info(context.Background(), ".")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.UUID != "repo-uuid" {
		t.Errorf("UUID = %q", info.UUID)
	}
	if client.statusCalls() != 0 {
		t.Errorf("read-only operation ran %d status queries", client.statusCalls())
	}
}

func TestRun_StatusRemoteChecksServer(t *testing.T) {
	root := t.TempDir()
	client := newFakeClient(root)
	client.setEntries(svn.StatusEntry{
		Path:        "b.txt",
		Status:      svn.StatusNormal,
		ReposStatus: &svn.ReposStatus{Item: svn.StatusModified},
	})
	r := newTestRepository(t, client, Options{})
	rec := recordEvents(r, EventRemoteCountChanged)
	ctx := context.Background()

	if err := r.StatusRemote(ctx); err != nil {
		t.Fatalf("StatusRemote: %v", err)
	}
	if !client.statusOpts[0].CheckRemoteChanges {
		t.Error("remote check not requested")
	}
	if r.RemoteChangedFiles() != 1 || len(r.RemoteChanges()) != 1 {
		t.Errorf("remote changes = %d / %v", r.RemoteChangedFiles(), r.RemoteChanges())
	}

	// Same count again: no event.
	if err := r.StatusRemote(ctx); err != nil {
		t.Fatalf("StatusRemote: %v", err)
	}
	if n := len(rec.types()); n != 1 {
		t.Errorf("remote.count.changed fired %d times, want 1", n)
	}

	// A plain status keeps the remote group.
	if err := r.Status(ctx); err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(r.RemoteChanges()) != 1 {
		t.Error("plain status replaced remote changes")
	}
}

func TestRun_NotARepositoryDisposes(t *testing.T) {
	client := newFakeClient(t.TempDir())
	var removed int32
	r := newTestRepository(t, client, Options{
		OnRemove: func(*Repository) { atomic.AddInt32(&removed, 1) },
	})
	rec := recordEvents(r, EventStateChanged)

	svnErr := &svn.Error{Code: svn.CodeNotASvnRepository, Command: "status"}
	err := r.Run(context.Background(), OpCleanUp, func(context.Context) error { return svnErr })
	if err != svnErr {
		t.Fatalf("Run error = %v, want the original error", err)
	}
	if r.State() != StateDisposed {
		t.Errorf("State() = %v, want disposed", r.State())
	}
	if atomic.LoadInt32(&removed) != 1 {
		t.Errorf("OnRemove called %d times", removed)
	}
	if types := rec.types(); len(types) != 1 || rec.events[0].State != StateDisposed {
		t.Errorf("state events = %v", rec.events)
	}

	if err := r.Status(context.Background()); !errors.Is(err, ErrDisposed) {
		t.Errorf("run after dispose: got %v, want ErrDisposed", err)
	}
}

func TestRun_MissingWorkspaceRootRemoves(t *testing.T) {
	client := newFakeClient(t.TempDir())
	client.workspace = filepath.Join(t.TempDir(), "gone")
	var removed int32
	r := newTestRepository(t, client, Options{
		OnRemove: func(*Repository) { atomic.AddInt32(&removed, 1) },
	})

	boom := errors.New("boom")
	if err := r.Run(context.Background(), OpUpdate, func(context.Context) error { return boom }); err != boom {
		t.Fatalf("Run error = %v", err)
	}
	if atomic.LoadInt32(&removed) != 1 {
		t.Error("OnRemove not called for a missing workspace root")
	}
	if r.State() != StateIdle {
		t.Errorf("State() = %v, want idle", r.State())
	}
}

func TestRun_RecordsSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer tp.Shutdown(context.Background())

	r := newTestRepository(t, newFakeClient(t.TempDir()), Options{TracerProvider: tp})

	boom := errors.New("boom")
	_ = r.Run(context.Background(), OpRevert, func(context.Context) error { return boom })

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "svnsync.run" {
		t.Errorf("span name = %q", span.Name())
	}
	if span.Status().Code != codes.Error {
		t.Errorf("span status = %v, want error", span.Status().Code)
	}
	want := attribute.String("svn.operation", "Revert")
	if !slices.Contains(span.Attributes(), want) {
		t.Errorf("attributes %v missing %v", span.Attributes(), want)
	}
}

func TestRun_ProgressOnlyForVisibleOperations(t *testing.T) {
	var shown []Operation
	var mu sync.Mutex
	r := newTestRepository(t, newFakeClient(t.TempDir()), Options{
		Progress: func(ctx context.Context, op Operation) func() {
			mu.Lock()
			shown = append(shown, op)
			mu.Unlock()
			return nil
		},
	})
	ctx := context.Background()

	if err := r.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := r.Show(ctx, "a.txt", ""); err != nil {
		t.Fatalf("Show: %v", err)
	}
	if !slices.Equal(shown, []Operation{OpCleanUp}) {
		t.Errorf("progress shown for %v", shown)
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []map[string]any
	types  []string
}

func (p *recordingPublisher) Publish(eventType string, data map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, eventType)
	p.events = append(p.events, data)
}

func TestRepository_PublishesEvents(t *testing.T) {
	root := t.TempDir()
	pub := &recordingPublisher{}
	r := newTestRepository(t, newFakeClient(root), Options{Events: pub})

	if err := r.Status(context.Background()); err != nil {
		t.Fatalf("Status: %v", err)
	}

	if !slices.Equal(pub.types, []string{EventRunStarted, EventStatusChanged, EventRunFinished}) {
		t.Fatalf("published %v", pub.types)
	}
	first := pub.events[0]
	if first["repository"] != root {
		t.Errorf("repository = %v", first["repository"])
	}
	if first["operation"] != "Status" {
		t.Errorf("operation = %v", first["operation"])
	}
	if id, _ := first["run_id"].(string); id == "" || id != pub.events[2]["run_id"] {
		t.Errorf("run ids differ: %v / %v", first["run_id"], pub.events[2]["run_id"])
	}
	if _, ok := first["timestamp"].(int64); !ok {
		t.Errorf("timestamp = %T", first["timestamp"])
	}
}

func TestRepository_OperationEventsIsMemoized(t *testing.T) {
	r := newTestRepository(t, newFakeClient(t.TempDir()), Options{})

	s := r.OperationEvents()
	if s != r.OperationEvents() {
		t.Fatal("OperationEvents returned a new stream")
	}

	var got []string
	unsubscribe := s.Subscribe(func(e Event) { got = append(got, e.Type) })
	if err := r.Status(context.Background()); err != nil {
		t.Fatalf("Status: %v", err)
	}
	unsubscribe()
	if err := r.Status(context.Background()); err != nil {
		t.Fatalf("Status: %v", err)
	}

	if !slices.Equal(got, []string{EventRunStarted, EventRunFinished}) {
		t.Errorf("stream delivered %v", got)
	}
}

func TestRepository_Close(t *testing.T) {
	r := newTestRepository(t, newFakeClient(t.TempDir()), Options{})
	r.Close()
	r.Close()

	if err := r.Status(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("run after Close: got %v, want ErrClosed", err)
	}
	if err := r.WhenIdleAndFocused(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("WhenIdleAndFocused after Close: got %v", err)
	}
}

func TestWhenIdleAndFocused(t *testing.T) {
	r := newTestRepository(t, newFakeClient(t.TempDir()), Options{})
	ctx := context.Background()

	if err := r.WhenIdleAndFocused(ctx); err != nil {
		t.Fatalf("idle and focused: %v", err)
	}

	r.SetFocused(false)
	done := make(chan error, 1)
	go func() { done <- r.WhenIdleAndFocused(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("returned while unfocused: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	r.SetFocused(true)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WhenIdleAndFocused: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("did not wake on focus")
	}
}

func TestWhenIdleAndFocused_WaitsForRun(t *testing.T) {
	r := newTestRepository(t, newFakeClient(t.TempDir()), Options{})
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = r.Run(ctx, OpUpdate, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := r.WhenIdleAndFocused(waitCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline while busy, got %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- r.WhenIdleAndFocused(ctx) }()
	close(release)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WhenIdleAndFocused: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("did not wake after the run finished")
	}
}

func TestConvenienceOperations(t *testing.T) {
	root := t.TempDir()
	client := newFakeClient(root)
	r := newTestRepository(t, client, Options{})
	ctx := context.Background()
	file := filepath.Join(root, "a.txt")

	rev, err := r.Commit(ctx, "msg", file)
	if err != nil || rev != "42" {
		t.Errorf("Commit = %q, %v", rev, err)
	}
	out, err := r.Update(ctx)
	if err != nil || out != "At revision 42." {
		t.Errorf("Update = %q, %v", out, err)
	}
	steps := []struct {
		name string
		call string
		fn   func() error
	}{
		{"remove", "remove", func() error { return r.Remove(ctx, true, file) }},
		{"revert", "revert", func() error { return r.Revert(ctx, file) }},
		{"add changelist", "changelist", func() error { return r.AddChangelist(ctx, "wip", file) }},
		{"remove changelist", "changelist-remove", func() error { return r.RemoveChangelist(ctx, file) }},
		{"resolve", "resolve", func() error { return r.Resolve(ctx, svn.ResolveWorking, file) }},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			t.Errorf("%s: %v", s.name, err)
		}
		if client.callCount(s.call) != 1 {
			t.Errorf("%s: client call %q made %d times", s.name, s.call, client.callCount(s.call))
		}
	}

	client.mu.Lock()
	client.branch = "branches/feature"
	client.mu.Unlock()
	branch, err := r.GetCurrentBranch(ctx)
	if err != nil || branch != "branches/feature" || r.CurrentBranch() != branch {
		t.Errorf("GetCurrentBranch = %q, %v", branch, err)
	}
}
