package scm

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/dshills/svnsync/internal/config"
	"github.com/dshills/svnsync/internal/logging"
	"github.com/dshills/svnsync/internal/svn"
)

type fakeClient struct {
	root      string
	workspace string
	rootURL   string

	mu          sync.Mutex
	uuid        string
	branch      string
	entries     []svn.StatusEntry
	statusErrs  []error
	statusOpts  []svn.StatusOptions
	creds       []svn.Credential
	calls       []string
	removed     []string
	resolved    []string
	mutationErr error
}

func newFakeClient(root string) *fakeClient {
	return &fakeClient{
		root:      root,
		workspace: root,
		rootURL:   "https://svn.example.com/repo",
		uuid:      "repo-uuid",
		branch:    "trunk",
	}
}

func (f *fakeClient) setEntries(entries ...svn.StatusEntry) {
	f.mu.Lock()
	f.entries = entries
	f.mu.Unlock()
}

func (f *fakeClient) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.mutationErr
}

func (f *fakeClient) statusCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.statusOpts)
}

func (f *fakeClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeClient) Root() string              { return f.root }
func (f *fakeClient) WorkspaceRoot() string     { return f.workspace }
func (f *fakeClient) RepositoryRootURL() string { return f.rootURL }

func (f *fakeClient) SetCredentials(cred svn.Credential) {
	f.mu.Lock()
	f.creds = append(f.creds, cred)
	f.mu.Unlock()
}

func (f *fakeClient) GetStatus(ctx context.Context, opts svn.StatusOptions) ([]svn.StatusEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusOpts = append(f.statusOpts, opts)
	if len(f.statusErrs) > 0 {
		err := f.statusErrs[0]
		f.statusErrs = f.statusErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return slices.Clone(f.entries), nil
}

func (f *fakeClient) GetRepositoryUUID(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uuid, nil
}

func (f *fakeClient) GetCurrentBranch(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.branch, nil
}

func (f *fakeClient) Info(ctx context.Context, target string) (*svn.Info, error) {
	return &svn.Info{Path: target, UUID: f.uuid, RootURL: f.rootURL}, f.record("info")
}

func (f *fakeClient) Show(ctx context.Context, target, revision string) (string, error) {
	return "content of " + target, f.record("show")
}

func (f *fakeClient) Add(ctx context.Context, files ...string) error {
	return f.record("add")
}

func (f *fakeClient) Remove(ctx context.Context, keepLocal bool, files ...string) error {
	f.mu.Lock()
	f.removed = append(f.removed, files...)
	f.mu.Unlock()
	return f.record("remove")
}

func (f *fakeClient) Revert(ctx context.Context, files ...string) error {
	return f.record("revert")
}

func (f *fakeClient) Commit(ctx context.Context, message string, files ...string) (string, error) {
	return "42", f.record("commit")
}

func (f *fakeClient) Update(ctx context.Context, ignoreExternals bool) (string, error) {
	return "At revision 42.", f.record("update")
}

func (f *fakeClient) Cleanup(ctx context.Context) error {
	return f.record("cleanup")
}

func (f *fakeClient) AddChangelist(ctx context.Context, name string, files ...string) error {
	return f.record("changelist")
}

func (f *fakeClient) RemoveChangelist(ctx context.Context, files ...string) error {
	return f.record("changelist-remove")
}

func (f *fakeClient) Resolve(ctx context.Context, action svn.ResolveAction, files ...string) error {
	f.mu.Lock()
	f.resolved = append(f.resolved, files...)
	f.mu.Unlock()
	return f.record("resolve")
}

// newTestRepository returns a repository with polling off and short
// delays.
func newTestRepository(t *testing.T, client *fakeClient, opts Options) *Repository {
	t.Helper()
	if opts.Config == nil {
		opts.Config = config.NewStore()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.DebounceDelay == 0 {
		opts.DebounceDelay = 10 * time.Millisecond
	}
	if opts.SettleDelay == 0 {
		opts.SettleDelay = time.Millisecond
	}
	opts.DisableRemotePolling = true

	r := New(client, opts)
	t.Cleanup(r.Close)
	return r
}

// eventRecorder collects events of the given types.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func recordEvents(r *Repository, types ...string) *eventRecorder {
	rec := &eventRecorder{ch: make(chan Event, 64)}
	r.Subscribe(func(e Event) {
		rec.mu.Lock()
		rec.events = append(rec.events, e)
		rec.mu.Unlock()
		select {
		case rec.ch <- e:
		default:
		}
	}, types...)
	return rec
}

func (rec *eventRecorder) types() []string {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]string, len(rec.events))
	for i, e := range rec.events {
		out[i] = e.Type
	}
	return out
}

func (rec *eventRecorder) wait(t *testing.T, typ string) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-rec.ch:
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
			return Event{}
		}
	}
}
