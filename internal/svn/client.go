package svn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// Root is the working-copy root directory.
	Root string

	// WorkspaceRoot is the directory the editor opened. Defaults to Root.
	WorkspaceRoot string

	// Binary is the svn executable. Defaults to "svn" on PATH.
	Binary string

	// Logger receives debug output for every invocation.
	Logger *slog.Logger
}

// Client runs svn commands against one working copy.
//
// Thread-safety: safe for concurrent use; the credential and cached
// repository identity are guarded by a mutex.
type Client struct {
	root          string
	workspaceRoot string
	binary        string
	logger        *slog.Logger

	mu      sync.RWMutex
	cred    Credential
	rootURL string
	uuid    string
}

// NewClient creates a client without touching the working copy.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Binary == "" {
		cfg.Binary = "svn"
	}
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = cfg.Root
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		root:          cfg.Root,
		workspaceRoot: cfg.WorkspaceRoot,
		binary:        cfg.Binary,
		logger:        cfg.Logger.With(slog.String("component", "svn")),
	}
}

// Open creates a client for the working copy containing cfg.Root. The root
// is resolved to the working-copy root reported by svn info.
func Open(ctx context.Context, cfg ClientConfig) (*Client, error) {
	abs, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	cfg.Root = abs

	c := NewClient(cfg)
	info, err := c.Info(ctx, ".")
	if err != nil {
		if IsNotRepository(err) {
			return nil, fmt.Errorf("%s: %w: %w", abs, ErrNotWorkingCopy, err)
		}
		return nil, err
	}

	if info.WcRoot != "" {
		c.root = filepath.FromSlash(info.WcRoot)
		if cfg.WorkspaceRoot == "" {
			c.workspaceRoot = c.root
		}
	}
	c.mu.Lock()
	c.rootURL = info.RootURL
	c.uuid = info.UUID
	c.mu.Unlock()

	return c, nil
}

// Root returns the working-copy root.
func (c *Client) Root() string {
	return c.root
}

// WorkspaceRoot returns the directory the working copy was opened from.
func (c *Client) WorkspaceRoot() string {
	return c.workspaceRoot
}

// RepositoryRootURL returns the repository root URL, known after Open.
func (c *Client) RepositoryRootURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rootURL
}

// SetCredentials sets the account used for subsequent invocations. A zero
// Credential falls back to svn's own credential cache.
func (c *Client) SetCredentials(cred Credential) {
	c.mu.Lock()
	c.cred = cred
	c.mu.Unlock()
}

// Credentials returns the active credential.
func (c *Client) Credentials() Credential {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cred
}

// GetStatus runs svn status --xml on the working-copy root.
func (c *Client) GetStatus(ctx context.Context, opts StatusOptions) ([]StatusEntry, error) {
	args := []string{"stat", "--xml"}
	if opts.IncludeIgnored {
		args = append(args, "--no-ignore")
	}
	if !opts.IncludeExternals {
		args = append(args, "--ignore-externals")
	}
	if opts.CheckRemoteChanges {
		args = append(args, "--show-updates")
	}

	out, err := c.run(ctx, args...)
	if err != nil {
		return nil, err
	}

	entries, err := parseStatusXML(out)
	if err != nil {
		return nil, err
	}

	if opts.IncludeExternals {
		for i := range entries {
			if entries[i].Status != StatusExternal {
				continue
			}
			info, err := c.Info(ctx, entries[i].Path)
			if err != nil {
				// An external that is not checked out yet has no info.
				c.logger.Debug("external info unavailable",
					slog.String("path", entries[i].Path),
					slog.String("error", err.Error()))
				continue
			}
			entries[i].RepositoryUUID = info.UUID
		}
	}

	return entries, nil
}

// GetRepositoryUUID returns the UUID of the working copy's repository.
func (c *Client) GetRepositoryUUID(ctx context.Context) (string, error) {
	c.mu.RLock()
	uuid := c.uuid
	c.mu.RUnlock()
	if uuid != "" {
		return uuid, nil
	}

	info, err := c.Info(ctx, ".")
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.uuid = info.UUID
	if c.rootURL == "" {
		c.rootURL = info.RootURL
	}
	c.mu.Unlock()
	return info.UUID, nil
}

// GetCurrentBranch derives the branch from the working copy's URL.
func (c *Client) GetCurrentBranch(ctx context.Context) (string, error) {
	info, err := c.Info(ctx, ".")
	if err != nil {
		return "", err
	}
	return branchFromRelativeURL(info.RelativeURL), nil
}

// Info runs svn info --xml on target.
func (c *Client) Info(ctx context.Context, target string) (*Info, error) {
	out, err := c.run(ctx, "info", "--xml", "--", target)
	if err != nil {
		return nil, err
	}
	return parseInfoXML(out)
}

// Show returns the content of target at revision (BASE when empty).
func (c *Client) Show(ctx context.Context, target, revision string) (string, error) {
	if revision == "" {
		revision = "BASE"
	}
	out, err := c.run(ctx, "cat", "-r", revision, "--", target)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Add schedules files for addition.
func (c *Client) Add(ctx context.Context, files ...string) error {
	_, err := c.runFiles(ctx, []string{"add", "--parents", "--depth=empty"}, files)
	return err
}

// Remove schedules files for deletion. keepLocal leaves them on disk.
func (c *Client) Remove(ctx context.Context, keepLocal bool, files ...string) error {
	args := []string{"remove"}
	if keepLocal {
		args = append(args, "--keep-local")
	}
	_, err := c.runFiles(ctx, args, files)
	return err
}

// Revert discards local modifications to files.
func (c *Client) Revert(ctx context.Context, files ...string) error {
	_, err := c.runFiles(ctx, []string{"revert", "--depth=empty"}, files)
	return err
}

var committedRevision = regexp.MustCompile(`Committed revision (\d+)\.`)

// Commit commits files with message and returns the new revision.
func (c *Client) Commit(ctx context.Context, message string, files ...string) (string, error) {
	out, err := c.runFiles(ctx, []string{"commit", "-m", message}, files)
	if err != nil {
		return "", err
	}
	m := committedRevision.FindSubmatch(out)
	if m == nil {
		return "", nil
	}
	return string(m[1]), nil
}

// Update brings the working copy up to date and returns svn's last line of
// output (for example "At revision 42.").
func (c *Client) Update(ctx context.Context, ignoreExternals bool) (string, error) {
	args := []string{"update"}
	if ignoreExternals {
		args = append(args, "--ignore-externals")
	}
	out, err := c.run(ctx, args...)
	if err != nil {
		return "", err
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1]), nil
}

// Cleanup releases stale working-copy locks.
func (c *Client) Cleanup(ctx context.Context) error {
	_, err := c.run(ctx, "cleanup")
	return err
}

// AddChangelist moves files into the named changelist.
func (c *Client) AddChangelist(ctx context.Context, name string, files ...string) error {
	_, err := c.runFiles(ctx, []string{"changelist", name}, files)
	return err
}

// RemoveChangelist takes files out of whatever changelist they are in.
func (c *Client) RemoveChangelist(ctx context.Context, files ...string) error {
	_, err := c.runFiles(ctx, []string{"changelist", "--remove"}, files)
	return err
}

// Resolve marks conflicts on files as resolved using action.
func (c *Client) Resolve(ctx context.Context, action ResolveAction, files ...string) error {
	_, err := c.runFiles(ctx, []string{"resolve", "--accept", string(action)}, files)
	return err
}

// runFiles appends files after a "--" separator so a path can never be
// read as an option.
func (c *Client) runFiles(ctx context.Context, args, files []string) ([]byte, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("svn %s: no files given", args[0])
	}
	args = append(args, "--")
	for _, f := range files {
		args = append(args, c.relative(f))
	}
	return c.run(ctx, args...)
}

func (c *Client) relative(p string) string {
	if !filepath.IsAbs(p) {
		return p
	}
	rel, err := filepath.Rel(c.root, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return p
	}
	return filepath.ToSlash(rel)
}

// run executes svn in the working-copy root.
func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	full := []string{"--non-interactive"}

	c.mu.RLock()
	cred := c.cred
	c.mu.RUnlock()
	if !cred.IsZero() {
		full = append(full, "--username", cred.Account, "--password", cred.Password)
	}
	full = append(full, args...)

	cmd := exec.CommandContext(ctx, c.binary, full...)
	cmd.Dir = c.root
	// Error codes are stable across locales but messages are not.
	cmd.Env = append(os.Environ(), "LC_MESSAGES=C", "LANGUAGE=C")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Debug("svn exec", slog.String("command", args[0]), slog.String("dir", c.root))

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSvnNotFound, c.binary)
		}
		se := &Error{
			Command:  args[0],
			Stderr:   stderr.String(),
			Code:     detectCode(stderr.String()),
			ExitCode: -1,
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			se.ExitCode = exitErr.ExitCode()
		}
		return nil, se
	}

	return stdout.Bytes(), nil
}
