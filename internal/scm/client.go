package scm

import (
	"context"

	"github.com/dshills/svnsync/internal/svn"
)

// Credential is an account/password pair for the repository server.
type Credential = svn.Credential

// Client is the svn client surface the repository drives. *svn.Client
// implements it.
type Client interface {
	Root() string
	WorkspaceRoot() string
	RepositoryRootURL() string
	SetCredentials(cred svn.Credential)

	GetStatus(ctx context.Context, opts svn.StatusOptions) ([]svn.StatusEntry, error)
	GetRepositoryUUID(ctx context.Context) (string, error)
	GetCurrentBranch(ctx context.Context) (string, error)
	Info(ctx context.Context, target string) (*svn.Info, error)
	Show(ctx context.Context, target, revision string) (string, error)

	Add(ctx context.Context, files ...string) error
	Remove(ctx context.Context, keepLocal bool, files ...string) error
	Revert(ctx context.Context, files ...string) error
	Commit(ctx context.Context, message string, files ...string) (string, error)
	Update(ctx context.Context, ignoreExternals bool) (string, error)
	Cleanup(ctx context.Context) error
	AddChangelist(ctx context.Context, name string, files ...string) error
	RemoveChangelist(ctx context.Context, files ...string) error
	Resolve(ctx context.Context, action svn.ResolveAction, files ...string) error
}

var _ Client = (*svn.Client)(nil)
