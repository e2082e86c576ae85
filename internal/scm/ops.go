package scm

import (
	"context"

	"github.com/dshills/svnsync/internal/svn"
)

// Status reconciles the working copy.
func (r *Repository) Status(ctx context.Context) error {
	return r.Run(ctx, OpStatus, nil)
}

// StatusRemote reconciles the working copy and checks the server for
// incoming changes.
func (r *Repository) StatusRemote(ctx context.Context) error {
	return r.Run(ctx, OpStatusRemote, nil)
}

// Add schedules files for addition.
func (r *Repository) Add(ctx context.Context, files ...string) error {
	return r.Run(ctx, OpAdd, func(ctx context.Context) error {
		return r.client.Add(ctx, files...)
	})
}

// Remove schedules files for deletion.
func (r *Repository) Remove(ctx context.Context, keepLocal bool, files ...string) error {
	return r.Run(ctx, OpRemove, func(ctx context.Context) error {
		return r.client.Remove(ctx, keepLocal, files...)
	})
}

// Revert discards local changes to files.
func (r *Repository) Revert(ctx context.Context, files ...string) error {
	return r.Run(ctx, OpRevert, func(ctx context.Context) error {
		return r.client.Revert(ctx, files...)
	})
}

// Commit commits files and returns the new revision.
func (r *Repository) Commit(ctx context.Context, message string, files ...string) (string, error) {
	return Exec(ctx, r, OpCommit, func(ctx context.Context) (string, error) {
		return r.client.Commit(ctx, message, files...)
	})
}

// Update updates the working copy, skipping externals when
// update.ignoreExternals is set.
func (r *Repository) Update(ctx context.Context) (string, error) {
	ignoreExternals := r.cfg.Settings().UpdateIgnoreExternals
	return Exec(ctx, r, OpUpdate, func(ctx context.Context) (string, error) {
		return r.client.Update(ctx, ignoreExternals)
	})
}

// Cleanup releases stale working-copy locks.
func (r *Repository) Cleanup(ctx context.Context) error {
	return r.Run(ctx, OpCleanUp, r.client.Cleanup)
}

// AddChangelist moves files into the named changelist.
func (r *Repository) AddChangelist(ctx context.Context, name string, files ...string) error {
	return r.Run(ctx, OpAddChangelist, func(ctx context.Context) error {
		return r.client.AddChangelist(ctx, name, files...)
	})
}

// RemoveChangelist takes files out of their changelist.
func (r *Repository) RemoveChangelist(ctx context.Context, files ...string) error {
	return r.Run(ctx, OpRemoveChangelist, func(ctx context.Context) error {
		return r.client.RemoveChangelist(ctx, files...)
	})
}

// Resolve marks conflicts on files as resolved.
func (r *Repository) Resolve(ctx context.Context, action svn.ResolveAction, files ...string) error {
	return r.Run(ctx, OpResolve, func(ctx context.Context) error {
		return r.client.Resolve(ctx, action, files...)
	})
}

// Info returns svn info for target.
func (r *Repository) Info(ctx context.Context, target string) (*svn.Info, error) {
	return Exec(ctx, r, OpInfo, func(ctx context.Context) (*svn.Info, error) {
		return r.client.Info(ctx, target)
	})
}

// Show returns the content of target at revision, BASE when empty.
func (r *Repository) Show(ctx context.Context, target, revision string) (string, error) {
	return Exec(ctx, r, OpShow, func(ctx context.Context) (string, error) {
		return r.client.Show(ctx, target, revision)
	})
}

// GetCurrentBranch asks svn for the branch now, without waiting for a
// reconciliation.
func (r *Repository) GetCurrentBranch(ctx context.Context) (string, error) {
	branch, err := Exec(ctx, r, OpCurrentBranch, r.client.GetCurrentBranch)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.currentBranch = branch
	r.mu.Unlock()
	return branch, nil
}
