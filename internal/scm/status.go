package scm

import (
	"context"
	"log/slog"

	"github.com/dshills/svnsync/internal/logging"
	"github.com/dshills/svnsync/internal/svn"
)

// UpdateModelState fetches a status snapshot, reconciles it and refreshes
// the groups. checkRemote also asks the server for incoming changes.
//
// A pass requested while one is running is coalesced into a single
// trailing pass. Passes of every repository sharing the sequence key run
// one at a time.
func (r *Repository) UpdateModelState(ctx context.Context, checkRemote bool) error {
	_, err := r.updateModel.Do(ctx, checkRemote)
	return err
}

func (r *Repository) updateModelState(ctx context.Context, checkRemote bool) error {
	settings := r.cfg.Settings()

	entries, err := retryRun(ctx, r, func(ctx context.Context) ([]svn.StatusEntry, error) {
		return r.client.GetStatus(ctx, svn.StatusOptions{
			IncludeIgnored:     true,
			IncludeExternals:   settings.CombineExternalIfSameServer,
			CheckRemoteChanges: checkRemote,
		})
	})
	if err != nil {
		return err
	}

	in := Input{
		Root:            r.client.Root(),
		CombineExternal: settings.CombineExternalIfSameServer,
		ExcludeGlobs:    settings.ExcludeGlobs(),
		IgnoreGlobs:     settings.Ignore,
		HideUnversioned: settings.HideUnversioned,
	}
	if in.CombineExternal && HasExternals(entries) {
		uuid, err := r.client.GetRepositoryUUID(ctx)
		if err != nil {
			return err
		}
		in.RepositoryUUID = uuid
	}

	res := Reconcile(entries, in)
	count := r.groups.Apply(res, settings.IgnoreOnStatusCount, settings.CountUnversioned)

	remoteCount := -1
	if checkRemote {
		remoteCount = r.groups.SetRemoteChanges(res.RemoteChanges)
	}

	r.mu.Lock()
	r.statusExternal = res.StatusExternal
	r.statusIgnored = res.StatusIgnored
	r.isIncomplete = res.IsIncomplete
	r.needCleanUp = res.NeedCleanUp
	r.count = count
	remoteChanged := remoteCount >= 0 && remoteCount != r.remoteChangedFiles
	if remoteChanged {
		r.remoteChangedFiles = remoteCount
	}
	r.mu.Unlock()

	if remoteChanged {
		r.emit(Event{Type: EventRemoteCountChanged, Count: remoteCount})
	}

	branch, err := r.client.GetCurrentBranch(ctx)
	if err != nil {
		r.logger.Debug("current branch unavailable", logging.Err(err))
	} else {
		r.mu.Lock()
		r.currentBranch = branch
		r.mu.Unlock()
	}

	r.logger.Debug("status reconciled",
		slog.Int("count", count),
		slog.Int("changes", len(res.Changes)),
		slog.Int("conflicts", len(res.Conflicts)),
		slog.Int("unversioned", len(res.Unversioned)),
		slog.Int("changelists", len(res.ChangelistOrder)),
		slog.Bool("remote", checkRemote))

	r.emit(Event{Type: EventStatusChanged, Count: count})
	return nil
}
