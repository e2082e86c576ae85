package scm

import (
	"context"
	"log/slog"
	"time"

	"github.com/dshills/svnsync/internal/logging"
	"github.com/dshills/svnsync/internal/svn"
)

const (
	// maxLockRetries is how many times a locked working copy is retried.
	maxLockRetries = 10

	// maxPrompts is how many interactive prompts follow the stored
	// credentials.
	maxPrompts = 3
)

// lockBackoff is attempt² × 50ms.
func lockBackoff(attempt int) time.Duration {
	return time.Duration(attempt*attempt) * 50 * time.Millisecond
}

// retryRun calls fn until it succeeds or fails in a way that cannot be
// retried.
//
// A working-copy lock is retried maxLockRetries times with lockBackoff
// between attempts. The first auth failure, whenever it occurs, loads the
// stored credentials; each auth failure then substitutes one of them,
// newest first, before prompting up to maxPrompts times. Lock retries do
// not count against the auth budget. A dismissed prompt ends the loop. In every case the
// last error from fn is returned unchanged.
func retryRun[T any](ctx context.Context, r *Repository, fn func(context.Context) (T, error)) (T, error) {
	var (
		zero         T
		accounts     []Credential
		authFailures int
	)

	for attempt := 1; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			r.saveAuth(ctx)
			return val, nil
		}

		switch {
		case svn.IsLocked(err) && attempt <= maxLockRetries:
			wait := r.backoff(attempt)
			r.logger.Debug("working copy locked, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("wait", wait))
			if r.sleep(ctx, wait) != nil {
				return zero, err
			}

		case svn.IsAuthFailed(err):
			authFailures++
			if authFailures == 1 {
				accounts = r.loadStoredCredentials(ctx)
			}
			if authFailures <= len(accounts) {
				cred := accounts[len(accounts)-authFailures]
				r.logger.Debug("trying stored credential",
					slog.Int("attempt", attempt),
					slog.String("account", cred.Account))
				r.client.SetCredentials(cred)
				continue
			}
			if authFailures > len(accounts)+maxPrompts {
				return zero, err
			}
			ok, perr := r.promptAuth(ctx)
			if perr != nil {
				r.logger.Warn("credential prompt failed", logging.Err(perr))
			}
			if !ok {
				return zero, err
			}

		default:
			return zero, err
		}
	}
}
