package scm

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/dshills/svnsync/internal/logging"
)

// credentialKeyPrefix namespaces credential lists in the secret store.
const credentialKeyPrefix = "svnsync:"

// PromptRequest describes the repository credentials are asked for.
type PromptRequest struct {
	RepositoryURL   string
	Root            string
	PreviousAccount string
}

// Prompter asks the user for credentials. ok is false when the prompt was
// dismissed.
type Prompter interface {
	PromptCredentials(ctx context.Context, req PromptRequest) (cred Credential, ok bool, err error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, req PromptRequest) (Credential, bool, error)

// PromptCredentials calls f.
func (f PrompterFunc) PromptCredentials(ctx context.Context, req PromptRequest) (Credential, bool, error) {
	return f(ctx, req)
}

type promptResult struct {
	cred Credential
	ok   bool
}

// credentialKey identifies the repository in the secret store. Working
// copies of the same repository share credentials.
func (r *Repository) credentialKey() string {
	if url := r.client.RepositoryRootURL(); url != "" {
		return credentialKeyPrefix + url
	}
	return credentialKeyPrefix + r.client.Root()
}

// loadStoredCredentials returns the saved credentials, oldest first. It
// waits for an in-flight prompt so a credential entered there is seen.
func (r *Repository) loadStoredCredentials(ctx context.Context) []Credential {
	r.authMu.Lock()
	wait := r.promptWait
	r.authMu.Unlock()
	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return nil
		}
	}

	raw, ok, err := r.secrets.Get(ctx, r.credentialKey())
	if err != nil {
		r.logger.Warn("load stored credentials", logging.Err(err))
		return nil
	}
	if !ok {
		return nil
	}

	var creds []Credential
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		r.logger.Warn("stored credentials unreadable", logging.Err(err))
		return nil
	}
	return creds
}

// promptAuth asks for credentials once, however many runs fail at the same
// time. An accepted credential becomes active and is saved after the next
// success.
func (r *Repository) promptAuth(ctx context.Context) (bool, error) {
	if r.prompter == nil {
		return false, nil
	}

	v, err, _ := r.prompts.Do("prompt", func() (any, error) {
		wait := make(chan struct{})
		r.authMu.Lock()
		r.promptWait = wait
		previous := r.pendingSave.Account
		r.authMu.Unlock()

		defer func() {
			r.authMu.Lock()
			r.promptWait = nil
			r.authMu.Unlock()
			close(wait)
		}()

		cred, ok, err := r.prompter.PromptCredentials(ctx, PromptRequest{
			RepositoryURL:   r.client.RepositoryRootURL(),
			Root:            r.client.Root(),
			PreviousAccount: previous,
		})
		if err != nil || !ok || cred.IsZero() {
			return promptResult{}, err
		}

		r.client.SetCredentials(cred)
		r.authMu.Lock()
		r.pendingSave = cred
		r.canSaveAuth = true
		r.authMu.Unlock()
		return promptResult{cred: cred, ok: true}, nil
	})
	if err != nil {
		return false, err
	}
	return v.(promptResult).ok, nil
}

// saveAuth stores a prompted credential after it worked. An entry for the
// same account is replaced. Failures are logged.
func (r *Repository) saveAuth(ctx context.Context) {
	r.authMu.Lock()
	if !r.canSaveAuth || r.pendingSave.IsZero() || r.pendingSave.Password == "" {
		r.authMu.Unlock()
		return
	}
	cred := r.pendingSave
	r.canSaveAuth = false
	r.authMu.Unlock()

	key := r.credentialKey()
	var creds []Credential
	raw, ok, err := r.secrets.Get(ctx, key)
	if err != nil {
		r.logger.Warn("save credentials", logging.Err(err))
		return
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), &creds); err != nil {
			r.logger.Warn("stored credentials unreadable, replacing", logging.Err(err))
			creds = nil
		}
	}

	replaced := false
	for i := range creds {
		if creds[i].Account == cred.Account {
			creds[i] = cred
			replaced = true
		}
	}
	if !replaced {
		creds = append(creds, cred)
	}

	data, err := json.Marshal(creds)
	if err != nil {
		r.logger.Warn("save credentials", logging.Err(err))
		return
	}
	if err := r.secrets.Store(ctx, key, string(data)); err != nil {
		r.logger.Warn("save credentials", logging.Err(err))
		return
	}
	r.logger.Info("credentials saved", slog.String("account", cred.Account))
}
