package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/dshills/svnsync/internal/scm"
)

// huhPrompter asks for credentials and confirmations on the terminal.
type huhPrompter struct {
	in  io.Reader
	out io.Writer
}

func newHuhPrompter(in io.Reader, out io.Writer) *huhPrompter {
	return &huhPrompter{in: in, out: out}
}

func (p *huhPrompter) form(fields ...huh.Field) *huh.Form {
	return huh.NewForm(huh.NewGroup(fields...)).
		WithShowHelp(false).
		WithInput(p.in).
		WithOutput(p.out)
}

// PromptCredentials implements scm.Prompter.
func (p *huhPrompter) PromptCredentials(ctx context.Context, req scm.PromptRequest) (scm.Credential, bool, error) {
	account := req.PreviousAccount
	var password string

	target := req.RepositoryURL
	if target == "" {
		target = req.Root
	}

	form := p.form(
		huh.NewInput().
			Title("Username").
			Description(target).
			Prompt("> ").
			Value(&account).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("username is required")
				}
				return nil
			}),
		huh.NewInput().
			Title("Password").
			Prompt("> ").
			EchoMode(huh.EchoModePassword).
			Value(&password),
	)
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return scm.Credential{}, false, nil
		}
		return scm.Credential{}, false, err
	}
	return scm.Credential{Account: strings.TrimSpace(account), Password: password}, true, nil
}

func (p *huhPrompter) confirmRemove(ctx context.Context, paths []string) (bool, error) {
	var ok bool
	title := fmt.Sprintf("Remove %d deleted file(s) from version control?", len(paths))
	form := p.form(
		huh.NewConfirm().
			Title(title).
			Description(strings.Join(paths, "\n")).
			Affirmative("Remove").
			Negative("Keep").
			Value(&ok),
	)
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}
