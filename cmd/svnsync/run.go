package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/svnsync/internal/scm"
	"github.com/dshills/svnsync/internal/svn"
)

type runFlags struct {
	dir        string
	message    string
	changelist string
	accept     string
	keepLocal  bool
}

type runOp struct {
	needsFiles bool
	run        func(ctx context.Context, repo *scm.Repository, f runFlags, files []string) (string, error)
}

var runOps = map[string]runOp{
	"add": {needsFiles: true, run: func(ctx context.Context, repo *scm.Repository, _ runFlags, files []string) (string, error) {
		return "", repo.Add(ctx, files...)
	}},
	"remove": {needsFiles: true, run: func(ctx context.Context, repo *scm.Repository, f runFlags, files []string) (string, error) {
		return "", repo.Remove(ctx, f.keepLocal, files...)
	}},
	"revert": {needsFiles: true, run: func(ctx context.Context, repo *scm.Repository, _ runFlags, files []string) (string, error) {
		return "", repo.Revert(ctx, files...)
	}},
	"commit": {run: func(ctx context.Context, repo *scm.Repository, f runFlags, files []string) (string, error) {
		rev, err := repo.Commit(ctx, f.message, files...)
		if err != nil {
			return "", err
		}
		return "Committed revision " + rev + ".", nil
	}},
	"update": {run: func(ctx context.Context, repo *scm.Repository, _ runFlags, _ []string) (string, error) {
		rev, err := repo.Update(ctx)
		if err != nil {
			return "", err
		}
		return "At revision " + rev + ".", nil
	}},
	"cleanup": {run: func(ctx context.Context, repo *scm.Repository, _ runFlags, _ []string) (string, error) {
		return "", repo.Cleanup(ctx)
	}},
	"changelist": {needsFiles: true, run: func(ctx context.Context, repo *scm.Repository, f runFlags, files []string) (string, error) {
		if f.changelist == "" {
			return "", repo.RemoveChangelist(ctx, files...)
		}
		return "", repo.AddChangelist(ctx, f.changelist, files...)
	}},
	"resolve": {needsFiles: true, run: func(ctx context.Context, repo *scm.Repository, f runFlags, files []string) (string, error) {
		return "", repo.Resolve(ctx, svn.ResolveAction(f.accept), files...)
	}},
}

var resolveActions = []svn.ResolveAction{
	svn.ResolveWorking,
	svn.ResolveBase,
	svn.ResolveMineFull,
	svn.ResolveTheirsFull,
	svn.ResolveMineConflict,
	svn.ResolveTheirsConflict,
}

func runOpNames() []string {
	names := make([]string, 0, len(runOps))
	for name := range runOps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// validateRun checks arguments before the working copy is opened.
func validateRun(name string, f runFlags, files []string) (runOp, error) {
	op, ok := runOps[name]
	if !ok {
		return runOp{}, fmt.Errorf("unknown operation %q (want one of %s)", name, strings.Join(runOpNames(), ", "))
	}
	if op.needsFiles && len(files) == 0 {
		return runOp{}, fmt.Errorf("%s needs at least one file", name)
	}
	switch name {
	case "commit":
		if strings.TrimSpace(f.message) == "" {
			return runOp{}, errors.New("commit needs a message (-m)")
		}
	case "resolve":
		if !slices.Contains(resolveActions, svn.ResolveAction(f.accept)) {
			return runOp{}, fmt.Errorf("unknown --accept value %q", f.accept)
		}
	}
	return op, nil
}

func newRunCommand(opts *globalOptions, std streams) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run <operation> [files...]",
		Short: "Run an svn operation and refresh status",
		Long: "Run an svn operation through the sync engine.\n\nOperations: " +
			strings.Join(runOpNames(), ", ") + ".\n" +
			"changelist without --changelist removes files from their changelist.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files := make([]string, 0, len(args)-1)
			for _, p := range args[1:] {
				abs, err := filepath.Abs(p)
				if err != nil {
					return err
				}
				files = append(files, abs)
			}
			op, err := validateRun(args[0], f, files)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := openSession(ctx, opts, std, sessionOptions{path: f.dir})
			if err != nil {
				return err
			}
			defer s.Close()

			msg, err := op.run(ctx, s.repo, f, files)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if msg != "" {
				fmt.Fprintln(out, msg)
			}
			writeStatus(out, snapshot(s.repo))
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.dir, "dir", "C", ".", "Working copy directory")
	fl.StringVarP(&f.message, "message", "m", "", "Commit message")
	fl.StringVar(&f.changelist, "changelist", "", "Changelist name for the changelist operation")
	fl.StringVar(&f.accept, "accept", string(svn.ResolveWorking), "Resolution for the resolve operation")
	fl.BoolVar(&f.keepLocal, "keep-local", false, "Keep the local copy when removing")
	return cmd
}
