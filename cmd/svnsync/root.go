package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/dshills/svnsync/internal/concurrency"
	"github.com/dshills/svnsync/internal/config"
	"github.com/dshills/svnsync/internal/logging"
	"github.com/dshills/svnsync/internal/scm"
	"github.com/dshills/svnsync/internal/secrets"
	"github.com/dshills/svnsync/internal/svn"
)

// passphraseEnv holds the secrets file passphrase.
const passphraseEnv = "SVNSYNC_SECRETS_PASSPHRASE"

type globalOptions struct {
	configPath  string
	secretsPath string
	logLevel    string
	logFormat   string
	svnBinary   string
	noPrompt    bool
}

type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{}
	std := streams{in: stdin, out: stdout, err: stderr}

	root := &cobra.Command{
		Use:           "svnsync",
		Short:         "Keep a Subversion working copy's status in sync",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "Configuration file (TOML or YAML)")
	pf.StringVar(&opts.secretsPath, "secrets", "", "Encrypted credential file (passphrase from "+passphraseEnv+")")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&opts.logFormat, "log-format", "", "Log format (text, json)")
	pf.StringVar(&opts.svnBinary, "svn", "svn", "svn executable")
	pf.BoolVar(&opts.noPrompt, "no-prompt", false, "Never prompt for credentials")

	root.AddCommand(
		newStatusCommand(opts, std),
		newWatchCommand(opts, std),
		newRunCommand(opts, std),
	)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root
}

// session is everything one command needs to drive a working copy.
type session struct {
	opts   *globalOptions
	io     streams
	logger *slog.Logger
	cfg    *config.Store
	repo   *scm.Repository
	tp     *sdktrace.TracerProvider
}

type sessionOptions struct {
	path          string
	remotePolling bool
}

func openSession(ctx context.Context, opts *globalOptions, std streams, so sessionOptions) (*session, error) {
	cfgOpts := []config.StoreOption{config.WithEnv()}
	if opts.configPath != "" {
		cfgOpts = append(cfgOpts, config.WithFile(opts.configPath))
	}
	cfg, err := config.Load(cfgOpts...)
	if err != nil {
		return nil, err
	}

	settings := cfg.Settings()
	level, format := settings.LogLevel, settings.LogFormat
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	if opts.logFormat != "" {
		format = opts.logFormat
	}
	logger, err := logging.New(std.err, logging.Options{Level: level, Format: format, Sanitize: true})
	if err != nil {
		cfg.Close()
		return nil, err
	}
	slog.SetDefault(logger)
	concurrency.SetErrorHook(func(err error) {
		logger.Warn("background task failed", logging.Err(err))
	})

	store, err := openSecrets(opts)
	if err != nil {
		cfg.Close()
		return nil, err
	}

	tp, err := newTracerProvider(ctx)
	if err != nil {
		cfg.Close()
		return nil, err
	}

	s := &session{opts: opts, io: std, logger: logger, cfg: cfg, tp: tp}

	client, err := svn.Open(ctx, svn.ClientConfig{
		Root:   so.path,
		Binary: opts.svnBinary,
		Logger: logger,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	repoOpts := scm.Options{
		Config:               cfg,
		Secrets:              store,
		Logger:               logger,
		TracerProvider:       tp,
		Progress:             s.progress,
		DisableRemotePolling: !so.remotePolling,
		OnRemove: func(r *scm.Repository) {
			logger.Warn("working copy is gone", slog.String("root", r.Root()))
		},
		OnConflictResolved: func(path string) {
			s.resolveConflict(path)
		},
	}
	if !opts.noPrompt {
		prompter := newHuhPrompter(std.in, std.err)
		repoOpts.Prompter = prompter
		repoOpts.PromptRemove = func(ctx context.Context, paths []string) error {
			ok, err := prompter.confirmRemove(ctx, paths)
			if err != nil || !ok {
				return err
			}
			return s.repo.Remove(ctx, false, paths...)
		}
	}

	repo, err := scm.Open(ctx, client, repoOpts)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.repo = repo
	return s, nil
}

func openSecrets(opts *globalOptions) (secrets.Store, error) {
	if opts.secretsPath == "" {
		return secrets.NewMemoryStore(), nil
	}
	passphrase := os.Getenv(passphraseEnv)
	if passphrase == "" {
		return nil, fmt.Errorf("%s: %w (set %s)", opts.secretsPath, secrets.ErrNoPassphrase, passphraseEnv)
	}
	return secrets.NewFileStore(opts.secretsPath, passphrase)
}

// progress prints a line for operations that take a while.
func (s *session) progress(ctx context.Context, op scm.Operation) func() {
	start := time.Now()
	s.logger.Debug("operation started", slog.String("operation", string(op)))
	return func() {
		s.logger.Debug("operation finished",
			slog.String("operation", string(op)),
			slog.Duration("elapsed", time.Since(start)))
	}
}

func (s *session) resolveConflict(path string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		err := s.repo.Resolve(ctx, svn.ResolveWorking, path)
		switch {
		case err == nil:
			s.logger.Info("conflict resolved", slog.String("path", path))
		case errors.Is(err, scm.ErrNotIdle):
			s.logger.Info("conflict markers removed; resolve once idle", slog.String("path", path))
		default:
			s.logger.Warn("resolve failed", slog.String("path", path), logging.Err(err))
		}
	}()
}

// Close releases the repository, configuration and tracer.
func (s *session) Close() {
	if s.repo != nil {
		s.repo.Close()
	}
	s.cfg.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.tp.Shutdown(ctx); err != nil {
		s.logger.Warn("trace shutdown", logging.Err(err))
	}
}

func pathArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}
