package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/svnsync/internal/concurrency"
	"github.com/dshills/svnsync/internal/logging"
	"github.com/dshills/svnsync/internal/scm"
	"github.com/dshills/svnsync/internal/watcher"
)

const configReloadDelay = 250 * time.Millisecond

func newWatchCommand(opts *globalOptions, std streams) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [path]",
		Short: "Keep status current until interrupted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, opts, std, sessionOptions{path: pathArg(args), remotePolling: true})
			if err != nil {
				return err
			}
			defer s.Close()
			return s.watch(ctx)
		},
	}
}

func (s *session) watch(ctx context.Context) error {
	var mu sync.Mutex
	reprint := func() {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(s.io.out)
		writeStatus(s.io.out, snapshot(s.repo))
	}

	unsubscribe := s.repo.Subscribe(func(scm.Event) { reprint() },
		scm.EventStatusChanged, scm.EventRemoteCountChanged)
	defer unsubscribe()

	if err := s.repo.WatchFiles(ctx); err != nil {
		return err
	}
	if s.opts.configPath != "" {
		stop, err := s.watchConfig(ctx)
		if err != nil {
			return err
		}
		defer stop()
	}

	reprint()
	<-ctx.Done()
	s.logger.Info("stopping", slog.String("root", s.repo.Root()))
	return nil
}

// watchConfig reloads the settings file when it changes on disk. The
// directory is watched so editors that replace the file are seen.
func (s *session) watchConfig(ctx context.Context) (stop func(), err error) {
	path, err := filepath.Abs(s.opts.configPath)
	if err != nil {
		return nil, err
	}
	w, err := watcher.New()
	if err != nil {
		return nil, err
	}
	if err := w.Watch(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}

	reload := concurrency.NewDebouncer(configReloadDelay,
		func(struct{}) error {
			if err := s.cfg.Reload(); err != nil {
				return fmt.Errorf("reload %s: %w", path, err)
			}
			s.logger.Info("configuration reloaded", slog.String("path", path))
			return nil
		},
		concurrency.WithErrorHandler(func(err error) {
			s.logger.Warn("configuration not reloaded", logging.Err(err))
		}),
	)

	dctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		watcher.Dispatch(dctx, w,
			func(ev watcher.Event) {
				if filepath.Clean(ev.Path) == path {
					reload.Call(struct{}{})
				}
			},
			func(err error) {
				s.logger.Debug("config watcher", logging.Err(err))
			})
	}()

	return func() {
		cancel()
		reload.Cancel()
		w.Close()
		<-done
	}, nil
}
