package scm

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dshills/svnsync/internal/concurrency"
	"github.com/dshills/svnsync/internal/config"
	"github.com/dshills/svnsync/internal/logging"
)

// RemoteTarget is what the poller drives.
type RemoteTarget interface {
	StatusRemote(ctx context.Context) error
	DisposeRemoteChanges()
}

// RemotePoller checks the server for incoming changes every
// remoteChanges.checkFrequency seconds. A frequency of 0 disables the
// timer and drops the remote changes group.
//
// Thread-safety: All methods are safe for concurrent use.
type RemotePoller struct {
	target RemoteTarget
	cfg    config.Reader
	logger *slog.Logger
	unit   time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	stop     chan struct{}
	interval time.Duration
	closed   bool

	update      *concurrency.Debouncer[struct{}]
	unsubscribe func()
}

// PollerOption configures a RemotePoller.
type PollerOption func(*pollerOptions)

type pollerOptions struct {
	logger   *slog.Logger
	debounce time.Duration
	unit     time.Duration
}

// WithPollerLogger sets the logger.
func WithPollerLogger(l *slog.Logger) PollerOption {
	return func(o *pollerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPollerDebounce sets the window that collapses Update calls.
func WithPollerDebounce(d time.Duration) PollerOption {
	return func(o *pollerOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// WithPollUnit sets the unit of the configured frequency. Tests use
// milliseconds.
func WithPollUnit(d time.Duration) PollerOption {
	return func(o *pollerOptions) {
		if d > 0 {
			o.unit = d
		}
	}
}

// NewRemotePoller starts the timer for the current frequency and follows
// configuration changes.
func NewRemotePoller(target RemoteTarget, cfg config.Reader, opts ...PollerOption) *RemotePoller {
	o := pollerOptions{
		logger:   slog.Default(),
		debounce: time.Second,
		unit:     time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &RemotePoller{
		target: target,
		cfg:    cfg,
		logger: o.logger,
		unit:   o.unit,
		ctx:    ctx,
		cancel: cancel,
	}
	p.update = concurrency.NewDebouncer(o.debounce, func(struct{}) error {
		return p.UpdateNow(p.ctx)
	}, concurrency.WithErrorHandler(p.reportError))

	p.schedule()
	p.unsubscribe = cfg.OnChange(func(c config.Change) {
		if !c.Affects(config.KeyRemoteCheckFrequency) {
			return
		}
		p.schedule()
		p.Update()
	})
	return p
}

// schedule replaces the running timer with one for the current frequency.
func (p *RemotePoller) schedule() {
	freq := p.cfg.Settings().RemoteCheckFrequency

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
	p.interval = 0
	if freq <= 0 {
		return
	}

	p.interval = time.Duration(freq) * p.unit
	stop := make(chan struct{})
	p.stop = stop
	go p.loop(p.interval, stop)
}

func (p *RemotePoller) loop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.Update()
		}
	}
}

// Update schedules UpdateNow after the debounce window.
func (p *RemotePoller) Update() {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if !closed {
		p.update.Call(struct{}{})
	}
}

// UpdateNow runs a remote status check, or disposes the remote changes
// group when polling is disabled.
func (p *RemotePoller) UpdateNow(ctx context.Context) error {
	if p.cfg.Settings().RemoteCheckFrequency <= 0 {
		p.target.DisposeRemoteChanges()
		return nil
	}
	return p.target.StatusRemote(ctx)
}

// HasTimer reports whether a timer is running.
func (p *RemotePoller) HasTimer() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stop != nil
}

// Interval returns the current timer interval, 0 when disabled.
func (p *RemotePoller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// Close stops the timer. It is safe to call more than once.
func (p *RemotePoller) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
	p.interval = 0
	p.mu.Unlock()

	p.unsubscribe()
	p.update.Cancel()
	p.cancel()
}

func (p *RemotePoller) reportError(err error) {
	switch {
	case errors.Is(err, context.Canceled):
	case errors.Is(err, ErrNotIdle):
		p.logger.Debug("remote check skipped, repository busy")
	default:
		p.logger.LogAttrs(context.Background(), slog.LevelWarn, "remote check failed", logging.ErrorAttrs(err)...)
	}
}
