package concurrency

import (
	"sync"
	"time"
)

// Debouncer collapses rapid successive calls into a single trailing call.
//
// Only the argument of the last call inside the window is delivered. Callers
// whose calls were suppressed receive nothing. Errors returned by the callback
// go to the configured error handler.
//
// Thread-safety: All methods are safe for concurrent use. The callback is
// never invoked concurrently with itself by the same Debouncer.
type Debouncer[T any] struct {
	mu       sync.Mutex
	runMu    sync.Mutex
	delay    time.Duration
	timer    *time.Timer
	pending  bool
	arg      T
	seq      uint64 // sequence number to detect stale timer callbacks
	callback func(T) error
	onError  func(error)
}

// DebounceOption configures a Debouncer.
type DebounceOption func(*debounceOptions)

type debounceOptions struct {
	onError func(error)
}

// WithErrorHandler sets the handler receiving errors from trailing calls.
func WithErrorHandler(fn func(error)) DebounceOption {
	return func(o *debounceOptions) {
		o.onError = fn
	}
}

// NewDebouncer creates a debouncer that invokes callback once no call has
// been made for at least delay.
//
// Without WithErrorHandler, callback errors are reported through the
// package error hook (see SetErrorHook).
func NewDebouncer[T any](delay time.Duration, callback func(T) error, opts ...DebounceOption) *Debouncer[T] {
	options := debounceOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.onError == nil {
		options.onError = reportError
	}

	return &Debouncer[T]{
		delay:    delay,
		callback: callback,
		onError:  options.onError,
	}
}

// Call schedules the callback with arg after the debounce delay.
//
// If called again within the delay, the earlier call is dropped and the
// window restarts.
func (d *Debouncer[T]) Call(arg T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = true
	d.arg = arg
	d.seq++
	currentSeq := d.seq

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		// Only execute if this is still the current scheduled callback
		if !d.pending || d.seq != currentSeq {
			d.mu.Unlock()
			return
		}
		d.pending = false
		d.timer = nil
		arg := d.arg
		d.mu.Unlock()
		d.invoke(arg)
	})
}

// Flush runs the pending call immediately, if any, canceling the timer.
func (d *Debouncer[T]) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++

	if !d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = false
	arg := d.arg
	d.mu.Unlock()
	d.invoke(arg)
}

// Cancel drops any pending call.
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
	d.pending = false
	var zero T
	d.arg = zero
}

// IsPending returns true if a call is waiting for the window to close.
func (d *Debouncer[T]) IsPending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

func (d *Debouncer[T]) invoke(arg T) {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	if err := d.callback(arg); err != nil {
		d.onError(err)
	}
}
