package concurrency

import (
	"context"
	"sync"
)

// Throttle ensures at most one execution of fn is in flight.
//
// A call arriving while an execution runs is parked. When the running
// execution completes, exactly one trailing execution starts with the
// argument and context of the most recent parked call; every parked caller
// receives the result of that trailing execution. This is coalescing, not
// queueing: three calls parked behind one execution yield one more run.
//
// Thread-safety: All methods are safe for concurrent use.
type Throttle[A, T any] struct {
	fn func(context.Context, A) (T, error)

	mu      sync.Mutex
	running bool
	next    *throttleCall[A, T]
}

type throttleCall[A, T any] struct {
	ctx  context.Context
	arg  A
	done chan struct{}
	val  T
	err  error
}

// NewThrottle wraps fn.
func NewThrottle[A, T any](fn func(context.Context, A) (T, error)) *Throttle[A, T] {
	return &Throttle[A, T]{fn: fn}
}

// Do runs fn now if idle, otherwise parks the call behind the current run.
//
// A parked caller whose ctx ends stops waiting and gets ctx.Err(); the
// trailing execution still runs for the remaining callers.
func (t *Throttle[A, T]) Do(ctx context.Context, arg A) (T, error) {
	t.mu.Lock()
	if !t.running {
		t.running = true
		t.mu.Unlock()

		val, err := t.fn(ctx, arg)
		t.finish()
		return val, err
	}

	if t.next == nil {
		t.next = &throttleCall[A, T]{done: make(chan struct{})}
	}
	call := t.next
	call.ctx = ctx
	call.arg = arg
	t.mu.Unlock()

	select {
	case <-call.done:
		return call.val, call.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Running reports whether an execution is in flight.
func (t *Throttle[A, T]) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// finish hands the slot to the parked call, if any.
func (t *Throttle[A, T]) finish() {
	t.mu.Lock()
	call := t.next
	t.next = nil
	if call == nil {
		t.running = false
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	go func() {
		call.val, call.err = t.fn(context.WithoutCancel(call.ctx), call.arg)
		close(call.done)
		t.finish()
	}()
}
