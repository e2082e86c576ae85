package concurrency

import (
	"context"
	"sync"
)

// Sequentializer is a keyed mutex. Calls sharing a key run strictly one at a
// time in arrival order, whichever owner issued them.
//
// Chains are created lazily on first use of a key and dropped once the last
// queued call for that key has finished.
type Sequentializer struct {
	mu     sync.Mutex
	chains map[string]*chain
}

type chain struct {
	tail    chan struct{}
	pending int
}

// NewSequentializer creates an empty Sequentializer.
func NewSequentializer() *Sequentializer {
	return &Sequentializer{chains: make(map[string]*chain)}
}

var global = NewSequentializer()

// Sequentialize runs fn once every earlier call with the same key on s has
// finished.
//
// If ctx ends while waiting, Sequentialize returns ctx.Err() without running
// fn; the chain order is preserved for later callers.
func Sequentialize[T any](ctx context.Context, s *Sequentializer, key string, fn func(context.Context) (T, error)) (T, error) {
	prev, mine := s.enqueue(key)

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			go func() {
				<-prev
				s.release(key, mine)
			}()
			var zero T
			return zero, ctx.Err()
		}
	}
	defer s.release(key, mine)

	return fn(ctx)
}

// GlobalSequentialize is Sequentialize on the process-wide Sequentializer.
func GlobalSequentialize[T any](ctx context.Context, key string, fn func(context.Context) (T, error)) (T, error) {
	return Sequentialize(ctx, global, key, fn)
}

// Len returns the number of keys with queued or running calls.
func (s *Sequentializer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chains)
}

func (s *Sequentializer) enqueue(key string) (prev, mine chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chains[key]
	if !ok {
		c = &chain{}
		s.chains[key] = c
	}
	prev = c.tail
	mine = make(chan struct{})
	c.tail = mine
	c.pending++
	return prev, mine
}

func (s *Sequentializer) release(key string, mine chan struct{}) {
	close(mine)

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.chains[key]
	if c == nil {
		return
	}
	c.pending--
	if c.pending == 0 {
		delete(s.chains, key)
	}
}
