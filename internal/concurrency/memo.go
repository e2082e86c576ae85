package concurrency

import "sync"

// Memo caches the result of a zero-argument accessor for the lifetime of
// its owner. The accessor runs at most once, on first Get.
type Memo[T any] struct {
	once sync.Once
	fn   func() T
	val  T
}

// NewMemo wraps fn.
func NewMemo[T any](fn func() T) *Memo[T] {
	return &Memo[T]{fn: fn}
}

// Get returns the cached value, computing it on first use.
func (m *Memo[T]) Get() T {
	m.once.Do(func() {
		m.val = m.fn()
		m.fn = nil
	})
	return m.val
}
