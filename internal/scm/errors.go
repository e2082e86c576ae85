package scm

import "errors"

var (
	// ErrNotIdle is returned by Run when a mutating operation is already
	// in flight. Callers are expected to wait for run.finished instead of
	// retrying in a loop.
	ErrNotIdle = errors.New("repository is busy")

	// ErrDisposed is returned once the working copy has been reported
	// missing or invalid.
	ErrDisposed = errors.New("repository is disposed")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("repository is closed")
)
