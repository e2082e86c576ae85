// Package watcher reports file system changes under a working copy.
//
// A Watcher walks a directory tree and registers every directory with
// fsnotify, skipping paths that match ignore patterns and never descending
// into skipped directory names such as ".svn". New directories are picked
// up as they are created. Errors from the underlying notifier are counted
// and forwarded on the Errors channel; they never stop the watcher.
package watcher

import (
	"context"
	"errors"
	"time"
)

// Errors returned by watcher operations.
var (
	ErrWatcherClosed   = errors.New("watcher is closed")
	ErrAlreadyWatching = errors.New("path is already being watched")
	ErrNotWatching     = errors.New("path is not being watched")
	ErrPathNotExist    = errors.New("path does not exist")
	ErrWatchLimit      = errors.New("maximum watch limit reached")
)

// Op is a set of file system operations.
type Op uint32

const (
	OpCreate Op = 1 << iota
	OpWrite
	OpRemove
	OpRename
	OpChmod
)

// String returns the name of a single operation.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpWrite:
		return "WRITE"
	case OpRemove:
		return "REMOVE"
	case OpRename:
		return "RENAME"
	case OpChmod:
		return "CHMOD"
	default:
		return "UNKNOWN"
	}
}

// Has reports whether op includes o.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// Event is one file system change.
type Event struct {
	// Path is the absolute path of the affected file or directory.
	Path string

	Op        Op
	Timestamp time.Time
}

// Stats describes watcher activity.
type Stats struct {
	WatchedPaths  int
	PendingEvents int
	TotalEvents   int64
	Errors        int64
	LastError     error
	StartTime     time.Time
}

// Config holds watcher options.
type Config struct {
	// BufferSize is the capacity of the Events and Errors channels.
	// Events are dropped, and counted as errors, when the buffer is full.
	BufferSize int

	// IgnorePatterns are .gitignore-style patterns relative to the
	// watched root.
	IgnorePatterns []string

	// SkipDirs are directory names that a recursive walk never enters.
	// A skipped directory can still be watched explicitly with Watch.
	SkipDirs []string

	// MaxWatches caps the number of watched directories. 0 means no cap.
	MaxWatches int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BufferSize: 256,
	}
}

// Option configures a watcher.
type Option func(*Config)

// WithBufferSize sets the channel buffer size.
func WithBufferSize(size int) Option {
	return func(c *Config) {
		c.BufferSize = size
	}
}

// WithIgnorePatterns sets the ignore patterns.
func WithIgnorePatterns(patterns []string) Option {
	return func(c *Config) {
		c.IgnorePatterns = patterns
	}
}

// WithSkipDirs sets directory names a recursive walk does not enter.
func WithSkipDirs(names ...string) Option {
	return func(c *Config) {
		c.SkipDirs = names
	}
}

// WithMaxWatches sets the maximum number of watched directories.
func WithMaxWatches(max int) Option {
	return func(c *Config) {
		c.MaxWatches = max
	}
}

// Source is the read side of a watcher.
type Source interface {
	Events() <-chan Event
	Errors() <-chan error
}

// Dispatch reads src until ctx is done or its channels close, calling
// onEvent and onError for each item. Either callback may be nil.
func Dispatch(ctx context.Context, src Source, onEvent func(Event), onError func(error)) {
	events, errs := src.Events(), src.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if onEvent != nil {
				onEvent(ev)
			}
		case err, ok := <-errs:
			if !ok {
				return
			}
			if onError != nil {
				onError(err)
			}
		}
	}
}
