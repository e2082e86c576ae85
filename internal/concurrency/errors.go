package concurrency

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

var errorHook atomic.Pointer[func(error)]

// SetErrorHook replaces the handler used for errors that have no caller to
// return to. Passing nil restores the default slog handler.
func SetErrorHook(fn func(error)) {
	if fn == nil {
		errorHook.Store(nil)
		return
	}
	errorHook.Store(&fn)
}

func reportError(err error) {
	if hook := errorHook.Load(); hook != nil {
		(*hook)(err)
		return
	}
	slog.Default().Error("debounced call failed", slog.String("error", err.Error()))
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
