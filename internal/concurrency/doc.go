// Package concurrency provides the control wrappers shared by the
// synchronization engine.
//
// The package offers four composable primitives:
//
//   - Debouncer: collapses bursts of calls into one trailing call
//   - Throttle: at most one execution in flight, coalescing the next call
//   - Sequentializer: a keyed mutex spanning unrelated owners
//   - Memo: a lazily computed, cached zero-argument accessor
//
// Wrappers stack without changing call signatures. A throttled status
// refresh that must not interleave with other repositories looks like:
//
//	refresh := concurrency.NewThrottle(func(ctx context.Context, remote bool) (struct{}, error) {
//	    return concurrency.GlobalSequentialize(ctx, "updateModelState",
//	        func(ctx context.Context) (struct{}, error) {
//	            return struct{}{}, repo.reconcile(ctx, remote)
//	        })
//	})
//
// # Errors
//
// No wrapper swallows errors. Throttle and Sequentializer return the wrapped
// function's error to every caller that waited on that execution. Debouncer
// has no caller to return to, so trailing-call errors go to an error handler,
// by default the package error hook, which logs through log/slog.
package concurrency
