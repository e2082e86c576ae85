package scm

import (
	"sort"
	"sync"
)

// Operation names a unit of work run through Repository.Run.
type Operation string

const (
	OpAdd              Operation = "Add"
	OpAddChangelist    Operation = "AddChangelist"
	OpCleanUp          Operation = "CleanUp"
	OpCommit           Operation = "Commit"
	OpCurrentBranch    Operation = "CurrentBranch"
	OpInfo             Operation = "Info"
	OpLog              Operation = "Log"
	OpRemove           Operation = "Remove"
	OpRemoveChangelist Operation = "RemoveChangelist"
	OpResolve          Operation = "Resolve"
	OpRevert           Operation = "Revert"
	OpShow             Operation = "Show"
	OpStatus           Operation = "Status"
	OpStatusRemote     Operation = "StatusRemote"
	OpUpdate           Operation = "Update"
)

// ReadOnly reports whether op leaves the working copy untouched. Read-only
// operations skip reconciliation and may run beside a mutating one.
func (op Operation) ReadOnly() bool {
	switch op {
	case OpCurrentBranch, OpLog, OpShow, OpInfo:
		return true
	}
	return false
}

// ShowProgress reports whether the host should show a progress indicator.
func (op Operation) ShowProgress() bool {
	switch op {
	case OpCurrentBranch, OpShow, OpInfo:
		return false
	}
	return true
}

// Operations counts in-flight operations by kind.
type Operations struct {
	mu     sync.RWMutex
	counts map[Operation]int
}

func newOperations() *Operations {
	return &Operations{counts: make(map[Operation]int)}
}

func (o *Operations) start(op Operation) {
	o.mu.Lock()
	o.counts[op]++
	o.mu.Unlock()
}

func (o *Operations) end(op Operation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts[op] <= 1 {
		delete(o.counts, op)
		return
	}
	o.counts[op]--
}

// IsRunning reports whether at least one op is in flight.
func (o *Operations) IsRunning(op Operation) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.counts[op] > 0
}

// IsIdle reports whether every in-flight operation is read-only.
func (o *Operations) IsIdle() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for op := range o.counts {
		if !op.ReadOnly() {
			return false
		}
	}
	return true
}

// Running returns the in-flight kinds, sorted.
func (o *Operations) Running() []Operation {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ops := make([]Operation, 0, len(o.counts))
	for op := range o.counts {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}
