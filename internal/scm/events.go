package scm

import (
	"slices"
	"sync"
	"time"
)

// Event types.
const (
	EventRunStarted         = "svn.run.started"
	EventRunFinished        = "svn.run.finished"
	EventStateChanged       = "svn.state.changed"
	EventStatusChanged      = "svn.status.changed"
	EventRemoteCountChanged = "svn.remote.count.changed"
	EventRepositoryChanged  = "svn.repository.changed"
	EventConflictResolved   = "svn.conflict.resolved"
	EventFocusChanged       = "svn.focus.changed"
)

// Event is delivered to subscribers. Only the fields relevant to Type are
// set.
type Event struct {
	Type string

	Operation Operation
	RunID     string
	Err       error

	State State
	Path  string
	Count int

	Time time.Time
}

// EventPublisher receives every event in map form, for hosts that route
// events through a bus.
type EventPublisher interface {
	Publish(eventType string, data map[string]any)
}

func (e Event) data(root string) map[string]any {
	data := map[string]any{
		"repository": root,
		"timestamp":  e.Time.UnixMilli(),
	}
	if e.Operation != "" {
		data["operation"] = string(e.Operation)
	}
	if e.RunID != "" {
		data["run_id"] = e.RunID
	}
	if e.Err != nil {
		data["error"] = e.Err.Error()
	}
	switch e.Type {
	case EventStateChanged:
		data["state"] = e.State.String()
	case EventRemoteCountChanged:
		data["count"] = e.Count
	case EventRepositoryChanged, EventConflictResolved:
		data["path"] = e.Path
	}
	return data
}

type listener struct {
	id    uint64
	types []string
	fn    func(Event)
}

// listeners is a subscriber list delivered in subscription order.
type listeners struct {
	mu     sync.RWMutex
	nextID uint64
	list   []listener
	closed bool
}

func (l *listeners) subscribe(fn func(Event), types ...string) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return func() {}
	}
	l.nextID++
	id := l.nextID
	l.list = append(l.list, listener{id: id, types: types, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.list = slices.DeleteFunc(l.list, func(x listener) bool { return x.id == id })
		})
	}
}

func (l *listeners) emit(e Event) bool {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return false
	}
	list := slices.Clone(l.list)
	l.mu.RUnlock()

	for _, x := range list {
		if len(x.types) == 0 || slices.Contains(x.types, e.Type) {
			x.fn(e)
		}
	}
	return true
}

func (l *listeners) close() {
	l.mu.Lock()
	l.closed = true
	l.list = nil
	l.mu.Unlock()
}

// EventStream is a filtered view of a repository's events.
type EventStream struct {
	l     *listeners
	types []string
}

// Subscribe registers fn for the stream's event types and returns a
// function that removes it.
func (s *EventStream) Subscribe(fn func(Event)) (unsubscribe func()) {
	return s.l.subscribe(fn, s.types...)
}

// Types returns the event types the stream carries.
func (s *EventStream) Types() []string {
	return slices.Clone(s.types)
}
