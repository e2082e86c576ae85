// Package notify delivers configuration change events to subscribers.
//
// A Change lists every dotted key whose value differs between two
// configuration snapshots. Subscribers ask Affects(key) to decide whether
// they care, the same way an editor extension checks affectsConfiguration.
package notify

import (
	"sync"
)

// Change describes one configuration update.
type Change struct {
	// Keys are the dotted keys whose values changed, sorted.
	Keys []string

	// Source identifies what triggered the change ("file", "env", "set").
	Source string
}

// Affects reports whether key, or any key below it, changed.
// Affects("remoteChanges") is true when "remoteChanges.checkFrequency"
// changed.
func (c Change) Affects(key string) bool {
	for _, k := range c.Keys {
		if k == key || isParentPath(key, k) {
			return true
		}
	}
	return false
}

// Observer is called with each change.
type Observer func(change Change)

// Subscription is an active observer registration.
type Subscription struct {
	id       uint64
	notifier *Notifier
	once     sync.Once
}

// Unsubscribe removes the observer. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.notifier != nil {
			s.notifier.unsubscribe(s.id)
		}
	})
}

// Notifier fans changes out to observers.
//
// Observers run synchronously on the notifying goroutine, outside the
// notifier's lock, so an observer may subscribe or unsubscribe.
type Notifier struct {
	mu        sync.RWMutex
	observers map[uint64]Observer
	order     []uint64
	nextID    uint64
	closed    bool
}

// New creates a Notifier.
func New() *Notifier {
	return &Notifier{observers: make(map[uint64]Observer)}
}

// Subscribe registers an observer for all changes.
func (n *Notifier) Subscribe(observer Observer) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.observers[id] = observer
	n.order = append(n.order, id)

	return &Subscription{id: id, notifier: n}
}

// SubscribeKey registers an observer called only for changes affecting key.
func (n *Notifier) SubscribeKey(key string, observer Observer) *Subscription {
	return n.Subscribe(func(c Change) {
		if c.Affects(key) {
			observer(c)
		}
	})
}

// Notify delivers change to observers in subscription order. Empty
// changes and changes after Close are dropped.
func (n *Notifier) Notify(change Change) {
	if len(change.Keys) == 0 {
		return
	}

	n.mu.RLock()
	if n.closed {
		n.mu.RUnlock()
		return
	}
	observers := make([]Observer, 0, len(n.order))
	for _, id := range n.order {
		if obs, ok := n.observers[id]; ok {
			observers = append(observers, obs)
		}
	}
	n.mu.RUnlock()

	for _, obs := range observers {
		obs(change)
	}
}

// Len returns the number of active subscriptions.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.observers)
}

// Close drops all observers. It is safe to call Close multiple times.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	n.observers = make(map[uint64]Observer)
	n.order = nil
}

func (n *Notifier) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.observers, id)
	for i, oid := range n.order {
		if oid == id {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
}

// isParentPath checks if parent is a parent path of child.
// e.g., "remoteChanges" is parent of "remoteChanges.checkFrequency".
func isParentPath(parent, child string) bool {
	if parent == "" {
		return true
	}
	return len(child) > len(parent) && child[:len(parent)] == parent && child[len(parent)] == '.'
}
