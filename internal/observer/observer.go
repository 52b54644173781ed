// Package observer implements listener lists that can be read from the audio
// thread without locking.
package observer

import (
	"sync"
	"sync/atomic"
)

type (
	// Registration is returned when a listener is added. Removing the
	// registration drops the subject's reference to the listener.
	Registration struct {
		remove func()
	}

	// List is a copy-on-write list of listeners. Adding and removing takes a
	// lock, but Snapshot is lock-free and allocation-free, so it can be
	// called on the audio thread. The zero value is an empty list.
	List[T any] struct {
		mu      sync.Mutex
		nextID  uint64
		entries atomic.Pointer[[]Entry[T]]
	}

	Entry[T any] struct {
		id       uint64
		Listener T
	}
)

// NewRegistration returns a Registration calling remove when removed.
func NewRegistration(remove func()) Registration {
	return Registration{remove: remove}
}

// Remove deregisters the listener. It is safe to call Remove more than once,
// and from within the listener itself.
func (r Registration) Remove() {
	if r.remove != nil {
		r.remove()
	}
}

// Add appends a listener to the end of the list.
func (l *List[T]) Add(listener T) Registration {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	id := l.nextID
	old := l.Snapshot()
	entries := make([]Entry[T], len(old), len(old)+1)
	copy(entries, old)
	entries = append(entries, Entry[T]{id: id, Listener: listener})
	l.entries.Store(&entries)
	return Registration{remove: func() { l.remove(id) }}
}

func (l *List[T]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	old := l.Snapshot()
	entries := make([]Entry[T], 0, len(old))
	for _, e := range old {
		if e.id != id {
			entries = append(entries, e)
		}
	}
	l.entries.Store(&entries)
}

// Clear removes all the listeners.
func (l *List[T]) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries.Store(nil)
}

// Len returns the number of listeners.
func (l *List[T]) Len() int {
	return len(l.Snapshot())
}

// Snapshot returns the current listeners in registration order. The returned
// slice must not be modified.
func (l *List[T]) Snapshot() []Entry[T] {
	if p := l.entries.Load(); p != nil {
		return *p
	}
	return nil
}
