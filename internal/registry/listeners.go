// Package registry holds the two stores the Manager dispatches from: the
// ordered listener sets and the handle-to-notification map.
package registry

import (
	"reflect"
	"sync"
)

// ListenerRegistry is an ordered set of listeners for one event category,
// keyed by identity. T is normally an interface type.
type ListenerRegistry[T comparable] struct {
	mu        sync.Mutex
	listeners []T
}

func NewListenerRegistry[T comparable]() *ListenerRegistry[T] {
	return &ListenerRegistry[T]{}
}

// Add appends l unless it is already present. It reports whether l was added.
// Values that cannot be compared, such as func values or structs holding a
// map, are never added; register a pointer instead.
func (r *ListenerRegistry[T]) Add(l T) bool {
	if !identityComparable(l) {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.listeners {
		if existing == l {
			return false
		}
	}
	r.listeners = append(r.listeners, l)
	return true
}

// Remove drops the first entry equal to l. It reports whether one was found.
func (r *ListenerRegistry[T]) Remove(l T) bool {
	if !identityComparable(l) {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.listeners {
		if existing == l {
			// Copy rather than shift in place: snapshots handed to ForEach
			// share the old backing array.
			next := make([]T, 0, len(r.listeners)-1)
			next = append(next, r.listeners[:i]...)
			r.listeners = append(next, r.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// ForEach calls fn for every listener in registration order. It iterates a
// snapshot, so fn may add or remove listeners; changes apply to the next call.
func (r *ListenerRegistry[T]) ForEach(fn func(T)) {
	r.mu.Lock()
	snapshot := r.listeners
	r.mu.Unlock()

	for _, l := range snapshot {
		fn(l)
	}
}

func (r *ListenerRegistry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

// identityComparable reports whether l can be tested with == without panicking.
// A nil listener is rejected too.
func identityComparable(l any) bool {
	v := reflect.ValueOf(l)
	return v.IsValid() && v.Comparable()
}

// Clear removes every listener.
func (r *ListenerRegistry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = nil
}
