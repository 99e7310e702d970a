package registry

import (
	"sync"

	"github.com/tinywideclouds/go-notification-dispatch/pkg/notify"
)

// HandleRegistry maps platform handles to the local notifications created
// under them. Entries are only added and removed by explicit calls; nothing
// expires on delivery.
type HandleRegistry struct {
	mu      sync.RWMutex
	entries map[notify.Handle]*notify.LocalNotification
}

func NewHandleRegistry() *HandleRegistry {
	return &HandleRegistry{entries: make(map[notify.Handle]*notify.LocalNotification)}
}

// Put records n under n.Handle, replacing any previous entry.
func (r *HandleRegistry) Put(n *notify.LocalNotification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[n.Handle] = n
}

func (r *HandleRegistry) Get(h notify.Handle) (*notify.LocalNotification, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.entries[h]
	return n, ok
}

func (r *HandleRegistry) Remove(h notify.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, h)
}

func (r *HandleRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
