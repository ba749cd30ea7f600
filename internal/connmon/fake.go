package connmon

import (
	"sort"
	"sync"
)

// Fake is an in-memory Monitor. Changes notify listeners synchronously on
// the calling goroutine. Tests drive it directly; the daemon uses one
// from NewStatic when no connection policy file is configured.
type Fake struct {
	mu        sync.Mutex
	conns     map[string]Details
	listeners listenerSet
}

var _ Monitor = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{conns: make(map[string]Details)}
}

// NewStatic returns a monitor holding the single connection id.
func NewStatic(id string, d Details) *Fake {
	f := NewFake()
	f.conns[id] = d
	return f
}

func (f *Fake) ConnectionIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.conns))
	for id := range f.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (f *Fake) ConnectionDetails(id string) (Details, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.conns[id]
	return d, ok
}

func (f *Fake) Subscribe(l Listener) func() {
	return f.listeners.add(l)
}

// Set adds the connection or replaces its details.
func (f *Fake) Set(id string, d Details) {
	f.mu.Lock()
	_, existed := f.conns[id]
	f.conns[id] = d
	f.mu.Unlock()

	if existed {
		f.listeners.connectionDetailsChanged(id)
	} else {
		f.listeners.connectionsChanged([]string{id}, nil)
	}
}

// Remove drops the connection if present.
func (f *Fake) Remove(id string) {
	f.mu.Lock()
	_, existed := f.conns[id]
	delete(f.conns, id)
	f.mu.Unlock()

	if existed {
		f.listeners.connectionsChanged(nil, []string{id})
	}
}

// Touch notifies listeners that id changed without changing it.
func (f *Fake) Touch(id string) {
	f.listeners.connectionDetailsChanged(id)
}
