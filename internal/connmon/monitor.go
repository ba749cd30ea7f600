// Package connmon reports the active network connections and the download
// policy attached to each of them: metered status, user permission flags
// and an optional tariff.
package connmon

import (
	"sort"
	"sync"

	"github.com/warpdl/mogwai/pkg/tariff"
)

// Details is the download policy of one connection.
type Details struct {
	Metered                   Metered
	AllowDownloadsWhenMetered bool
	AllowDownloads            bool
	// Tariff is nil when the connection has none.
	Tariff *tariff.Tariff
}

// DefaultDetails returns the policy of a connection nothing is known about.
func DefaultDetails() Details {
	return Details{
		Metered:        MeteredUnknown,
		AllowDownloads: true,
	}
}

// Listener receives connection changes. Removed connections are already
// gone when ConnectionsChanged is called. ConnectionDetailsChanged is
// advisory and may be sent when nothing changed.
type Listener interface {
	ConnectionsChanged(added, removed []string)
	ConnectionDetailsChanged(id string)
}

// Monitor exposes the set of active connections.
type Monitor interface {
	// ConnectionIDs returns the active connection identifiers, sorted.
	ConnectionIDs() []string
	// ConnectionDetails returns the current policy of a connection, or
	// false if it is not active.
	ConnectionDetails(id string) (Details, bool)
	// Subscribe registers l and returns a function removing it.
	Subscribe(l Listener) (unsubscribe func())
}

// ListenerFuncs adapts a pair of functions to Listener. Nil fields are
// skipped.
type ListenerFuncs struct {
	OnConnectionsChanged       func(added, removed []string)
	OnConnectionDetailsChanged func(id string)
}

func (f ListenerFuncs) ConnectionsChanged(added, removed []string) {
	if f.OnConnectionsChanged != nil {
		f.OnConnectionsChanged(added, removed)
	}
}

func (f ListenerFuncs) ConnectionDetailsChanged(id string) {
	if f.OnConnectionDetailsChanged != nil {
		f.OnConnectionDetailsChanged(id)
	}
}

type listenerSet struct {
	mu   sync.Mutex
	next int
	m    map[int]Listener
}

func (s *listenerSet) add(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = make(map[int]Listener)
	}
	id := s.next
	s.next++
	s.m[id] = l
	return func() {
		s.mu.Lock()
		delete(s.m, id)
		s.mu.Unlock()
	}
}

// snapshot returns the listeners in subscription order.
func (s *listenerSet) snapshot() []Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.m))
	for id := range s.m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.m[id])
	}
	return out
}

func (s *listenerSet) connectionsChanged(added, removed []string) {
	for _, l := range s.snapshot() {
		l.ConnectionsChanged(added, removed)
	}
}

func (s *listenerSet) connectionDetailsChanged(id string) {
	for _, l := range s.snapshot() {
		l.ConnectionDetailsChanged(id)
	}
}
