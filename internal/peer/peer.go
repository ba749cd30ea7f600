// Package peer tracks the clients connected to the daemon and resolves
// each one's credentials: the path of the executable it is running.
package peer

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	ErrUnknownPeer     = errors.New("unknown peer")
	ErrPeerVanished    = errors.New("peer vanished")
	ErrIdentifyingPeer = errors.New("error identifying peer")
)

// Manager is the scheduler's view of connected peers.
type Manager interface {
	// EnsureCredentials resolves and caches the peer's executable path.
	// Concurrent calls for one peer share a single resolution, which is
	// cancelled with ErrPeerVanished if the peer goes away.
	EnsureCredentials(ctx context.Context, peer string) (string, error)
	// CachedCredentials returns a previously resolved path.
	CachedCredentials(peer string) (string, bool)
	// OnPeerVanished registers fn to run when a peer disconnects.
	OnPeerVanished(fn func(peer string)) (cancel func())
}

// vanishListeners is a registry of OnPeerVanished callbacks.
type vanishListeners struct {
	mu   sync.Mutex
	next int
	m    map[int]func(string)
}

func (v *vanishListeners) add(fn func(string)) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.m == nil {
		v.m = make(map[int]func(string))
	}
	id := v.next
	v.next++
	v.m[id] = fn
	return func() {
		v.mu.Lock()
		delete(v.m, id)
		v.mu.Unlock()
	}
}

func (v *vanishListeners) snapshot() []func(string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	ids := make([]int, 0, len(v.m))
	for id := range v.m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(string), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, v.m[id])
	}
	return fns
}
