package peer

import (
	"context"
	"fmt"
	"sync"
)

// Fake is a Manager for tests with credentials set by hand. Vanish
// notifies listeners synchronously.
type Fake struct {
	mu        sync.Mutex
	creds     map[string]string
	listeners vanishListeners
}

var _ Manager = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{creds: make(map[string]string)}
}

func (f *Fake) SetCredentials(peer, path string) {
	f.mu.Lock()
	f.creds[peer] = path
	f.mu.Unlock()
}

func (f *Fake) EnsureCredentials(ctx context.Context, peer string) (string, error) {
	if path, ok := f.CachedCredentials(peer); ok {
		return path, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownPeer, peer)
}

func (f *Fake) CachedCredentials(peer string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path, ok := f.creds[peer]
	return path, ok
}

func (f *Fake) OnPeerVanished(fn func(string)) func() {
	return f.listeners.add(fn)
}

// Vanish forgets peer and notifies listeners.
func (f *Fake) Vanish(peer string) {
	f.mu.Lock()
	delete(f.creds, peer)
	f.mu.Unlock()
	for _, fn := range f.listeners.snapshot() {
		fn(peer)
	}
}
