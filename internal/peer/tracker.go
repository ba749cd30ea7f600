package peer

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/warpdl/mogwai/pkg/logger"
)

const defaultCacheSize = 256

// CredentialSource resolves the executable path of one peer.
type CredentialSource func(ctx context.Context) (string, error)

// Options configures a Tracker.
type Options struct {
	// CacheSize bounds the credential lookup cache. Connected peers keep
	// their credentials when evicted from it.
	CacheSize int
	Logger    logger.Logger
	// Dispatch runs vanish callbacks; the daemon passes the event loop's
	// Post. It defaults to calling them directly.
	Dispatch func(func())
}

type peerState struct {
	source CredentialSource
	ctx    context.Context
	cancel context.CancelFunc
	// path is set once resolved and kept while the peer is connected,
	// whether or not the cache still holds it.
	path   string
}

// Tracker is a Manager for peers registered by the transport layer.
type Tracker struct {
	log      logger.Logger
	dispatch func(func())

	mu    sync.Mutex
	peers map[string]*peerState
	cache *lru.Cache[string, string]
	group singleflight.Group

	listeners vanishListeners
}

var _ Manager = (*Tracker)(nil)

func NewTracker(opts *Options) (*Tracker, error) {
	if opts == nil {
		opts = &Options{}
	}
	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("creating credential cache: %w", err)
	}
	t := &Tracker{
		log:      logger.OrNop(opts.Logger),
		dispatch: opts.Dispatch,
		peers:    make(map[string]*peerState),
		cache:    cache,
	}
	if t.dispatch == nil {
		t.dispatch = func(fn func()) { fn() }
	}
	return t, nil
}

// PeerAppeared registers a connected peer and how to identify it.
func (t *Tracker) PeerAppeared(peer string, source CredentialSource) {
	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	if old, ok := t.peers[peer]; ok {
		old.cancel()
		t.cache.Remove(peer)
	}
	t.peers[peer] = &peerState{source: source, ctx: ctx, cancel: cancel}
	t.mu.Unlock()
	t.log.Debug("peer %s appeared", peer)
}

// PeerVanished forgets a peer, cancels any resolution in flight for it
// and notifies listeners. Unknown peers are ignored.
func (t *Tracker) PeerVanished(peer string) {
	t.mu.Lock()
	st, ok := t.peers[peer]
	if ok {
		st.cancel()
		delete(t.peers, peer)
		t.cache.Remove(peer)
	}
	t.mu.Unlock()
	if !ok {
		return
	}

	t.log.Debug("peer %s vanished", peer)
	for _, fn := range t.listeners.snapshot() {
		fn := fn
		t.dispatch(func() { fn(peer) })
	}
}

func (t *Tracker) CachedCredentials(peer string) (string, bool) {
	if path, ok := t.cache.Get(peer); ok {
		return path, true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.peers[peer]
	if !ok || st.path == "" {
		return "", false
	}
	t.cache.Add(peer, st.path)
	return st.path, true
}

func (t *Tracker) OnPeerVanished(fn func(peer string)) func() {
	return t.listeners.add(fn)
}

func (t *Tracker) EnsureCredentials(ctx context.Context, peer string) (string, error) {
	if path, ok := t.CachedCredentials(peer); ok {
		return path, nil
	}

	t.mu.Lock()
	st, ok := t.peers[peer]
	t.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownPeer, peer)
	}

	ch := t.group.DoChan(peer, func() (any, error) {
		path, err := st.source(st.ctx)
		if st.ctx.Err() != nil {
			return "", ErrPeerVanished
		}
		if err != nil {
			return "", fmt.Errorf("%w %s: %w", ErrIdentifyingPeer, peer, err)
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.peers[peer] != st {
			return "", ErrPeerVanished
		}
		st.path = path
		t.cache.Add(peer, path)
		t.log.Debug("peer %s is %s", peer, path)
		return path, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ProcSource identifies a local process by resolving /proc/<pid>/exe.
func ProcSource(pid int32) CredentialSource {
	return func(ctx context.Context) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		path, err := filepath.EvalSymlinks(fmt.Sprintf("/proc/%d/exe", pid))
		if err != nil {
			return "", err
		}
		return path, nil
	}
}

// StaticSource identifies a peer by a fixed label, for transports without
// process credentials.
func StaticSource(label string) CredentialSource {
	return func(context.Context) (string, error) {
		return label, nil
	}
}
