package server

import (
	"context"
	"sort"
	"sync"

	"github.com/creachadair/jrpc2"

	"github.com/warpdl/mogwai/pkg/logger"
)

// RPCNotifier maintains the jrpc2 servers of connected peers and pushes
// notifications to one peer or to all of them.
type RPCNotifier struct {
	mu      sync.RWMutex
	servers map[string]*jrpc2.Server
	log     logger.Logger
}

// NewRPCNotifier creates a new notifier.
func NewRPCNotifier(l logger.Logger) *RPCNotifier {
	return &RPCNotifier{
		servers: make(map[string]*jrpc2.Server),
		log:     logger.OrNop(l),
	}
}

// Register adds the server of peer to the broadcast set.
func (n *RPCNotifier) Register(peer string, srv *jrpc2.Server) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.servers[peer] = srv
}

// Unregister removes peer from the broadcast set.
func (n *RPCNotifier) Unregister(peer string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.servers, peer)
}

// Notify pushes a notification to a single peer. Unknown peers are
// ignored; a peer whose server fails to send is unregistered.
func (n *RPCNotifier) Notify(peer, method string, params any) {
	n.mu.RLock()
	srv, ok := n.servers[peer]
	n.mu.RUnlock()
	if !ok {
		return
	}
	if err := srv.Notify(context.Background(), method, params); err != nil {
		n.log.Debug("RPC push of %s to %s failed: %v", method, peer, err)
		n.drop(peer, srv)
	}
}

// Broadcast sends a push notification to all registered peers, in peer
// order. Servers that fail to receive are unregistered.
func (n *RPCNotifier) Broadcast(method string, params any) {
	n.mu.RLock()
	peers := make([]string, 0, len(n.servers))
	for p := range n.servers {
		peers = append(peers, p)
	}
	n.mu.RUnlock()
	sort.Strings(peers)

	for _, p := range peers {
		n.Notify(p, method, params)
	}
}

func (n *RPCNotifier) drop(peer string, srv *jrpc2.Server) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.servers[peer] == srv {
		delete(n.servers, peer)
	}
}

// Count returns the number of registered servers.
func (n *RPCNotifier) Count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.servers)
}

// stopAll stops every registered server, closing its connection.
func (n *RPCNotifier) stopAll() {
	n.mu.RLock()
	servers := make([]*jrpc2.Server, 0, len(n.servers))
	for _, srv := range n.servers {
		servers = append(servers, srv)
	}
	n.mu.RUnlock()
	for _, srv := range servers {
		srv.Stop()
	}
}
