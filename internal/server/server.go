// Package server exposes the scheduler to clients over JSON-RPC 2.0, on a
// Unix socket and optionally on an authenticated WebSocket endpoint.
//
// Every connection is one peer. Its entries and daemon holds live as long
// as the connection; when it closes, the peer vanishes and they are
// removed.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/google/uuid"

	"github.com/warpdl/mogwai/common"
	"github.com/warpdl/mogwai/internal/daemon"
	"github.com/warpdl/mogwai/internal/loop"
	"github.com/warpdl/mogwai/internal/metrics"
	"github.com/warpdl/mogwai/internal/peer"
	"github.com/warpdl/mogwai/internal/schedule"
	"github.com/warpdl/mogwai/pkg/logger"
)

// Config holds the transport settings.
type Config struct {
	SocketPath string
	// HTTPAddr enables the WebSocket and metrics endpoint when set.
	HTTPAddr string
	// Secret is the bearer token for the WebSocket endpoint.
	Secret string

	Version   string
	Commit    string
	BuildType string
}

// Deps are the components the server drives. The scheduler is only touched
// on Loop.
type Deps struct {
	Loop      *loop.Loop
	Scheduler *schedule.Scheduler
	Peers     *peer.Tracker
	Runner    *daemon.Runner
	// Metrics is optional.
	Metrics *metrics.Collector
	Logger  logger.Logger
}

// Server manages client connections.
type Server struct {
	cfg      *Config
	loop     *loop.Loop
	sched    *schedule.Scheduler
	peers    *peer.Tracker
	runner   *daemon.Runner
	metrics  *metrics.Collector
	log      logger.Logger
	notifier *RPCNotifier

	// entriesHold keeps the daemon alive while entries exist. Loop-owned.
	entriesHold *daemon.Hold
	unsubscribe func()

	mu       sync.Mutex
	listener net.Listener
	http     *http.Server
}

// New creates a Server. It subscribes to the scheduler, so it must be
// called before the loop starts running or from the loop.
func New(cfg *Config, deps *Deps) *Server {
	s := &Server{
		cfg:     cfg,
		loop:    deps.Loop,
		sched:   deps.Scheduler,
		peers:   deps.Peers,
		runner:  deps.Runner,
		metrics: deps.Metrics,
		log:     logger.OrNop(deps.Logger),
	}
	s.notifier = NewRPCNotifier(s.log)
	s.unsubscribe = s.sched.Subscribe(s.onSchedulerEvent)
	return s
}

// Start listens on the Unix socket, and the HTTP address if configured,
// and serves connections until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	l, err := s.createListener()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = l
	if s.cfg.HTTPAddr != "" {
		s.http = &http.Server{
			Addr:     s.cfg.HTTPAddr,
			Handler:  s.Router(),
			ErrorLog: logger.ToStdLogger(s.log),
		}
		go s.serveHTTP(s.http)
	}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = s.Shutdown()
	}()

	s.log.Info("listening on %s", l.Addr())
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Error("accepting: %v", err)
			continue
		}
		go s.handleConnection(conn)
	}
}

func (s *Server) serveHTTP(srv *http.Server) {
	s.log.Info("serving HTTP on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error("HTTP server: %v", err)
	}
}

// Shutdown stops accepting, disconnects every client and removes the
// socket file.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.Warning("closing listener: %v", err)
		}
		s.listener = nil
	}
	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(ctx); err != nil {
			s.log.Warning("shutting down HTTP server: %v", err)
		}
		s.http = nil
	}
	s.notifier.stopAll()

	if err := os.Remove(s.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		s.log.Warning("removing socket file: %v", err)
	}
	return nil
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	source := peerSource(conn)
	if err := s.Serve(channel.Line(conn, conn), source); err != nil {
		s.log.Debug("connection closed: %v", err)
	}
}

// Serve runs one peer's JSON-RPC session on ch until the channel closes.
// source identifies the peer's executable.
func (s *Server) Serve(ch channel.Channel, source peer.CredentialSource) error {
	sess := &session{
		id:    uuid.NewString(),
		s:     s,
		ready: make(chan struct{}),
		holds: make(map[string]*daemon.Hold),
	}
	s.peers.PeerAppeared(sess.id, source)
	if s.metrics != nil {
		s.metrics.PeerConnected()
	}
	s.log.Debug("peer %s connected", sess.id)

	srv := jrpc2.NewServer(sess.methods(), &jrpc2.ServerOptions{AllowPush: true})
	srv.Start(ch)
	s.notifier.Register(sess.id, srv)
	close(sess.ready)
	err := srv.Wait()

	s.notifier.Unregister(sess.id)
	sess.releaseHolds()
	s.peers.PeerVanished(sess.id)
	if s.metrics != nil {
		s.metrics.PeerDisconnected()
	}
	s.log.Debug("peer %s disconnected", sess.id)
	return err
}

// onSchedulerEvent pushes scheduler changes to clients. It runs on the
// loop.
func (s *Server) onSchedulerEvent(ev schedule.Event) {
	switch ev.Kind {
	case schedule.EntriesChanged:
		for _, e := range ev.Removed {
			if cur, ok := s.sched.Entry(e.ID()); ok && cur != e {
				continue
			}
			info := s.entryInfo(e)
			info.Removed = true
			s.notifier.Notify(e.Owner(), common.NotifyEntryChanged, info)
		}
		s.updateEntriesHold()
		s.broadcastProperties()
	case schedule.ActiveEntriesChanged:
		for _, e := range ev.Removed {
			s.notifier.Notify(e.Owner(), common.NotifyEntryChanged, s.entryInfo(e))
		}
		for _, e := range ev.Added {
			s.notifier.Notify(e.Owner(), common.NotifyEntryChanged, s.entryInfo(e))
		}
		s.broadcastProperties()
	case schedule.EntryChanged:
		s.notifier.Notify(ev.Entry.Owner(), common.NotifyEntryChanged, s.entryInfo(ev.Entry))
	case schedule.GateChanged:
		s.broadcastProperties()
	}
}

func (s *Server) updateEntriesHold() {
	switch {
	case s.sched.Len() > 0 && s.entriesHold == nil:
		s.entriesHold = s.runner.Hold("scheduled entries")
	case s.sched.Len() == 0 && s.entriesHold != nil:
		s.entriesHold.Release()
		s.entriesHold = nil
	}
}

func (s *Server) broadcastProperties() {
	s.notifier.Broadcast(common.NotifySchedulerChanged, s.properties())
}

// properties must be called on the loop.
func (s *Server) properties() *common.SchedulerProperties {
	return &common.SchedulerProperties{
		EntryCount:       s.sched.Len(),
		ActiveEntryCount: s.sched.ActiveLen(),
		MaxEntries:       s.sched.MaxEntries(),
		DownloadsAllowed: s.sched.DownloadsAllowed(),
	}
}

// entryInfo must be called on the loop.
func (s *Server) entryInfo(e *schedule.Entry) *common.EntryInfo {
	active := false
	if cur, ok := s.sched.Entry(e.ID()); ok && cur == e {
		active = s.sched.IsEntryActive(e.ID())
	}
	return &common.EntryInfo{
		ID:          e.ID(),
		Priority:    e.Priority(),
		Resumable:   e.Resumable(),
		DownloadNow: active,
	}
}

// Close unsubscribes from the scheduler and releases the entries hold.
// It must be called on the loop, or after it stopped.
func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	if s.entriesHold != nil {
		s.entriesHold.Release()
		s.entriesHold = nil
	}
}
