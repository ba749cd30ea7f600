package server

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"

	"github.com/warpdl/mogwai/internal/clock"
	"github.com/warpdl/mogwai/internal/connmon"
	"github.com/warpdl/mogwai/internal/daemon"
	"github.com/warpdl/mogwai/internal/loop"
	"github.com/warpdl/mogwai/internal/metrics"
	"github.com/warpdl/mogwai/internal/peer"
	"github.com/warpdl/mogwai/internal/schedule"
)

// testEnv is a server wired to a running loop, a fake connection monitor
// and a fake clock.
type testEnv struct {
	ctx     context.Context
	loop    *loop.Loop
	mon     *connmon.Fake
	sched   *schedule.Scheduler
	peers   *peer.Tracker
	runner  *daemon.Runner
	metrics *metrics.Collector
	srv     *Server
}

func newTestEnv(t *testing.T, maxEntries int) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	e := &testEnv{
		ctx:     ctx,
		loop:    loop.New(0),
		mon:     connmon.NewFake(),
		runner:  daemon.New(nil, nil),
		metrics: metrics.NewCollector(),
	}
	peers, err := peer.NewTracker(&peer.Options{
		Dispatch: func(fn func()) { e.loop.Post(fn) },
	})
	if err != nil {
		t.Fatal(err)
	}
	e.peers = peers
	e.sched = schedule.New(e.mon, clock.NewFake(time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)), &schedule.Options{
		MaxEntries: maxEntries,
		Peers:      peers,
		Recorder:   e.metrics,
	})
	e.srv = New(&Config{
		SocketPath: t.TempDir() + "/mogwai.sock",
		Secret:     "test-secret",
		Version:    "1.2.3",
		Commit:     "abc123",
	}, &Deps{
		Loop:      e.loop,
		Scheduler: e.sched,
		Peers:     peers,
		Runner:    e.runner,
		Metrics:   e.metrics,
	})
	go func() { _ = e.loop.Run(ctx) }()
	return e
}

// onLoop runs fn on the event loop and waits for it.
func (e *testEnv) onLoop(t *testing.T, fn func()) {
	t.Helper()
	if err := e.loop.Call(e.ctx, func() error { fn(); return nil }); err != nil {
		t.Fatalf("loop call: %v", err)
	}
}

// openGate attaches a permissive connection.
func (e *testEnv) openGate(t *testing.T) {
	t.Helper()
	e.onLoop(t, func() { e.mon.Set("wifi", connmon.DefaultDetails()) })
}

// testClient is a jrpc2 client connected through an in-memory pipe.
type testClient struct {
	*jrpc2.Client
	notes chan *jrpc2.Request
	done  chan error
}

func (e *testEnv) connect(t *testing.T, source peer.CredentialSource) *testClient {
	t.Helper()
	cr, sw := io.Pipe()
	sr, cw := io.Pipe()

	c := &testClient{
		notes: make(chan *jrpc2.Request, 256),
		done:  make(chan error, 1),
	}
	go func() {
		c.done <- e.srv.Serve(channel.Line(sr, sw), source)
		sw.Close()
	}()
	c.Client = jrpc2.NewClient(channel.Line(cr, cw), &jrpc2.ClientOptions{
		OnNotify: func(req *jrpc2.Request) {
			select {
			case c.notes <- req:
			default:
			}
		},
	})
	t.Cleanup(func() { c.Close() })
	return c
}

// disconnect closes the client and waits for the server session to end.
func (c *testClient) disconnect(t *testing.T) {
	t.Helper()
	c.Close()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("server session did not end")
	}
}

// waitNote returns the next notification for method.
func (c *testClient) waitNote(t *testing.T, method string, out any) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case req := <-c.notes:
			if req.Method() != method {
				continue
			}
			if err := req.UnmarshalParams(out); err != nil {
				t.Fatalf("decoding %s: %v", method, err)
			}
			return
		case <-deadline:
			t.Fatalf("no %s notification", method)
		}
	}
}

func rpcCode(err error) jrpc2.Code {
	var e *jrpc2.Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// eventually polls cond on the loop until it holds.
func (e *testEnv) eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		ok := false
		e.onLoop(t, func() { ok = cond() })
		if ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
