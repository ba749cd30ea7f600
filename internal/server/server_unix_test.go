//go:build !windows

package server

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"

	"github.com/warpdl/mogwai/common"
)

// TestServer_UnixSocket tests the full path over a real Unix socket,
// including peer identification through process credentials.
func TestServer_UnixSocket(t *testing.T) {
	env := newTestEnv(t, 0)
	// Keep the path short; sun_path is limited to about 100 bytes.
	dir, err := os.MkdirTemp("", "mgw")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	env.srv.cfg.SocketPath = filepath.Join(dir, "m.sock")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- env.srv.Start(ctx) }()

	var conn net.Conn
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, err = net.Dial("unix", env.srv.cfg.SocketPath)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	info, err := os.Stat(env.srv.cfg.SocketPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0666 {
		t.Errorf("socket permissions = %o, want 666", info.Mode().Perm())
	}

	cli := jrpc2.NewClient(channel.Line(conn, conn), nil)
	var res common.ScheduleResult
	if err := cli.CallResult(context.Background(), common.MethodSchedule, &common.ScheduleParams{}, &res); err != nil {
		t.Fatalf("scheduler.schedule: %v", err)
	}
	cli.Close()
	env.eventually(t, func() bool { return env.sched.Len() == 0 })

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
	if _, err := os.Stat(env.srv.cfg.SocketPath); !os.IsNotExist(err) {
		t.Error("socket file not removed on shutdown")
	}
}
