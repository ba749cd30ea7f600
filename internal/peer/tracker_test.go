package peer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func newTracker(t *testing.T) *Tracker {
	t.Helper()
	tr, err := NewTracker(&Options{CacheSize: 4})
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	return tr
}

func TestTracker_EnsureCredentials(t *testing.T) {
	tr := newTracker(t)
	var calls int32
	tr.PeerAppeared("p1", func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "/usr/bin/app", nil
	})

	for i := 0; i < 3; i++ {
		path, err := tr.EnsureCredentials(context.Background(), "p1")
		if err != nil {
			t.Fatalf("EnsureCredentials: %v", err)
		}
		if path != "/usr/bin/app" {
			t.Fatalf("path = %q", path)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("source called %d times, want 1", got)
	}
	if path, ok := tr.CachedCredentials("p1"); !ok || path != "/usr/bin/app" {
		t.Errorf("CachedCredentials = %q, %v", path, ok)
	}
}

// TestTracker_EvictedPeerKeepsCredentials tests that a connected peer's
// credentials outlive eviction from the lookup cache.
func TestTracker_EvictedPeerKeepsCredentials(t *testing.T) {
	tr, err := NewTracker(&Options{CacheSize: 1})
	if err != nil {
		t.Fatal(err)
	}
	var calls int32
	counted := func(path string) CredentialSource {
		return func(context.Context) (string, error) {
			atomic.AddInt32(&calls, 1)
			return path, nil
		}
	}
	tr.PeerAppeared("p1", counted("/usr/bin/a"))
	tr.PeerAppeared("p2", counted("/usr/bin/b"))
	for _, p := range []string{"p1", "p2"} {
		if _, err := tr.EnsureCredentials(context.Background(), p); err != nil {
			t.Fatalf("EnsureCredentials(%s): %v", p, err)
		}
	}

	for i := 0; i < 2; i++ {
		for p, want := range map[string]string{"p1": "/usr/bin/a", "p2": "/usr/bin/b"} {
			if path, ok := tr.CachedCredentials(p); !ok || path != want {
				t.Fatalf("CachedCredentials(%s) = %q, %v", p, path, ok)
			}
		}
	}
	if _, err := tr.EnsureCredentials(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("sources called %d times, want 2", got)
	}

	tr.PeerAppeared("p1", StaticSource("/usr/bin/c"))
	if path, ok := tr.CachedCredentials("p1"); ok {
		t.Errorf("reconnected peer kept old credentials %q", path)
	}
}

func TestTracker_UnknownPeer(t *testing.T) {
	tr := newTracker(t)
	if _, err := tr.EnsureCredentials(context.Background(), "nobody"); !errors.Is(err, ErrUnknownPeer) {
		t.Fatalf("err = %v, want ErrUnknownPeer", err)
	}
}

func TestTracker_SourceError(t *testing.T) {
	tr := newTracker(t)
	boom := errors.New("boom")
	tr.PeerAppeared("p1", func(context.Context) (string, error) { return "", boom })

	_, err := tr.EnsureCredentials(context.Background(), "p1")
	if !errors.Is(err, ErrIdentifyingPeer) || !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if _, ok := tr.CachedCredentials("p1"); ok {
		t.Error("failed resolution was cached")
	}
}

func TestTracker_VanishCancelsResolution(t *testing.T) {
	tr := newTracker(t)
	started := make(chan struct{})
	tr.PeerAppeared("p1", func(ctx context.Context) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})

	errc := make(chan error, 1)
	go func() {
		_, err := tr.EnsureCredentials(context.Background(), "p1")
		errc <- err
	}()
	<-started
	tr.PeerVanished("p1")

	select {
	case err := <-errc:
		if !errors.Is(err, ErrPeerVanished) {
			t.Fatalf("err = %v, want ErrPeerVanished", err)
		}
	case <-time.After(time.Second):
		t.Fatal("resolution not cancelled")
	}
}

func TestTracker_CallerContext(t *testing.T) {
	tr := newTracker(t)
	release := make(chan struct{})
	defer close(release)
	tr.PeerAppeared("p1", func(ctx context.Context) (string, error) {
		<-release
		return "/bin/x", nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := tr.EnsureCredentials(ctx, "p1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestTracker_VanishNotifiesAndPurges(t *testing.T) {
	tr := newTracker(t)
	tr.PeerAppeared("p1", StaticSource("/bin/a"))
	if _, err := tr.EnsureCredentials(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}

	var got []string
	cancel := tr.OnPeerVanished(func(p string) { got = append(got, p) })
	tr.PeerVanished("p1")
	tr.PeerVanished("p1")

	if len(got) != 1 || got[0] != "p1" {
		t.Fatalf("vanished = %v, want [p1]", got)
	}
	if _, ok := tr.CachedCredentials("p1"); ok {
		t.Error("credentials still cached after vanish")
	}

	cancel()
	tr.PeerAppeared("p2", StaticSource("/bin/b"))
	tr.PeerVanished("p2")
	if len(got) != 1 {
		t.Errorf("listener called after cancel: %v", got)
	}
}

func TestTracker_Dispatch(t *testing.T) {
	var queued []func()
	tr, err := NewTracker(&Options{Dispatch: func(fn func()) { queued = append(queued, fn) }})
	if err != nil {
		t.Fatal(err)
	}
	called := false
	tr.OnPeerVanished(func(string) { called = true })
	tr.PeerAppeared("p1", StaticSource("x"))
	tr.PeerVanished("p1")

	if called || len(queued) != 1 {
		t.Fatalf("called=%v queued=%d", called, len(queued))
	}
	queued[0]()
	if !called {
		t.Error("dispatched callback did not run listener")
	}
}

func TestFake(t *testing.T) {
	f := NewFake()
	f.SetCredentials("p", "/bin/p")
	if path, err := f.EnsureCredentials(context.Background(), "p"); err != nil || path != "/bin/p" {
		t.Fatalf("EnsureCredentials = %q, %v", path, err)
	}
	var vanished string
	f.OnPeerVanished(func(p string) { vanished = p })
	f.Vanish("p")
	if vanished != "p" {
		t.Errorf("vanished = %q", vanished)
	}
	if _, err := f.EnsureCredentials(context.Background(), "p"); !errors.Is(err, ErrUnknownPeer) {
		t.Errorf("err = %v", err)
	}
}
