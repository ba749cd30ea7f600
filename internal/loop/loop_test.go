package loop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func startLoop(t *testing.T) (*Loop, context.CancelFunc) {
	t.Helper()
	l := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l, cancel
}

func TestLoop_RunsInOrder(t *testing.T) {
	l, _ := startLoop(t)

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	if err := l.Call(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("ran %d functions, want 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("position %d ran %d", i, v)
		}
	}
}

func TestLoop_SerializesConcurrentPosters(t *testing.T) {
	l, _ := startLoop(t)

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = l.Call(context.Background(), func() error {
					counter++
					return nil
				})
			}
		}()
	}
	wg.Wait()

	var final int
	_ = l.Call(context.Background(), func() error {
		final = counter
		return nil
	})
	if final != 800 {
		t.Errorf("counter = %d, want 800", final)
	}
}

func TestLoop_CallReturnsError(t *testing.T) {
	l, _ := startLoop(t)
	want := errors.New("boom")
	if err := l.Call(context.Background(), func() error { return want }); !errors.Is(err, want) {
		t.Errorf("Call() = %v, want %v", err, want)
	}
}

func TestLoop_Stopped(t *testing.T) {
	l, cancel := startLoop(t)
	cancel()

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}

	if l.Post(func() {}) {
		t.Error("Post succeeded on stopped loop")
	}
	if err := l.Call(context.Background(), func() error { return nil }); !errors.Is(err, ErrStopped) {
		t.Errorf("Call() = %v, want ErrStopped", err)
	}
	if err := l.Run(context.Background()); err == nil {
		t.Error("second Run succeeded")
	}
}
