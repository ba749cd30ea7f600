// Package loop provides the single-consumer event loop on which the
// scheduling core runs. Every mutation of scheduler state, and every
// notification it emits, executes on the loop goroutine one function at a
// time, so the core needs no locks of its own.
package loop

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned when work is posted to a loop that has exited.
var ErrStopped = errors.New("event loop stopped")

const defaultQueueSize = 256

// Loop runs posted functions in order on a single goroutine.
type Loop struct {
	queue chan func()
	done  chan struct{}

	mu      sync.Mutex
	running bool
	stopped bool
}

// New creates a loop whose queue holds size pending functions. A
// non-positive size selects a default.
func New(size int) *Loop {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Loop{
		queue: make(chan func(), size),
		done:  make(chan struct{}),
	}
}

// Run executes posted functions until ctx is cancelled. It may be called
// only once. Functions still queued when ctx ends are discarded.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running || l.stopped {
		l.mu.Unlock()
		return errors.New("event loop already run")
	}
	l.running = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.stopped = true
		l.mu.Unlock()
		close(l.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.queue:
			fn()
		}
	}
}

// Post queues fn to run on the loop. It blocks while the queue is full and
// reports false if the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Call runs fn on the loop and waits for it to return. It must not be
// called from the loop goroutine itself.
func (l *Loop) Call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	if !l.Post(func() { result <- fn() }) {
		return ErrStopped
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		// fn may have run just before the loop exited.
		select {
		case err := <-result:
			return err
		default:
			return ErrStopped
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
