// Package daemon manages the lifetime of the mogwai scheduler process: it
// runs until cancelled or shut down, or until it has been idle for the
// configured inactivity timeout.
package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warpdl/mogwai/pkg/logger"
)

// Sentinel errors for the daemon runner.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running daemon.
	ErrAlreadyRunning = errors.New("daemon is already running")

	// ErrNotRunning is returned when Shutdown() is called on a stopped daemon.
	ErrNotRunning = errors.New("daemon is not running")

	// ErrShutdownTimeout is returned when shutdown exceeds the configured timeout.
	ErrShutdownTimeout = errors.New("shutdown timed out")
)

// Config holds the configuration for the daemon runner.
type Config struct {
	// InactivityTimeout is how long the daemon stays up with no holds
	// before Start returns. Zero disables the auto-exit.
	InactivityTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// A zero value means no timeout.
	ShutdownTimeout time.Duration
}

// Dependencies holds the external dependencies for the daemon runner.
type Dependencies struct {
	// ShutdownFunc is called during shutdown to clean up resources.
	// If nil, no cleanup function is called.
	ShutdownFunc func() error

	Logger logger.Logger
}

// Runner manages the daemon lifecycle.
type Runner struct {
	config *Config
	deps   *Dependencies
	log    logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	holds   map[string]string
	idle    *time.Timer
	idled   bool
}

// Hold keeps the daemon alive until released.
type Hold struct {
	id     string
	reason string
	r      *Runner
	once   sync.Once
}

func (h *Hold) ID() string { return h.id }

// Release drops the hold. Calling it more than once has no effect.
func (h *Hold) Release() {
	h.once.Do(func() { h.r.release(h.id) })
}

// New creates a new daemon runner with the given configuration and dependencies.
// If config is nil, default values are used.
func New(config *Config, deps *Dependencies) *Runner {
	cfg := applyConfigDefaults(config)
	d := applyDependencyDefaults(deps)

	return &Runner{
		config: cfg,
		deps:   d,
		log:    logger.OrNop(d.Logger),
		holds:  make(map[string]string),
	}
}

// applyConfigDefaults returns a Config with default values applied for nil fields.
func applyConfigDefaults(config *Config) *Config {
	if config == nil {
		return &Config{}
	}
	if config.InactivityTimeout < 0 {
		config.InactivityTimeout = 0
	}
	return config
}

// applyDependencyDefaults returns Dependencies with default values applied.
func applyDependencyDefaults(deps *Dependencies) *Dependencies {
	if deps == nil {
		deps = &Dependencies{}
	}
	return deps
}

// Config returns the runner's configuration.
func (r *Runner) Config() *Config {
	return r.config
}

// Start runs the daemon and blocks until the context is canceled, Shutdown
// is called, or the daemon has been idle for the inactivity timeout. It
// returns nil on an inactivity exit and ctx.Err() otherwise.
// Returns ErrAlreadyRunning if the daemon is already started.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.running = true
	r.idled = false
	r.armIdleLocked()
	r.mu.Unlock()

	<-ctx.Done()

	idled := r.cleanupOnStop()
	if idled {
		r.log.Info("exiting after %s of inactivity", r.config.InactivityTimeout)
		return nil
	}
	return ctx.Err()
}

// cleanupOnStop performs cleanup when the daemon stops and reports whether
// it stopped for inactivity.
func (r *Runner) cleanupOnStop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.running = false
	r.stopIdleLocked()
	return r.idled
}

// Hold prevents the inactivity exit until the returned Hold is released.
func (r *Runner) Hold(reason string) *Hold {
	h := &Hold{id: uuid.NewString(), reason: reason, r: r}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.holds[h.id] = reason
	r.stopIdleLocked()
	r.log.Debug("hold %s acquired (%s), %d held", h.id, reason, len(r.holds))
	return h
}

func (r *Runner) release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reason, ok := r.holds[id]
	if !ok {
		return
	}
	delete(r.holds, id)
	r.log.Debug("hold %s released (%s), %d held", id, reason, len(r.holds))
	if len(r.holds) == 0 {
		r.armIdleLocked()
	}
}

// Holds returns the number of outstanding holds.
func (r *Runner) Holds() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.holds)
}

// armIdleLocked starts the inactivity timer if the daemon is running
// unheld. Caller must hold the mutex.
func (r *Runner) armIdleLocked() {
	if !r.running || len(r.holds) > 0 || r.config.InactivityTimeout <= 0 || r.idle != nil {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(r.config.InactivityTimeout, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.idle != t || !r.running || len(r.holds) > 0 {
			return
		}
		r.idle = nil
		r.idled = true
		r.cancel()
	})
	r.idle = t
}

// stopIdleLocked cancels the inactivity timer. Caller must hold the mutex.
func (r *Runner) stopIdleLocked() {
	if r.idle != nil {
		r.idle.Stop()
		r.idle = nil
	}
}

// Shutdown gracefully stops the daemon.
// Returns ErrNotRunning if the daemon is not running.
// Returns ErrShutdownTimeout if the shutdown function exceeds the configured timeout.
func (r *Runner) Shutdown() error {
	if err := r.validateRunning(); err != nil {
		return err
	}

	if err := r.executeShutdownFunc(); err != nil {
		return err
	}

	r.performShutdown()

	return nil
}

// validateRunning checks if the daemon is running.
func (r *Runner) validateRunning() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return ErrNotRunning
	}
	return nil
}

// executeShutdownFunc runs the shutdown function with timeout if configured.
func (r *Runner) executeShutdownFunc() error {
	if r.deps.ShutdownFunc == nil {
		return nil
	}

	if r.config.ShutdownTimeout > 0 {
		return r.executeWithTimeout(r.deps.ShutdownFunc, r.config.ShutdownTimeout)
	}

	// The shutdown must proceed regardless of cleanup errors.
	if err := r.deps.ShutdownFunc(); err != nil {
		r.log.Warning("shutdown: %v", err)
	}
	return nil
}

// executeWithTimeout runs a function with a timeout.
// Returns ErrShutdownTimeout if the function exceeds the timeout.
func (r *Runner) executeWithTimeout(fn func() error, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		r.performShutdown()
		return ErrShutdownTimeout
	}
}

// performShutdown stops the runner and wakes Start.
func (r *Runner) performShutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.running = false
	r.stopIdleLocked()
	if r.cancel != nil {
		r.cancel()
	}
}

// IsRunning returns true if the daemon is currently running.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
