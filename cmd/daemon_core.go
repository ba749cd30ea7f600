package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/warpdl/mogwai/internal/clock"
	"github.com/warpdl/mogwai/internal/config"
	"github.com/warpdl/mogwai/internal/connmon"
	"github.com/warpdl/mogwai/internal/daemon"
	"github.com/warpdl/mogwai/internal/loop"
	"github.com/warpdl/mogwai/internal/metrics"
	"github.com/warpdl/mogwai/internal/peer"
	"github.com/warpdl/mogwai/internal/schedule"
	"github.com/warpdl/mogwai/internal/server"
	"github.com/warpdl/mogwai/pkg/logger"
)

// defaultConnectionID names the connection assumed when no connection
// policy file is configured.
const defaultConnectionID = "default"

// DaemonComponents holds all initialized daemon components, so that they
// are started and released in one place.
type DaemonComponents struct {
	Loop      *loop.Loop
	Clock     *clock.System
	Monitor   connmon.Monitor
	Peers     *peer.Tracker
	Scheduler *schedule.Scheduler
	Metrics   *metrics.Collector
	Runner    *daemon.Runner
	Server    *server.Server

	fileMonitor *connmon.FileMonitor
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	logger      logger.Logger
}

// initDaemonComponents builds the daemon from cfg and starts its event
// loop, clock and policy watcher. The components stop when Close is called.
var initDaemonComponents = func(parent context.Context, cfg *config.Config, log logger.Logger) (*DaemonComponents, error) {
	ctx, cancel := context.WithCancel(parent)
	c := &DaemonComponents{
		Loop:    loop.New(0),
		Metrics: metrics.NewCollector(),
		cancel:  cancel,
		logger:  log,
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_ = c.Loop.Run(ctx)
	}()
	post := func(fn func()) { c.Loop.Post(fn) }

	if cfg.ConnectionsFile != "" {
		fm, err := connmon.NewFileMonitor(cfg.ConnectionsFile, &connmon.FileOptions{
			Logger:   log,
			Dispatch: post,
		})
		if err != nil {
			log.Error("Connection policy initialization failed: %v", err)
			c.Close()
			return nil, err
		}
		c.fileMonitor = fm
		c.Monitor = fm
	} else {
		log.Info("No connection policy configured; assuming one unmetered connection")
		c.Monitor = connmon.NewStatic(defaultConnectionID, connmon.Details{
			Metered:        connmon.MeteredNo,
			AllowDownloads: true,
		})
	}

	c.Clock = clock.NewSystem(ctx, &clock.SystemOptions{Logger: log, Dispatch: post})

	peers, err := peer.NewTracker(&peer.Options{Logger: log, Dispatch: post})
	if err != nil {
		log.Error("Peer tracker initialization failed: %v", err)
		c.Close()
		return nil, err
	}
	c.Peers = peers

	c.Runner = daemon.New(&daemon.Config{
		InactivityTimeout: cfg.InactivityTimeout,
	}, &daemon.Dependencies{Logger: log})

	// The scheduler and the server subscribe to each other's events, so
	// they are built on the loop.
	err = c.Loop.Call(ctx, func() error {
		c.Scheduler = schedule.New(c.Monitor, c.Clock, &schedule.Options{
			MaxEntries:            cfg.MaxEntries,
			MaxActiveEntries:      cfg.MaxActiveEntries,
			PrivilegedExecutables: cfg.PrivilegedExecutables,
			Peers:                 peers,
			Logger:                log,
			Recorder:              c.Metrics,
		})
		c.Server = server.New(&server.Config{
			SocketPath: cfg.SocketPath,
			HTTPAddr:   cfg.HTTPAddr,
			Secret:     cfg.RPCSecret,
			Version:    currentBuildArgs.Version,
			Commit:     currentBuildArgs.Commit,
			BuildType:  currentBuildArgs.BuildType,
		}, &server.Deps{
			Loop:      c.Loop,
			Scheduler: c.Scheduler,
			Peers:     peers,
			Runner:    c.Runner,
			Metrics:   c.Metrics,
			Logger:    log,
		})
		return nil
	})
	if err != nil {
		log.Error("Scheduler initialization failed: %v", err)
		c.Close()
		return nil, err
	}

	if c.fileMonitor != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.fileMonitor.Watch(ctx); err != nil {
				log.Warning("Connection policy will not be reloaded: %v", err)
			}
		}()
	}
	return c, nil
}

// Run serves clients until ctx is cancelled or the daemon has been idle
// for the inactivity timeout.
func (c *DaemonComponents) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srvErr := make(chan error, 1)
	go func() { srvErr <- c.Server.Start(ctx) }()

	runErr := make(chan error, 1)
	go func() { runErr <- c.Runner.Start(ctx) }()

	select {
	case err := <-srvErr:
		cancel()
		<-runErr
		if err != nil {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	case err := <-runErr:
		cancel()
		<-srvErr
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

// Close releases all daemon component resources in reverse order of
// initialization.
func (c *DaemonComponents) Close() {
	c.logger.Info("Shutting down daemon...")
	_ = c.Loop.Call(context.Background(), func() error {
		if c.Server != nil {
			c.Server.Close()
		}
		if c.Scheduler != nil {
			c.Scheduler.Close()
		}
		return nil
	})
	c.cancel()
	c.wg.Wait()
	c.logger.Info("Daemon stopped")
}
