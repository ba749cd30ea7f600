package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"

	"github.com/warpdl/mogwai/common"
	"github.com/warpdl/mogwai/internal/daemon"
	"github.com/warpdl/mogwai/internal/peer"
	"github.com/warpdl/mogwai/internal/schedule"
)

// Custom JSON-RPC error codes for scheduler operations.
const (
	codeEntryNotFound   = jrpc2.Code(common.CodeEntryNotFound)
	codeSchedulerFull   = jrpc2.Code(common.CodeSchedulerFull)
	codeIdentifyingPeer = jrpc2.Code(common.CodeIdentifyingPeer)
	codeNotOwner        = jrpc2.Code(common.CodeNotOwner)
	codeInvalidParams   = jrpc2.Code(common.CodeInvalidParams)
)

var (
	errNotOwner     = errors.New("entry belongs to another client")
	errUnknownToken = errors.New("unknown hold token")
)

// rpcError maps internal errors to JSON-RPC errors.
func rpcError(err error) error {
	if err == nil {
		return nil
	}
	var code jrpc2.Code
	switch {
	case errors.Is(err, schedule.ErrEntryNotFound):
		code = codeEntryNotFound
	case errors.Is(err, schedule.ErrFull):
		code = codeSchedulerFull
	case errors.Is(err, peer.ErrIdentifyingPeer),
		errors.Is(err, peer.ErrPeerVanished),
		errors.Is(err, peer.ErrUnknownPeer):
		code = codeIdentifyingPeer
	case errors.Is(err, errNotOwner):
		code = codeNotOwner
	case errors.Is(err, errUnknownToken):
		code = codeInvalidParams
	default:
		return err
	}
	return &jrpc2.Error{Code: code, Message: err.Error()}
}

// session is one connected peer.
type session struct {
	id string
	s  *Server
	// ready is closed once the session can receive notifications.
	ready chan struct{}

	mu    sync.Mutex
	holds map[string]*daemon.Hold
}

func (c *session) methods() handler.Map {
	m := handler.Map{
		common.MethodGetVersion:        handler.New(c.systemGetVersion),
		common.MethodSchedule:          handler.New(c.schedulerSchedule),
		common.MethodScheduleEntries:   handler.New(c.schedulerScheduleEntries),
		common.MethodSchedulerGetProps: handler.New(c.schedulerGetProperties),
		common.MethodEntryGet:          handler.New(c.entryGet),
		common.MethodEntrySet:          handler.New(c.entrySet),
		common.MethodEntryRemove:       handler.New(c.entryRemove),
		common.MethodDaemonHold:        handler.New(c.daemonHold),
		common.MethodDaemonRelease:     handler.New(c.daemonRelease),
	}
	for name, h := range m {
		m[name] = c.whenReady(h)
	}
	return m
}

// whenReady delays h until the session is registered for notifications.
func (c *session) whenReady(h jrpc2.Handler) jrpc2.Handler {
	return func(ctx context.Context, req *jrpc2.Request) (any, error) {
		select {
		case <-c.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return h(ctx, req)
	}
}

func (c *session) systemGetVersion(_ context.Context) (*common.VersionResult, error) {
	return &common.VersionResult{
		Version:   c.s.cfg.Version,
		Commit:    c.s.cfg.Commit,
		BuildType: c.s.cfg.BuildType,
	}, nil
}

// identify resolves the peer's credentials before it may own entries.
func (c *session) identify(ctx context.Context) error {
	if _, err := c.s.peers.EnsureCredentials(ctx, c.id); err != nil {
		return rpcError(err)
	}
	return nil
}

func entryParams(p common.ScheduleParams) schedule.EntryParams {
	return schedule.EntryParams{Priority: p.Priority, Resumable: p.Resumable}
}

// schedulerSchedule creates one entry owned by the caller.
func (c *session) schedulerSchedule(ctx context.Context, p *common.ScheduleParams) (*common.ScheduleResult, error) {
	if p == nil {
		p = &common.ScheduleParams{}
	}
	if err := c.identify(ctx); err != nil {
		return nil, err
	}

	var id string
	err := c.s.loop.Call(ctx, func() error {
		e, err := c.s.sched.CreateEntry(c.id, entryParams(*p))
		if err != nil {
			return err
		}
		id = e.ID()
		return nil
	})
	if err != nil {
		return nil, rpcError(err)
	}
	return &common.ScheduleResult{ID: id}, nil
}

// schedulerScheduleEntries creates several entries at once; either all
// are created or none.
func (c *session) schedulerScheduleEntries(ctx context.Context, p *common.ScheduleEntriesParams) (*common.ScheduleEntriesResult, error) {
	if p == nil || len(p.Entries) == 0 {
		return &common.ScheduleEntriesResult{IDs: []string{}}, nil
	}
	if err := c.identify(ctx); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(p.Entries))
	err := c.s.loop.Call(ctx, func() error {
		entries := make([]*schedule.Entry, 0, len(p.Entries))
		for _, params := range p.Entries {
			e, err := c.s.sched.NewEntry(c.id, entryParams(params))
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		if err := c.s.sched.UpdateEntries(entries, nil); err != nil {
			return err
		}
		for _, e := range entries {
			ids = append(ids, e.ID())
		}
		return nil
	})
	if err != nil {
		return nil, rpcError(err)
	}
	return &common.ScheduleEntriesResult{IDs: ids}, nil
}

func (c *session) schedulerGetProperties(ctx context.Context) (*common.SchedulerProperties, error) {
	var props *common.SchedulerProperties
	err := c.s.loop.Call(ctx, func() error {
		props = c.s.properties()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return props, nil
}

// owned returns the caller's entry with id. It must run on the loop.
func (c *session) owned(id string) (*schedule.Entry, error) {
	e, ok := c.s.sched.Entry(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", schedule.ErrEntryNotFound, id)
	}
	if e.Owner() != c.id {
		return nil, errNotOwner
	}
	return e, nil
}

func (c *session) entryGet(ctx context.Context, p *common.EntryIDParams) (*common.EntryInfo, error) {
	if p == nil || p.ID == "" {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "id is required"}
	}
	var info *common.EntryInfo
	err := c.s.loop.Call(ctx, func() error {
		e, err := c.owned(p.ID)
		if err != nil {
			return err
		}
		info = c.s.entryInfo(e)
		return nil
	})
	if err != nil {
		return nil, rpcError(err)
	}
	return info, nil
}

func (c *session) entrySet(ctx context.Context, p *common.SetEntryParams) (*common.EntryInfo, error) {
	if p == nil || p.ID == "" {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "id is required"}
	}
	var info *common.EntryInfo
	err := c.s.loop.Call(ctx, func() error {
		if _, err := c.owned(p.ID); err != nil {
			return err
		}
		e, err := c.s.sched.SetEntryProperties(p.ID, schedule.EntryParams{
			Priority:  p.Priority,
			Resumable: p.Resumable,
		})
		if err != nil {
			return err
		}
		info = c.s.entryInfo(e)
		return nil
	})
	if err != nil {
		return nil, rpcError(err)
	}
	return info, nil
}

func (c *session) entryRemove(ctx context.Context, p *common.EntryIDParams) (*common.EmptyResult, error) {
	if p == nil || p.ID == "" {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "id is required"}
	}
	err := c.s.loop.Call(ctx, func() error {
		if _, err := c.owned(p.ID); err != nil {
			return err
		}
		return c.s.sched.UpdateEntries(nil, []string{p.ID})
	})
	if err != nil {
		return nil, rpcError(err)
	}
	return &common.EmptyResult{}, nil
}

// daemonHold keeps the daemon from exiting until released or until the
// caller disconnects.
func (c *session) daemonHold(_ context.Context, p *common.HoldParams) (*common.HoldResult, error) {
	reason := "client request"
	if p != nil && p.Reason != "" {
		reason = p.Reason
	}
	h := c.s.runner.Hold(fmt.Sprintf("%s: %s", c.id, reason))

	c.mu.Lock()
	c.holds[h.ID()] = h
	c.mu.Unlock()
	return &common.HoldResult{Token: h.ID()}, nil
}

func (c *session) daemonRelease(_ context.Context, p *common.ReleaseParams) (*common.EmptyResult, error) {
	if p == nil || p.Token == "" {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "token is required"}
	}
	c.mu.Lock()
	h, ok := c.holds[p.Token]
	delete(c.holds, p.Token)
	c.mu.Unlock()
	if !ok {
		return nil, rpcError(errUnknownToken)
	}
	h.Release()
	return &common.EmptyResult{}, nil
}

func (c *session) releaseHolds() {
	c.mu.Lock()
	holds := c.holds
	c.holds = make(map[string]*daemon.Hold)
	c.mu.Unlock()
	for _, h := range holds {
		h.Release()
	}
}
