package server

import (
	"context"
	"errors"
	"testing"

	"github.com/warpdl/mogwai/common"
	"github.com/warpdl/mogwai/internal/peer"
)

func TestSystemGetVersion(t *testing.T) {
	env := newTestEnv(t, 0)
	cli := env.connect(t, peer.StaticSource("/usr/bin/app"))

	var res common.VersionResult
	if err := cli.CallResult(context.Background(), common.MethodGetVersion, nil, &res); err != nil {
		t.Fatalf("CallResult: %v", err)
	}
	if res.Version != "1.2.3" || res.Commit != "abc123" {
		t.Fatalf("version = %+v", res)
	}
}

// TestSchedule_NotifiesOwner tests that a scheduled entry is reported to
// its owner once it may download.
func TestSchedule_NotifiesOwner(t *testing.T) {
	env := newTestEnv(t, 0)
	env.openGate(t)
	cli := env.connect(t, peer.StaticSource("/usr/bin/app"))

	prio := uint32(4)
	var res common.ScheduleResult
	if err := cli.CallResult(context.Background(), common.MethodSchedule, &common.ScheduleParams{Priority: &prio}, &res); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if res.ID == "" {
		t.Fatal("empty entry id")
	}

	var note common.EntryInfo
	cli.waitNote(t, common.NotifyEntryChanged, &note)
	if note.ID != res.ID || !note.DownloadNow || note.Priority != 4 {
		t.Fatalf("notification = %+v", note)
	}

	var info common.EntryInfo
	if err := cli.CallResult(context.Background(), common.MethodEntryGet, &common.EntryIDParams{ID: res.ID}, &info); err != nil {
		t.Fatalf("entry.get: %v", err)
	}
	if !info.DownloadNow {
		t.Error("entry.get reports entry inactive")
	}
	if got := env.runner.Holds(); got != 1 {
		t.Errorf("Holds() = %d, want 1 while entries exist", got)
	}
}

// TestScheduleEntries_Full tests that a batch exceeding the limit is
// rejected whole.
func TestScheduleEntries_Full(t *testing.T) {
	env := newTestEnv(t, 3)
	cli := env.connect(t, peer.StaticSource("/usr/bin/app"))

	batch := &common.ScheduleEntriesParams{Entries: make([]common.ScheduleParams, 4)}
	err := cli.CallResult(context.Background(), common.MethodScheduleEntries, batch, &common.ScheduleEntriesResult{})
	if rpcCode(err) != codeSchedulerFull {
		t.Fatalf("err = %v, want code %d", err, codeSchedulerFull)
	}

	var props common.SchedulerProperties
	if err := cli.CallResult(context.Background(), common.MethodSchedulerGetProps, nil, &props); err != nil {
		t.Fatal(err)
	}
	if props.EntryCount != 0 || props.MaxEntries != 3 {
		t.Fatalf("properties = %+v", props)
	}

	batch.Entries = batch.Entries[:3]
	var res common.ScheduleEntriesResult
	if err := cli.CallResult(context.Background(), common.MethodScheduleEntries, batch, &res); err != nil {
		t.Fatalf("scheduleEntries: %v", err)
	}
	if len(res.IDs) != 3 {
		t.Fatalf("ids = %v", res.IDs)
	}
}

// TestEntry_Ownership tests that clients can only see and change their own
// entries.
func TestEntry_Ownership(t *testing.T) {
	env := newTestEnv(t, 0)
	owner := env.connect(t, peer.StaticSource("/usr/bin/a"))
	other := env.connect(t, peer.StaticSource("/usr/bin/b"))

	var res common.ScheduleResult
	if err := owner.CallResult(context.Background(), common.MethodSchedule, &common.ScheduleParams{}, &res); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		method string
		params any
		code   int
	}{
		{"get other's", common.MethodEntryGet, &common.EntryIDParams{ID: res.ID}, common.CodeNotOwner},
		{"set other's", common.MethodEntrySet, &common.SetEntryParams{ID: res.ID}, common.CodeNotOwner},
		{"remove other's", common.MethodEntryRemove, &common.EntryIDParams{ID: res.ID}, common.CodeNotOwner},
		{"get missing", common.MethodEntryGet, &common.EntryIDParams{ID: "404"}, common.CodeEntryNotFound},
		{"get without id", common.MethodEntryGet, &common.EntryIDParams{}, common.CodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := other.Call(context.Background(), tt.method, tt.params)
			if got := rpcCode(err); int(got) != tt.code {
				t.Fatalf("code = %d (%v), want %d", got, err, tt.code)
			}
		})
	}
}

func TestEntry_SetAndRemove(t *testing.T) {
	env := newTestEnv(t, 0)
	cli := env.connect(t, peer.StaticSource("/usr/bin/app"))

	var res common.ScheduleResult
	if err := cli.CallResult(context.Background(), common.MethodSchedule, &common.ScheduleParams{}, &res); err != nil {
		t.Fatal(err)
	}

	prio, resumable := uint32(9), true
	var info common.EntryInfo
	err := cli.CallResult(context.Background(), common.MethodEntrySet,
		&common.SetEntryParams{ID: res.ID, Priority: &prio, Resumable: &resumable}, &info)
	if err != nil {
		t.Fatalf("entry.set: %v", err)
	}
	if info.Priority != 9 || !info.Resumable {
		t.Fatalf("info = %+v", info)
	}

	if _, err := cli.Call(context.Background(), common.MethodEntryRemove, &common.EntryIDParams{ID: res.ID}); err != nil {
		t.Fatalf("entry.remove: %v", err)
	}
	_, err = cli.Call(context.Background(), common.MethodEntryGet, &common.EntryIDParams{ID: res.ID})
	if rpcCode(err) != codeEntryNotFound {
		t.Fatalf("err = %v, want not found", err)
	}
	if got := env.runner.Holds(); got != 0 {
		t.Errorf("Holds() = %d, want 0 with no entries", got)
	}
}

// TestDisconnect_RemovesEntries tests that a client's entries and holds go
// away with its connection, leaving other clients' entries alone.
func TestDisconnect_RemovesEntries(t *testing.T) {
	env := newTestEnv(t, 0)
	leaving := env.connect(t, peer.StaticSource("/usr/bin/a"))
	staying := env.connect(t, peer.StaticSource("/usr/bin/b"))

	batch := &common.ScheduleEntriesParams{Entries: make([]common.ScheduleParams, 2)}
	if _, err := leaving.Call(context.Background(), common.MethodScheduleEntries, batch); err != nil {
		t.Fatal(err)
	}
	if _, err := leaving.Call(context.Background(), common.MethodDaemonHold, &common.HoldParams{Reason: "busy"}); err != nil {
		t.Fatal(err)
	}
	var kept common.ScheduleResult
	if err := staying.CallResult(context.Background(), common.MethodSchedule, &common.ScheduleParams{}, &kept); err != nil {
		t.Fatal(err)
	}

	leaving.disconnect(t)
	env.eventually(t, func() bool { return env.sched.Len() == 1 })

	if _, ok := env.sched.Entry(kept.ID); !ok {
		t.Fatal("remaining client's entry was removed")
	}
	// Only the scheduler's own hold for the remaining entry is left.
	if got := env.runner.Holds(); got != 1 {
		t.Fatalf("Holds() = %d, want 1", got)
	}
}

func TestDaemonHoldRelease(t *testing.T) {
	env := newTestEnv(t, 0)
	cli := env.connect(t, peer.StaticSource("/usr/bin/app"))

	var hold common.HoldResult
	if err := cli.CallResult(context.Background(), common.MethodDaemonHold, &common.HoldParams{}, &hold); err != nil {
		t.Fatalf("daemon.hold: %v", err)
	}
	if env.runner.Holds() != 1 {
		t.Fatalf("Holds() = %d, want 1", env.runner.Holds())
	}

	release := &common.ReleaseParams{Token: hold.Token}
	if _, err := cli.Call(context.Background(), common.MethodDaemonRelease, release); err != nil {
		t.Fatalf("daemon.release: %v", err)
	}
	if env.runner.Holds() != 0 {
		t.Fatalf("Holds() = %d, want 0", env.runner.Holds())
	}
	_, err := cli.Call(context.Background(), common.MethodDaemonRelease, release)
	if rpcCode(err) != codeInvalidParams {
		t.Fatalf("second release err = %v, want invalid params", err)
	}
}

// TestSchedule_UnidentifiedPeer tests that clients whose executable cannot
// be resolved cannot schedule.
func TestSchedule_UnidentifiedPeer(t *testing.T) {
	env := newTestEnv(t, 0)
	cli := env.connect(t, func(context.Context) (string, error) {
		return "", errors.New("no such process")
	})

	_, err := cli.Call(context.Background(), common.MethodSchedule, &common.ScheduleParams{})
	if rpcCode(err) != codeIdentifyingPeer {
		t.Fatalf("err = %v, want code %d", err, codeIdentifyingPeer)
	}
}

// TestSchedulerPropertiesBroadcast tests that every client hears about
// gate changes.
func TestSchedulerPropertiesBroadcast(t *testing.T) {
	env := newTestEnv(t, 0)
	a := env.connect(t, peer.StaticSource("/usr/bin/a"))
	b := env.connect(t, peer.StaticSource("/usr/bin/b"))
	// Make sure both sessions are registered before the change.
	for _, c := range []*testClient{a, b} {
		if _, err := c.Call(context.Background(), common.MethodGetVersion, nil); err != nil {
			t.Fatal(err)
		}
	}

	env.openGate(t)
	for _, c := range []*testClient{a, b} {
		var props common.SchedulerProperties
		c.waitNote(t, common.NotifySchedulerChanged, &props)
		if !props.DownloadsAllowed {
			t.Fatalf("properties = %+v", props)
		}
	}
}

func TestRPCError(t *testing.T) {
	if rpcError(nil) != nil {
		t.Fatal("nil error mapped to non-nil")
	}
	plain := errors.New("plain")
	if rpcError(plain) != plain {
		t.Fatal("unmapped error changed")
	}
	if rpcCode(rpcError(peer.ErrPeerVanished)) != codeIdentifyingPeer {
		t.Fatal("vanished peer not mapped")
	}
}
