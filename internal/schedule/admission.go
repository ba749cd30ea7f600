package schedule

import (
	"sort"
	"time"

	"github.com/warpdl/mogwai/internal/clock"
	"github.com/warpdl/mogwai/internal/connmon"
)

// Reschedule recomputes the admission gate and the active set, emits the
// resulting changes and rearms the transition alarm. It is idempotent: with
// no change in inputs it emits nothing. A call made while a reschedule is
// already running is folded into another pass once it finishes.
func (s *Scheduler) Reschedule() {
	if s.rescheduling {
		s.pending = true
		return
	}
	s.rescheduling = true
	defer func() { s.rescheduling = false }()
	for {
		s.pending = false
		s.reschedule()
		if !s.pending {
			return
		}
	}
}

func (s *Scheduler) reschedule() {
	now := s.clock.Now()
	allowed, next := s.evaluateGate(now)

	active := make(map[string]bool)
	var ranked []*Entry
	if allowed {
		ranked = s.rank()
		if s.maxActive > 0 && len(ranked) > s.maxActive {
			ranked = ranked[:s.maxActive]
		}
		for _, e := range ranked {
			active[e.id] = true
		}
	}

	var started, stopped []*Entry
	for _, e := range ranked {
		if !s.active[e.id] {
			started = append(started, e)
		}
	}
	for _, e := range s.Entries() {
		if s.active[e.id] && !active[e.id] {
			stopped = append(stopped, e)
		}
	}

	gateChanged := allowed != s.allowed
	s.active = active
	s.allowed = allowed
	s.armAlarm(next)

	if len(started) > 0 || len(stopped) > 0 {
		s.log.Debug("active entries: %d started, %d stopped", len(started), len(stopped))
		s.emit(Event{Kind: ActiveEntriesChanged, Added: started, Removed: stopped})
	}
	if gateChanged {
		s.log.Info("downloads allowed: %t", allowed)
		s.emit(Event{Kind: GateChanged, Allowed: allowed})
	}
	if s.rec != nil {
		s.rec.Rescheduled(len(s.entries), len(s.active), s.allowed)
	}
}

// evaluateGate reports whether any active connection is safe to download
// on at now, and the earliest upcoming tariff transition across all
// connections.
func (s *Scheduler) evaluateGate(now time.Time) (allowed bool, next time.Time) {
	for _, id := range s.monitor.ConnectionIDs() {
		d, ok := s.monitor.ConnectionDetails(id)
		if !ok {
			continue
		}
		if s.connectionSafe(id, d, now) {
			allowed = true
		}
		if d.Tariff == nil {
			continue
		}
		if when, _, _, ok := d.Tariff.NextTransition(now); ok && (next.IsZero() || when.Before(next)) {
			next = when
		}
	}
	return allowed, next
}

// connectionSafe applies one connection's policy. A tariff with no period
// covering now does not restrict anything.
func (s *Scheduler) connectionSafe(id string, d connmon.Details, now time.Time) bool {
	if !d.AllowDownloads {
		s.log.Debug("connection %s: downloads not allowed", id)
		return false
	}
	if d.Metered.IsMetered() && !d.AllowDownloadsWhenMetered {
		s.log.Debug("connection %s: metered (%s)", id, d.Metered)
		return false
	}
	if d.Tariff != nil {
		if p := d.Tariff.LookupPeriod(now); p != nil && p.CapacityLimit() == 0 {
			s.log.Debug("connection %s: tariff %s forbids downloads", id, d.Tariff.Name())
			return false
		}
	}
	return true
}

// rank orders entries for admission: privileged owners first and owners
// without known credentials last, then higher priority, then oldest.
func (s *Scheduler) rank() []*Entry {
	type ranked struct {
		e          *Entry
		privileged bool
		known      bool
	}
	rs := make([]ranked, 0, len(s.entries))
	for _, e := range s.entries {
		r := ranked{e: e, known: true}
		if s.peers != nil {
			path, ok := s.peers.CachedCredentials(e.owner)
			r.known = ok
			r.privileged = ok && s.privileged[path]
		}
		rs = append(rs, r)
	}
	sort.Slice(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.privileged != b.privileged {
			return a.privileged
		}
		if a.known != b.known {
			return a.known
		}
		if a.e.priority != b.e.priority {
			return a.e.priority > b.e.priority
		}
		return a.e.seq < b.e.seq
	})
	out := make([]*Entry, len(rs))
	for i, r := range rs {
		out[i] = r.e
	}
	return out
}

// armAlarm keeps a single alarm pending for at, or none if at is zero.
func (s *Scheduler) armAlarm(at time.Time) {
	if s.alarm != 0 && s.alarmAt.Equal(at) {
		return
	}
	if s.alarm != 0 {
		s.clock.RemoveAlarm(s.alarm)
		s.alarm = 0
		s.alarmAt = time.Time{}
	}
	if at.IsZero() {
		return
	}
	s.alarmAt = at
	var id clock.AlarmID
	id = s.clock.AddAlarm(at, func() {
		if s.alarm != id {
			return
		}
		s.alarm = 0
		s.alarmAt = time.Time{}
		s.log.Debug("tariff transition at %s", at)
		s.Reschedule()
	})
	s.alarm = id
}
