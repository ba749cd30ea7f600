package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/warpdl/mogwai/internal/clock"
	"github.com/warpdl/mogwai/internal/connmon"
	"github.com/warpdl/mogwai/internal/peer"
	"github.com/warpdl/mogwai/pkg/logger"
)

const DefaultMaxEntries = 1024

// Recorder observes scheduling decisions, typically for metrics.
type Recorder interface {
	Rescheduled(entries, active int, allowed bool)
	Rejected()
}

// Options configures a Scheduler.
type Options struct {
	// MaxEntries bounds the registry. Defaults to DefaultMaxEntries.
	MaxEntries int
	// MaxActiveEntries caps how many entries are active at once. Zero
	// means no cap.
	MaxActiveEntries int
	// PrivilegedExecutables lists owner credential paths whose entries
	// rank ahead of all others.
	PrivilegedExecutables []string
	// IDGenerator defaults to CounterIDs.
	IDGenerator IDGenerator
	// Peers, if set, is used for privilege ranking and for removing the
	// entries of vanished owners.
	Peers    peer.Manager
	Logger   logger.Logger
	Recorder Recorder
}

// Scheduler is the entry registry and admission controller.
type Scheduler struct {
	monitor connmon.Monitor
	clock   clock.Clock
	peers   peer.Manager
	log     logger.Logger
	rec     Recorder

	maxEntries int
	maxActive  int
	privileged map[string]bool
	newID      IDGenerator
	seq        uint64

	entries map[string]*Entry
	active  map[string]bool
	allowed bool

	alarm   clock.AlarmID
	alarmAt time.Time

	rescheduling bool
	pending      bool

	Notifier
	cleanup []func()
}

// New returns a Scheduler driven by monitor and clk. Call Close to detach
// it from them.
func New(monitor connmon.Monitor, clk clock.Clock, opts *Options) *Scheduler {
	if opts == nil {
		opts = &Options{}
	}
	s := &Scheduler{
		monitor:    monitor,
		clock:      clk,
		peers:      opts.Peers,
		log:        logger.OrNop(opts.Logger),
		rec:        opts.Recorder,
		maxEntries: opts.MaxEntries,
		maxActive:  opts.MaxActiveEntries,
		privileged: make(map[string]bool, len(opts.PrivilegedExecutables)),
		newID:      opts.IDGenerator,
		entries:    make(map[string]*Entry),
		active:     make(map[string]bool),
	}
	if s.maxEntries <= 0 {
		s.maxEntries = DefaultMaxEntries
	}
	if s.maxActive < 0 {
		s.maxActive = 0
	}
	if s.newID == nil {
		s.newID = CounterIDs()
	}
	for _, path := range opts.PrivilegedExecutables {
		s.privileged[path] = true
	}

	s.cleanup = append(s.cleanup,
		monitor.Subscribe(connmon.ListenerFuncs{
			OnConnectionsChanged: func(added, removed []string) {
				s.log.Debug("connections changed: +%v -%v", added, removed)
				s.Reschedule()
			},
			OnConnectionDetailsChanged: func(id string) {
				s.log.Debug("connection %s details changed", id)
				s.Reschedule()
			},
		}),
		clk.OnOffsetChanged(func() {
			s.log.Debug("clock offset changed")
			s.Reschedule()
		}),
	)
	if s.peers != nil {
		s.cleanup = append(s.cleanup, s.peers.OnPeerVanished(func(owner string) {
			if err := s.RemoveEntriesForOwner(owner); err != nil {
				s.log.Warning("removing entries of vanished peer %s: %v", owner, err)
			}
		}))
	}

	s.Reschedule()
	return s
}

// Close detaches the scheduler from its collaborators and cancels its
// alarm. Entries are kept.
func (s *Scheduler) Close() {
	for _, fn := range s.cleanup {
		fn()
	}
	s.cleanup = nil
	if s.alarm != 0 {
		s.clock.RemoveAlarm(s.alarm)
		s.alarm = 0
		s.alarmAt = time.Time{}
	}
}

// NewEntry returns an unregistered entry owned by owner. Pass it to
// UpdateEntries to schedule it.
func (s *Scheduler) NewEntry(owner string, params EntryParams) (*Entry, error) {
	if owner == "" {
		return nil, errNoOwner
	}
	s.seq++
	e := &Entry{id: s.newID(), seq: s.seq, owner: owner}
	e.apply(params)
	return e, nil
}

// CreateEntry creates and registers a single entry.
func (s *Scheduler) CreateEntry(owner string, params EntryParams) (*Entry, error) {
	e, err := s.NewEntry(owner, params)
	if err != nil {
		return nil, err
	}
	if err := s.UpdateEntries([]*Entry{e}, nil); err != nil {
		return nil, err
	}
	return e, nil
}

// UpdateEntries atomically removes the ids in removed and adds the
// entries in added. An added entry replaces any registered entry with the
// same id; unknown removals are ignored. If the result would hold more
// than the maximum number of entries, nothing changes and ErrFull is
// returned.
//
// Entries that were active and are removed are reported first, then the
// registry change, then any change to the active set.
func (s *Scheduler) UpdateEntries(added []*Entry, removed []string) error {
	removeIDs := make([]string, 0, len(removed))
	removing := make(map[string]bool, len(removed))
	for _, id := range removed {
		if _, ok := s.entries[id]; ok && !removing[id] {
			removing[id] = true
			removeIDs = append(removeIDs, id)
		}
	}

	// Later duplicates in added win but keep the first one's position.
	adds := make([]*Entry, 0, len(added))
	addIndex := make(map[string]int, len(added))
	for _, e := range added {
		if e == nil {
			continue
		}
		if i, ok := addIndex[e.id]; ok {
			adds[i] = e
			continue
		}
		addIndex[e.id] = len(adds)
		adds = append(adds, e)
	}

	total := len(s.entries) - len(removeIDs)
	for _, e := range adds {
		if _, ok := s.entries[e.id]; !ok || removing[e.id] {
			total++
		}
	}
	if total > s.maxEntries {
		s.log.Debug("rejecting update: %d entries exceeds limit %d", total, s.maxEntries)
		if s.rec != nil {
			s.rec.Rejected()
		}
		return fmt.Errorf("%w (limit %d)", ErrFull, s.maxEntries)
	}

	var gone, fresh []*Entry
	for _, id := range removeIDs {
		gone = append(gone, s.entries[id])
		delete(s.entries, id)
	}
	for _, e := range adds {
		if old, ok := s.entries[e.id]; ok {
			if old == e {
				continue
			}
			gone = append(gone, old)
		}
		s.entries[e.id] = e
		fresh = append(fresh, e)
	}
	if len(gone) == 0 && len(fresh) == 0 {
		return nil
	}

	var deactivated []*Entry
	for _, e := range gone {
		if s.active[e.id] {
			deactivated = append(deactivated, e)
			delete(s.active, e.id)
		}
	}

	s.log.Debug("entries changed: %d added, %d removed", len(fresh), len(gone))
	if len(deactivated) > 0 {
		s.emit(Event{Kind: ActiveEntriesChanged, Removed: deactivated})
	}
	s.emit(Event{Kind: EntriesChanged, Added: fresh, Removed: gone})
	s.Reschedule()
	return nil
}

// RemoveEntriesForOwner removes every entry owned by owner.
func (s *Scheduler) RemoveEntriesForOwner(owner string) error {
	var ids []string
	for _, e := range s.Entries() {
		if e.owner == owner {
			ids = append(ids, e.id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return s.UpdateEntries(nil, ids)
}

// Entry returns the registered entry with id.
func (s *Scheduler) Entry(id string) (*Entry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

// Entries returns the registered entries, oldest first.
func (s *Scheduler) Entries() []*Entry {
	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Len returns the number of registered entries.
func (s *Scheduler) Len() int { return len(s.entries) }

// ActiveLen returns the number of active entries.
func (s *Scheduler) ActiveLen() int { return len(s.active) }

// IsEntryActive reports the last admission decision for id. It does not
// recompute anything.
func (s *Scheduler) IsEntryActive(id string) bool {
	return s.active[id]
}

// DownloadsAllowed reports the last computed admission gate.
func (s *Scheduler) DownloadsAllowed() bool { return s.allowed }

// SetEntryProperties applies params to a registered entry and reschedules
// if anything changed.
func (s *Scheduler) SetEntryProperties(id string, params EntryParams) (*Entry, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	if !e.apply(params) {
		return e, nil
	}
	s.emit(Event{Kind: EntryChanged, Entry: e})
	s.Reschedule()
	return e, nil
}

// MaxEntries returns the registry limit.
func (s *Scheduler) MaxEntries() int { return s.maxEntries }
