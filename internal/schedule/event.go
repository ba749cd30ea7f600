package schedule

import "sort"

type EventKind int

const (
	// EntriesChanged reports entries added to or removed from the registry.
	EntriesChanged EventKind = iota + 1
	// ActiveEntriesChanged reports entries that became active (Added) or
	// stopped being active (Removed).
	ActiveEntriesChanged
	// EntryChanged reports new properties on Entry.
	EntryChanged
	// GateChanged reports that downloads became allowed or forbidden.
	GateChanged
)

func (k EventKind) String() string {
	switch k {
	case EntriesChanged:
		return "entries-changed"
	case ActiveEntriesChanged:
		return "active-entries-changed"
	case EntryChanged:
		return "entry-changed"
	case GateChanged:
		return "gate-changed"
	}
	return "unknown"
}

// Event is a change notification from a Scheduler.
type Event struct {
	Kind    EventKind
	Added   []*Entry
	Removed []*Entry
	// Entry is set for EntryChanged.
	Entry *Entry
	// Allowed is set for GateChanged.
	Allowed bool
}

// Notifier fans events out to subscribers. Events emitted while a
// subscriber is running are queued and delivered after the current event
// has reached every subscriber, so deliveries never interleave.
type Notifier struct {
	next     int
	subs     map[int]func(Event)
	queue    []Event
	emitting bool
}

// Subscribe registers fn and returns a function removing it.
func (n *Notifier) Subscribe(fn func(Event)) (cancel func()) {
	if n.subs == nil {
		n.subs = make(map[int]func(Event))
	}
	id := n.next
	n.next++
	n.subs[id] = fn
	return func() { delete(n.subs, id) }
}

func (n *Notifier) emit(ev Event) {
	n.queue = append(n.queue, ev)
	if n.emitting {
		return
	}
	n.emitting = true
	defer func() { n.emitting = false }()
	for len(n.queue) > 0 {
		ev := n.queue[0]
		n.queue = n.queue[1:]
		for _, fn := range n.subscribers() {
			fn(ev)
		}
	}
}

func (n *Notifier) subscribers() []func(Event) {
	ids := make([]int, 0, len(n.subs))
	for id := range n.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, n.subs[id])
	}
	return fns
}
