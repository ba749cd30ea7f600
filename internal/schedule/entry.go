package schedule

import (
	"errors"
	"strconv"
)

// EntryParams are the requester-settable properties of an entry. Nil
// fields are left unchanged, or take their default on creation.
type EntryParams struct {
	Priority  *uint32 `json:"priority,omitempty"`
	Resumable *bool   `json:"resumable,omitempty"`
}

// Entry is one client's request to download. The scheduler owns its
// registry membership and active state; clients only read it.
type Entry struct {
	id        string
	seq       uint64
	owner     string
	priority  uint32
	resumable bool
}

func (e *Entry) ID() string { return e.id }

// Owner is the peer that created the entry.
func (e *Entry) Owner() string { return e.owner }

// Priority orders entries; higher runs first.
func (e *Entry) Priority() uint32 { return e.priority }

// Resumable reports whether the download can be paused and resumed
// without losing progress.
func (e *Entry) Resumable() bool { return e.resumable }

// apply sets the given params and reports whether anything changed.
func (e *Entry) apply(p EntryParams) bool {
	changed := false
	if p.Priority != nil && *p.Priority != e.priority {
		e.priority = *p.Priority
		changed = true
	}
	if p.Resumable != nil && *p.Resumable != e.resumable {
		e.resumable = *p.Resumable
		changed = true
	}
	return changed
}

// IDGenerator mints entry identifiers. It must never return the same id
// twice for one scheduler.
type IDGenerator func() string

// CounterIDs returns an IDGenerator yielding "1", "2", ...
func CounterIDs() IDGenerator {
	var n uint64
	return func() string {
		n++
		return strconv.FormatUint(n, 10)
	}
}

var errNoOwner = errors.New("entry owner must not be empty")
