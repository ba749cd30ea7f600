package clock

import (
	"container/heap"
	"sync"
	"time"
)

// Fake is a manually driven Clock for tests. Alarms fire, in time order,
// on the goroutine calling Advance, Set or Jump.
type Fake struct {
	mu        sync.Mutex
	now       time.Time
	alarms    alarmHeap
	nextID    AlarmID
	listeners map[int]func()
	nextL     int
}

var _ Clock = (*Fake)(nil)

func NewFake(now time.Time) *Fake {
	return &Fake{now: now, listeners: make(map[int]func())}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AddAlarm(at time.Time, fn func()) AlarmID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	heapPush(&f.alarms, alarm{id: f.nextID, at: at, fn: fn})
	return f.nextID
}

func (f *Fake) RemoveAlarm(id AlarmID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	heapRemove(&f.alarms, id)
}

func (f *Fake) OnOffsetChanged(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextL
	f.nextL++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

// Advance moves the clock forward by d and fires due alarms.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
	f.fireDue()
}

// Set moves the clock to t and fires due alarms.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
	f.fireDue()
}

// Jump moves the clock to t as a wall-clock change would: offset
// listeners run first, then due alarms.
func (f *Fake) Jump(t time.Time) {
	f.mu.Lock()
	f.now = t
	fns := make([]func(), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	f.fireDue()
}

// NextAlarm returns the time of the earliest pending alarm.
func (f *Fake) NextAlarm() (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.alarms.Len() == 0 {
		return time.Time{}, false
	}
	return f.alarms[0].at, true
}

// PendingAlarms returns the number of alarms not yet fired or removed.
func (f *Fake) PendingAlarms() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alarms.Len()
}

// fireDue runs due alarms one at a time, so a callback may add or remove
// alarms.
func (f *Fake) fireDue() {
	for {
		f.mu.Lock()
		if f.alarms.Len() == 0 || f.alarms[0].at.After(f.now) {
			f.mu.Unlock()
			return
		}
		a := heap.Pop(&f.alarms).(alarm)
		f.mu.Unlock()
		a.fn()
	}
}
