package clock

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/warpdl/mogwai/pkg/logger"
)

// maxSleepCap bounds how long the alarm goroutine sleeps, so wall-clock
// jumps (NTP, manual changes, suspend) and zone changes are noticed.
const maxSleepCap = 60 * time.Second

// jumpTolerance is how far wall and monotonic time may drift apart between
// wakes before it counts as a clock change.
const jumpTolerance = time.Second

// SystemOptions configures a System clock.
type SystemOptions struct {
	Logger logger.Logger
	// Dispatch runs alarm and offset callbacks; the daemon passes the
	// event loop's Post. It defaults to starting a goroutine.
	Dispatch func(func())
	// Location defaults to time.Local.
	Location *time.Location
}

// System is a Clock backed by the real time. One goroutine keeps a
// min-heap of alarms and sleeps until the earliest is due.
type System struct {
	log      logger.Logger
	dispatch func(func())
	loc      *time.Location
	ctx      context.Context

	addChan    chan alarm
	removeChan chan AlarmID
	nextID     atomic.Uint64

	mu        sync.Mutex
	live      map[AlarmID]struct{}
	listeners map[int]func()
	nextL     int
}

var _ Clock = (*System)(nil)

// NewSystem starts a System clock. Its goroutine exits when ctx is
// cancelled; pending alarms are then dropped.
func NewSystem(ctx context.Context, opts *SystemOptions) *System {
	if opts == nil {
		opts = &SystemOptions{}
	}
	s := &System{
		log:        logger.OrNop(opts.Logger),
		dispatch:   opts.Dispatch,
		loc:        opts.Location,
		ctx:        ctx,
		addChan:    make(chan alarm, 64),
		removeChan: make(chan AlarmID, 64),
		live:       make(map[AlarmID]struct{}),
		listeners:  make(map[int]func()),
	}
	if s.dispatch == nil {
		s.dispatch = func(fn func()) { go fn() }
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	go s.run()
	return s
}

func (s *System) Now() time.Time {
	return time.Now().In(s.loc)
}

func (s *System) AddAlarm(at time.Time, fn func()) AlarmID {
	id := AlarmID(s.nextID.Add(1))
	s.mu.Lock()
	s.live[id] = struct{}{}
	s.mu.Unlock()

	// Strip the monotonic reading: alarms follow the wall clock.
	a := alarm{id: id, at: at.Round(0), fn: fn}
	select {
	case s.addChan <- a:
	case <-s.ctx.Done():
	}
	return id
}

func (s *System) RemoveAlarm(id AlarmID) {
	if !s.take(id) {
		s.log.Warning("clock: removing alarm %d which is not pending", id)
		return
	}
	select {
	case s.removeChan <- id:
	case <-s.ctx.Done():
	}
}

// take marks id as no longer pending, reporting whether it was.
func (s *System) take(id AlarmID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live[id]; !ok {
		return false
	}
	delete(s.live, id)
	return true
}

func (s *System) OnOffsetChanged(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextL
	s.nextL++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *System) offsetChanged() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		s.dispatch(fn)
	}
}

// fire hands a due alarm to the dispatcher. The callback is dropped if
// the alarm is removed before the dispatcher gets to it.
func (s *System) fire(a alarm) {
	s.dispatch(func() {
		if s.take(a.id) {
			a.fn()
		}
	})
}

// run is the alarm goroutine.
func (s *System) run() {
	h := &alarmHeap{}
	heap.Init(h)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	resetTimer := func() <-chan time.Time {
		if timer != nil {
			timer.Stop()
		}
		dur := maxSleepCap
		if h.Len() > 0 {
			if until := time.Until((*h)[0].at); until < dur {
				dur = until
			}
		}
		if dur < 0 {
			dur = 0
		}
		timer = time.NewTimer(dur)
		return timer.C
	}

	last := time.Now()
	_, lastOffset := last.In(s.loc).Zone()
	timerCh := resetTimer()

	for {
		select {
		case <-s.ctx.Done():
			return

		case a := <-s.addChan:
			heapPush(h, a)
			timerCh = resetTimer()

		case id := <-s.removeChan:
			heapRemove(h, id)
			timerCh = resetTimer()

		case <-timerCh:
			now := time.Now()
			_, offset := now.In(s.loc).Zone()
			drift := now.Round(0).Sub(last.Round(0)) - now.Sub(last)
			if drift > jumpTolerance || drift < -jumpTolerance || offset != lastOffset {
				s.log.Info("clock: wall clock or UTC offset changed (drift %v)", drift)
				s.offsetChanged()
			}
			last, lastOffset = now, offset

			for _, a := range popDue(h, now.Round(0)) {
				s.fire(a)
			}
			timerCh = resetTimer()
		}
	}
}
