package clock

import (
	"container/heap"
	"time"
)

type alarm struct {
	id AlarmID
	at time.Time
	fn func()
}

// alarmHeap is a min-heap of alarms ordered by time, then by id so that
// alarms for the same instant fire in the order they were added.
type alarmHeap []alarm

func (h alarmHeap) Len() int { return len(h) }

func (h alarmHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].id < h[j].id
	}
	return h[i].at.Before(h[j].at)
}

func (h alarmHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *alarmHeap) Push(x any) {
	*h = append(*h, x.(alarm))
}

func (h *alarmHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func heapPush(h *alarmHeap, a alarm) {
	heap.Push(h, a)
}

// heapPop removes the earliest alarm. Panics if the heap is empty.
func heapPop(h *alarmHeap) alarm {
	return heap.Pop(h).(alarm)
}

// heapRemove removes the alarm with the given id, reporting whether it
// was present.
func heapRemove(h *alarmHeap, id AlarmID) bool {
	for i, a := range *h {
		if a.id == id {
			heap.Remove(h, i)
			return true
		}
	}
	return false
}

// popDue removes and returns every alarm due at or before now.
func popDue(h *alarmHeap, now time.Time) []alarm {
	var due []alarm
	for h.Len() > 0 && !(*h)[0].at.After(now) {
		due = append(due, heapPop(h))
	}
	return due
}
