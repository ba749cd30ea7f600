package clock

import (
	"container/heap"
	"testing"
	"time"
)

func TestAlarmHeap_Order(t *testing.T) {
	base := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	h := &alarmHeap{}
	heap.Init(h)

	heapPush(h, alarm{id: 3, at: base.Add(3 * time.Second)})
	heapPush(h, alarm{id: 1, at: base.Add(time.Second)})
	heapPush(h, alarm{id: 4, at: base.Add(time.Second)})
	heapPush(h, alarm{id: 2, at: base.Add(2 * time.Second)})

	want := []AlarmID{1, 4, 2, 3}
	for i, id := range want {
		if got := heapPop(h); got.id != id {
			t.Fatalf("pop %d = %d, want %d", i, got.id, id)
		}
	}
	if h.Len() != 0 {
		t.Errorf("heap not empty: %d", h.Len())
	}
}

func TestAlarmHeap_Remove(t *testing.T) {
	base := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	h := &alarmHeap{}
	for i := 1; i <= 5; i++ {
		heapPush(h, alarm{id: AlarmID(i), at: base.Add(time.Duration(i) * time.Second)})
	}

	if !heapRemove(h, 3) {
		t.Fatal("heapRemove(3) = false")
	}
	if heapRemove(h, 3) {
		t.Fatal("heapRemove(3) twice = true")
	}
	if heapRemove(h, 42) {
		t.Fatal("heapRemove(42) = true")
	}

	due := popDue(h, base.Add(4*time.Second))
	if len(due) != 3 || due[0].id != 1 || due[1].id != 2 || due[2].id != 4 {
		t.Fatalf("popDue = %+v", due)
	}
	if h.Len() != 1 || (*h)[0].id != 5 {
		t.Errorf("remaining = %+v", *h)
	}
}
