package clock

import (
	"testing"
	"time"
)

func TestFake_Alarms(t *testing.T) {
	start := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	var order []string
	f.AddAlarm(start.Add(2*time.Hour), func() { order = append(order, "two") })
	removed := f.AddAlarm(start.Add(time.Hour), func() { order = append(order, "removed") })
	f.AddAlarm(start.Add(time.Hour), func() { order = append(order, "one") })
	f.RemoveAlarm(removed)

	if next, ok := f.NextAlarm(); !ok || !next.Equal(start.Add(time.Hour)) {
		t.Fatalf("NextAlarm() = %v, %v", next, ok)
	}

	f.Advance(90 * time.Minute)
	if len(order) != 1 || order[0] != "one" {
		t.Fatalf("after 90m fired %v", order)
	}
	f.Set(start.Add(3 * time.Hour))
	if len(order) != 2 || order[1] != "two" {
		t.Fatalf("after 3h fired %v", order)
	}
	if f.PendingAlarms() != 0 {
		t.Errorf("PendingAlarms() = %d", f.PendingAlarms())
	}
}

func TestFake_AlarmAddedFromCallback(t *testing.T) {
	start := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	count := 0
	var rearm func()
	rearm = func() {
		count++
		if count < 3 {
			f.AddAlarm(f.Now(), rearm)
		}
	}
	f.AddAlarm(start, rearm)
	if count != 0 {
		t.Fatal("alarm fired synchronously")
	}
	f.Advance(0)
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestFake_Jump(t *testing.T) {
	start := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	var events []string
	cancel := f.OnOffsetChanged(func() { events = append(events, "offset") })
	f.AddAlarm(start.Add(time.Hour), func() { events = append(events, "alarm") })

	f.Jump(start.Add(2 * time.Hour))
	if len(events) != 2 || events[0] != "offset" || events[1] != "alarm" {
		t.Fatalf("events = %v", events)
	}

	cancel()
	f.Jump(start)
	if len(events) != 2 {
		t.Errorf("cancelled listener ran: %v", events)
	}
	if !f.Now().Equal(start) {
		t.Errorf("Now() = %v", f.Now())
	}
}
