// Package clock provides wall-clock time and one-shot alarms to the
// scheduling core.
//
// Alarms never fire synchronously from AddAlarm, and an alarm removed
// before its callback runs never fires. Removing an alarm that has
// already fired is a caller bug; implementations log it and ignore it.
package clock

import "time"

// AlarmID identifies an alarm for RemoveAlarm. Zero is never issued.
type AlarmID uint64

// Clock is the scheduler's view of time.
type Clock interface {
	// Now returns the current time in the local zone.
	Now() time.Time
	// AddAlarm arranges for fn to run at or after at.
	AddAlarm(at time.Time, fn func()) AlarmID
	RemoveAlarm(id AlarmID)
	// OnOffsetChanged registers fn to run when the wall clock or the local
	// UTC offset jumps. The returned function unregisters it.
	OnOffsetChanged(fn func()) (cancel func())
}
