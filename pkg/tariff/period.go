package tariff

import (
	"cmp"
	"fmt"
	"math"
	"strings"
	"time"
)

// RepeatType is the calendar unit a Period recurs in.
type RepeatType uint16

const (
	RepeatNone RepeatType = iota
	RepeatHour
	RepeatDay
	RepeatWeek
	RepeatMonth
	RepeatYear
)

var repeatTypeNames = [...]string{"none", "hour", "day", "week", "month", "year"}

// Valid reports whether r is one of the known repeat types.
func (r RepeatType) Valid() bool {
	return r <= RepeatYear
}

func (r RepeatType) String() string {
	if r.Valid() {
		return repeatTypeNames[r]
	}
	return fmt.Sprintf("RepeatType(%d)", uint16(r))
}

// ParseRepeatType parses the lower-case name of a repeat type.
func ParseRepeatType(s string) (RepeatType, error) {
	for i, name := range repeatTypeNames {
		if strings.EqualFold(s, name) {
			return RepeatType(i), nil
		}
	}
	return RepeatNone, fmt.Errorf("unknown repeat type %q", s)
}

// maxSpan is an upper bound on the length of one repeat unit, allowing for
// DST shifts and leap days.
func (r RepeatType) maxSpan() time.Duration {
	switch r {
	case RepeatHour:
		return time.Hour
	case RepeatDay:
		return 24 * time.Hour
	case RepeatWeek:
		return 7 * 24 * time.Hour
	case RepeatMonth:
		return 32 * 24 * time.Hour
	case RepeatYear:
		return 367 * 24 * time.Hour
	default:
		return 0
	}
}

// CapacityUnlimited is the capacity limit of a period with no limit.
const CapacityUnlimited uint64 = math.MaxUint64

// Latest Unix timestamp the file format accepts (9999-12-31T23:59:59Z).
const maxUnix = 253402300799

// Period is a time span, optionally recurring, with a capacity limit.
// Periods are immutable.
type Period struct {
	start         time.Time
	end           time.Time
	repeatType    RepeatType
	repeatPeriod  uint32
	capacityLimit uint64
}

// PeriodOption sets an optional property of a Period.
type PeriodOption func(*Period)

// WithCapacityLimit sets the number of bytes which may be downloaded during
// each recurrence of the period. Zero forbids downloads entirely.
func WithCapacityLimit(limit uint64) PeriodOption {
	return func(p *Period) {
		p.capacityLimit = limit
	}
}

// ValidatePeriod checks the properties of a period. If it returns nil,
// NewPeriod succeeds for the same arguments. Zero times and times with a
// sub-second part are invalid.
func ValidatePeriod(start, end time.Time, repeatType RepeatType, repeatPeriod uint32) error {
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return fmt.Errorf("%w: %w", ErrInvalidPeriod, ErrPeriodBounds)
	}
	if !representable(start) || !representable(end) || start.Nanosecond() != 0 || end.Nanosecond() != 0 {
		return fmt.Errorf("%w: %w", ErrInvalidPeriod, ErrPeriodBounds)
	}
	if !repeatType.Valid() {
		return fmt.Errorf("%w: %w", ErrInvalidPeriod, ErrPeriodRepeatType)
	}
	if (repeatType == RepeatNone) != (repeatPeriod == 0) {
		return fmt.Errorf("%w: %w", ErrInvalidPeriod, ErrPeriodRepeat)
	}
	return nil
}

func representable(t time.Time) bool {
	u := t.Unix()
	return u >= 0 && u <= maxUnix
}

// NewPeriod validates its arguments and returns a new Period. The capacity
// limit defaults to CapacityUnlimited.
func NewPeriod(start, end time.Time, repeatType RepeatType, repeatPeriod uint32, opts ...PeriodOption) (*Period, error) {
	if err := ValidatePeriod(start, end, repeatType, repeatPeriod); err != nil {
		return nil, err
	}
	p := &Period{
		start:         start,
		end:           end,
		repeatType:    repeatType,
		repeatPeriod:  repeatPeriod,
		capacityLimit: CapacityUnlimited,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Start returns the start of the first recurrence (inclusive).
func (p *Period) Start() time.Time { return p.start }

// End returns the end of the first recurrence (exclusive).
func (p *Period) End() time.Time { return p.end }

func (p *Period) RepeatType() RepeatType { return p.repeatType }

// RepeatPeriod returns the number of RepeatType units between recurrences.
func (p *Period) RepeatPeriod() uint32 { return p.repeatPeriod }

func (p *Period) CapacityLimit() uint64 { return p.capacityLimit }

// Span returns the length of the first recurrence. Spans longer than
// time.Duration can hold saturate.
func (p *Period) Span() time.Duration { return p.end.Sub(p.start) }

// compareSpans orders the first-recurrence lengths of a and b.
func compareSpans(a, b *Period) int {
	as, an := a.spanParts()
	bs, bn := b.spanParts()
	if c := cmp.Compare(as, bs); c != 0 {
		return c
	}
	return cmp.Compare(an, bn)
}

func (p *Period) spanParts() (sec int64, nsec int) {
	sec = p.end.Unix() - p.start.Unix()
	nsec = p.end.Nanosecond() - p.start.Nanosecond()
	if nsec < 0 {
		sec--
		nsec += int(time.Second)
	}
	return sec, nsec
}

// ContainsTime reports whether when falls inside some recurrence of p and
// returns the bounds of that recurrence.
func (p *Period) ContainsTime(when time.Time) (start, end time.Time, ok bool) {
	r := p.nearest(when)
	return r.containsStart, r.containsEnd, r.contains
}

// NextRecurrence returns the first recurrence of p which starts strictly
// after after. A zero after yields the first recurrence.
func (p *Period) NextRecurrence(after time.Time) (start, end time.Time, ok bool) {
	r := p.nearest(after)
	return r.nextStart, r.nextEnd, r.next
}

type recurrences struct {
	containsStart, containsEnd time.Time
	contains                   bool
	nextStart, nextEnd         time.Time
	next                       bool
}

// nearest finds the recurrence containing when and the one after it.
func (p *Period) nearest(when time.Time) (r recurrences) {
	if when.IsZero() || when.Before(p.start) {
		r.nextStart, r.nextEnd, r.next = p.start, p.end, true
		return r
	}

	var skipped uint64
	if when.Before(p.end) {
		r.containsStart, r.containsEnd, r.contains = p.start, p.end, true
		if p.repeatType != RepeatNone {
			r.nextStart, r.nextEnd, r.next = p.nthSkipEmpty(1, &skipped)
		}
		return r
	}

	if p.repeatType == RepeatNone || p.repeatPeriod == 0 {
		return r
	}

	// Jump to a lower bound on the number of elapsed recurrences, then step
	// one at a time. Each step is computed from the base times since
	// calendar addition does not compose across DST gaps.
	diff := uint64(when.Unix() - p.start.Unix())
	minN := diff / uint64(p.repeatType.maxSpan()/time.Second) / uint64(p.repeatPeriod)

	start, end := p.start, p.end
	if minN > 0 {
		var ok bool
		if start, end, ok = p.nthSkipEmpty(minN, &skipped); !ok {
			return r
		}
	}

	for i := uint64(1); !start.After(when); i++ {
		if when.Before(end) {
			r.containsStart, r.containsEnd, r.contains = start, end, true
			r.nextStart, r.nextEnd, r.next = p.nthSkipEmpty(minN+i, &skipped)
			return r
		}
		var ok bool
		if start, end, ok = p.nthSkipEmpty(minN+i, &skipped); !ok {
			return r
		}
	}

	r.nextStart, r.nextEnd, r.next = start, end, true
	return r
}

// nthSkipEmpty returns recurrence n+*skipped, skipping recurrences which
// collapse to nothing and counting them in skipped.
func (p *Period) nthSkipEmpty(n uint64, skipped *uint64) (time.Time, time.Time, bool) {
	for {
		start, end, empty, ok := p.nth(n + *skipped)
		if !empty {
			return start, end, ok
		}
		*skipped++
	}
}

// nth returns recurrence n (n >= 1) of p.
func (p *Period) nth(n uint64) (start, end time.Time, empty, ok bool) {
	if n > math.MaxInt32/uint64(p.repeatPeriod) {
		return time.Time{}, time.Time{}, false, false
	}
	k := int(uint64(p.repeatPeriod) * n)

	switch p.repeatType {
	case RepeatHour:
		start = p.start.Add(time.Duration(k) * time.Hour)
		end = p.end.Add(time.Duration(k) * time.Hour)
	case RepeatDay:
		start, end = p.start.AddDate(0, 0, k), p.end.AddDate(0, 0, k)
	case RepeatWeek:
		start, end = p.start.AddDate(0, 0, 7*k), p.end.AddDate(0, 0, 7*k)
	case RepeatMonth:
		start, end = addMonths(p.start, k), addMonths(p.end, k)
	case RepeatYear:
		start, end = addMonths(p.start, 12*k), addMonths(p.end, 12*k)
	default:
		return time.Time{}, time.Time{}, false, false
	}

	if start.Year() > 9999 || end.Year() > 9999 {
		return time.Time{}, time.Time{}, false, false
	}
	if start.Equal(end) {
		return time.Time{}, time.Time{}, true, false
	}
	return start, end, false, true
}

// addMonths adds n calendar months to t, clamping the day to the end of the
// target month (31 January plus one month is 28 or 29 February).
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
