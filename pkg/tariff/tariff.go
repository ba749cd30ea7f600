package tariff

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

// Tariff is a named, ordered, non-overlapping set of periods. Tariffs are
// immutable.
type Tariff struct {
	name    string
	periods []*Period
}

var nameProfile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(false),
	idna.StrictDomainName(false),
)

// ValidateName reports whether name is usable as a tariff name: non-empty
// UTF-8 without path separators which survives IDN conversion.
func ValidateName(name string) bool {
	if name == "" || !utf8.ValidString(name) {
		return false
	}
	if strings.ContainsAny(name, "/\\") {
		return false
	}
	_, err := nameProfile.ToASCII(name)
	return err == nil
}

// Validate checks a tariff name and period list. If it returns nil, New
// succeeds for the same arguments.
func Validate(name string, periods []*Period) error {
	if !ValidateName(name) {
		return fmt.Errorf("%w: %w", ErrInvalidTariff, ErrTariffName)
	}
	if len(periods) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidTariff, ErrTariffNoPeriods)
	}
	for _, p := range periods {
		if p == nil {
			return fmt.Errorf("%w: %w", ErrInvalidTariff, ErrTariffNoPeriods)
		}
	}
	if !periodsNonOverlapping(periods) {
		return fmt.Errorf("%w: %w", ErrInvalidTariff, ErrTariffOverlap)
	}
	if !periodsOrdered(periods) {
		return fmt.Errorf("%w: %w", ErrInvalidTariff, ErrTariffOrder)
	}
	return nil
}

// periodsNonOverlapping rejects pairs whose first recurrences partially
// overlap, or are identical. Later recurrences are not compared.
func periodsNonOverlapping(periods []*Period) bool {
	for i, p1 := range periods {
		for j, p2 := range periods {
			if i == j {
				continue
			}
			if p1.start.Before(p2.start) && p1.end.After(p2.start) && p1.end.Before(p2.end) {
				return false
			}
			if p1.start.Equal(p2.start) && p1.end.Equal(p2.end) {
				return false
			}
		}
	}
	return true
}

// periodsOrdered requires decreasing span, then increasing start.
func periodsOrdered(periods []*Period) bool {
	for i := 1; i < len(periods); i++ {
		if !periodLess(periods[i-1], periods[i]) {
			return false
		}
	}
	return true
}

func periodLess(a, b *Period) bool {
	if c := compareSpans(a, b); c != 0 {
		return c > 0
	}
	return a.start.Before(b.start)
}

func sortPeriods(periods []*Period) {
	sort.SliceStable(periods, func(i, j int) bool {
		return periodLess(periods[i], periods[j])
	})
}

// New validates its arguments and returns a Tariff. The period slice is
// copied.
func New(name string, periods []*Period) (*Tariff, error) {
	if err := Validate(name, periods); err != nil {
		return nil, err
	}
	return &Tariff{
		name:    name,
		periods: append([]*Period(nil), periods...),
	}, nil
}

func (t *Tariff) Name() string { return t.name }

// Periods returns the tariff's periods in their canonical order.
func (t *Tariff) Periods() []*Period {
	return append([]*Period(nil), t.periods...)
}

// LookupPeriod returns the period in effect at when: of all periods with a
// recurrence containing when, the one with the shortest span. It returns
// nil if no period applies; callers decide what that means.
func (t *Tariff) LookupPeriod(when time.Time) *Period {
	var shortest *Period
	for _, p := range t.periods {
		if _, _, ok := p.ContainsTime(when); !ok {
			continue
		}
		if shortest == nil || compareSpans(p, shortest) < 0 {
			shortest = p
		}
	}
	return shortest
}

type transitionKind int

const (
	transitionFrom transitionKind = iota
	transitionTo
)

type transition struct {
	when   time.Time
	kind   transitionKind
	index  int
	period *Period
}

// NextTransition returns the first instant strictly after after at which the
// period in effect changes, with the periods left and entered (either may be
// nil). A zero after returns the start of the earliest period. ok is false
// when no period recurs after after.
func (t *Tariff) NextTransition(after time.Time) (when time.Time, from, to *Period, ok bool) {
	if after.IsZero() {
		for _, p := range t.periods {
			if to == nil || p.start.Before(when) {
				when, to = p.start, p
			}
		}
		return when, nil, to, to != nil
	}

	transitions := make([]transition, 0, len(t.periods))
	for i, p := range t.periods {
		if _, end, in := p.ContainsTime(after); in {
			transitions = append(transitions, transition{when: end, kind: transitionFrom, index: i, period: p})
		} else if start, _, next := p.NextRecurrence(after); next {
			transitions = append(transitions, transition{when: start, kind: transitionTo, index: i, period: p})
		}
	}
	if len(transitions) == 0 {
		return time.Time{}, nil, nil, false
	}

	// Earliest first; at equal times leaving precedes entering, and shorter
	// periods (higher index) precede longer ones.
	sort.Slice(transitions, func(i, j int) bool {
		a, b := transitions[i], transitions[j]
		if !a.when.Equal(b.when) {
			return a.when.Before(b.when)
		}
		if a.kind != b.kind {
			return a.kind == transitionFrom
		}
		return a.index > b.index
	})

	first := transitions[0]
	when = first.when
	switch first.kind {
	case transitionFrom:
		from = first.period
		if following := nextDistinct(transitions, first.when); following != nil && following.kind == transitionFrom {
			to = following.period
		} else {
			to = t.LookupPeriod(when)
		}
	case transitionTo:
		to = first.period
		from = t.LookupPeriod(when.Add(-time.Second))
	}
	return when, from, to, true
}

func nextDistinct(transitions []transition, when time.Time) *transition {
	for i := 1; i < len(transitions); i++ {
		if !transitions[i].when.Equal(when) {
			return &transitions[i]
		}
	}
	return nil
}
