package tariff

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidPeriod = errors.New("invalid period")
	ErrInvalidTariff = errors.New("invalid tariff")

	ErrPeriodBounds     = errors.New("invalid start/end times for period")
	ErrPeriodRepeatType = errors.New("invalid repeat type for period")
	ErrPeriodRepeat     = errors.New("invalid repeat properties for period")

	ErrTariffName      = errors.New("invalid tariff name")
	ErrTariffNoPeriods = errors.New("tariff has no periods")
	ErrTariffOverlap   = errors.New("tariff periods overlap")
	ErrTariffOrder     = errors.New("tariff periods are not ordered")

	ErrMagic     = errors.New("unknown file format magic")
	ErrVersion   = errors.New("unknown file format version")
	ErrMalformed = errors.New("malformed tariff data")
)

// DecodeError is returned by Decode. Kind is one of ErrMagic, ErrVersion,
// ErrMalformed, ErrInvalidPeriod or ErrInvalidTariff; both Kind and Err
// match with errors.Is.
type DecodeError struct {
	Kind error
	// Index is the 1-based index of the offending period for
	// ErrInvalidPeriod, and zero otherwise.
	Index int
	Err   error
}

func (e *DecodeError) Error() string {
	var b strings.Builder
	b.WriteString("error loading tariff")
	if e.Index > 0 {
		fmt.Fprintf(&b, ": period %d", e.Index)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	} else {
		b.WriteString(": " + e.Kind.Error())
	}
	return b.String()
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func decodeError(kind error, index int, err error) *DecodeError {
	return &DecodeError{Kind: kind, Index: index, Err: err}
}
