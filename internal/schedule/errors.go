package schedule

import "errors"

var (
	// ErrFull is returned when an update would exceed the maximum number
	// of entries. Nothing is changed.
	ErrFull = errors.New("too many ongoing downloads already")
	// ErrEntryNotFound is returned for an id that is not registered.
	ErrEntryNotFound = errors.New("entry not found")
)
