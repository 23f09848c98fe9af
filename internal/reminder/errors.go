package reminder

import "errors"

var (
	// ErrInvalidInput reports a bad due time, snooze length or recurrence.
	// Surfaced to the caller and never retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound reports an unknown reminder id.
	ErrNotFound = errors.New("reminder not found")
	// ErrNotifierUnavailable means neither the owner nor the fallback
	// destination could be reached. The reminder stays due.
	ErrNotifierUnavailable = errors.New("notifier unavailable")
	// ErrStoreUnavailable means the persistence layer could not be read or
	// written. Callers must treat the operation as not applied.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrConflict is returned by a store when a patch precondition does not
	// hold anymore.
	ErrConflict = errors.New("reminder changed concurrently")
	// ErrDuplicate is returned when adding a reminder whose id already exists.
	ErrDuplicate = errors.New("duplicate reminder id")
)
