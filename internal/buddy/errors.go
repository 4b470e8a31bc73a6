package buddy

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleState is returned by a store when a unit's expected statuses no
	// longer hold. Nothing from the unit was written.
	ErrStaleState = errors.New("stale state: entity changed since it was read")

	// ErrNotFound is returned when a request or match does not exist.
	ErrNotFound = errors.New("not found")

	// ErrActiveRequestExists is returned when an owner already holds a
	// WAITING or PAIRED request.
	ErrActiveRequestExists = errors.New("owner already has an active request")
)

// TransitionError reports an event that is not allowed in the current status.
type TransitionError struct {
	Entity string // "request" or "match"
	From   string
	Event  string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition: %s on %s", e.Entity, e.Event, e.From)
}

// IsTransitionError reports whether err wraps a *TransitionError.
func IsTransitionError(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}
