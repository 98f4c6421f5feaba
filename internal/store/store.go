// Package store defines the persistence boundary for dashboard events and
// the process-local backends. Network backends live in internal/caldav and
// internal/google and satisfy the same Store interface.
package store

import (
	"context"
	"errors"
	"fmt"

	"eventdash/internal/models"
)

// Collection is the name every backend files events under.
const Collection = "events"

// ErrUnavailable matches every *Error, so callers can test for a backend
// failure without knowing which backend produced it.
var ErrUnavailable = errors.New("event store unavailable")

// Store is the system of record for all events ever created.
type Store interface {
	// Create persists ev and returns it with a store-assigned ID.
	// On failure nothing may be assumed about what was persisted.
	Create(ctx context.Context, ev models.Event) (models.Event, error)

	// QueryByDate returns every event whose Date equals date exactly, in
	// creation order. No matches is an empty slice, not an error.
	QueryByDate(ctx context.Context, date string) ([]models.Event, error)
}

// Error reports a backend that was unreachable or rejected a request.
type Error struct {
	Backend string // e.g. "sqlite", "caldav"
	Op      string // "create" or "query"
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s store %s failed: %v", e.Backend, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUnavailable) hold for any *Error.
func (e *Error) Is(target error) bool { return target == ErrUnavailable }

// Wrap returns err as a *Error for the given backend and operation.
// A nil err stays nil.
func Wrap(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Backend: backend, Op: op, Err: err}
}
