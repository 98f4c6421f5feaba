package actions

import (
	"errors"
	"time"
)

// Action registry errors.
var (
	// ErrActionNotFound is returned when an action is not registered.
	ErrActionNotFound = errors.New("action not found")

	// ErrActionNameEmpty is returned when an action has no name.
	ErrActionNameEmpty = errors.New("action name cannot be empty")

	// ErrActionHandlerNil is returned when an action has no handler.
	ErrActionHandlerNil = errors.New("action handler cannot be nil")

	// ErrActionRenderIncomplete is returned when a renderer misses a state.
	ErrActionRenderIncomplete = errors.New("action renderer must handle pending, complete and failed")

	// ErrActionExists is returned when registering a duplicate name.
	ErrActionExists = errors.New("action already registered")

	// ErrMissingParam is returned when a required parameter is absent or empty.
	ErrMissingParam = errors.New("missing required parameter")

	// ErrInvalidParamType is returned when a parameter has the wrong type.
	ErrInvalidParamType = errors.New("invalid parameter type")

	// ErrInvalidParam is returned when a parameter has the right type but
	// cannot be interpreted, e.g. a malformed date.
	ErrInvalidParam = errors.New("invalid parameter value")
)

// TemporalValidationError rejects an event scheduled at or before the
// current time.
type TemporalValidationError struct {
	At  time.Time // requested start
	Now time.Time // clock reading at validation
}

func (e *TemporalValidationError) Error() string {
	return "Cannot add an event in the past."
}
