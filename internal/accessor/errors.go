package accessor

import "errors"

// Accessor layer errors.
var (
	// ErrMissingMember is returned when a type has no member with the
	// requested name. A lookup miss is always an error, never defaulted.
	ErrMissingMember = errors.New("member not found")

	// ErrMissingMethod is returned when a type has no method matching the
	// requested name and parameter types.
	ErrMissingMethod = errors.New("method not found")

	// ErrArgument is returned for invalid call arguments: a nil instance
	// for an instance-bound element, or a value of the wrong type.
	ErrArgument = errors.New("invalid argument")

	// ErrInvalidOperation is returned for operations the element cannot
	// perform: writing a read-only member, invoking an unclosed template,
	// or accessing an unexported field.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrParameterCount is returned when an invocation supplies too few or
	// too many arguments, after declared defaults have been considered.
	ErrParameterCount = errors.New("parameter count mismatch")
)
