package fit

import "errors"

var (
	// ErrNotFound is returned when a parameter index has no store entry.
	ErrNotFound = errors.New("fit: parameter not found")
	// ErrInvalidParameterMode is returned when a stored mode is not one of
	// Fixed, Free or Bounded.
	ErrInvalidParameterMode = errors.New("fit: invalid parameter mode")
	// ErrUnknownComponent is returned for a component name that was not
	// configured.
	ErrUnknownComponent = errors.New("fit: unknown component")
)
