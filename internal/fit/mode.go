package fit

import (
	"fmt"
	"strings"
)

// Mode is the constraint applied to a parameter at fit time.
type Mode string

const (
	// Fixed holds the parameter at its value.
	Fixed Mode = "fix"
	// Free lets the fitter move the parameter without bounds.
	Free Mode = "set"
	// Bounded lets the fitter move the parameter within Bounds.
	Bounded Mode = "limit"
)

// Valid reports whether m is one of Fixed, Free or Bounded.
func (m Mode) Valid() bool {
	switch m {
	case Fixed, Free, Bounded:
		return true
	}
	return false
}

// ParseMode converts a configuration option to a Mode. The canonical
// spellings "fix", "set" and "limit" are accepted along with "fixed",
// "free" and "bounded", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fix", "fixed":
		return Fixed, nil
	case "set", "free":
		return Free, nil
	case "limit", "bounded":
		return Bounded, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidParameterMode, s)
}
