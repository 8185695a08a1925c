// Package monitoring holds the diagnostic logging hooks shared by the fit
// packages. Library code never writes to stdout directly; it goes through
// Logf and Debugf so callers and tests can redirect or mute it.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

var debug bool

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetDebug toggles Debugf output. Debug output is off by default.
func SetDebug(enabled bool) {
	debug = enabled
}

// DebugEnabled reports whether Debugf currently forwards to Logf.
func DebugEnabled() bool {
	return debug
}

// Debugf logs through Logf only when debug output is enabled. It is used
// for per-parameter and per-iteration detail that would be noise in a
// normal run.
func Debugf(format string, v ...interface{}) {
	if !debug {
		return
	}
	Logf("[debug] "+format, v...)
}
