// Package monitoring holds the process-wide diagnostic logger.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// debugEnabled gates Tracef output. Toggled once at startup via SetDebug.
var debugEnabled bool

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetDebug enables or disables trace logging.
func SetDebug(enabled bool) { debugEnabled = enabled }

// Tracef logs only when debug mode is enabled, keeping the main log quiet
// during normal runs.
func Tracef(format string, v ...interface{}) {
	if debugEnabled {
		Logf(format, v...)
	}
}
