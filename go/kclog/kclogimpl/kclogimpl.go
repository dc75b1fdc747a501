// Package kclogimpl defines the logging backend interface used by kclog
// and holds the process-wide logger instance. Splitting the interface
// from the facade lets binaries swap in alternate backends without
// creating an import cycle with the packages they log from.
package kclogimpl

import (
	"os"
)

// Severity identifies the importance of a log line.
type Severity int

const (
	Debug Severity = iota
	Info
	Warning
	Error
	Fatal
)

// String returns the conventional single-word name of the severity.
func (s Severity) String() string {
	switch s {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	}
	return "UNKNOWN"
}

// Logger is implemented by logging backends.
//
// depth is the number of stack frames between the Log call and the
// original logging call site, used to attribute lines to the right file.
// If format is empty the args are formatted as fmt.Sprint would.
type Logger interface {
	Log(depth int, severity Severity, format string, args ...interface{})
	Flush()
}

var logger Logger

// SetLogger sets the process-wide logging backend. Not safe to call
// concurrently with logging; call it during startup.
func SetLogger(l Logger) {
	logger = l
}

// Log forwards one line to the configured backend. Fatal severity exits
// the process after flushing.
func Log(depth int, severity Severity, format string, args ...interface{}) {
	logger.Log(depth+1, severity, format, args...)
	if severity == Fatal {
		logger.Flush()
		os.Exit(255)
	}
}

// Flush flushes the configured backend.
func Flush() {
	logger.Flush()
}
