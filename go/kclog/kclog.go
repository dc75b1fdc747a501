// Package kclog defines the logging functions used throughout the
// repository (e.g. Info, Errorf, etc.).
package kclog

import (
	"os"

	"go.kernelci.org/kcidb/go/kclog/kclogimpl"
	"go.kernelci.org/kcidb/go/kclog/stdlogging"
)

// The logger must be set in an init function, otherwise there's a very
// good chance of getting a nil pointer panic.
func init() {
	kclogimpl.SetLogger(stdlogging.New(os.Stderr))
}

// Functions to log at various levels.
// Debug, Info, Warning, Error, and Fatal use fmt.Sprint to format the
// arguments.
// Functions ending in f use fmt.Sprintf to format the arguments.
// Functions ending in WithDepth allow the caller to change where the
// stacktrace starts. 0 (the default in all other calls) means to report
// starting at the caller. 1 would mean one level above, the caller's
// caller, and so on.

func Debug(msg ...interface{}) {
	kclogimpl.Log(1, kclogimpl.Debug, "", msg...)
}

func Debugf(format string, v ...interface{}) {
	kclogimpl.Log(1, kclogimpl.Debug, format, v...)
}

func DebugfWithDepth(depth int, format string, v ...interface{}) {
	kclogimpl.Log(1+depth, kclogimpl.Debug, format, v...)
}

func Info(msg ...interface{}) {
	kclogimpl.Log(1, kclogimpl.Info, "", msg...)
}

func Infof(format string, v ...interface{}) {
	kclogimpl.Log(1, kclogimpl.Info, format, v...)
}

func InfofWithDepth(depth int, format string, v ...interface{}) {
	kclogimpl.Log(1+depth, kclogimpl.Info, format, v...)
}

func Warning(msg ...interface{}) {
	kclogimpl.Log(1, kclogimpl.Warning, "", msg...)
}

func Warningf(format string, v ...interface{}) {
	kclogimpl.Log(1, kclogimpl.Warning, format, v...)
}

func WarningfWithDepth(depth int, format string, v ...interface{}) {
	kclogimpl.Log(1+depth, kclogimpl.Warning, format, v...)
}

func Error(msg ...interface{}) {
	kclogimpl.Log(1, kclogimpl.Error, "", msg...)
}

func Errorf(format string, v ...interface{}) {
	kclogimpl.Log(1, kclogimpl.Error, format, v...)
}

func ErrorfWithDepth(depth int, format string, v ...interface{}) {
	kclogimpl.Log(1+depth, kclogimpl.Error, format, v...)
}

// Fatal* exits the program after logging.
func Fatal(msg ...interface{}) {
	kclogimpl.Log(1, kclogimpl.Fatal, "", msg...)
}

func Fatalf(format string, v ...interface{}) {
	kclogimpl.Log(1, kclogimpl.Fatal, format, v...)
}

func FatalfWithDepth(depth int, format string, v ...interface{}) {
	kclogimpl.Log(1+depth, kclogimpl.Fatal, format, v...)
}

func Flush() {
	kclogimpl.Flush()
}
