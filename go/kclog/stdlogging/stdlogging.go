// Package stdlogging implements kclogimpl.Logger and logs to either
// stderr or stdout.
package stdlogging

import (
	logger "github.com/jcgregorio/logger"

	"go.kernelci.org/kcidb/go/kclog/kclogimpl"
)

type stdlog struct {
	logger *logger.Logger
}

// New returns a kclogimpl.Logger that writes to a SyncWriter, such as
// os.Stdout or os.Stderr.
func New(dst logger.SyncWriter) kclogimpl.Logger {
	l := logger.NewFromOptions(&logger.Options{
		SyncWriter:   dst,
		DepthDelta:   3,
		IncludeDebug: true,
	})
	return &stdlog{
		logger: l,
	}
}

// Log implements kclogimpl.Logger.
func (s stdlog) Log(_ int, severity kclogimpl.Severity, fmt string, args ...interface{}) {
	switch severity {
	case kclogimpl.Debug:
		if fmt == "" {
			s.logger.Debug(args...)
		} else {
			s.logger.Debugf(fmt, args...)
		}
	case kclogimpl.Info:
		if fmt == "" {
			s.logger.Info(args...)
		} else {
			s.logger.Infof(fmt, args...)
		}
	case kclogimpl.Warning:
		if fmt == "" {
			s.logger.Warning(args...)
		} else {
			s.logger.Warningf(fmt, args...)
		}
	case kclogimpl.Error:
		if fmt == "" {
			s.logger.Error(args...)
		} else {
			s.logger.Errorf(fmt, args...)
		}
	case kclogimpl.Fatal:
		if fmt == "" {
			s.logger.Fatal(args...)
		} else {
			s.logger.Fatalf(fmt, args...)
		}
	default:
		s.logger.Errorf(fmt, args...)
	}
}

// Flush implements kclogimpl.Logger.
func (s stdlog) Flush() {
	// noop
}
