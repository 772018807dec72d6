// Package log is a small leveled-logging façade in front of logrus, in the
// shape of gVisor's pkg/log (Debugf/Infof/Warningf call sites throughout
// runsc/boot, runsc/cli, ...). Code in this module never imports logrus
// directly; it calls log.Infof etc. so the backend can be swapped (for
// example for a test logger that asserts on warnings) without touching
// call sites.
package log

import (
	"github.com/sirupsen/logrus"
)

// Logger is the interface this package's package-level functions forward
// to. The default is a logrus-backed implementation; SetLogger installs a
// different one.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warningf(format string, args ...any)
}

type logrusLogger struct {
	entry *logrus.Logger
}

func (l *logrusLogger) Debugf(format string, args ...any)   { l.entry.Debugf(format, args...) }
func (l *logrusLogger) Infof(format string, args ...any)    { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warningf(format string, args ...any) { l.entry.Warningf(format, args...) }

var current Logger = &logrusLogger{entry: logrus.StandardLogger()}

// SetLogger installs l as the destination for Debugf/Infof/Warningf.
func SetLogger(l Logger) {
	current = l
}

// Debugf logs at debug level.
func Debugf(format string, args ...any) { current.Debugf(format, args...) }

// Infof logs at info level.
func Infof(format string, args ...any) { current.Infof(format, args...) }

// Warningf logs at warning level. The wait-queue and lifecycle code call
// this (never Fatalf) when they encounter a malformed queue so that a
// wakeup continues rather than propagating the failure to the caller.
func Warningf(format string, args ...any) { current.Warningf(format, args...) }
