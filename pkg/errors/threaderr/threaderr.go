// Package threaderr defines the sentinel error kinds surfaced by the
// thread core, in the shape of gVisor's pkg/errors/linuxerr (predeclared
// error values checked with errors.Is) rather than as a bespoke error
// type hierarchy — the same style consumers of this module's kernel
// package will already recognize from linuxerr.EINVAL, linuxerr.EAGAIN,
// and friends.
package threaderr

import "errors"

var (
	// InvalidArgument is returned for a null required pointer, a bad CPU
	// index, or a bad stack size.
	InvalidArgument = errors.New("invalid argument")

	// ResourceExhausted is returned when a heap allocation fails, no TLS
	// slot is free, or the scheduler has no free hook to hand out.
	ResourceExhausted = errors.New("resource exhausted")

	// InvalidState is returned for a destroy on a non-exited thread, a
	// join on a non-child, or a set/get against a freed TLS key.
	InvalidState = errors.New("invalid state")

	// SchedulerRejected is returned when the scheduler refuses to accept
	// a thread.
	SchedulerRejected = errors.New("scheduler rejected thread")

	// TimedOut is never returned by the core; it is reserved for
	// higher-level timed variants (see pkg/primitives/timed.go).
	TimedOut = errors.New("timed out")
)

// Is reports whether err wraps target, a thin re-export of errors.Is so
// callers checking a threaderr sentinel don't need a second import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
