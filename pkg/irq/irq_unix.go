//go:build linux || darwin

package irq

import (
	"golang.org/x/sys/unix"
)

// kickSignal is the real signal golang.org/x/sys/unix blocks/unblocks to
// back the interrupt-enable flag on Unix. SIGURG is used because the Go
// runtime already reserves it for internal preemption and guarantees it is
// otherwise unused by user code, the same way gVisor's ptrace platform
// reserves a signal to interrupt a stopped tracee
// (pkg/sentry/platform/ptrace/subprocess_linux.go).
const kickSignal = unix.SIGURG

// setMask blocks or unblocks kickSignal on the calling OS thread. This is
// per-"CPU" state only when the caller of Save/Restore is locked to its OS
// thread (runtime.LockOSThread). goscheduler locks each simulated CPU's
// driver goroutine, but those goroutines do not call Save/Restore; Task
// goroutines, which reach Save/Restore through spinlocks, are not locked.
//
// Failures are deliberately ignored: this is best-effort hardening of the
// interrupt-disable window, not the source of truth for it (the atomic
// flag in irq.go is). A sandbox without permission to adjust signal masks
// still gets correct, merely not signal-hardened, behavior.
func setMask(enable bool) {
	var set unix.Sigset_t
	set.Val[0] = 1 << (uint(kickSignal) - 1)
	if enable {
		unix.PthreadSigmask(unix.SIG_UNBLOCK, &set, nil)
	} else {
		unix.PthreadSigmask(unix.SIG_BLOCK, &set, nil)
	}
}

// KickSignal returns the signal goscheduler's Unix backend delivers to kick
// a pinned OS thread; exported so goscheduler can install a no-op handler
// for it without this package and goscheduler needing to agree on the
// signal number out of band.
func KickSignal() uint32 {
	return uint32(kickSignal)
}
