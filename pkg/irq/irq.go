// Package irq models the local interrupt-enable flag that the source
// kernel's spinlocks save and restore. There is no real local APIC here, so
// "interrupts enabled" is the state of a process-wide atomic flag: a spinlock's
// IRQ-save variant clears it on lock and a matching IRQ-restore variant puts
// it back on unlock. pkg/kernel.RunInInterruptContext is the separate,
// goroutine-local stand-in for code that would run on an interrupt stack;
// this package does not gate whether that code runs, but any lock also
// reachable from inside a RunInInterruptContext call must be taken with the
// IRQ-save variant (P7), the same way real interrupt handlers must not take
// a lock that leaves interrupts enabled. On Linux and Darwin, Save and
// Restore also block and unblock, in the calling OS thread's signal mask
// (see irq_unix.go), the signal goscheduler.KickCPU delivers, after the
// source kernel's property that kick_cpu cannot preempt a thread with
// interrupts disabled; the atomic flag stays the sole source of truth.
package irq

import "sync/atomic"

// State is an opaque saved interrupt-enable bit, returned by Save and
// consumed by Restore. Modeled on TinyGo's runtime/interrupt.State, which
// plays the identical role around TinyGo's lockAtomics/unlockAtomics.
type State uint32

const (
	stateWasEnabled State = 1 << iota
)

// enabled is the per-process interrupt-enable flag, on every platform.
// Real kernels have this per-CPU; here one flag is shared by every
// simulated CPU. setMask (irq_unix.go / irq_other.go) only mirrors it into
// the calling OS thread's signal mask where the platform has one.
var enabled int32 = 1

// Save disables interrupts and returns the previous state so it can later
// be passed to Restore. Pairs with spinlock.LockIRQSave.
func Save() State {
	was := atomic.SwapInt32(&enabled, 0)
	setMask(false)
	var s State
	if was != 0 {
		s = stateWasEnabled
	}
	return s
}

// Restore re-enables interrupts iff they were enabled at the matching Save.
func Restore(s State) {
	if s&stateWasEnabled != 0 {
		atomic.StoreInt32(&enabled, 1)
		setMask(true)
	}
}

// Enabled reports whether interrupts are currently enabled, per the
// process-wide flag. Used by invariant checks (P7) in tests.
func Enabled() bool {
	return atomic.LoadInt32(&enabled) != 0
}
