// Package sync provides the spinlock primitive the rest of this module is
// built on: a test-and-set mutex with an IRQ-save variant, plus a
// lock-class tag used by pkg/sync/locking to enforce the documented
// acquisition order. This plays the role gVisor's own pkg/sync plays for
// its consumers (pkg/sentry/mm, pkg/sentry/kernel, ...): a thin,
// always-imported wrapper that every other package in the module reaches
// for instead of touching sync/atomic or sync.Mutex directly.
package sync

import (
	"runtime"

	"github.com/talismancer/kernelcore/pkg/atomicbitops"
	"github.com/talismancer/kernelcore/pkg/irq"
	"github.com/talismancer/kernelcore/pkg/sync/locking"
)

// Spinlock is a test-and-set mutex. It never yields the OS thread; callers
// reachable from simulated interrupt context must use the *IRQSave methods,
// per the rule that any lock also taken from interrupt context must be
// acquired only via the IRQ-save variant.
type Spinlock struct {
	state atomicbitops.Uint32
	class *locking.MutexClass
}

const (
	unlocked = 0
	locked   = 1
)

// NewSpinlock returns an unlocked spinlock tagged with class, which may be
// nil to opt out of lock-order checking. A nil-class lock may still be
// taken while a ranked lock is held (primitives.CountingBarrier's mu is
// taken inside its wait condition, under the queue lock); such nesting is
// simply not checked.
func NewSpinlock(class *locking.MutexClass) *Spinlock {
	return &Spinlock{class: class}
}

// Lock acquires the spinlock without touching the interrupt-enable flag.
// Only legal on a path proven not reachable from interrupt context.
func (l *Spinlock) Lock(holder int64) {
	locking.AddGLock(l.class, holder)
	l.spin()
}

// Unlock releases the spinlock acquired by Lock.
func (l *Spinlock) Unlock(holder int64) {
	locking.DelGLock(l.class, holder)
	l.state.Store(unlocked)
}

// LockIRQSave disables interrupts, then acquires the spinlock, returning
// the saved interrupt state for UnlockIRQRestore. This is the only safe
// way to take a lock that an interrupt handler might also take.
func (l *Spinlock) LockIRQSave(holder int64) irq.State {
	s := irq.Save()
	locking.AddGLock(l.class, holder)
	l.spin()
	return s
}

// UnlockIRQRestore releases the spinlock and restores interrupts to the
// state saved by the matching LockIRQSave.
func (l *Spinlock) UnlockIRQRestore(holder int64, saved irq.State) {
	locking.DelGLock(l.class, holder)
	l.state.Store(unlocked)
	irq.Restore(saved)
}

// spin is the test-and-set loop with a pause hint (Gosched): a
// test-and-set mutex with a pause hint does not yield in the scheduling
// sense. Gosched does not park the goroutine on a run queue the way a
// blocking primitive would; it only gives the runtime a chance to run
// another goroutine on this OS thread while this one spins, the closest
// portable stand-in for a `pause` instruction.
func (l *Spinlock) spin() {
	for !l.state.CompareAndSwap(unlocked, locked) {
		runtime.Gosched()
	}
}
