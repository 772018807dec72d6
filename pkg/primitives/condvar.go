// Package primitives implements higher-level blocking primitives —
// condition variable, counting semaphore, barrier — each built from a
// wait queue plus a counter and a lock. Every type here is a thin
// composition over pkg/kernel's thread-queue operations and
// pkg/waitqueue; none of them add a new suspension point beyond
// sleep_extended, yield and exit.
package primitives

import (
	"github.com/talismancer/kernelcore/pkg/kernel"
	ksync "github.com/talismancer/kernelcore/pkg/sync"
	"github.com/talismancer/kernelcore/pkg/waitqueue"
)

// CondVar is a condition variable: wait queue plus the standard
// release-sleep-reacquire protocol.
type CondVar struct {
	wq *waitqueue.WaitQueue
}

// NewCondVar returns an empty condition variable.
func NewCondVar() *CondVar {
	return &CondVar{wq: waitqueue.New()}
}

// Wait releases mu, sleeps on cv, and reacquires mu before returning —
// the standard three-step release-sleep-reacquire protocol. Callers must
// hold mu (locked with holder) before calling Wait, the same discipline
// every condvar in this corpus's ecosystem expects of its caller.
func (cv *CondVar) Wait(k *kernel.Kernel, self *kernel.Task, mu *ksync.Spinlock, holder int64) {
	mu.Unlock(holder)
	k.SleepOn(self, cv.wq)
	mu.Lock(holder)
}

// Signal wakes at most one waiter (signal = wake_one(cv)).
func (cv *CondVar) Signal(k *kernel.Kernel, holder int64) {
	k.WakeOne(holder, cv.wq)
}

// Broadcast wakes every waiter (broadcast = wake_all(cv)).
func (cv *CondVar) Broadcast(k *kernel.Kernel, holder int64) {
	k.WakeAll(holder, cv.wq)
}
