package kernel

import (
	"github.com/talismancer/kernelcore/pkg/log"
	"github.com/talismancer/kernelcore/pkg/waitqueue"
)

// SleepOn parks self on wq unconditionally. Equivalent to
// SleepOnCondition with a nil condition.
func (k *Kernel) SleepOn(self *Task, wq *waitqueue.WaitQueue) {
	k.sleepOnExtended(self, wq, nil)
}

// SleepOnCondition parks self on wq unless cond already holds (the
// extended sleep-on-with-condition primitive) — the building block
// pkg/primitives builds condvar/semaphore/barrier waits from.
func (k *Kernel) SleepOnCondition(self *Task, wq *waitqueue.WaitQueue, cond func() bool) {
	k.sleepOnExtended(self, wq, cond)
}

func (k *Kernel) sleepOnExtended(self *Task, wq *waitqueue.WaitQueue, cond func() bool) {
	holder := int64(self.id)
	self.waitNode.Value = self
	wq.SleepExtended(holder, &self.waitNode, cond,
		func() { self.setStatus(holder, StatusWaiting) },
		func(unlock func()) { k.sched.Sleep(unlock) },
	)
}

// KickCPU delivers kick_cpu directly, for callers — tests,
// cmd/threadctl's "kick" subcommand — that want to nudge a simulated CPU
// without going through a wake path.
func (k *Kernel) KickCPU(cpu int) {
	k.sched.KickCPU(cpu)
}

// Yield voluntarily reschedules self. It is the only suspension point
// besides sleep_extended and exit. Used directly by higher-level
// primitives that poll a predicate across a real clock
// (pkg/primitives/timed.go) rather than blocking on a wait queue.
func (k *Kernel) Yield(self *Task) {
	k.sched.Yield(func() {})
}

// WakeOne wakes at most one waiter on wq. holder identifies the calling
// thread of control for lock-order bookkeeping; an interrupt handler
// waking a queue passes a token stable across its invocations instead
// of a Task id.
func (k *Kernel) WakeOne(holder int64, wq *waitqueue.WaitQueue) {
	wq.WakeOne(holder, k.wakeNode)
}

// WakeAll wakes every waiter on wq. A no-op on an empty queue (R2).
func (k *Kernel) WakeAll(holder int64, wq *waitqueue.WaitQueue) {
	wq.WakeAll(holder, k.wakeNode)
}

// wakeNode is the onWake callback shared by WakeOne/WakeAll: it recovers
// the Task that owns n (stashed in Node.Value at sleep time), flips it
// WAITING->RUNNABLE, and asks the scheduler to place and kick it —
// dequeue victims, call scheduler awaken(tcb, cpu) for each, then
// kick_cpu(cpu). A malformed node with no owning Task is logged and
// skipped rather than panicking, so one bad wakeup doesn't take the rest
// of the queue down with it.
func (k *Kernel) wakeNode(n *waitqueue.Node) {
	t, ok := n.Value.(*Task)
	if !ok || t == nil {
		log.Warningf("wake: queue node carried no owning thread")
		return
	}
	t.setStatus(int64(t.id), StatusRunnable)
	cpu := t.currentCPU
	if err := k.sched.Awaken(t, cpu); err != nil {
		log.Warningf("wake: scheduler awaken thread %d: %v", t.id, err)
		return
	}
	k.sched.KickCPU(cpu)
}
