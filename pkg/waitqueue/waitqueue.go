// Package waitqueue implements the FIFO wait queue primitive that sits
// under every blocking primitive in this module: a spinlock-guarded
// list of parked waiters, plus the sleep/wake protocol that makes
// blocking correct in the presence of a concurrent waker.
//
// This package knows nothing about threads, schedulers or statuses — it is
// deliberately as generic as Nautilus's nk_thread_queue_t, which is just a
// nk_queue_t of wait_node's. pkg/kernel supplies the two callbacks
// (onEnqueue, onWake) that do the thread-specific parts (status transition,
// talking to the Scheduler), and pkg/primitives builds condition
// variables, semaphores and barriers directly on top of this package.
package waitqueue

import (
	"github.com/talismancer/kernelcore/pkg/atomicbitops"
	ksync "github.com/talismancer/kernelcore/pkg/sync"
	"github.com/talismancer/kernelcore/pkg/sync/locking"
)

// QueueLockClass is the lock-order rank every WaitQueue's internal spinlock
// is tagged with. Holding a queue-lock and a tcb-lock simultaneously is
// permitted only in that order; pkg/kernel's per-task lock is tagged
// with a class created after this one so pkg/sync/locking can catch a
// reversal in tests.
var QueueLockClass = locking.NewMutexClass("waitqueue")

// Node is a wait-queue link, embedded (by value or by pointer) in
// whatever the caller's "thread" type is. A Node belongs to at most one
// WaitQueue at a time (invariant I1/I3); Queue() reports which.
type Node struct {
	next, prev *Node
	queue      *WaitQueue

	// Value lets the embedder recover whatever owns this Node from inside
	// an onWake callback, the same way container/list.Element.Value does
	// for its intrusive list — cheaper than either an unsafe
	// container_of or a side index table for the embedder to maintain.
	Value any
}

// Queue reports the WaitQueue this node is currently parked on, or nil.
// Used by tests asserting invariant I3 (a TCB is on at most one queue).
func (n *Node) Queue() *WaitQueue {
	return n.queue
}

// WaitQueue is a FIFO of parked Nodes guarded by a spinlock.
type WaitQueue struct {
	lock       *ksync.Spinlock
	head, tail *Node
}

// New returns an empty wait queue.
func New() *WaitQueue {
	return &WaitQueue{lock: ksync.NewSpinlock(QueueLockClass)}
}

func (q *WaitQueue) pushBack(n *Node) {
	n.queue = q
	n.next, n.prev = nil, q.tail
	if q.tail != nil {
		q.tail.next = n
	} else {
		q.head = n
	}
	q.tail = n
}

func (q *WaitQueue) remove(n *Node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		q.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		q.tail = n.prev
	}
	n.next, n.prev, n.queue = nil, nil, nil
}

func (q *WaitQueue) popFront() *Node {
	n := q.head
	if n == nil {
		return nil
	}
	q.remove(n)
	return n
}

// Empty reports whether the queue currently has no waiters. Used by R2's
// "wake_all on an empty queue is a no-op" check.
func (q *WaitQueue) Empty(holder int64) bool {
	q.lock.Lock(holder)
	empty := q.head == nil
	q.lock.Unlock(holder)
	return empty
}

// SleepExtended implements the critical sleep protocol:
//
//  1. Take the queue lock.
//  2. Recheck cond; if true, release and return (the fast path that avoids
//     a lost wakeup when the waker already ran).
//  3. Otherwise call onEnqueue (while still holding the lock — this is
//     where the caller flips its thread's status to WAITING), link node
//     onto the queue, issue a full memory fence, then call park with an
//     unlock closure and return control of the lock to it.
//
// cond may be nil, equivalent to a cond that always returns false (plain
// Sleep). park is expected to be the caller's Scheduler.Sleep, which must
// call the supplied unlock exactly once and must not return until some
// later WakeOne/WakeAll call has removed node from this queue and invoked
// onWake for it: the scheduler releases the queue lock only after it has
// committed the context switch, expressed here as a closure instead of a
// raw lock handle so the Scheduler interface (pkg/kernel) never needs to
// import this package's lock type.
func (q *WaitQueue) SleepExtended(holder int64, node *Node, cond func() bool, onEnqueue func(), park func(unlock func())) {
	saved := q.lock.LockIRQSave(holder)

	if cond != nil && cond() {
		q.lock.UnlockIRQRestore(holder, saved)
		return
	}

	onEnqueue()
	q.pushBack(node)
	atomicbitops.FullFence()

	park(func() { q.lock.UnlockIRQRestore(holder, saved) })
}

// Sleep is SleepExtended with no condition: equivalent to
// nk_thread_queue_sleep, always parking.
func (q *WaitQueue) Sleep(holder int64, node *Node, onEnqueue func(), park func(unlock func())) {
	q.SleepExtended(holder, node, nil, onEnqueue, park)
}

// WakeOne dequeues at most one waiter and invokes onWake for it while the
// queue lock is still held, satisfying I6 ("while a WaitQueue's lock is
// held, no thread on that queue will be woken by another path") — onWake
// is the only path that can wake a node on this queue, and it runs
// serialized with any other Sleep/WakeOne/WakeAll call on the same queue.
// onWake must not block and must not re-enter this queue.
func (q *WaitQueue) WakeOne(holder int64, onWake func(n *Node)) {
	saved := q.lock.LockIRQSave(holder)
	n := q.popFront()
	if n != nil {
		onWake(n)
	}
	q.lock.UnlockIRQRestore(holder, saved)
}

// WakeAll dequeues every waiter and invokes onWake for each, in FIFO
// order, all while the queue lock is held, so dequeue/awaken/kick happen
// before the single lock release. A no-op on an empty queue (R2).
func (q *WaitQueue) WakeAll(holder int64, onWake func(n *Node)) {
	saved := q.lock.LockIRQSave(holder)
	for n := q.popFront(); n != nil; n = q.popFront() {
		onWake(n)
	}
	q.lock.UnlockIRQRestore(holder, saved)
}

// Remove takes node off whatever queue it is currently on, if any. Used
// by Destroy's defensive "remove from any queue it might still be on."
func Remove(holder int64, node *Node) {
	q := node.queue
	if q == nil {
		return
	}
	saved := q.lock.LockIRQSave(holder)
	if node.queue == q {
		q.remove(node)
	}
	q.lock.UnlockIRQRestore(holder, saved)
}
