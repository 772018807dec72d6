package waitqueue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// waiter is a minimal stand-in for pkg/kernel.Task: just enough state for
// the sleep/wake protocol to exercise, without pulling in the kernel
// package (this suite tests the queue in isolation, the way
// nk_thread_queue_t's own tests would never need a real TCB).
type waiter struct {
	node    Node
	awake   bool
	waiting bool
}

func newWaiter() *waiter {
	w := &waiter{}
	w.node.Value = w
	return w
}

func onWakeMarkAwake(n *Node) {
	w := n.Value.(*waiter)
	w.awake = true
}

func TestSleepExtendedFastPath(t *testing.T) {
	q := New()
	w := newWaiter()

	cond := func() bool { return true }
	parked := false
	q.SleepExtended(1, &w.node, cond, func() { w.waiting = true }, func(unlock func()) {
		parked = true
		unlock()
	})

	require.False(t, parked, "a true condition must never reach park")
	require.False(t, w.waiting, "onEnqueue must not run on the fast path")
	require.Nil(t, w.node.Queue(), "a fast-path waiter is never linked onto the queue")
	require.True(t, q.Empty(1))
}

func TestSleepExtendedParksAndLinks(t *testing.T) {
	q := New()
	w := newWaiter()

	var unlockCalled bool
	cond := func() bool { return false }
	q.SleepExtended(1, &w.node, cond, func() { w.waiting = true }, func(unlock func()) {
		require.Equal(t, q, w.node.Queue(), "node must be linked before park is invoked")
		unlock()
		unlockCalled = true
	})

	require.True(t, w.waiting)
	require.True(t, unlockCalled)
}

func TestWakeOneFIFO(t *testing.T) {
	q := New()
	var order []int
	for i := 0; i < 3; i++ {
		n := &Node{Value: i}
		q.SleepExtended(1, n, nil, func() {}, func(unlock func()) { unlock() })
	}
	onWake := func(n *Node) { order = append(order, n.Value.(int)) }
	q.WakeOne(1, onWake)
	q.WakeOne(1, onWake)
	q.WakeOne(1, onWake)

	require.Equal(t, []int{0, 1, 2}, order, "wake_one must drain in FIFO order")
	require.True(t, q.Empty(1))
}

func TestWakeAllEmptyIsNoOp(t *testing.T) {
	q := New()
	called := false
	q.WakeAll(1, func(n *Node) { called = true })
	require.False(t, called, "wake_all on an empty queue must invoke onWake zero times")
}

func TestWakeAllDrainsEveryWaiter(t *testing.T) {
	q := New()
	const n = 16
	waiters := make([]*waiter, n)
	for i := range waiters {
		waiters[i] = newWaiter()
		q.SleepExtended(1, &waiters[i].node, nil, func() {}, func(unlock func()) { unlock() })
	}

	q.WakeAll(1, onWakeMarkAwake)

	for i, w := range waiters {
		require.True(t, w.awake, "waiter %d was not woken by wake_all", i)
		require.Nil(t, w.node.Queue())
	}
	require.True(t, q.Empty(1))
}

func TestRemoveDetachesNode(t *testing.T) {
	q := New()
	w := newWaiter()
	q.SleepExtended(1, &w.node, nil, func() {}, func(unlock func()) { unlock() })

	require.Equal(t, q, w.node.Queue())
	Remove(1, &w.node)
	require.Nil(t, w.node.Queue())
	require.True(t, q.Empty(1))

	// Removing an already-detached node, or one never enqueued, is a no-op.
	Remove(1, &w.node)
	other := &Node{}
	Remove(1, other)
}

func TestConcurrentWakeOneDeliversExactlyOnce(t *testing.T) {
	q := New()
	const n = 64
	waiters := make([]*waiter, n)
	for i := range waiters {
		waiters[i] = newWaiter()
		q.SleepExtended(1, &waiters[i].node, nil, func() {}, func(unlock func()) { unlock() })
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	woken := map[*waiter]bool{}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(holder int64) {
			defer wg.Done()
			q.WakeOne(holder, func(nd *Node) {
				w := nd.Value.(*waiter)
				mu.Lock()
				woken[w] = true
				mu.Unlock()
			})
		}(int64(i))
	}
	wg.Wait()

	require.True(t, q.Empty(1))
	require.Len(t, woken, n, "every waiter must be woken exactly once across concurrent wake_one callers")
}
