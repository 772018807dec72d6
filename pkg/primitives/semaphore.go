package primitives

import (
	"github.com/talismancer/kernelcore/pkg/atomicbitops"
	"github.com/talismancer/kernelcore/pkg/kernel"
	"github.com/talismancer/kernelcore/pkg/waitqueue"
)

// Semaphore is a counting semaphore: count, lock, wait_queue. Where
// original_source guards count with a single lock held across the whole
// check-decrement sequence, this version guards it with a CAS loop
// instead, so the actual park only ever happens via
// pkg/kernel.SleepOnCondition's lost-wakeup-safe protocol rather than
// under a second, nested lock — P/V's observable behavior is unchanged;
// only the internal locking mechanism differs.
type Semaphore struct {
	count atomicbitops.Int64
	wq    *waitqueue.WaitQueue
}

// NewSemaphore returns a semaphore initialized to the given count.
func NewSemaphore(initial int64) *Semaphore {
	s := &Semaphore{wq: waitqueue.New()}
	s.count.Store(initial)
	return s
}

// tryAcquire attempts a single non-blocking decrement, returning whether
// it succeeded.
func (s *Semaphore) tryAcquire() bool {
	for {
		c := s.count.Load()
		if c <= 0 {
			return false
		}
		if s.count.CompareAndSwap(c, c-1) {
			return true
		}
	}
}

// P decrements the semaphore, blocking self until count > 0. The
// condition predicate passed to the extended sleep-on is mandatory here
// to eliminate lost wakeups: a V that increments count and wakes one
// waiter between this call's cond check and its park can never leave
// self parked forever.
func (s *Semaphore) P(k *kernel.Kernel, self *kernel.Task) {
	for {
		if s.tryAcquire() {
			return
		}
		k.SleepOnCondition(self, s.wq, func() bool { return s.count.Load() > 0 })
		// Another P may have won the race for the token that woke self;
		// loop back around rather than assuming success.
	}
}

// TryP attempts to decrement the semaphore without blocking, for callers
// (for example pkg/primitives/timed.go) layering a deadline over P.
func (s *Semaphore) TryP() bool {
	return s.tryAcquire()
}

// V increments the semaphore and wakes one waiter.
func (s *Semaphore) V(k *kernel.Kernel, holder int64) {
	s.count.Add(1)
	k.WakeOne(holder, s.wq)
}
