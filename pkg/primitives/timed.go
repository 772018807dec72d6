package primitives

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/talismancer/kernelcore/pkg/errors/threaderr"
	"github.com/talismancer/kernelcore/pkg/kernel"
)

// TimedSemaphore layers a deadline over Semaphore.P. The thread core
// itself provides no cancellation and no timed sleep; a higher layer
// that wants one loops on a predicate across a real-time clock and
// yields instead. This is exactly that loop: poll TryP, yield, and
// recheck the deadline, paced by a rate.Limiter instead of a tight spin
// so a long-blocked acquirer doesn't burn a simulated CPU.
type TimedSemaphore struct {
	*Semaphore
	limiter *rate.Limiter
}

// NewTimedSemaphore returns a TimedSemaphore initialized to the given
// count, polling for availability at pollRate when blocked.
func NewTimedSemaphore(initial int64, pollRate rate.Limit) *TimedSemaphore {
	return &TimedSemaphore{
		Semaphore: NewSemaphore(initial),
		limiter:   rate.NewLimiter(pollRate, 1),
	}
}

// TryPBefore attempts to acquire the semaphore, returning threaderr.TimedOut
// if deadline passes first. ctx cancellation is observed between polls.
func (ts *TimedSemaphore) TryPBefore(ctx context.Context, k *kernel.Kernel, self *kernel.Task, deadline time.Time) error {
	for {
		if ts.Semaphore.TryP() {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: semaphore not available before deadline", threaderr.TimedOut)
		}
		if err := ts.limiter.Wait(ctx); err != nil {
			return err
		}
		k.Yield(self)
	}
}
