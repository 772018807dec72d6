package kernel_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/talismancer/kernelcore/pkg/kernel"
	"github.com/talismancer/kernelcore/pkg/waitqueue"
)

// TestScenarioBroadcastWithErrgroup is the broadcast end-to-end scenario
// from cmd/threadctl's "thread test broadcast", reimplemented here with
// errgroup.Group fanning out the waiting side: the test goroutine launches
// every thread, one errgroup goroutine per thread blocks on that thread's
// own signal, and Wait() reports the first failure (a thread that never woke) instead of
// every caller threading its own channel-and-select boilerplate.
func TestScenarioBroadcastWithErrgroup(t *testing.T) {
	const n = 24
	k, bsp := newTestKernel(t, 4)
	wq := waitqueue.New()

	gate := make(chan struct{})
	isOpen := func() bool {
		select {
		case <-gate:
			return true
		default:
			return false
		}
	}
	var g errgroup.Group
	for i := 0; i < n; i++ {
		woke := make(chan struct{})
		child, err := k.Create(bsp, func(self *kernel.Task, _ any) any {
			k.SleepOnCondition(self, wq, isOpen)
			close(woke)
			return nil
		}, nil, false, 0, kernel.AnyCPU)
		require.NoError(t, err)
		k.Start(bsp, child)

		g.Go(func() error {
			select {
			case <-woke:
				return nil
			case <-time.After(time.Second):
				return errTimeout
			}
		})
	}

	time.Sleep(10 * time.Millisecond)
	close(gate)
	k.WakeAll(int64(bsp.ID()), wq)

	require.NoError(t, g.Wait(), "every fanned-out waiter must observe its thread wake")
	require.True(t, wq.Empty(int64(bsp.ID())))
	require.NoError(t, k.JoinAllChildren(testCtx(), bsp, nil))
}

var errTimeout = errTimeoutType{}

type errTimeoutType struct{}

func (errTimeoutType) Error() string { return "thread never woke before timeout" }
