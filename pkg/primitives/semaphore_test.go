package primitives_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/talismancer/kernelcore/pkg/kernel"
	"github.com/talismancer/kernelcore/pkg/primitives"
)

func TestSemaphoreTryPNonBlocking(t *testing.T) {
	sem := primitives.NewSemaphore(1)
	require.True(t, sem.TryP())
	require.False(t, sem.TryP(), "a second TryP on a single-token semaphore must fail without blocking")
}

func TestSemaphorePBlocksUntilV(t *testing.T) {
	k, bsp := newTestKernel(t, 2)
	sem := primitives.NewSemaphore(0)

	acquired := make(chan struct{})
	child, err := k.Create(bsp, func(self *kernel.Task, _ any) any {
		sem.P(k, self)
		close(acquired)
		return nil
	}, nil, false, 0, kernel.AnyCPU)
	require.NoError(t, err)
	k.Start(bsp, child)

	select {
	case <-acquired:
		t.Fatal("P returned before V was ever called")
	case <-time.After(30 * time.Millisecond):
	}

	sem.V(k, int64(bsp.ID()))

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("P never returned after V")
	}
	require.NoError(t, k.Join(testCtx(), bsp, child, nil))
}

func TestSemaphoreOnlyAdmitsCountConcurrentHolders(t *testing.T) {
	k, bsp := newTestKernel(t, 4)
	const capacity = 3
	const workers = 12
	sem := primitives.NewSemaphore(capacity)

	var mu sync.Mutex
	inside := 0
	maxObserved := 0
	done := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		c, err := k.Create(bsp, func(self *kernel.Task, _ any) any {
			sem.P(k, self)
			mu.Lock()
			inside++
			if inside > maxObserved {
				maxObserved = inside
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			sem.V(k, int64(self.ID()))
			done <- struct{}{}
			return nil
		}, nil, false, 0, kernel.AnyCPU)
		require.NoError(t, err)
		k.Start(bsp, c)
	}

	for i := 0; i < workers; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d/%d workers finished", i, workers)
		}
	}
	require.LessOrEqual(t, maxObserved, capacity, "semaphore admitted more concurrent holders than its count")
	require.NoError(t, k.JoinAllChildren(testCtx(), bsp, nil))
}
