package primitives_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/talismancer/kernelcore/pkg/kernel"
	"github.com/talismancer/kernelcore/pkg/primitives"
)

func TestBarrierReleasesOnceAllArrive(t *testing.T) {
	k, bsp := newTestKernel(t, 4)
	const n = 6
	b := primitives.NewBarrier(n)

	var before, after int32
	var mu sync.Mutex
	done := make(chan struct{}, n)

	for i := 0; i < n; i++ {
		c, err := k.Create(bsp, func(self *kernel.Task, _ any) any {
			mu.Lock()
			before++
			mu.Unlock()

			b.Arrive(k, self, int64(self.ID()))

			mu.Lock()
			after++
			mu.Unlock()
			done <- struct{}{}
			return nil
		}, nil, false, 0, kernel.AnyCPU)
		require.NoError(t, err)
		k.Start(bsp, c)
	}

	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("only %d/%d threads passed the barrier", i, n)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, int32(n), before)
	require.Equal(t, int32(n), after)
}

func TestBarrierIsReusableAcrossGenerations(t *testing.T) {
	k, bsp := newTestKernel(t, 4)
	const n = 4
	b := primitives.NewBarrier(n)

	for round := 0; round < 3; round++ {
		done := make(chan struct{}, n)
		for i := 0; i < n; i++ {
			c, err := k.Create(bsp, func(self *kernel.Task, _ any) any {
				b.Arrive(k, self, int64(self.ID()))
				done <- struct{}{}
				return nil
			}, nil, false, 0, kernel.AnyCPU)
			require.NoError(t, err)
			k.Start(bsp, c)
		}
		for i := 0; i < n; i++ {
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatalf("round %d: only %d/%d threads passed the barrier", round, i, n)
			}
		}
		require.NoError(t, k.JoinAllChildren(testCtx(), bsp, nil))
	}
}

func TestCountingBarrierReleasesOnceAllArrive(t *testing.T) {
	k, bsp := newTestKernel(t, 4)
	const n = 6
	b := primitives.NewCountingBarrier(n)

	var before, after int32
	var mu sync.Mutex
	done := make(chan struct{}, n)

	for i := 0; i < n; i++ {
		c, err := k.Create(bsp, func(self *kernel.Task, _ any) any {
			mu.Lock()
			before++
			mu.Unlock()

			b.Arrive(k, self, int64(self.ID()))

			mu.Lock()
			after++
			mu.Unlock()
			done <- struct{}{}
			return nil
		}, nil, false, 0, kernel.AnyCPU)
		require.NoError(t, err)
		k.Start(bsp, c)
	}

	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("only %d/%d threads passed the barrier", i, n)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, int32(n), before)
	require.Equal(t, int32(n), after)
	require.NoError(t, k.JoinAllChildren(testCtx(), bsp, nil))
}

// TestCountingBarrierAddGrowsTeamBeforeNextGeneration mirrors a GOMP team
// leader resizing team_barrier between parallel regions: Add changes how
// many arrivers the next generation waits for, and a generation already
// released is unaffected by a later Add.
func TestCountingBarrierAddGrowsTeamBeforeNextGeneration(t *testing.T) {
	k, bsp := newTestKernel(t, 4)
	b := primitives.NewCountingBarrier(2)

	run := func(n int) {
		done := make(chan struct{}, n)
		for i := 0; i < n; i++ {
			c, err := k.Create(bsp, func(self *kernel.Task, _ any) any {
				b.Arrive(k, self, int64(self.ID()))
				done <- struct{}{}
				return nil
			}, nil, false, 0, kernel.AnyCPU)
			require.NoError(t, err)
			k.Start(bsp, c)
		}
		for i := 0; i < n; i++ {
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatalf("only %d/%d threads passed the barrier", i, n)
			}
		}
	}

	run(2) // first generation: team of 2, as constructed

	b.Add(int64(bsp.ID()), 1) // grow the team to 3 before the next round
	run(3)

	require.NoError(t, k.JoinAllChildren(testCtx(), bsp, nil))
}
