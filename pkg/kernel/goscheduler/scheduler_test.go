package goscheduler_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/talismancer/kernelcore/pkg/kernel"
	"github.com/talismancer/kernelcore/pkg/kernel/goscheduler"
)

// newBoundTask builds a real Kernel and a single bootstrap Task bound to
// the calling goroutine, giving these tests a *kernel.Task with a real
// scheduler-owned Hook without reaching into kernel package internals.
func newBoundTask(t *testing.T, numCPUs int) (*goscheduler.Scheduler, *kernel.Kernel, *kernel.Task) {
	t.Helper()
	s := goscheduler.New(numCPUs)
	k := kernel.New(kernel.DefaultConfig(), s)
	bsp, err := k.Create(nil, func(self *kernel.Task, _ any) any { return nil }, nil, true, 0, kernel.AnyCPU)
	require.NoError(t, err)
	k.BindBSP(bsp)
	return s, k, bsp
}

func TestNumCPUsClampsToOne(t *testing.T) {
	s := goscheduler.New(0)
	require.Equal(t, 1, s.NumCPUs())

	s = goscheduler.New(3)
	require.Equal(t, 3, s.NumCPUs())
}

func TestBindCurrentUnbind(t *testing.T) {
	s, _, bsp := newBoundTask(t, 1)
	require.Equal(t, bsp, s.Current(), "BindBSP must make Current resolve on the calling goroutine")

	done := make(chan struct{})
	go func() {
		defer close(done)
		require.Nil(t, s.Current(), "a fresh goroutine starts with no bound Task")
	}()
	<-done

	s.Unbind()
	require.Nil(t, s.Current(), "Unbind must remove the calling goroutine's Task")
}

func TestAwakenWithoutHookErrors(t *testing.T) {
	s := goscheduler.New(1)
	err := s.Awaken(&kernel.Task{}, 0)
	require.Error(t, err, "a Task with no scheduler hook cannot be awakened")
}

func TestKickCPUOutOfRangeIsNoOp(t *testing.T) {
	s := goscheduler.New(1)
	require.NotPanics(t, func() {
		s.KickCPU(-1)
		s.KickCPU(99)
	})
}

func TestSleepAwakenRoundTrip(t *testing.T) {
	s, k, bsp := newBoundTask(t, 1)

	child, err := k.Create(bsp, func(self *kernel.Task, _ any) any { return nil }, nil, false, 0, kernel.AnyCPU)
	require.NoError(t, err)

	sleeping := make(chan struct{})
	woke := make(chan struct{})
	go func() {
		s.Bind(child)
		defer s.Unbind()
		close(sleeping)
		s.Sleep(func() {})
		close(woke)
	}()

	<-sleeping
	// Give Sleep's blockOn a moment to actually park on the channel
	// before Awaken sends the token.
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.Awaken(child, 0))

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("Sleep never returned after Awaken")
	}
}
