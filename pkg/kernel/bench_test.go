package kernel_test

import (
	"testing"

	"github.com/talismancer/kernelcore/pkg/kernel"
	"github.com/talismancer/kernelcore/pkg/kernel/goscheduler"
	"github.com/talismancer/kernelcore/pkg/waitqueue"
)

// BenchmarkCreateStartJoin measures thread create/start/join throughput,
// in the spirit of original_source's benchmark.c thread-churn benchmark
// (minus its UDP echo I/O harness, out of scope here).
func BenchmarkCreateStartJoin(b *testing.B) {
	cfg := kernel.DefaultConfig()
	sched := goscheduler.New(1)
	k := kernel.New(cfg, sched)
	bsp, err := k.Create(nil, func(self *kernel.Task, _ any) any { return nil }, nil, true, 0, kernel.AnyCPU)
	if err != nil {
		b.Fatal(err)
	}
	k.BindBSP(bsp)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		child, err := k.Create(bsp, func(self *kernel.Task, _ any) any { return nil }, nil, false, 0, kernel.AnyCPU)
		if err != nil {
			b.Fatal(err)
		}
		k.Start(bsp, child)
		if err := k.Join(testCtx(), bsp, child, nil); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSleepWake measures sleep_extended/wake_one round-trip
// throughput, the fibers.c-style yield/wake microbenchmark's analog for
// the wait-queue path rather than raw context switches.
func BenchmarkSleepWake(b *testing.B) {
	cfg := kernel.DefaultConfig()
	sched := goscheduler.New(2)
	k := kernel.New(cfg, sched)
	bsp, err := k.Create(nil, func(self *kernel.Task, _ any) any { return nil }, nil, true, 0, kernel.AnyCPU)
	if err != nil {
		b.Fatal(err)
	}
	k.BindBSP(bsp)

	wq := waitqueue.New()
	release := make(chan struct{})
	woken := make(chan struct{})

	child, err := k.Create(bsp, func(self *kernel.Task, _ any) any {
		for i := 0; i < b.N; i++ {
			<-release
			k.SleepOn(self, wq)
			woken <- struct{}{}
		}
		return nil
	}, nil, false, 0, kernel.AnyCPU)
	if err != nil {
		b.Fatal(err)
	}
	k.Start(bsp, child)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		release <- struct{}{}
		for child.Status(int64(bsp.ID())) != kernel.StatusWaiting {
		}
		k.WakeOne(int64(bsp.ID()), wq)
		<-woken
	}
	b.StopTimer()

	if err := k.Join(testCtx(), bsp, child, nil); err != nil {
		b.Fatal(err)
	}
}
