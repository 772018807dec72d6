package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/subcommands"

	"github.com/talismancer/kernelcore/pkg/atomicbitops"
	kcontext "github.com/talismancer/kernelcore/pkg/context"
	"github.com/talismancer/kernelcore/pkg/kernel"
	"github.com/talismancer/kernelcore/pkg/waitqueue"
)

// testCommand implements "thread test <scenario>": runs one of the
// named end-to-end scenarios the package test suites exercise directly
// and reports PASS/FAIL, giving the CLI surface a way to run the same
// checks without a Go toolchain.
type testCommand struct{}

func (*testCommand) Name() string     { return "test" }
func (*testCommand) Synopsis() string { return "run a named end-to-end scenario" }
func (*testCommand) Usage() string {
	return "test <pingpong|broadcast|lostwakeup|jointree> - run a scenario\n"
}

func (*testCommand) SetFlags(*flag.FlagSet) {}

var scenarios = map[string]func() error{
	"pingpong":   scenarioPingPong,
	"broadcast":  scenarioBroadcast,
	"lostwakeup": scenarioLostWakeup,
	"jointree":   scenarioJoinTree,
}

func (*testCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	name := f.Arg(0)
	scenario, ok := scenarios[name]
	if !ok {
		fmt.Printf("unknown scenario %q\n", name)
		return subcommands.ExitUsageError
	}
	if err := scenario(); err != nil {
		fmt.Printf("FAIL %s: %v\n", name, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("PASS %s\n", name)
	return subcommands.ExitSuccess
}

// scenarioPingPong: one thread sleeps on a predicate, a second thread
// sets the flag and wakes it with wake-one.
func scenarioPingPong() error {
	k, bsp := newKernel(2)
	wq := waitqueue.New()

	var ready atomicbitops.Uint32
	done := make(chan struct{})

	a, err := k.Create(bsp, func(self *kernel.Task, _ any) any {
		k.SleepOnCondition(self, wq, func() bool { return ready.Load() == 1 })
		close(done)
		return nil
	}, nil, false, 0, kernel.AnyCPU)
	if err != nil {
		return err
	}
	k.Start(bsp, a)

	time.Sleep(5 * time.Millisecond)
	ready.Store(1)
	k.WakeOne(int64(bsp.ID()), wq)

	select {
	case <-done:
	case <-time.After(time.Second):
		return fmt.Errorf("thread A never woke")
	}
	return k.JoinAllChildren(kcontext.Background().WithName("pingpong"), bsp, nil)
}

// scenarioBroadcast: 32 threads sleep on one gate; wake-all releases
// all of them and leaves the queue empty.
func scenarioBroadcast() error {
	const n = 32
	k, bsp := newKernel(4)
	wq := waitqueue.New()

	var gate atomicbitops.Uint32
	woke := make(chan struct{}, n)

	for i := 0; i < n; i++ {
		child, err := k.Create(bsp, func(self *kernel.Task, _ any) any {
			k.SleepOnCondition(self, wq, func() bool { return gate.Load() == 1 })
			woke <- struct{}{}
			return nil
		}, nil, false, 0, kernel.AnyCPU)
		if err != nil {
			return err
		}
		k.Start(bsp, child)
	}

	time.Sleep(10 * time.Millisecond)
	gate.Store(1)
	k.WakeAll(int64(bsp.ID()), wq)

	for i := 0; i < n; i++ {
		select {
		case <-woke:
		case <-time.After(time.Second):
			return fmt.Errorf("only %d/%d threads woke", i, n)
		}
	}
	if !wq.Empty(int64(bsp.ID())) {
		return fmt.Errorf("queue not empty after wake_all")
	}
	return k.JoinAllChildren(kcontext.Background().WithName("broadcast"), bsp, nil)
}

// scenarioLostWakeup: the waker runs before the sleeper checks, so the
// sleeper's fast path must observe the already-true condition and never
// enqueue itself.
func scenarioLostWakeup() error {
	k, bsp := newKernel(1)
	wq := waitqueue.New()

	var count atomicbitops.Uint32
	count.Store(1) // waker already ran before the sleeper checks

	a, err := k.Create(bsp, func(self *kernel.Task, _ any) any {
		k.SleepOnCondition(self, wq, func() bool { return count.Load() > 0 })
		return nil
	}, nil, false, 0, kernel.AnyCPU)
	if err != nil {
		return err
	}
	k.Start(bsp, a)

	var out any
	if err := k.Join(kcontext.Background().WithName("lostwakeup"), bsp, a, &out); err != nil {
		return err
	}
	if !wq.Empty(int64(bsp.ID())) {
		return fmt.Errorf("sleeper enqueued despite already-true condition")
	}
	return nil
}

// scenarioJoinTree: 8 children each return their own id as output;
// join-all-children with a summing consumer must total their ids.
func scenarioJoinTree() error {
	k, bsp := newKernel(2)

	var sum int64
	for i := 0; i < 8; i++ {
		child, err := k.Create(bsp, func(self *kernel.Task, _ any) any {
			return int64(self.ID())
		}, nil, false, 0, kernel.AnyCPU)
		if err != nil {
			return err
		}
		k.Start(bsp, child)
	}

	var want int64
	k.MapThreads(int64(bsp.ID()), func(t *kernel.Task) {
		if _, ok := t.ParentID(); ok {
			want += int64(t.ID())
		}
	})

	if err := k.JoinAllChildren(kcontext.Background().WithName("jointree"), bsp, func(output any) {
		sum += output.(int64)
	}); err != nil {
		return err
	}
	if sum != want {
		return fmt.Errorf("consumer total = %d, want %d", sum, want)
	}
	return nil
}
