package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	kcontext "github.com/talismancer/kernelcore/pkg/context"
	"github.com/talismancer/kernelcore/pkg/kernel"
)

// joinCommand implements "join [-output n]": spawn a single worker
// thread whose output is n, then join it and print what came back,
// exercising join 1:1. It takes no thread id: every invocation boots a
// fresh kernel, so the only thread it can join is the worker it spawns.
type joinCommand struct {
	output int
}

func (*joinCommand) Name() string     { return "join" }
func (*joinCommand) Synopsis() string { return "spawn a worker and join it" }
func (*joinCommand) Usage() string {
	return "join [-output n] - spawn a worker returning n, then join it\n"
}

func (c *joinCommand) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.output, "output", 42, "value the worker thread returns")
}

func (c *joinCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	k, bsp := newKernel(1)

	child, err := k.Create(bsp, func(self *kernel.Task, input any) any {
		return input
	}, c.output, false, 0, kernel.AnyCPU)
	if err != nil {
		fmt.Printf("create: %v\n", err)
		return subcommands.ExitFailure
	}
	k.Start(bsp, child)

	ctx := kcontext.Background().WithName("join")
	var out any
	if err := k.Join(ctx, bsp, child, &out); err != nil {
		fmt.Printf("join: %v\n", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("thread %d exited with output %v\n", child.ID(), out)
	return subcommands.ExitSuccess
}
