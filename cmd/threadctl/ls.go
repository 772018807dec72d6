package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/subcommands"

	kcontext "github.com/talismancer/kernelcore/pkg/context"
	"github.com/talismancer/kernelcore/pkg/kernel"
)

// lsCommand implements "thread ls": spawn n worker threads under a fresh
// bootstrap thread and print id/status/parent for each, 1:1 with the
// core's map_threads + per-thread accessors.
type lsCommand struct {
	n       int
	numCPUs int
}

func (*lsCommand) Name() string     { return "ls" }
func (*lsCommand) Synopsis() string { return "list threads created for this run" }
func (*lsCommand) Usage() string {
	return "ls [-n count] [-cpus count] - spawn count threads and list them\n"
}

func (c *lsCommand) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.n, "n", 4, "number of worker threads to spawn")
	f.IntVar(&c.numCPUs, "cpus", 1, "number of simulated CPUs")
}

func (c *lsCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	k, bsp := newKernel(c.numCPUs)
	bspHolder := int64(bsp.ID())

	for i := 0; i < c.n; i++ {
		child, err := k.Create(bsp, func(self *kernel.Task, _ any) any {
			time.Sleep(20 * time.Millisecond)
			return nil
		}, nil, false, 0, kernel.AnyCPU)
		if err != nil {
			fmt.Printf("create worker %d: %v\n", i, err)
			return subcommands.ExitFailure
		}
		_ = child.SetName(bspHolder, fmt.Sprintf("worker-%d", i), k.Config())
		k.Start(bsp, child)
	}

	time.Sleep(5 * time.Millisecond)
	fmt.Printf("%-8s %-12s %-10s %s\n", "ID", "NAME", "STATUS", "PARENT")
	k.MapThreads(bspHolder, func(t *kernel.Task) {
		parent := "-"
		if pid, ok := t.ParentID(); ok {
			parent = fmt.Sprint(pid)
		}
		fmt.Printf("%-8d %-12s %-10s %s\n", t.ID(), t.Name(bspHolder), t.Status(bspHolder), parent)
	})

	ctx := kcontext.Background().WithName("ls")
	if err := k.JoinAllChildren(ctx, bsp, nil); err != nil {
		fmt.Printf("join-all-children: %v\n", err)
		return subcommands.ExitFailure
	}

	return subcommands.ExitSuccess
}
