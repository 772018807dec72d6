package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

// kickCommand implements "thread kick <cpu>": deliver kick_cpu to one
// simulated CPU directly, exercising KickCPU outside of a wake path.
type kickCommand struct {
	numCPUs int
}

func (*kickCommand) Name() string     { return "kick" }
func (*kickCommand) Synopsis() string { return "kick a simulated CPU" }
func (*kickCommand) Usage() string {
	return "kick [-cpus count] <cpu> - deliver kick_cpu to <cpu>\n"
}

func (c *kickCommand) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.numCPUs, "cpus", 2, "number of simulated CPUs")
}

func (c *kickCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	var cpu int
	if _, err := fmt.Sscanf(f.Arg(0), "%d", &cpu); err != nil {
		fmt.Printf("invalid cpu index %q: %v\n", f.Arg(0), err)
		return subcommands.ExitUsageError
	}
	if cpu < 0 || cpu >= c.numCPUs {
		fmt.Printf("cpu %d out of range [0,%d)\n", cpu, c.numCPUs)
		return subcommands.ExitFailure
	}

	k, _ := newKernel(c.numCPUs)
	k.KickCPU(cpu)

	fmt.Printf("kicked cpu %d\n", cpu)
	return subcommands.ExitSuccess
}
