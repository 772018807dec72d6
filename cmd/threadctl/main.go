// Command threadctl is a small harness exercising the thread core's
// external interface (ls, join, kick and test subcommands; join spawns
// and joins its own worker rather than taking a thread id) through
// google/subcommands, the same
// library and Name/Synopsis/Usage/SetFlags/Execute shape runsc/cli and
// runsc/cmd use. The thread core keeps no state on disk, so every
// invocation boots a fresh in-process kernel (pkg/kernel.Kernel plus
// pkg/kernel/goscheduler.Scheduler) rather than attaching to a daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/talismancer/kernelcore/pkg/kernel"
	"github.com/talismancer/kernelcore/pkg/kernel/goscheduler"
	"github.com/talismancer/kernelcore/pkg/log"
)

var configPath = flag.String("config", "", "path to a TOML file overriding the default tunables")

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	subcommands.Register(&lsCommand{}, "")
	subcommands.Register(&joinCommand{}, "")
	subcommands.Register(&kickCommand{}, "")
	subcommands.Register(&testCommand{}, "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}

// newKernel builds a Kernel and its bootstrap (BSP) thread, the common
// setup every subcommand below needs. The returned Task is bound to the
// calling goroutine so Scheduler.Current() resolves it immediately,
// mirroring nk_thread_init's separate BSP bring-up step. Tunables come
// from -config when set, DefaultConfig otherwise.
func newKernel(numCPUs int) (*kernel.Kernel, *kernel.Task) {
	cfg, err := kernel.LoadConfig(*configPath)
	if err != nil {
		log.Warningf("threadctl: loading config %q: %v, using defaults", *configPath, err)
		cfg = kernel.DefaultConfig()
	}
	sched := goscheduler.New(numCPUs)
	k := kernel.New(cfg, sched)

	bsp, err := k.Create(nil, func(self *kernel.Task, _ any) any { return nil }, nil, true, 0, kernel.AnyCPU)
	if err != nil {
		log.Warningf("threadctl: creating BSP thread: %v", err)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	k.BindBSP(bsp)
	return k, bsp
}
