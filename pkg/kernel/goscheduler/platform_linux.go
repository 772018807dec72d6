//go:build linux

package goscheduler

import (
	"runtime"
	"sync/atomic"

	"github.com/talismancer/kernelcore/pkg/irq"
	"golang.org/x/sys/unix"
)

// cpu is one simulated CPU: an OS thread locked via runtime.LockOSThread,
// grounded on the stub-thread-per-subprocess pattern in
// pkg/sentry/platform/ptrace/subprocess_linux.go — there, each stub is a
// real OS thread so ptrace and signal delivery target it precisely;
// here, each cpu is a real OS thread for the identical reason: kick()
// must be able to interrupt exactly this CPU and no other.
type cpu struct {
	id  int
	tid int32 // atomic; set once the pinned goroutine reports in
	wg  chan struct{}
}

// startCPU locks a fresh OS thread and records its kernel thread id so
// kick() can target it with a real signal.
func startCPU(id int) *cpu {
	c := &cpu{id: id, wg: make(chan struct{})}
	go func() {
		runtime.LockOSThread()
		atomic.StoreInt32(&c.tid, int32(unix.Gettid()))
		close(c.wg)
		// Park forever; this goroutine exists only to own a stable OS
		// thread identity for kick() to signal. Task bodies run on their
		// own goroutines elsewhere.
		select {}
	}()
	<-c.wg
	return c
}

// kick delivers KickSignal to this CPU's pinned OS thread via tgkill,
// the real-signal analog of the source's IPI-based kick_cpu.
func (c *cpu) kick() {
	tid := int(atomic.LoadInt32(&c.tid))
	if tid == 0 {
		return
	}
	sig := irq.KickSignal()
	if sig == 0 {
		return
	}
	_ = unix.Tgkill(unix.Getpid(), tid, unix.Signal(sig))
}
