// Package goscheduler is the reference implementation of
// pkg/kernel.Scheduler. It plays the external collaborator's role the
// thread core only ever calls through a fixed contract:
// make_runnable/awaken/sleep/exit/yield/kick_cpu/map_threads/
// current_thread.
//
// There is no real local APIC or per-core runqueue here. A "CPU" is one
// OS thread pinned with runtime.LockOSThread (see platform_linux.go and
// platform_other.go), the same
// stand-in gVisor's pkg/sentry/platform/ptrace uses a dedicated stub OS
// thread for; "kick_cpu" is a real signal delivered to that pinned
// thread so it is a genuine asynchronous interruption rather than a
// channel send the target thread could simply be slow to observe. Task
// bodies themselves run as ordinary goroutines (pkg/kernel.Start spawns
// one per thread); parking and waking a thread is implemented with a
// buffered, capacity-1 channel per Task — a park token, conceptually the
// same role TinyGo's internal/task.Futex plays for its Wait/Wake/WakeAll,
// shrunk to the single-waiter case the thread core's contract needs.
package goscheduler

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"github.com/talismancer/kernelcore/pkg/kernel"
	"github.com/talismancer/kernelcore/pkg/log"
)

// hook is the concrete type behind kernel.Hook for this Scheduler.
type hook struct {
	// parkCh holds at most one token: Sleep receives from it to block,
	// Awaken sends to it (non-blocking, buffer 1) to wake. The buffer
	// means a wake that races ahead of the matching park is never lost — it simply sits in the channel until the
	// parking goroutine reaches its receive.
	parkCh chan struct{}
}

// Scheduler is the goroutine-backed reference Scheduler.
type Scheduler struct {
	cpus []*cpu

	mu      sync.Mutex
	current map[uint64]*kernel.Task // real goroutine id -> Task
}

// New returns a Scheduler simulating numCPUs CPUs, each a pinned OS
// thread (see startCPU in platform_linux.go / platform_other.go).
func New(numCPUs int) *Scheduler {
	if numCPUs < 1 {
		numCPUs = 1
	}
	s := &Scheduler{
		cpus:    make([]*cpu, numCPUs),
		current: make(map[uint64]*kernel.Task),
	}
	for i := range s.cpus {
		s.cpus[i] = startCPU(i)
	}
	return s
}

// NumCPUs implements kernel.Scheduler.
func (s *Scheduler) NumCPUs() int {
	return len(s.cpus)
}

// ThreadStateInit implements kernel.Scheduler.
func (s *Scheduler) ThreadStateInit(t *kernel.Task, isBSP bool) (kernel.Hook, error) {
	return &hook{parkCh: make(chan struct{}, 1)}, nil
}

// ThreadStateDeinit implements kernel.Scheduler.
func (s *Scheduler) ThreadStateDeinit(t *kernel.Task) {}

// ThreadPostCreate implements kernel.Scheduler.
func (s *Scheduler) ThreadPostCreate(t *kernel.Task) error { return nil }

// ThreadPreDestroy implements kernel.Scheduler.
func (s *Scheduler) ThreadPreDestroy(t *kernel.Task) {}

// MakeRunnable implements kernel.Scheduler. There is no real runqueue to
// insert into: this module's "runqueue" is the Go runtime's own, and t's
// goroutine is started separately by pkg/kernel.Start. MakeRunnable's
// only remaining duty is recording which simulated CPU a freshly started
// thread belongs to, which pkg/kernel already does before calling it;
// this call is a deliberate no-op kept for interface-contract fidelity.
func (s *Scheduler) MakeRunnable(t *kernel.Task, cpuIdx int, immediate bool) {}

// Awaken implements kernel.Scheduler: sends a (non-blocking, never lost)
// wake token to t's park channel.
func (s *Scheduler) Awaken(t *kernel.Task, cpuIdx int) error {
	h, ok := t.Hook().(*hook)
	if !ok || h == nil {
		return fmt.Errorf("thread %d has no scheduler hook", t.ID())
	}
	select {
	case h.parkCh <- struct{}{}:
	default:
		// Already has a pending token: a double-wake collapses to one,
		// which is safe because the waiter only ever needs one token to
		// stop blocking.
	}
	return nil
}

// Sleep implements kernel.Scheduler. It resolves the calling goroutine's
// Task through the Bind mapping, calls unlock (the "release queue_lock
// only after descheduling" hand-off) and blocks until Awaken delivers a
// token. A goroutine with no bound Task, or a Task without this
// Scheduler's hook, returns right after unlock without blocking.
func (s *Scheduler) Sleep(unlock func()) {
	t := s.taskByHook() // best-effort; see blockOn
	blockOn(t, unlock)
}

// Exit implements kernel.Scheduler: the calling goroutine is never
// resumed, so Exit releases the lock and ends the goroutine with
// runtime.Goexit (deferred calls, such as pkg/kernel.runEntry's Unbind,
// still run).
func (s *Scheduler) Exit(unlock func()) {
	unlock()
	runtime.Goexit()
}

// Yield implements kernel.Scheduler: release unlock, then give the Go
// runtime a chance to run other goroutines before resuming. There is no
// real runqueue reordering to do — runtime.Gosched already gives every
// other runnable goroutine a turn, which is the observable effect a
// voluntary yield is contracted to have.
func (s *Scheduler) Yield(unlock func()) {
	unlock()
	runtime.Gosched()
}

// KickCPU implements kernel.Scheduler by delivering a real signal to the
// OS thread pinned to cpuIdx on Linux; see platform_linux.go (on other
// platforms the kick is a logged no-op, see platform_other.go).
func (s *Scheduler) KickCPU(cpuIdx int) {
	if cpuIdx < 0 || cpuIdx >= len(s.cpus) {
		return
	}
	s.cpus[cpuIdx].kick()
}

// MapThreads implements kernel.Scheduler but enumerates nothing: this
// Scheduler keeps no thread registry, so fn is never called and a
// warning is logged instead. kernel.Kernel.MapThreads walks the Kernel's
// own registry of live threads.
func (s *Scheduler) MapThreads(cpuIdx int, all bool, fn func(t *kernel.Task)) {
	log.Warningf("goscheduler: MapThreads called directly; prefer kernel.Kernel.MapThreads")
}

// Current implements kernel.Scheduler via a best-effort real-goroutine-id
// lookup, in the spirit of the goroutineid idiom: parse "goroutine N ..."
// out of a small runtime.Stack() capture rather than maintaining a true
// goroutine-local. Bind/Unbind register and remove the mapping around a
// thread's running window.
func (s *Scheduler) Current() *kernel.Task {
	id := goroutineID()
	s.mu.Lock()
	t := s.current[id]
	s.mu.Unlock()
	return t
}

// Bind associates the calling goroutine with t, so a later Sleep/Yield/
// Current call made by this same goroutine resolves back to t. pkg/kernel
// recognizes this optional interface (the way io's optional Closer/Seeker
// checks work) and calls Bind once at the top of the goroutine it spawns
// to run t's entry function, and Unbind once that goroutine is done.
func (s *Scheduler) Bind(t *kernel.Task) {
	s.mu.Lock()
	s.current[goroutineID()] = t
	s.mu.Unlock()
}

// Unbind removes the calling goroutine's association, the counterpart to
// Bind.
func (s *Scheduler) Unbind() {
	s.mu.Lock()
	delete(s.current, goroutineID())
	s.mu.Unlock()
}

// taskByHook resolves the calling goroutine's Task via the current map;
// Sleep needs this to decide which park channel to block on.
func (s *Scheduler) taskByHook() *kernel.Task {
	return s.Current()
}

func blockOn(t *kernel.Task, unlock func()) {
	if t == nil {
		unlock()
		return
	}
	h, ok := t.Hook().(*hook)
	if !ok || h == nil {
		unlock()
		return
	}
	unlock()
	<-h.parkCh
}

// goroutineID parses the calling goroutine's id out of a runtime.Stack
// capture, the same trick debug-only goroutine-local-storage shims use.
// It is intentionally not exported: callers that need "my own Task"
// should prefer the self parameter their entry function already
// received.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
