// Package kernel implements the thread control block and its lifecycle:
// the per-thread TCB, create/start/join/exit, the TLS slot allocator,
// and the thin thread-queue operations built on pkg/waitqueue. It plays
// the role gVisor's pkg/sentry/kernel.Task plays for its consumers —
// ThreadID and Task are named to match that convention directly.
package kernel

import (
	"fmt"

	"github.com/talismancer/kernelcore/pkg/errors/threaderr"
	"github.com/talismancer/kernelcore/pkg/kernel/arch"
	"github.com/talismancer/kernelcore/pkg/waitqueue"
)

// ThreadID is a monotonically assigned, process-wide unique thread
// identifier (ThreadId).
type ThreadID uint64

// Status is a Task's position in the state machine:
//
//	INIT -> RUNNABLE <-> RUNNING <-> WAITING
//	any -> EXITED -> REAPED
type Status int32

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusInit:
		return "INIT"
	case StatusRunnable:
		return "RUNNABLE"
	case StatusRunning:
		return "RUNNING"
	case StatusWaiting:
		return "WAITING"
	case StatusExited:
		return "EXITED"
	case StatusReaped:
		return "REAPED"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

const (
	StatusInit Status = iota
	StatusRunnable
	StatusRunning
	StatusWaiting
	StatusExited
	StatusReaped
)

// EntryFunc is a thread's body. self is the Task running it (Go has no
// implicit thread-local "current thread," so — unlike
// original_source's get_cur_thread() — callers that need "myself"
// receive it directly as an argument, the same way a worker-pool
// goroutine in this corpus receives its own state rather than reaching
// for a global). input is the value given to Create; the return value
// becomes the thread's output, readable by a joiner.
type EntryFunc func(self *Task, input any) any

// Task is the thread control block (TCB).
type Task struct {
	id ThreadID

	mu taskMutex // guards name, status, refcount, output, parent, children

	name   string
	status Status

	entry EntryFunc
	input any

	output any

	stackBytes int
	boundCPU   int // -1 = any
	currentCPU int

	parent   *Task
	children map[ThreadID]*Task

	// waitNode is this Task's own embedded link (WaitNode),
	// used when this Task is itself parked on some other WaitQueue (for
	// example a joiner sleeping on a child's exitQueue, or a thread
	// sleeping on a condvar/semaphore queue).
	waitNode waitqueue.Node

	// exitQueue is this Task's own wait queue ("per-thread
	// wait queue (for joiners)"), woken when this Task transitions to
	// EXITED.
	exitQueue *waitqueue.WaitQueue

	refcount int32

	tlsValues []any
	tlsTable  *tlsTable // shared process-wide TLS slot table, see tls.go

	// ctx is the simulated trampoline/register state (see
	// pkg/kernel/arch): Create installs an all-zero entry Context and
	// ForkCurrent gives the child a PrepareForkStack clone of its
	// parent's. runEntry drives the call to entry directly rather than
	// unwinding through ctx, and input is not stored in it.
	ctx *arch.Context

	hook Hook

	detached bool

	sched Scheduler
}

// ID returns this Task's ThreadID.
func (t *Task) ID() ThreadID {
	return t.id
}

// Name returns this Task's human name.
func (t *Task) Name(holder int64) string {
	t.mu.Lock(holder)
	defer t.mu.Unlock(holder)
	return t.name
}

// Status returns this Task's current status.
func (t *Task) Status(holder int64) Status {
	t.mu.Lock(holder)
	defer t.mu.Unlock(holder)
	return t.status
}

// ParentID returns the ThreadID of this Task's parent, and false if it
// has none (the bootstrap thread). Mirrors original_source's
// nk_get_parent_tid.
func (t *Task) ParentID() (ThreadID, bool) {
	if t.parent == nil {
		return 0, false
	}
	return t.parent.id, true
}

// BoundCPU returns the CPU this Task is pinned to, or -1 for "any".
func (t *Task) BoundCPU() int {
	return t.boundCPU
}

// CurrentCPU returns the CPU this Task last ran or was placed on.
func (t *Task) CurrentCPU() int {
	return t.currentCPU
}

// Hook returns the opaque scheduler-owned state ThreadStateInit attached
// to this Task. Only the Scheduler implementation that created it is
// expected to type-assert the concrete type back out.
func (t *Task) Hook() Hook {
	return t.hook
}

// SetName sets this Task's name, enforcing Config.MaxNameLen the way
// the original's nk_thread_name validates MAX_NAME_LEN.
func (t *Task) SetName(holder int64, name string, cfg Config) error {
	if len(name) > cfg.MaxNameLen {
		return fmt.Errorf("%w: name longer than %d bytes", threaderr.InvalidArgument, cfg.MaxNameLen)
	}
	t.mu.Lock(holder)
	t.name = name
	t.mu.Unlock(holder)
	return nil
}

func (t *Task) setStatus(holder int64, s Status) {
	t.mu.Lock(holder)
	t.status = s
	t.mu.Unlock(holder)
}

// refIncr/refDecr implement the refcount half of invariant I3: a Task's
// refcount starts at 2 for a joinable thread (one self-reference, one
// parent reference) or 1 for a detached thread, and reaches zero only via
// detach/join or an explicit extra reference being dropped.
func (t *Task) refIncr(holder int64) {
	t.mu.Lock(holder)
	t.refcount++
	t.mu.Unlock(holder)
}

func (t *Task) refDecr(holder int64) int32 {
	t.mu.Lock(holder)
	t.refcount--
	n := t.refcount
	t.mu.Unlock(holder)
	return n
}

// cloneArchContext is used by ForkCurrent; kept as a method so Task owns
// the only place this module touches pkg/kernel/arch directly.
func (t *Task) cloneArchContext(parent *arch.Context) *arch.Context {
	return arch.PrepareForkStack(parent)
}
