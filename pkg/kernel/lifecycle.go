package kernel

import (
	"fmt"

	"github.com/talismancer/kernelcore/pkg/atomicbitops"
	kcontext "github.com/talismancer/kernelcore/pkg/context"
	"github.com/talismancer/kernelcore/pkg/errors/threaderr"
	"github.com/talismancer/kernelcore/pkg/kernel/arch"
	"github.com/talismancer/kernelcore/pkg/log"
	"github.com/talismancer/kernelcore/pkg/waitqueue"
)

// Create allocates a new Task in status INIT, not yet published to the
// scheduler. parent is the creating thread, or nil for the bootstrap
// thread. detached threads start with refcount 1 (self-reference only);
// joinable threads start with refcount 2 (self-reference plus the
// parent's).
func (k *Kernel) Create(parent *Task, entry EntryFunc, input any, detached bool, stackBytes int, boundCPU int) (*Task, error) {
	if boundCPU != AnyCPU && (boundCPU < 0 || boundCPU >= k.sched.NumCPUs()) {
		return nil, fmt.Errorf("%w: bound_cpu %d out of range", threaderr.InvalidArgument, boundCPU)
	}
	if stackBytes < 0 {
		return nil, fmt.Errorf("%w: negative stack_bytes", threaderr.InvalidArgument)
	}
	if stackBytes == 0 {
		stackBytes = k.cfg.DefaultStackBytes
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: nil entry function", threaderr.InvalidArgument)
	}

	id := ThreadID(k.nextID.Add(1))
	refc := int32(2)
	if detached {
		refc = 1
	}

	t := &Task{
		id:         id,
		mu:         newTaskMutex(),
		status:     StatusInit,
		entry:      entry,
		input:      input,
		stackBytes: stackBytes,
		boundCPU:   boundCPU,
		parent:     parent,
		children:   make(map[ThreadID]*Task),
		exitQueue:  waitqueue.New(),
		refcount:   refc,
		tlsTable:   k.tls,
		detached:   detached,
		sched:      k.sched,
	}
	// entry/CleanupIP are both 0 here: runEntry calls t.entry directly
	// rather than unwinding through this Context, so there is no real
	// address to record. What matters is that ForkCurrent's clone of this
	// Context still produces the documented RAX==0/RIP==CleanupIP rewrite
	// when a fork happens later.
	t.ctx = arch.NewEntryContext(0, 0, 0)

	hook, err := k.sched.ThreadStateInit(t, parent == nil)
	if err != nil {
		return nil, fmt.Errorf("%w: thread_state_init: %v", threaderr.SchedulerRejected, err)
	}
	t.hook = hook

	if parent != nil {
		parent.mu.Lock(int64(parent.id))
		parent.children[id] = t
		parent.mu.Unlock(int64(parent.id))
	}

	k.register(t)

	if err := k.sched.ThreadPostCreate(t); err != nil {
		k.unregister(id)
		if parent != nil {
			parent.mu.Lock(int64(parent.id))
			delete(parent.children, id)
			parent.mu.Unlock(int64(parent.id))
		}
		k.sched.ThreadStateDeinit(t)
		return nil, fmt.Errorf("%w: thread_post_create: %v", threaderr.SchedulerRejected, err)
	}

	return t, nil
}

// Start publishes t to the scheduler's runqueue and begins running its
// entry function. caller is the thread calling Start, used only to pick
// which CPU to kick, matching "kick_cpu(current cpu)" in
// original_source's thread.c. Start builds no trampoline frame: t keeps
// the arch.Context Create installed, and runEntry below drives the call
// to t's entry function directly rather than unwinding through it.
func (k *Kernel) Start(caller *Task, t *Task) {
	holder := int64(t.id)

	cpu := t.boundCPU
	if cpu == AnyCPU {
		cpu = 0
	}

	t.mu.Lock(holder)
	t.status = StatusRunnable
	t.currentCPU = cpu
	t.mu.Unlock(holder)

	k.sched.MakeRunnable(t, cpu, false)

	callerCPU := 0
	if caller != nil {
		callerCPU = caller.currentCPU
	}
	k.sched.KickCPU(callerCPU)

	go k.runEntry(t)
}

// schedulerBinder is an optional extension a Scheduler may implement so
// it can resolve Current() from inside Sleep/Yield without this package
// threading a Task through those calls (see pkg/kernel/goscheduler).
type schedulerBinder interface {
	Bind(t *Task)
	Unbind()
}

// BindBSP associates the calling goroutine with t, for the one Task
// (BSP thread) whose body is the goroutine that called Create
// rather than one Start spawns. Every other Task is bound automatically
// by runEntry.
func (k *Kernel) BindBSP(t *Task) {
	if b, ok := k.sched.(schedulerBinder); ok {
		b.Bind(t)
	}
}

func (k *Kernel) runEntry(t *Task) {
	if b, ok := k.sched.(schedulerBinder); ok {
		b.Bind(t)
		defer b.Unbind()
	}
	t.setStatus(int64(t.id), StatusRunning)
	output := t.entry(t, t.input)
	k.Exit(kcontext.Background(), t, output)
}

// ForkCurrent creates a child Task that is a fork of self: a new thread
// with the same name and CPU binding as self, whose body is childBody.
// Go has no setjmp-style stack duplication, so original_source's "two
// logical returns from one call" is expressed as two separate control
// paths instead of one: ForkCurrent itself returns to self with the new
// Task's ThreadID (the parent's logical return), while the child's
// goroutine runs childBody(child) as its entry (the child's logical
// return of 0) — both continue independently from there. The child's
// arch.Context is produced via PrepareForkStack, giving it the
// RAX==0/RIP==CleanupIP rewrite the arch layer owns, even though
// runEntry does not unwind through it.
func (k *Kernel) ForkCurrent(self *Task, childBody func(child *Task)) (ThreadID, error) {
	holder := int64(self.id)

	self.mu.Lock(holder)
	name := self.name
	self.mu.Unlock(holder)

	child, err := k.Create(self, func(c *Task, _ any) any {
		childBody(c)
		return nil
	}, nil, false, self.stackBytes, self.boundCPU)
	if err != nil {
		return 0, err
	}

	if name != "" {
		_ = child.SetName(int64(child.id), name, k.cfg)
	}

	child.ctx = self.cloneArchContext(self.ctx)

	k.Start(self, child)

	return child.id, nil
}

// Join blocks self until target has exited, then reads its output.
// Legal only when self is target's parent. Returns immediately with the
// stored output if target has already exited (B3). ctx is threaded
// through purely for logging/tracing (SPEC_FULL §6.3); it carries no
// cancellation and a blocked Join runs to completion regardless of it.
func (k *Kernel) Join(ctx *kcontext.Context, self *Task, target *Task, outputSlot *any) error {
	if target.parent != self {
		return fmt.Errorf("%w: join on a non-child", threaderr.InvalidState)
	}

	holder := int64(self.id)
	targetHolder := int64(target.id)

	ctx.Debugf("join: thread %d waiting on thread %d", self.id, target.id)

	self.waitNode.Value = self
	cond := func() bool {
		s := target.Status(holder)
		return s == StatusExited || s == StatusReaped
	}
	target.exitQueue.SleepExtended(holder, &self.waitNode, cond,
		func() { self.setStatus(holder, StatusWaiting) },
		func(unlock func()) { k.sched.Sleep(unlock) },
	)

	target.mu.Lock(targetHolder)
	output := target.output
	target.mu.Unlock(targetHolder)

	if outputSlot != nil {
		*outputSlot = output
	}

	self.mu.Lock(holder)
	delete(self.children, target.id)
	self.mu.Unlock(holder)

	if n := target.refDecr(targetHolder); n == 0 {
		k.reap(target)
	}

	return nil
}

// JoinAllChildren joins every child in self's child set (snapshotting it
// first, since Join mutates it), optionally applying consumer to each
// child's output. Returns the first error encountered, if any. ctx is
// forwarded to each Join call for logging/tracing.
func (k *Kernel) JoinAllChildren(ctx *kcontext.Context, self *Task, consumer func(output any)) error {
	holder := int64(self.id)

	self.mu.Lock(holder)
	snapshot := make([]*Task, 0, len(self.children))
	for _, c := range self.children {
		snapshot = append(snapshot, c)
	}
	self.mu.Unlock(holder)

	for _, c := range snapshot {
		var output any
		if err := k.Join(ctx, self, c, &output); err != nil {
			return err
		}
		if consumer != nil {
			consumer(output)
		}
	}
	return nil
}

// Exit terminates self: joins all children first so none outlive their
// parent, runs TLS destructors, stores output and
// transitions to EXITED under a full fence, wakes every joiner already
// sleeping on self's exit queue, drops self's own reference, and finally
// hands off to the scheduler. Exit never returns to its caller. ctx is
// threaded through for logging/tracing only, matching Join.
func (k *Kernel) Exit(ctx *kcontext.Context, self *Task, output any) {
	holder := int64(self.id)

	ctx.Debugf("exit: thread %d exiting", self.id)

	if err := k.JoinAllChildren(ctx, self, nil); err != nil {
		ctx.Warningf("exit: join-all-children for thread %d: %v", self.id, err)
	}

	self.runTLSDestructors(k.cfg)

	self.mu.Lock(holder)
	self.output = output
	self.status = StatusExited
	self.mu.Unlock(holder)
	atomicbitops.FullFence()

	k.WakeAll(holder, self.exitQueue)

	if n := self.refDecr(holder); n == 0 {
		k.reap(self)
	}

	k.sched.Exit(func() {})
}

// Destroy frees t's resources and moves it to REAPED. Legal only when
// t's status is EXITED or INIT and its refcount is 0 (B4). Removing t from whatever queue it
// might still be parked on is defensive: a correctly sequenced caller
// never reaches Destroy with t still enqueued.
func (k *Kernel) Destroy(t *Task) error {
	holder := int64(t.id)

	t.mu.Lock(holder)
	status := t.status
	refc := t.refcount
	t.mu.Unlock(holder)

	if status != StatusExited && status != StatusInit {
		return fmt.Errorf("%w: destroy on thread in status %s", threaderr.InvalidState, status)
	}
	if refc != 0 {
		return fmt.Errorf("%w: destroy with refcount %d", threaderr.InvalidState, refc)
	}

	waitqueue.Remove(holder, &t.waitNode)

	t.setStatus(holder, StatusReaped)

	k.sched.ThreadPreDestroy(t)
	k.sched.ThreadStateDeinit(t)
	k.unregister(t.id)

	if t.parent != nil {
		pHolder := int64(t.parent.id)
		t.parent.mu.Lock(pHolder)
		delete(t.parent.children, t.id)
		t.parent.mu.Unlock(pHolder)
	}

	return nil
}

// reap destroys t according to cfg.ReapPolicy once its refcount has hit
// zero, making both the immediate and the deferred-autoreaper behaviors
// real, config-selected paths instead of picking one and discarding the
// other.
func (k *Kernel) reap(t *Task) {
	if k.cfg.ReapPolicy == ReapImmediate {
		if err := k.Destroy(t); err != nil {
			log.Warningf("reap: destroy thread %d: %v", t.id, err)
		}
		return
	}
	k.enqueueReap(t)
}
