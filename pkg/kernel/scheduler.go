package kernel

// Hook is the opaque per-thread scheduler-owned state attached to a
// Task. The kernel package never looks inside it; pkg/kernel/goscheduler
// defines the concrete type its own Scheduler returns.
type Hook interface{}

// Scheduler is the external collaborator the thread core drives through
// this fixed set of entry points, trusting their contracts without
// inspecting how they're met. The reference implementation is
// pkg/kernel/goscheduler.Scheduler; tests may supply a fake that records
// calls instead.
type Scheduler interface {
	// ThreadStateInit allocates and returns the opaque hook for a newly
	// created Task. isBSP marks the bootstrap/main thread.
	ThreadStateInit(t *Task, isBSP bool) (Hook, error)

	// ThreadStateDeinit releases whatever ThreadStateInit allocated.
	ThreadStateDeinit(t *Task)

	// ThreadPostCreate is called once Create has finished initializing
	// t; returning an error fails Create with SchedulerRejected.
	ThreadPostCreate(t *Task) error

	// ThreadPreDestroy is called just before Destroy frees t.
	ThreadPreDestroy(t *Task)

	// MakeRunnable inserts t into cpu's runqueue. Called by Start to
	// publish a freshly created thread.
	MakeRunnable(t *Task, cpu int, immediate bool)

	// Awaken transitions t from WAITING to RUNNABLE and inserts it into
	// cpu's runqueue, the wake-path counterpart to MakeRunnable.
	Awaken(t *Task, cpu int) error

	// Sleep parks the calling thread. unlock must be called exactly
	// once, after the caller has committed to descheduling: the scheduler
	// releases the queue lock only after it has switched away from the
	// caller. Sleep does not return until a later Awaken targets the
	// calling thread.
	Sleep(unlock func())

	// Exit is Sleep's counterpart for a thread that has reached status
	// EXITED: unlock is called once the thread is off-CPU, and the
	// calling goroutine is never resumed.
	Exit(unlock func())

	// Yield voluntarily reschedules the caller, releasing unlock once
	// the context switch is committed, and resumes the caller once the
	// scheduler next picks it.
	Yield(unlock func())

	// KickCPU delivers an IPI-equivalent nudge so cpu reconsiders its
	// runqueue. Called after Awaken to ensure a cross-CPU wakeup is
	// noticed promptly even if cpu is otherwise idle-spinning.
	KickCPU(cpu int)

	// MapThreads calls fn(t) for every live thread on cpu, or on every
	// CPU if all is true.
	MapThreads(cpu int, all bool, fn func(t *Task))

	// Current returns the Task running on the calling OS thread.
	Current() *Task

	// NumCPUs returns the number of simulated CPUs.
	NumCPUs() int
}
