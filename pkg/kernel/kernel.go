package kernel

import (
	"github.com/talismancer/kernelcore/pkg/atomicbitops"
	ksync "github.com/talismancer/kernelcore/pkg/sync"
	"github.com/talismancer/kernelcore/pkg/sync/locking"
)

// AnyCPU is the bound_cpu sentinel meaning the scheduler may place this
// thread on any CPU.
const AnyCPU = -1

// registryLockClass ranks above taskLockClass: the registry lock is only
// ever held around bookkeeping, never around a call back into a Task's own
// lock, but it is still registered so a future reversal is caught rather
// than silently working by luck.
var registryLockClass = locking.NewMutexClass("registry")

// Kernel is the process-wide state every lifecycle operation needs: the
// TLS slot table, the monotonic ThreadID counter, the live-task registry
// MapThreads walks, and the Scheduler collaborator. It plays the role
// gVisor's own *kernel.Kernel plays for pkg/sentry/kernel.Task — the
// object every Task holds an implicit handle to instead of reaching for
// package-level globals.
type Kernel struct {
	cfg   Config
	sched Scheduler
	tls   *tlsTable

	nextID atomicbitops.Uint64

	registryMu *ksync.Spinlock
	registry   map[ThreadID]*Task

	reaperCh chan *Task
	reaperDone chan struct{}
}

// New builds a Kernel with the given tunables and scheduler. The bootstrap
// thread (the process's first, parentless Task) is not created here;
// callers create it with Create(nil, ...) once New returns, mirroring
// nk_thread_init's separate "BSP thread" bring-up step.
func New(cfg Config, sched Scheduler) *Kernel {
	k := &Kernel{
		cfg:        cfg,
		sched:      sched,
		tls:        newTLSTable(cfg),
		registryMu: ksync.NewSpinlock(registryLockClass),
		registry:   make(map[ThreadID]*Task),
	}
	if cfg.ReapPolicy == ReapAutoreaper {
		k.startAutoreaper()
	}
	return k
}

// Config returns the tunables this Kernel was built with.
func (k *Kernel) Config() Config {
	return k.cfg
}

func (k *Kernel) register(t *Task) {
	k.registryMu.Lock(int64(t.id))
	k.registry[t.id] = t
	k.registryMu.Unlock(int64(t.id))
}

func (k *Kernel) unregister(id ThreadID) {
	k.registryMu.Lock(int64(id))
	delete(k.registry, id)
	k.registryMu.Unlock(int64(id))
}

// MapThreads calls fn for every live (registered, not yet destroyed)
// Task, matching the Scheduler.MapThreads contract but walking this
// module's own registry rather than the scheduler's runqueues, since a
// WAITING or EXITED-not-yet-reaped thread is on no runqueue at all.
func (k *Kernel) MapThreads(holder int64, fn func(t *Task)) {
	k.registryMu.Lock(holder)
	snapshot := make([]*Task, 0, len(k.registry))
	for _, t := range k.registry {
		snapshot = append(snapshot, t)
	}
	k.registryMu.Unlock(holder)
	for _, t := range snapshot {
		fn(t)
	}
}

// Lookup returns the live Task for id, if any.
func (k *Kernel) Lookup(holder int64, id ThreadID) (*Task, bool) {
	k.registryMu.Lock(holder)
	t, ok := k.registry[id]
	k.registryMu.Unlock(holder)
	return t, ok
}
