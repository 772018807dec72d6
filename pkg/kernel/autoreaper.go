package kernel

import "github.com/talismancer/kernelcore/pkg/log"

// reapQueueDepth bounds the autoreaper's backlog; a depth this generous
// only matters under a burst of near-simultaneous exits, since the
// autoreaper drains continuously.
const reapQueueDepth = 4096

// startAutoreaper launches the background goroutine that drains
// zero-refcount exited threads when Config.ReapPolicy is ReapAutoreaper,
// making deferred reaping a real, selectable alternative to
// ReapImmediate.
func (k *Kernel) startAutoreaper() {
	k.reaperCh = make(chan *Task, reapQueueDepth)
	k.reaperDone = make(chan struct{})
	go k.runAutoreaper()
}

// enqueueReap hands t to the autoreaper goroutine. Called only once t's
// refcount has reached 0 (the same precondition ReapImmediate's inline
// Destroy call requires).
func (k *Kernel) enqueueReap(t *Task) {
	if k.reaperCh == nil {
		// ReapAutoreaper was never configured; fall back to an inline
		// destroy rather than leaking t.
		if err := k.Destroy(t); err != nil {
			log.Warningf("reap: destroy thread %d: %v", t.id, err)
		}
		return
	}
	select {
	case k.reaperCh <- t:
	default:
		log.Warningf("reap: autoreaper backlog full, destroying thread %d inline", t.id)
		if err := k.Destroy(t); err != nil {
			log.Warningf("reap: destroy thread %d: %v", t.id, err)
		}
	}
}

func (k *Kernel) runAutoreaper() {
	defer close(k.reaperDone)
	for t := range k.reaperCh {
		if err := k.Destroy(t); err != nil {
			log.Warningf("autoreaper: destroy thread %d: %v", t.id, err)
		}
	}
}

// StopAutoreaper closes the autoreaper's work queue and waits for it to
// drain, for orderly shutdown in tests and cmd/threadctl. A no-op when
// the autoreaper was never started.
func (k *Kernel) StopAutoreaper() {
	if k.reaperCh == nil {
		return
	}
	close(k.reaperCh)
	<-k.reaperDone
}
