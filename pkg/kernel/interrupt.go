package kernel

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// interruptNesting tracks, per calling goroutine, how many nested
// RunInInterruptContext frames are active. A goroutine key is only
// present while its count is nonzero; InInterruptContext treats absence
// the same as zero.
var interruptNesting sync.Map // goroutineID() -> *int32

// RunInInterruptContext runs fn as the stand-in for code that would run
// on an interrupt stack in original_source: it bumps this goroutine's
// nesting counter before fn runs and drops it back down afterward, so
// fn and anything it calls observes InInterruptContext() == true. Calls
// nest: a RunInInterruptContext inside another is legal and only the
// outermost frame's entry/exit toggles the counter away from zero.
func RunInInterruptContext(fn func()) {
	id := goroutineID()
	v, _ := interruptNesting.LoadOrStore(id, new(int32))
	counter := v.(*int32)
	atomic.AddInt32(counter, 1)
	defer func() {
		if atomic.AddInt32(counter, -1) == 0 {
			interruptNesting.Delete(id)
		}
	}()
	fn()
}

// InInterruptContext reports whether the calling goroutine is currently
// inside a RunInInterruptContext call, matching the per-CPU nesting
// counter spec.md §5 calls out as how code detects "in interrupt".
// taskMutex.LockIRQSave and other locks reachable from an interrupt
// handler are the callers expected to check this before deciding
// whether a plain Lock is safe.
func InInterruptContext() bool {
	id := goroutineID()
	v, ok := interruptNesting.Load(id)
	if !ok {
		return false
	}
	return atomic.LoadInt32(v.(*int32)) > 0
}

// goroutineID parses the calling goroutine's id out of a runtime.Stack
// capture. This module has no real per-CPU interrupt nesting counter to
// read, so the goroutine id stands in for "which simulated CPU is
// this" the same way pkg/kernel/goscheduler uses it to resolve Current.
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
