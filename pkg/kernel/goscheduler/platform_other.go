//go:build !linux

package goscheduler

import (
	"runtime"

	"github.com/talismancer/kernelcore/pkg/log"
)

// cpu is the non-Linux fallback: still a pinned OS thread (so the CPU
// layer's identity is real), but kick() has no portable way to target a
// specific pthread with a signal outside cgo, so it degrades to a no-op
// and logs once — Awaken's state transition still happens; only the
// "nudge an idle CPU promptly" optimization is lost.
type cpu struct {
	id int
}

func startCPU(id int) *cpu {
	c := &cpu{id: id}
	go func() {
		runtime.LockOSThread()
		select {}
	}()
	return c
}

var warnedKick bool

func (c *cpu) kick() {
	if !warnedKick {
		warnedKick = true
		log.Infof("goscheduler: KickCPU has no effect on this platform")
	}
}
