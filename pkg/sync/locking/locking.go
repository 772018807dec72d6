// Copyright 2020 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package locking is a hand-maintained shrink of gVisor's generated
// per-type mutex validator (the "+checklocks"/go_generics machinery behind
// files like pkg/sentry/kernel/thread_group_timer_mutex.go). Rather than
// one generated file per mutex type, it exposes a single ordered
// MutexClass registry: every spinlock in this module declares which class
// it belongs to, and AddGLock/DelGLock enforce that classes are always
// acquired in ascending rank by each holder token, which is exactly
// the "(queue-lock, tcb-lock), never the reverse" acquisition order.
package locking

import (
	"fmt"
	"sync"
)

// MutexClass identifies one rank in the global lock order.
type MutexClass struct {
	name string
	rank int
}

var (
	mu          sync.Mutex
	classes     []*MutexClass
	heldByGoroutine = map[int64][]*MutexClass{}
)

// NewMutexClass registers a new lock class at the next rank. Classes must
// be created in acquisition order: the queue-lock class before the
// tcb-lock class, matching how thread_group_timer_mutex.go's generated
// init() registered one class per generated type.
func NewMutexClass(name string) *MutexClass {
	mu.Lock()
	defer mu.Unlock()
	c := &MutexClass{name: name, rank: len(classes)}
	classes = append(classes, c)
	return c
}

// goroutineToken is the key of the held-locks map used by the order check.
// It is not a real goroutine ID; callers pass in a caller-supplied token
// (the int64 id of the current Task, or any other stable per-thread
// handle) instead. See AddGLock.
type goroutineToken = int64

// AddGLock records that class c is being acquired by the thread identified
// by token, and panics if a higher-ranked class is already held by it (a
// reverse acquisition). Mirrors the generated Lock()'s
// locking.AddGLock(prefixIndex, -1) call.
func AddGLock(c *MutexClass, token int64) {
	if c == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	for _, held := range heldByGoroutine[token] {
		if held.rank > c.rank {
			panic(fmt.Sprintf("lock order violation: acquiring %q while holding higher-ranked %q", c.name, held.name))
		}
	}
	heldByGoroutine[token] = append(heldByGoroutine[token], c)
}

// DelGLock records that class c has been released by token.
func DelGLock(c *MutexClass, token int64) {
	if c == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	held := heldByGoroutine[token]
	for i := len(held) - 1; i >= 0; i-- {
		if held[i] == c {
			heldByGoroutine[token] = append(held[:i], held[i+1:]...)
			return
		}
	}
}
