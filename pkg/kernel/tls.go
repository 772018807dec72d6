package kernel

import (
	"fmt"

	"github.com/talismancer/kernelcore/pkg/atomicbitops"
	"github.com/talismancer/kernelcore/pkg/errors/threaderr"
)

// Key identifies a TLS slot (nk_tls_key_t).
type Key int

// tlsSlot is one entry of the fixed-size global TLS table: a sequence
// counter (even = free, odd = allocated, invariant I5) and an optional
// destructor, mirroring original_source's struct nk_tls and its
// TLS_KEY_AVAIL/TLS_KEY_USABLE macros.
type tlsSlot struct {
	seq        atomicbitops.Uint32
	destructor func(any)
}

// tlsTable is the process-wide TLS slot table; its size is fixed by
// cfg.TLSMaxKeys when New builds the Kernel.
type tlsTable struct {
	slots []tlsSlot
}

func newTLSTable(cfg Config) *tlsTable {
	return &tlsTable{slots: make([]tlsSlot, cfg.TLSMaxKeys)}
}

func slotFree(seq uint32) bool {
	return seq%2 == 0
}

// TLSKeyCreate allocates a new process-wide TLS slot with the given
// destructor (nil if the key needs none), failing ResourceExhausted once
// every slot is in use (B2).
func (k *Kernel) TLSKeyCreate(destructor func(any)) (Key, error) {
	return k.tls.KeyCreate(destructor)
}

// TLSKeyDelete frees a previously allocated TLS slot. Values already
// stored under it become unreachable (B-series), and a later
// Task.Get/Set against the stale key fails InvalidState.
func (k *Kernel) TLSKeyDelete(key Key) error {
	return k.tls.KeyDelete(key)
}

// KeyCreate scans for a free slot and atomically flips it to allocated
// (even -> odd), matching nk_tls_key_create's CAS loop. Returns
// ResourceExhausted when every slot is in use (B2).
func (tt *tlsTable) KeyCreate(destructor func(any)) (Key, error) {
	for i := range tt.slots {
		slot := &tt.slots[i]
		seq := slot.seq.Load()
		if slotFree(seq) && slot.seq.CompareAndSwap(seq, seq+1) {
			slot.destructor = destructor
			return Key(i), nil
		}
	}
	return 0, fmt.Errorf("%w: no free TLS slot", threaderr.ResourceExhausted)
}

// KeyDelete atomically flips an allocated slot back to free (odd ->
// even). Per-thread values for that key are left untouched but become
// inaccessible: a later Get/Set against the stale key observes the
// bumped sequence and fails InvalidState, and because the
// CAS always adds 1 to whatever sequence it observed, a slot reused by a
// later KeyCreate is guaranteed a different odd sequence than any stale
// handle remembers (invariant I5, P5).
func (tt *tlsTable) KeyDelete(k Key) error {
	if int(k) < 0 || int(k) >= len(tt.slots) {
		return fmt.Errorf("%w: key out of range", threaderr.InvalidArgument)
	}
	slot := &tt.slots[k]
	seq := slot.seq.Load()
	if slotFree(seq) {
		return fmt.Errorf("%w: key already deleted", threaderr.InvalidState)
	}
	if !slot.seq.CompareAndSwap(seq, seq+1) {
		return fmt.Errorf("%w: concurrent delete raced this one", threaderr.InvalidState)
	}
	return nil
}

func (tt *tlsTable) valid(k Key) bool {
	if int(k) < 0 || int(k) >= len(tt.slots) {
		return false
	}
	return !slotFree(tt.slots[k].seq.Load())
}

// ensureTLSCapacity grows t.tlsValues to at least n entries.
func (t *Task) ensureTLSCapacity(n int) {
	if len(t.tlsValues) < n {
		grown := make([]any, n)
		copy(grown, t.tlsValues)
		t.tlsValues = grown
	}
}

// Get returns the per-thread value stored for k, failing InvalidState if
// k does not name a currently allocated slot.
func (t *Task) Get(k Key) (any, error) {
	if !t.tlsTable.valid(k) {
		return nil, fmt.Errorf("%w: stale or out-of-range TLS key", threaderr.InvalidState)
	}
	t.ensureTLSCapacity(int(k) + 1)
	return t.tlsValues[k], nil
}

// Set stores v for k in this thread, failing InvalidState if k does not
// name a currently allocated slot (for example a key obtained before a
// KeyDelete, per B-series boundary behavior).
func (t *Task) Set(k Key, v any) error {
	if !t.tlsTable.valid(k) {
		return fmt.Errorf("%w: stale or out-of-range TLS key", threaderr.InvalidState)
	}
	t.ensureTLSCapacity(int(k) + 1)
	t.tlsValues[k] = v
	return nil
}

// runTLSDestructors runs each key's destructor against this thread's
// non-nil values, looping up to cfg.MinDestructIterations passes to let
// a destructor that sets a further slot be observed. A slot seen nil in
// one pass and not re-set is not revisited in that pass.
func (t *Task) runTLSDestructors(cfg Config) {
	table := t.tlsTable
	for pass := 0; pass < cfg.MinDestructIterations; pass++ {
		ran := false
		t.ensureTLSCapacity(len(table.slots))
		for i := range table.slots {
			slot := &table.slots[i]
			if slot.destructor == nil || slotFree(slot.seq.Load()) {
				continue
			}
			v := t.tlsValues[i]
			if v == nil {
				continue
			}
			t.tlsValues[i] = nil
			slot.destructor(v)
			ran = true
		}
		if !ran {
			return
		}
	}
}
