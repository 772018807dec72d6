package locking_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/talismancer/kernelcore/pkg/sync/locking"
)

func TestAddGLockDelGLockTracksNesting(t *testing.T) {
	low := locking.NewMutexClass("low")
	high := locking.NewMutexClass("high")
	const holder = int64(1001)

	require.NotPanics(t, func() {
		locking.AddGLock(low, holder)
		locking.AddGLock(high, holder)
		locking.DelGLock(high, holder)
		locking.DelGLock(low, holder)
	})
}

func TestReverseAcquisitionPanics(t *testing.T) {
	low := locking.NewMutexClass("reverse-low")
	high := locking.NewMutexClass("reverse-high")
	const holder = int64(1002)

	locking.AddGLock(high, holder)
	defer locking.DelGLock(high, holder)

	require.Panics(t, func() {
		locking.AddGLock(low, holder)
	}, "acquiring a lower-ranked class while holding a higher-ranked one must panic")
}

func TestNilClassIsAlwaysExempt(t *testing.T) {
	const holder = int64(1003)
	require.NotPanics(t, func() {
		locking.AddGLock(nil, holder)
		locking.DelGLock(nil, holder)
	})
}

func TestDifferentHoldersDoNotInterfere(t *testing.T) {
	low := locking.NewMutexClass("iso-low")
	high := locking.NewMutexClass("iso-high")

	locking.AddGLock(high, 2001)
	defer locking.DelGLock(high, 2001)

	// A different holder acquiring low while holder 2001 holds high is a
	// fresh, unrelated order and must not be rejected by 2001's state.
	require.NotPanics(t, func() {
		locking.AddGLock(low, 2002)
		locking.DelGLock(low, 2002)
	})
}
