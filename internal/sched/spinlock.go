// Package sched implements the scheduler component of spec.md §4.4: the
// round-robin, priority and cooperative ready-set policies sharing one
// contract, each serialised by a spinlock that detects recursive
// acquisition by its own caller.
package sched

import (
	"runtime"
	"sync/atomic"
)

// noOwner is the spinlock sentinel meaning "unheld".
const noOwner int32 = -1

// Spinlock is the busy-wait mutual-exclusion primitive spec.md §5 requires
// to serialise schedule()/addTask()/removeTask(): a caller that tries to
// reacquire a lock it already holds has a bug, and that is a fatal
// SPINLOCK_MISUSE condition rather than a silent deadlock.
type Spinlock struct {
	holder atomic.Int32
}

// NewSpinlock returns an unheld spinlock.
func NewSpinlock() *Spinlock {
	sl := &Spinlock{}
	sl.holder.Store(noOwner)
	return sl
}

// Acquire spins until ownerID holds the lock. Calling Acquire again with the
// same ownerID while already held is a kernel bug and panics immediately
// rather than spinning forever.
func (sl *Spinlock) Acquire(ownerID int) {
	for {
		if sl.holder.CompareAndSwap(noOwner, int32(ownerID)) {
			return
		}
		if sl.holder.Load() == int32(ownerID) {
			panic("sched: spinlock: recursive acquisition by the same caller (SPINLOCK_MISUSE)")
		}
		runtime.Gosched()
	}
}

// Release clears ownership. Releasing an unheld lock is a no-op; releasing
// a lock held by a different owner is a caller bug and panics.
func (sl *Spinlock) Release(ownerID int) {
	if !sl.holder.CompareAndSwap(int32(ownerID), noOwner) {
		if sl.holder.Load() != noOwner {
			panic("sched: spinlock: release by a caller that does not hold the lock")
		}
	}
}
