package sched

import "github.com/Ewad245/RISCV32/internal/task"

// MaintenanceOwnerID is the spinlock owner token used by the dedicated
// maintenance thread (spec.md §4.5), which is not one of the numbered
// harts but still calls addTask() to requeue woken tasks.
const MaintenanceOwnerID = -1

// ObserverOwnerID is the spinlock owner token used by read-only
// observation snapshots (spec.md §6), distinct from MaintenanceOwnerID so a
// concurrent snapshot read is never mistaken for the maintenance loop
// re-entering its own lock.
const ObserverOwnerID = -2

// MaxTimeSlice is returned by TimeSlice() for a scheduler with no forced
// preemption (cooperative).
const MaxTimeSlice = int(^uint(0) >> 1)

// Kind selects a Scheduler implementation.
type Kind int

const (
	RoundRobin Kind = iota
	Priority
	Cooperative
)

// Scheduler is the contract of spec.md §4.4, common to every concrete
// policy. ownerID identifies the calling hart (or MaintenanceOwnerID) to
// the internal spinlock so recursive acquisition by the same caller is
// caught rather than deadlocking silently.
type Scheduler interface {
	// AddTask enqueues t, which must be in state READY. Idempotent: a
	// no-op if t is already present in the ready set.
	AddTask(ownerID int, t *task.Task)
	// RemoveTask removes t from the ready set. Idempotent.
	RemoveTask(ownerID int, t *task.Task)
	// Schedule pops and returns the next READY task, or nil if none are
	// ready.
	Schedule(ownerID int) *task.Task
	// TimeSlice reports the instruction budget before forced preemption.
	TimeSlice() int
	// ReadySnapshot returns every currently ready task, safe to read from
	// an observer goroutine.
	ReadySnapshot() []*task.Task
}

// New constructs a Scheduler of the given kind with the given time slice
// (ignored for Cooperative, which always reports MaxTimeSlice).
func New(kind Kind, timeSlice int) Scheduler {
	switch kind {
	case Priority:
		return newPriorityScheduler(timeSlice)
	case Cooperative:
		return newCooperativeScheduler()
	default:
		return newRoundRobinScheduler(timeSlice)
	}
}
