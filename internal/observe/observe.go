// Package observe implements the read-only observation surface of spec.md
// §6: allocation-light snapshot structs, safe to call from a GUI or other
// observer thread concurrently with the running kernel. Every accessor
// takes its own lock (or calls one that does) and returns a plain copy;
// none of these types carry any behavior of their own, mirroring the
// teacher's plain-data-snapshot idiom for machine-state introspection.
package observe

import (
	"github.com/Ewad245/RISCV32/internal/contiguous"
	"github.com/Ewad245/RISCV32/internal/cpu"
	"github.com/Ewad245/RISCV32/internal/paged"
	"github.com/Ewad245/RISCV32/internal/sched"
	"github.com/Ewad245/RISCV32/internal/task"
)

// HartSnapshot is one hart's observable state (spec.md §6: "per-hart:
// current PC, 32-register copy, current task PID").
type HartSnapshot struct {
	HartID  int
	PC      uint32
	Regs    cpu.RegFile
	TaskPID int
}

// HartsSnapshot copies every hart's current PC/registers plus whichever
// task is actively running on it (NoHart-owned harts report PID 0).
func HartsSnapshot(harts []*cpu.Hart, registry *task.Registry) []HartSnapshot {
	out := make([]HartSnapshot, len(harts))
	byHart := make(map[int32]int, len(harts))
	for _, t := range registry.All() {
		if id := t.ActiveHartID(); id != task.NoHart {
			byHart[id] = t.PID
		}
	}
	for i, h := range harts {
		out[i] = HartSnapshot{
			HartID:  h.ID,
			PC:      h.PC,
			Regs:    h.Regs,
			TaskPID: byHart[int32(h.ID)],
		}
	}
	return out
}

// TaskSnapshot is one task's observable lifecycle state, independent of
// which MMU backend owns its address space.
type TaskSnapshot struct {
	PID        int
	Name       string
	ParentPID  int
	TGID       int
	State      task.State
	WaitReason task.WaitReason
	Priority   int
	ExitCode   int32
}

func snapshotTask(t *task.Task) TaskSnapshot {
	return TaskSnapshot{
		PID:        t.PID,
		Name:       t.Name,
		ParentPID:  t.ParentPID,
		TGID:       t.TGID,
		State:      t.State(),
		WaitReason: t.WaitReason(),
		Priority:   t.Priority,
		ExitCode:   t.GetExitCode(),
	}
}

// SchedulerSnapshot reports the scheduler's current ready-task list in
// schedule order (spec.md §6: "scheduler: ready-task list").
func SchedulerSnapshot(s sched.Scheduler) []TaskSnapshot {
	ready := s.ReadySnapshot()
	out := make([]TaskSnapshot, len(ready))
	for i, t := range ready {
		out[i] = snapshotTask(t)
	}
	return out
}

// KernelSnapshot is the kernel-wide view spec.md §6 describes: the I/O wait
// list, the sleep wait list, and every task currently known to the
// registry (ready, running, waiting or zombie).
type KernelSnapshot struct {
	IOWaiting    []TaskSnapshot
	SleepWaiting []TaskSnapshot
	AllTasks     []TaskSnapshot
}

// Observable is the subset of kernel.Kernel this package reads; kept as an
// interface here (rather than importing internal/kernel directly) so
// observe has no dependency on the kernel package's goroutine-orchestration
// machinery, only on the two read-only accessors it actually needs.
type Observable interface {
	IOWaitSnapshot() []*task.Task
	SleepWaitSnapshot() []*task.Task
}

// Snapshot builds a KernelSnapshot from the kernel's wait queues and the
// registry's full task table.
func Snapshot(k Observable, registry *task.Registry) KernelSnapshot {
	io := k.IOWaitSnapshot()
	sleep := k.SleepWaitSnapshot()
	all := registry.All()

	snap := KernelSnapshot{
		IOWaiting:    make([]TaskSnapshot, len(io)),
		SleepWaiting: make([]TaskSnapshot, len(sleep)),
		AllTasks:     make([]TaskSnapshot, len(all)),
	}
	for i, t := range io {
		snap.IOWaiting[i] = snapshotTask(t)
	}
	for i, t := range sleep {
		snap.SleepWaiting[i] = snapshotTask(t)
	}
	for i, t := range all {
		snap.AllTasks[i] = snapshotTask(t)
	}
	return snap
}

// MemorySnapshot is the union of the two backend-specific memory views
// spec.md §6 names; exactly one of the two fields is populated depending on
// which MMU is configured.
type MemorySnapshot struct {
	Contiguous *ContiguousSnapshot
	Paged      *PagedSnapshot
}

// ContiguousSnapshot is the contiguous backend's "hole+allocation lists".
type ContiguousSnapshot struct {
	Holes  []contiguous.Hole
	Blocks []contiguous.Block
}

// PagedSnapshot is the paged backend's "frame-ownership array plus total
// frame count".
type PagedSnapshot struct {
	FrameOwners []paged.Owner
	TotalFrames int
	FreeFrames  int
}

// ContiguousMemorySnapshot builds a MemorySnapshot for a contiguous-mode
// machine.
func ContiguousMemorySnapshot(m *contiguous.MMU) MemorySnapshot {
	return MemorySnapshot{Contiguous: &ContiguousSnapshot{
		Holes:  m.Holes(),
		Blocks: m.Blocks(),
	}}
}

// PagedMemorySnapshot builds a MemorySnapshot for a paged-mode machine.
func PagedMemorySnapshot(m *paged.MMU) MemorySnapshot {
	return MemorySnapshot{Paged: &PagedSnapshot{
		FrameOwners: m.FrameOwners(),
		TotalFrames: m.TotalFrames(),
		FreeFrames:  m.FreeFrames(),
	}}
}
