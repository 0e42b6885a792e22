package observe

import (
	"testing"

	"github.com/Ewad245/RISCV32/internal/contiguous"
	"github.com/Ewad245/RISCV32/internal/cpu"
	"github.com/Ewad245/RISCV32/internal/mem"
	"github.com/Ewad245/RISCV32/internal/paged"
	"github.com/Ewad245/RISCV32/internal/sched"
	"github.com/Ewad245/RISCV32/internal/task"
)

func TestHartsSnapshotReportsRunningTaskPID(t *testing.T) {
	reg := task.NewRegistry()
	tk := reg.CreateProcess("init", 0, nil)
	tk.TryAcquireCPU(0)

	h := cpu.NewHart(0)
	h.PC = 0x2000
	h.Regs[10] = 42

	snap := HartsSnapshot([]*cpu.Hart{h}, reg)
	if len(snap) != 1 {
		t.Fatalf("len(snap) = %d, want 1", len(snap))
	}
	if snap[0].TaskPID != tk.PID {
		t.Fatalf("TaskPID = %d, want %d", snap[0].TaskPID, tk.PID)
	}
	if snap[0].PC != 0x2000 || snap[0].Regs[10] != 42 {
		t.Fatalf("snapshot did not copy PC/regs")
	}
}

func TestHartsSnapshotIdleHartReportsZeroPID(t *testing.T) {
	reg := task.NewRegistry()
	h := cpu.NewHart(1)
	snap := HartsSnapshot([]*cpu.Hart{h}, reg)
	if snap[0].TaskPID != 0 {
		t.Fatalf("idle hart TaskPID = %d, want 0", snap[0].TaskPID)
	}
}

func TestSchedulerSnapshotReflectsReadySet(t *testing.T) {
	reg := task.NewRegistry()
	s := sched.New(sched.RoundRobin, 100)
	a := reg.CreateProcess("a", 0, nil)
	b := reg.CreateProcess("b", 0, nil)
	s.AddTask(0, a)
	s.AddTask(0, b)

	snap := SchedulerSnapshot(s)
	if len(snap) != 2 {
		t.Fatalf("len(snap) = %d, want 2", len(snap))
	}
	if snap[0].PID != a.PID || snap[1].PID != b.PID {
		t.Fatalf("snapshot order = %v, want FIFO [a, b]", snap)
	}
}

type fakeObservable struct {
	io, sleep []*task.Task
}

func (f fakeObservable) IOWaitSnapshot() []*task.Task    { return f.io }
func (f fakeObservable) SleepWaitSnapshot() []*task.Task { return f.sleep }

func TestKernelSnapshotCollectsAllLists(t *testing.T) {
	reg := task.NewRegistry()
	ioTask := reg.CreateProcess("io", 0, nil)
	sleepTask := reg.CreateProcess("sleep", 0, nil)
	readyTask := reg.CreateProcess("ready", 0, nil)

	obs := fakeObservable{io: []*task.Task{ioTask}, sleep: []*task.Task{sleepTask}}
	snap := Snapshot(obs, reg)

	if len(snap.IOWaiting) != 1 || snap.IOWaiting[0].PID != ioTask.PID {
		t.Fatalf("IOWaiting = %v, want [%d]", snap.IOWaiting, ioTask.PID)
	}
	if len(snap.SleepWaiting) != 1 || snap.SleepWaiting[0].PID != sleepTask.PID {
		t.Fatalf("SleepWaiting = %v, want [%d]", snap.SleepWaiting, sleepTask.PID)
	}
	if len(snap.AllTasks) != 3 {
		t.Fatalf("AllTasks len = %d, want 3", len(snap.AllTasks))
	}
	_ = readyTask
}

func TestContiguousMemorySnapshotReportsHolesAndBlocks(t *testing.T) {
	ram := mem.NewRAM(64 * 1024)
	m := contiguous.New(ram, contiguous.FirstFit, mem.NewUART(nil))
	if _, err := m.Allocate(1, 4096); err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	snap := ContiguousMemorySnapshot(m)
	if snap.Contiguous == nil || snap.Paged != nil {
		t.Fatalf("expected only the Contiguous field populated")
	}
	if len(snap.Contiguous.Blocks) != 1 {
		t.Fatalf("Blocks len = %d, want 1", len(snap.Contiguous.Blocks))
	}
	if len(snap.Contiguous.Holes) == 0 {
		t.Fatalf("expected at least one remaining hole after a partial allocation")
	}
}

func TestPagedMemorySnapshotReportsFrameOwnership(t *testing.T) {
	ram := mem.NewRAM(4 * 1024 * 1024)
	m := paged.New(ram, 16, "clock", paged.Eager, mem.NewUART(nil))
	as, err := m.NewAddressSpace(7)
	if err != nil {
		t.Fatalf("NewAddressSpace: %v", err)
	}
	if err := m.MapRegion(as, 0x1000, 0x1000, paged.RegionFlags{R: true, W: true}); err != nil {
		t.Fatalf("MapRegion: %v", err)
	}

	snap := PagedMemorySnapshot(m)
	if snap.Paged == nil || snap.Contiguous != nil {
		t.Fatalf("expected only the Paged field populated")
	}
	if snap.Paged.TotalFrames != 16 {
		t.Fatalf("TotalFrames = %d, want 16", snap.Paged.TotalFrames)
	}
	if snap.Paged.FreeFrames >= 16 {
		t.Fatalf("FreeFrames = %d, want fewer than 16 after mapping a region", snap.Paged.FreeFrames)
	}

	found := false
	for _, o := range snap.Paged.FrameOwners {
		if o.PID == 7 {
			found = true
		}
	}
	if !found {
		t.Fatalf("no frame reports owner pid 7 after MapRegion")
	}
}
