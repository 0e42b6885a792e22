package sched

import (
	"testing"

	"github.com/Ewad245/RISCV32/internal/task"
)

func newReadyTask(r *task.Registry, name string, priority int) *task.Task {
	t := r.CreateProcess(name, priority, nil)
	t.SetState(task.StateReady)
	return t
}

func TestRoundRobinFIFOOrder(t *testing.T) {
	r := task.NewRegistry()
	s := New(RoundRobin, 1000)
	a := newReadyTask(r, "a", 0)
	b := newReadyTask(r, "b", 0)
	c := newReadyTask(r, "c", 0)

	s.AddTask(0, a)
	s.AddTask(0, b)
	s.AddTask(0, c)

	for _, want := range []*task.Task{a, b, c} {
		got := s.Schedule(0)
		if got != want {
			t.Fatalf("Schedule() = %v, want %v", got.Name, want.Name)
		}
	}
	if got := s.Schedule(0); got != nil {
		t.Fatalf("Schedule() on empty queue = %v, want nil", got)
	}
}

func TestAddTaskIdempotent(t *testing.T) {
	r := task.NewRegistry()
	s := New(RoundRobin, 1000)
	a := newReadyTask(r, "a", 0)

	s.AddTask(0, a)
	s.AddTask(0, a)
	s.AddTask(0, a)

	if got := len(s.ReadySnapshot()); got != 1 {
		t.Fatalf("ready set has %d entries after 3 AddTask calls, want 1 (idempotent)", got)
	}
}

func TestRemoveTaskIdempotent(t *testing.T) {
	r := task.NewRegistry()
	s := New(RoundRobin, 1000)
	a := newReadyTask(r, "a", 0)
	s.AddTask(0, a)
	s.RemoveTask(0, a)
	s.RemoveTask(0, a) // must not panic or double-count

	if got := len(s.ReadySnapshot()); got != 0 {
		t.Fatalf("ready set has %d entries after RemoveTask, want 0", got)
	}
}

func TestPriorityOrderingWithFIFOTieBreak(t *testing.T) {
	r := task.NewRegistry()
	s := New(Priority, 1000)
	low1 := newReadyTask(r, "low1", 1)
	high := newReadyTask(r, "high", 10)
	low2 := newReadyTask(r, "low2", 1)

	s.AddTask(0, low1)
	s.AddTask(0, high)
	s.AddTask(0, low2)

	if got := s.Schedule(0); got != high {
		t.Fatalf("Schedule() = %v, want the higher-priority task", got.Name)
	}
	if got := s.Schedule(0); got != low1 {
		t.Fatalf("Schedule() = %v, want low1 (FIFO among equal priority)", got.Name)
	}
	if got := s.Schedule(0); got != low2 {
		t.Fatalf("Schedule() = %v, want low2", got.Name)
	}
}

func TestCooperativeTimeSliceIsMax(t *testing.T) {
	s := New(Cooperative, 5)
	if s.TimeSlice() != MaxTimeSlice {
		t.Fatalf("Cooperative TimeSlice() = %d, want MaxTimeSlice", s.TimeSlice())
	}
}

func TestRoundRobinTimeSliceIsConfigured(t *testing.T) {
	s := New(RoundRobin, 42)
	if s.TimeSlice() != 42 {
		t.Fatalf("TimeSlice() = %d, want 42", s.TimeSlice())
	}
}

// TestDoubleScheduleDetected is spec.md §8 scenario S6: an internal test
// hook enqueues the same task twice, simulating two harts racing to pop it;
// the second tryAcquireCpu must fail so the dispatcher can panic rather
// than silently running the task on two harts.
func TestDoubleScheduleDetected(t *testing.T) {
	r := task.NewRegistry()
	rr := newRoundRobinScheduler(1000)
	a := newReadyTask(r, "a", 0)

	rr.AddTask(0, a)
	rr.forceEnqueueForTest(a)

	first := rr.Schedule(0)
	second := rr.Schedule(0)
	if first != a || second != a {
		t.Fatalf("expected both schedule() calls to return the duplicated task")
	}

	if !first.TryAcquireCPU(0) {
		t.Fatalf("hart 0 should win the race")
	}
	if second.TryAcquireCPU(1) {
		t.Fatalf("hart 1 acquiring an already-held task should fail (DOUBLE_SCHEDULE)")
	}
}
