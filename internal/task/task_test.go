package task

import "testing"

func TestTryAcquireCPUAtMostOneHart(t *testing.T) {
	ts := NewRegistry().CreateProcess("init", 0, nil)

	if !ts.TryAcquireCPU(0) {
		t.Fatalf("hart 0 should acquire an unowned task")
	}
	if ts.TryAcquireCPU(1) {
		t.Fatalf("hart 1 acquired a task already owned by hart 0 — DOUBLE_SCHEDULE")
	}
	ts.ReleaseCPU()
	if !ts.TryAcquireCPU(1) {
		t.Fatalf("hart 1 should acquire the task once released")
	}
}

func TestRegistryLinkAndUnlink(t *testing.T) {
	r := NewRegistry()
	parent := r.CreateProcess("parent", 0, nil)
	child := r.CreateProcess("child", 0, nil)

	r.Link(parent, child)
	if child.ParentPID != parent.PID {
		t.Fatalf("child.ParentPID = %d, want %d", child.ParentPID, parent.PID)
	}
	if _, ok := parent.Children[child.PID]; !ok {
		t.Fatalf("expected parent to own child %d", child.PID)
	}

	r.Unlink(parent, child.PID)
	if _, ok := parent.Children[child.PID]; ok {
		t.Fatalf("expected child to be removed from parent's set")
	}
}

func TestZombiePreservedUntilRemoved(t *testing.T) {
	r := NewRegistry()
	child := r.CreateProcess("child", 0, nil)
	child.SetState(StateTerminated)

	if _, ok := r.Get(child.PID); !ok {
		t.Fatalf("terminated task should remain in the table until Remove")
	}
	r.Remove(child.PID)
	if _, ok := r.Get(child.PID); ok {
		t.Fatalf("task should be gone after Remove")
	}
}
