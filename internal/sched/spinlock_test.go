package sched

import "testing"

func TestSpinlockExclusion(t *testing.T) {
	sl := NewSpinlock()
	sl.Acquire(1)
	if sl.holder.Load() != 1 {
		t.Fatalf("holder = %d, want 1", sl.holder.Load())
	}
	sl.Release(1)
	if sl.holder.Load() != noOwner {
		t.Fatalf("holder = %d, want unheld", sl.holder.Load())
	}
}

func TestSpinlockRecursiveAcquirePanics(t *testing.T) {
	sl := NewSpinlock()
	sl.Acquire(1)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic on recursive acquisition by the same owner")
		}
	}()
	sl.Acquire(1)
}

func TestSpinlockReleaseByWrongOwnerPanics(t *testing.T) {
	sl := NewSpinlock()
	sl.Acquire(1)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic releasing a lock held by a different owner")
		}
	}()
	sl.Release(2)
}
