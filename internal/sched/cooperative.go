package sched

import "github.com/Ewad245/RISCV32/internal/task"

// cooperativeScheduler is a FIFO ready queue with no forced time slice: a
// task only yields the hart by explicitly transitioning out of RUNNING
// (YIELD, blocking syscall, exit, or an exception).
type cooperativeScheduler struct {
	lock  *Spinlock
	queue []*task.Task
	inSet map[int]bool
}

func newCooperativeScheduler() *cooperativeScheduler {
	return &cooperativeScheduler{lock: NewSpinlock(), inSet: make(map[int]bool)}
}

func (s *cooperativeScheduler) AddTask(ownerID int, t *task.Task) {
	s.lock.Acquire(ownerID)
	defer s.lock.Release(ownerID)
	if s.inSet[t.PID] {
		return
	}
	s.inSet[t.PID] = true
	s.queue = append(s.queue, t)
}

func (s *cooperativeScheduler) RemoveTask(ownerID int, t *task.Task) {
	s.lock.Acquire(ownerID)
	defer s.lock.Release(ownerID)
	if !s.inSet[t.PID] {
		return
	}
	delete(s.inSet, t.PID)
	for i, qt := range s.queue {
		if qt.PID == t.PID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

func (s *cooperativeScheduler) Schedule(ownerID int) *task.Task {
	s.lock.Acquire(ownerID)
	defer s.lock.Release(ownerID)
	if len(s.queue) == 0 {
		return nil
	}
	t := s.queue[0]
	s.queue = s.queue[1:]
	delete(s.inSet, t.PID)
	return t
}

func (s *cooperativeScheduler) TimeSlice() int { return MaxTimeSlice }

func (s *cooperativeScheduler) ReadySnapshot() []*task.Task {
	s.lock.Acquire(ObserverOwnerID)
	defer s.lock.Release(ObserverOwnerID)
	out := make([]*task.Task, len(s.queue))
	copy(out, s.queue)
	return out
}

func (s *cooperativeScheduler) forceEnqueueForTest(t *task.Task) {
	s.queue = append(s.queue, t)
}
