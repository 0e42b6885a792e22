package sched

import "github.com/Ewad245/RISCV32/internal/task"

// roundRobinScheduler is a plain FIFO ready queue with a forced time slice.
type roundRobinScheduler struct {
	lock      *Spinlock
	queue     []*task.Task
	inSet     map[int]bool
	timeSlice int
}

func newRoundRobinScheduler(timeSlice int) *roundRobinScheduler {
	return &roundRobinScheduler{
		lock:      NewSpinlock(),
		inSet:     make(map[int]bool),
		timeSlice: timeSlice,
	}
}

func (s *roundRobinScheduler) AddTask(ownerID int, t *task.Task) {
	s.lock.Acquire(ownerID)
	defer s.lock.Release(ownerID)
	if s.inSet[t.PID] {
		return
	}
	s.inSet[t.PID] = true
	s.queue = append(s.queue, t)
}

func (s *roundRobinScheduler) RemoveTask(ownerID int, t *task.Task) {
	s.lock.Acquire(ownerID)
	defer s.lock.Release(ownerID)
	s.removeLocked(t.PID)
}

func (s *roundRobinScheduler) removeLocked(pid int) {
	if !s.inSet[pid] {
		return
	}
	delete(s.inSet, pid)
	for i, qt := range s.queue {
		if qt.PID == pid {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

func (s *roundRobinScheduler) Schedule(ownerID int) *task.Task {
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

func (s *roundRobinScheduler) TimeSlice() int { return s.timeSlice }

func (s *roundRobinScheduler) ReadySnapshot() []*task.Task {
	s.lock.Acquire(ObserverOwnerID)
	defer s.lock.Release(ObserverOwnerID)
	out := make([]*task.Task, len(s.queue))
	copy(out, s.queue)
	return out
}

// forceEnqueueForTest bypasses the membership guard, used only by scenario
// S6 (spec.md §8) to simulate two harts racing to pop the same task.
func (s *roundRobinScheduler) forceEnqueueForTest(t *task.Task) {
	s.queue = append(s.queue, t)
}
