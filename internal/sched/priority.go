package sched

import (
	"github.com/google/btree"

	"github.com/Ewad245/RISCV32/internal/task"
)

// prioItem orders the priority scheduler's ready set: higher priority
// first, FIFO (insertion sequence) among equal priorities.
type prioItem struct {
	priority int
	sequence uint64
	t        *task.Task
}

func lessPrioItem(a, b prioItem) bool {
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	return a.sequence < b.sequence
}

// priorityScheduler is a max-heap by task.Priority, FIFO among ties, backed
// by an ordered tree so Schedule() is always the single smallest item by
// (priority desc, sequence asc).
type priorityScheduler struct {
	lock      *Spinlock
	tree      *btree.BTreeG[prioItem]
	byPID     map[int]prioItem
	seq       uint64
	timeSlice int
}

func newPriorityScheduler(timeSlice int) *priorityScheduler {
	return &priorityScheduler{
		lock:      NewSpinlock(),
		tree:      btree.NewG(32, lessPrioItem),
		byPID:     make(map[int]prioItem),
		timeSlice: timeSlice,
	}
}

func (s *priorityScheduler) AddTask(ownerID int, t *task.Task) {
	s.lock.Acquire(ownerID)
	defer s.lock.Release(ownerID)
	if _, ok := s.byPID[t.PID]; ok {
		return
	}
	s.seq++
	item := prioItem{priority: t.Priority, sequence: s.seq, t: t}
	s.byPID[t.PID] = item
	s.tree.ReplaceOrInsert(item)
}

func (s *priorityScheduler) RemoveTask(ownerID int, t *task.Task) {
	s.lock.Acquire(ownerID)
	defer s.lock.Release(ownerID)
	s.removeLocked(t.PID)
}

func (s *priorityScheduler) removeLocked(pid int) {
	item, ok := s.byPID[pid]
	if !ok {
		return
	}
	delete(s.byPID, pid)
	s.tree.Delete(item)
}

func (s *priorityScheduler) Schedule(ownerID int) *task.Task {
	s.lock.Acquire(ownerID)
	defer s.lock.Release(ownerID)
	item, ok := s.tree.Min()
	if !ok {
		return nil
	}
	s.tree.Delete(item)
	delete(s.byPID, item.t.PID)
	return item.t
}

func (s *priorityScheduler) TimeSlice() int { return s.timeSlice }

func (s *priorityScheduler) ReadySnapshot() []*task.Task {
	s.lock.Acquire(ObserverOwnerID)
	defer s.lock.Release(ObserverOwnerID)
	out := make([]*task.Task, 0, s.tree.Len())
	s.tree.Ascend(func(item prioItem) bool {
		out = append(out, item.t)
		return true
	})
	return out
}

func (s *priorityScheduler) forceEnqueueForTest(t *task.Task) {
	s.seq++
	s.tree.ReplaceOrInsert(prioItem{priority: t.Priority, sequence: s.seq, t: t})
}
