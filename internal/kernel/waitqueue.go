package kernel

import (
	"github.com/google/btree"

	"github.com/Ewad245/RISCV32/internal/task"
)

// ioWaitQueue holds every task blocked in WAITING(UART_INPUT), drained in
// FIFO order by the maintenance loop once the UART status bit signals data
// is available (spec.md §4.5 maintenance loop, UART bullet).
type ioWaitQueue struct {
	waiters []*task.Task
}

func (q *ioWaitQueue) push(t *task.Task) {
	q.waiters = append(q.waiters, t)
}

// drain removes and returns every currently queued waiter, leaving the
// queue empty. Called once per maintenance tick when UART input is ready;
// every UART_INPUT waiter becomes READY at once since any of them may win
// the race to actually read the byte.
func (q *ioWaitQueue) drain() []*task.Task {
	if len(q.waiters) == 0 {
		return nil
	}
	out := q.waiters
	q.waiters = nil
	return out
}

// remove drops the waiter with the given pid, if present, used when a task
// is terminated externally while still blocked on UART input.
func (q *ioWaitQueue) remove(pid int) {
	for i, t := range q.waiters {
		if t.PID == pid {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return
		}
	}
}

func (q *ioWaitQueue) snapshot() []*task.Task {
	out := make([]*task.Task, len(q.waiters))
	copy(out, q.waiters)
	return out
}

// sleepEntry is one pending SLEEP wakeup, ordered by wakeupTime so the
// maintenance loop can pop every due entry without a linear scan.
type sleepEntry struct {
	wakeupTime int64
	seq        uint64 // tie-break so btree never treats two entries as equal
	t          *task.Task
}

func lessSleepEntry(a, b sleepEntry) bool {
	if a.wakeupTime != b.wakeupTime {
		return a.wakeupTime < b.wakeupTime
	}
	return a.seq < b.seq
}

// sleepQueue orders pending SLEEP wakeups by due time, backed by an ordered
// tree (the same google/btree workhorse the contiguous MMU's hole/block
// lists and the priority scheduler use) so popDue never needs a linear scan
// of every sleeper.
type sleepQueue struct {
	tree *btree.BTreeG[sleepEntry]
	seq  uint64
}

func newSleepQueue() *sleepQueue {
	return &sleepQueue{tree: btree.NewG(32, lessSleepEntry)}
}

func (q *sleepQueue) push(t *task.Task, wakeupTime int64) {
	q.seq++
	q.tree.ReplaceOrInsert(sleepEntry{wakeupTime: wakeupTime, seq: q.seq, t: t})
}

// popDue removes and returns every entry whose wakeupTime is <= now.
func (q *sleepQueue) popDue(now int64) []*task.Task {
	var due []sleepEntry
	q.tree.Ascend(func(e sleepEntry) bool {
		if e.wakeupTime > now {
			return false
		}
		due = append(due, e)
		return true
	})
	if len(due) == 0 {
		return nil
	}
	out := make([]*task.Task, len(due))
	for i, e := range due {
		q.tree.Delete(e)
		out[i] = e.t
	}
	return out
}

// remove drops the sleep entry for the given pid, if present, used when a
// task is terminated externally while still blocked in SLEEP.
func (q *sleepQueue) remove(pid int) {
	var found *sleepEntry
	q.tree.Ascend(func(e sleepEntry) bool {
		if e.t.PID == pid {
			found = &e
			return false
		}
		return true
	})
	if found != nil {
		q.tree.Delete(*found)
	}
}

func (q *sleepQueue) snapshot() []*task.Task {
	out := make([]*task.Task, 0, q.tree.Len())
	q.tree.Ascend(func(e sleepEntry) bool {
		out = append(out, e.t)
		return true
	})
	return out
}

// childWaitSet holds tasks blocked in WAITING(PROCESS_EXIT), split by
// whether they named a specific child PID or used task.AnyChild. spec.md
// §4.5's dispatch table describes routing "PROCESS_EXIT with specific pid"
// into a child-term map and "PROCESS_EXIT with -1" into a queue; the actual
// wakeup trigger is the TERMINATED-dispatch bullet ("wake parent if it is
// waiting on this, specific or any"), which needs pid-keyed lookup for the
// specific case and FIFO for the any-child case, so this is two structures
// behind one API rather than one literal queue.
type childWaitSet struct {
	byChild map[int]*task.Task
	any     []*task.Task
}

func newChildWaitSet() *childWaitSet {
	return &childWaitSet{byChild: make(map[int]*task.Task)}
}

func (c *childWaitSet) push(t *task.Task, waitingForPID int) {
	if waitingForPID == task.AnyChild {
		c.any = append(c.any, t)
		return
	}
	c.byChild[waitingForPID] = t
}

// wakeForChild returns and removes the parent (if any) blocked waiting
// specifically on childPID, else the first parent waiting on any child.
func (c *childWaitSet) wakeForChild(childPID int) (*task.Task, bool) {
	if p, ok := c.byChild[childPID]; ok {
		delete(c.byChild, childPID)
		return p, true
	}
	if len(c.any) == 0 {
		return nil, false
	}
	p := c.any[0]
	c.any = c.any[1:]
	return p, true
}

// remove drops t from whichever sub-structure holds it, used when t is
// terminated externally while still blocked in WAIT.
func (c *childWaitSet) remove(t *task.Task) {
	for pid, p := range c.byChild {
		if p.PID == t.PID {
			delete(c.byChild, pid)
			return
		}
	}
	for i, p := range c.any {
		if p.PID == t.PID {
			c.any = append(c.any[:i], c.any[i+1:]...)
			return
		}
	}
}

func (c *childWaitSet) snapshot() []*task.Task {
	out := make([]*task.Task, 0, len(c.byChild)+len(c.any))
	for _, p := range c.byChild {
		out = append(out, p)
	}
	out = append(out, c.any...)
	return out
}
