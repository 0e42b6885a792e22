package task

import "sync"

// Registry owns the monotonic PID counter and the global task table. Per
// the "global mutable state" design note (spec.md §9) it is a single
// mutex-guarded type rather than a package-level map, so multiple kernels
// (e.g. in tests) can run without shared state bleeding between them.
type Registry struct {
	mu      sync.Mutex
	nextPID int
	seq     uint64
	tasks   map[int]*Task
}

// NewRegistry creates an empty task table; PIDs start at 1.
func NewRegistry() *Registry {
	return &Registry{nextPID: 1, tasks: make(map[int]*Task)}
}

// CreateProcess allocates a fresh PID and a new thread-group leader task
// (TGID = its own PID).
func (r *Registry) CreateProcess(name string, priority int, as AddressSpace) *Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	pid := r.nextPID
	r.nextPID++
	r.seq++

	t := newTask(pid, name, priority, as)
	t.sequence = r.seq
	r.tasks[pid] = t
	return t
}

// ReservePID claims the next monotonic PID without creating a task for it
// yet. FORK needs the child's PID before it can AS-copy into it (the copy
// itself is keyed by PID), so it reserves one here and then passes it to
// CreateProcessWithPID once the copy has succeeded.
func (r *Registry) ReservePID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	pid := r.nextPID
	r.nextPID++
	return pid
}

// CreateProcessWithPID inserts a task under a PID previously claimed via
// ReservePID.
func (r *Registry) CreateProcessWithPID(pid int, name string, priority int, as AddressSpace) *Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	t := newTask(pid, name, priority, as)
	t.sequence = r.seq
	r.tasks[pid] = t
	return t
}

// Get looks up a task by PID.
func (r *Registry) Get(pid int) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[pid]
	return t, ok
}

// All returns every task currently in the table (including zombies),
// safe for observation snapshots.
func (r *Registry) All() []*Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	return out
}

// Remove deletes a task from the table entirely. Called once a parent's
// wait() has consumed a zombie and its AS has been destroyed.
func (r *Registry) Remove(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, pid)
}

// Link records parent/child ownership: child.ParentPID = parent.PID and
// parent.Children[child.PID] = child (spec.md §9 back-reference design).
func (r *Registry) Link(parent, child *Task) {
	child.mu.Lock()
	child.ParentPID = parent.PID
	child.mu.Unlock()

	parent.mu.Lock()
	parent.Children[child.PID] = child
	parent.mu.Unlock()
}

// Unlink removes childPID from parent's owned child set. It does not touch
// the registry table itself; callers that also want the child's PID fully
// forgotten must call Remove.
func (r *Registry) Unlink(parent *Task, childPID int) {
	parent.mu.Lock()
	defer parent.mu.Unlock()
	delete(parent.Children, childPID)
}

// NextSequence returns a monotonically increasing counter, the same one that
// numbers tasks at creation. The priority scheduler does not use it; it
// numbers insertions with its own counter.
func (r *Registry) NextSequence() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return r.seq
}

// Sequence reports the insertion-order sequence number recorded for t when
// it was created. The priority scheduler breaks ties with its own insertion
// counter, not with this value.
func (t *Task) Sequence() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sequence
}
