// Package task implements the Task and Registry data model of spec.md §3:
// process/thread identity, lifecycle state, parent/child bookkeeping and the
// at-most-one-hart CPU ownership invariant.
package task

import (
	"sync"
	"sync/atomic"

	"github.com/Ewad245/RISCV32/internal/cpu"
)

// State is a Task's scheduling state.
type State int

const (
	StateReady State = iota
	StateRunning
	StateWaiting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateWaiting:
		return "WAITING"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// WaitReason classifies why a WAITING task is blocked.
type WaitReason int

const (
	WaitNone WaitReason = iota
	WaitUARTInput
	WaitTimer
	WaitProcessExit
	WaitGeneric
)

// NoHart is the sentinel active-hart-id meaning "no hart currently holds
// this task".
const NoHart int32 = -1

// AnyChild is the waiting-for-pid sentinel meaning "wait for any child".
const AnyChild int = -1

// AddressSpace is the minimal lifecycle contract a Task's backing MMU
// address space must satisfy. Concrete MMUs (contiguous.Space,
// paged.AddressSpace) each implement it; syscall/kernel code that needs
// MMU-specific operations (fork copy, exec swap) type-asserts to the
// concrete interface it needs, keeping Task itself MMU-agnostic per the
// "pluggable MMU" design note (spec.md §9).
type AddressSpace interface {
	Destroy() error
}

// Task is one schedulable unit: a process (unique AS) or a thread (shared
// AS, shared TGID).
type Task struct {
	mu sync.Mutex

	PID       int
	Name      string
	ParentPID int // weak back-reference; -1 if none (spec.md §9)
	TGID      int
	Children  map[int]*Task // owning set, keyed by child PID

	registers cpu.RegFile
	pc        uint32

	StackBase uint32
	StackSize uint32

	ExitCode int32

	state         State
	waitReason    WaitReason
	waitingForPID int
	wakeupTime    int64

	activeHartID atomic.Int32

	Priority int
	sequence uint64 // FIFO tie-break for priority scheduling

	AS AddressSpace
}

func newTask(pid int, name string, priority int, as AddressSpace) *Task {
	t := &Task{
		PID:       pid,
		Name:      name,
		ParentPID: -1,
		TGID:      pid,
		Children:  make(map[int]*Task),
		Priority:  priority,
		AS:        as,
		state:     StateReady,
	}
	t.activeHartID.Store(NoHart)
	return t
}

func (t *Task) Lock()   { t.mu.Lock() }
func (t *Task) Unlock() { t.mu.Unlock() }

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task) SetState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

func (t *Task) WaitReason() WaitReason {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.waitReason
}

func (t *Task) WaitingForPID() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.waitingForPID
}

func (t *Task) WakeupTime() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.wakeupTime
}

// SetWaiting atomically transitions the task to WAITING with the given
// reason/pid/wakeup-time in one call, so observers never see a partially
// updated wait descriptor.
func (t *Task) SetWaiting(reason WaitReason, waitingForPID int, wakeupTime int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateWaiting
	t.waitReason = reason
	t.waitingForPID = waitingForPID
	t.wakeupTime = wakeupTime
}

// GetRegisters/SetRegisters/GetPC/SetPC satisfy cpu.TaskState so a Hart can
// SaveState/RestoreState directly against a Task.
func (t *Task) GetRegisters() cpu.RegFile {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.registers
}

func (t *Task) SetRegisters(r cpu.RegFile) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.registers = r
}

func (t *Task) GetPC() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pc
}

func (t *Task) SetPC(pc uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pc = pc
}

// SetExitCode records the code passed to EXIT/terminateTask under the
// task's own lock, since ExitCode is read by a parent's WAIT from a
// different goroutine than the one that set it.
func (t *Task) SetExitCode(code int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ExitCode = code
}

// GetExitCode returns the exit code recorded by SetExitCode.
func (t *Task) GetExitCode() int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ExitCode
}

// Reg reads a single register by index, with x0 hard-wired to zero.
func (t *Task) Reg(i int) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i == 0 {
		return 0
	}
	return t.registers[i]
}

// SetReg writes a single register by index; writes to x0 are discarded.
func (t *Task) SetReg(i int, v uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i == 0 {
		return
	}
	t.registers[i] = v
}

// TryAcquireCPU performs the atomic CAS described in spec.md §3: exactly one
// hart may hold active-hart-id at a time. Failure (another hart already
// holds it) signals DOUBLE_SCHEDULE to the caller, which must panic
// (spec.md §7).
func (t *Task) TryAcquireCPU(hartID int) bool {
	return t.activeHartID.CompareAndSwap(NoHart, int32(hartID))
}

// ReleaseCPU clears CPU ownership.
func (t *Task) ReleaseCPU() {
	t.activeHartID.Store(NoHart)
}

// ActiveHartID reports which hart currently owns this task, or NoHart.
func (t *Task) ActiveHartID() int32 {
	return t.activeHartID.Load()
}

// FindZombieChild returns the first TERMINATED child found (spec.md §4.6
// WAIT scans children for any zombie; no ordering is specified) and removes
// it from the children set, or reports false if none is currently a zombie.
func (t *Task) FindZombieChild() (*Task, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for pid, c := range t.Children {
		if c.State() == StateTerminated {
			delete(t.Children, pid)
			return c, true
		}
	}
	return nil, false
}

// HasChildren reports whether this task currently owns any children at all
// (zombie or alive).
func (t *Task) HasChildren() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Children) > 0
}

// IsThread reports whether this task is a thread (shares its thread
// group's AS) rather than the group leader process.
func (t *Task) IsThread() bool {
	return t.TGID != t.PID
}
