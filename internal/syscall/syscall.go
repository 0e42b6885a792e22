// Package syscall implements the dispatch layer of spec.md §4.6: argument
// marshalling out of {a0..a5}/a7, EXIT/READ/WRITE/YIELD/FORK/EXEC/WAIT/
// SLEEP/GETPID/GET_TIME/DEBUG_PRINT. It operates directly on a *task.Task
// record: by the time Dispatch runs, the kernel dispatcher has already
// called saveState(hart) (spec.md §4.5 step 3), so every register, the PC
// and the ECALL argument convention are already copied into the task. The
// *cpu.Hart passed into Dispatch is only used, call-scoped, to route a
// blocking syscall's PC rewind through Hart.SetProgramCounter. This package
// does not import internal/kernel — the wait-queue routing that happens
// after a syscall sets WAITING/TERMINATED state lives entirely in
// kernel.dispatch, reading plain Task state.
package syscall

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/Ewad245/RISCV32/internal/contiguous"
	"github.com/Ewad245/RISCV32/internal/cpu"
	"github.com/Ewad245/RISCV32/internal/elf"
	"github.com/Ewad245/RISCV32/internal/mem"
	"github.com/Ewad245/RISCV32/internal/paged"
	"github.com/Ewad245/RISCV32/internal/task"
)

// Syscall numbers, fixed by spec.md §4.6.
const (
	SysExit       = 93
	SysRead       = 63
	SysWrite      = 64
	SysYield      = 124
	SysGetPID     = 172
	SysFork       = 220
	SysExec       = 221
	SysWait       = 260
	SysDebugPrint = 1000
	SysGetTime    = 1001
	SysSleep      = 1002
)

const (
	maxPathLen = 4096
	maxArgv    = 64
	maxArgLen  = 4096
)

// VM is the minimal contract the syscall layer needs from whichever MMU
// backend is configured: ordinary virtual memory access plus the ability to
// move the "current task" translation context, shared with internal/kernel
// so both packages can hold the same concrete *paged.MMU/*contiguous.MMU
// without a dedicated adapter type.
type VM interface {
	mem.Memory
	SwitchContext(pid int) error
}

// scratchPID derives a synthetic negative PID for EXEC's build-before-swap,
// distinct from every real (positive, monotonic) PID and from the paged
// frame allocator's -1/-2/-3 owner sentinels (a different namespace
// entirely — those key FrameAllocator.Owner, not asByPID/byPID).
func scratchPID(realPID int) int {
	return -(1_000_000 + realPID)
}

// Handler implements every syscall number against a shared VM, task
// registry and UART device. It holds no per-task state: Dispatch takes the
// calling task explicitly and is safe to call concurrently for different
// tasks, serialized only by the kernel's ctxLock (which also guards the VM's
// single "current context" field — see DESIGN.md).
type Handler struct {
	Logger   *slog.Logger
	VM       VM
	Registry *task.Registry
	UART     *mem.UART
	Stdout   io.Writer

	DebugPrintEnabled bool

	// NowMillis returns the current wall-clock time in epoch milliseconds;
	// overridable for deterministic tests.
	NowMillis func() int64

	// LoadELF reads a host file by path for EXEC; overridable for tests so
	// they don't need real files on disk.
	LoadELF func(path string) ([]byte, error)
}

// NewHandler constructs a Handler with the given collaborators and the
// production defaults for NowMillis/LoadELF.
func NewHandler(logger *slog.Logger, vm VM, reg *task.Registry, uart *mem.UART, stdout io.Writer, debugPrintEnabled bool) *Handler {
	if stdout == nil {
		stdout = os.Stdout
	}
	return &Handler{
		Logger:            logger,
		VM:                vm,
		Registry:          reg,
		UART:              uart,
		Stdout:            stdout,
		DebugPrintEnabled: debugPrintEnabled,
		NowMillis:         defaultNowMillis,
		LoadELF:           os.ReadFile,
	}
}

// UnknownSyscallError reports an a7 value with no handler, or DEBUG_PRINT
// invoked while disabled (spec.md §4.6: "else 'unknown syscall' error
// path").
type UnknownSyscallError struct {
	Number uint32
}

func (e *UnknownSyscallError) Error() string {
	return fmt.Sprintf("syscall: unknown syscall number %d", e.Number)
}

// Dispatch services the ECALL currently recorded in t's registers (a7 =
// syscall number, a0..a5 = arguments), mutating t's state/registers/PC in
// place per spec.md §4.6. When the syscall is FORK, spawned is the new
// child task (already linked to t and left READY) that the kernel must also
// enqueue onto the scheduler — syscall itself has no scheduler reference, to
// avoid importing internal/sched's Scheduler contract down into a layer
// that only needs to decide task state, not queue placement. hart is the
// calling task's hart for the duration of this call only (its Mem still
// points at t's address space); READ/WAIT use it solely to route their
// ECALL-retry rewind through Hart.SetProgramCounter. Handler itself keeps no
// reference to it, preserving Dispatch's safety for concurrent calls across
// harts.
func (h *Handler) Dispatch(t *task.Task, hart *cpu.Hart) (spawned *task.Task, err error) {
	num := t.Reg(17)

	switch num {
	case SysExit:
		t.SetExitCode(int32(t.Reg(10)))
		t.SetState(task.StateTerminated)

	case SysYield:
		t.SetState(task.StateReady)

	case SysGetPID:
		t.SetReg(10, uint32(t.PID))

	case SysGetTime:
		t.SetReg(10, uint32(h.NowMillis()))

	case SysSleep:
		ms := int64(t.Reg(10))
		t.SetWaiting(task.WaitTimer, task.AnyChild, h.NowMillis()+ms)

	case SysWrite:
		n := h.doWrite(t.Reg(10), t.Reg(11), t.Reg(12))
		t.SetReg(10, n)

	case SysRead:
		h.doRead(t, hart)

	case SysFork:
		spawned, err = h.doFork(t)

	case SysExec:
		h.doExec(t)

	case SysWait:
		h.doWait(t, hart)

	case SysDebugPrint:
		if !h.DebugPrintEnabled {
			return nil, &UnknownSyscallError{Number: num}
		}
		msg, _ := readCString(h.VM, t.Reg(10), maxArgLen)
		h.Logger.Info("debug_print", "pid", t.PID, "msg", msg)

	default:
		return nil, &UnknownSyscallError{Number: num}
	}

	return spawned, err
}

func (h *Handler) doWrite(fd, buf, n uint32) uint32 {
	if fd != 1 && fd != 2 {
		return uint32(int32(-1))
	}
	var written uint32
	for i := uint32(0); i < n; i++ {
		b, err := h.VM.ReadByte(buf + i)
		if err != nil {
			break
		}
		if b == 0 {
			break
		}
		_, _ = h.Stdout.Write([]byte{b})
		written++
	}
	return written
}

// rewindToEcall backs t's PC up by 4 so redispatch re-executes the ECALL
// that led here (spec.md §4.6, testable property 5), routing the rewind
// through hart.SetProgramCounter so -tags rvsim_debug's assertRewindIsEcall
// can catch a rewind that lands somewhere other than an ECALL.
func rewindToEcall(t *task.Task, hart *cpu.Hart) {
	pc := t.GetPC() - 4
	hart.SetProgramCounter(pc)
	t.SetPC(pc)
}

// doRead services READ(fd=0, buf, n): spec.md §4.6 only ever transfers one
// byte per call, rewinding PC to retry once UART input is available.
func (h *Handler) doRead(t *task.Task, hart *cpu.Hart) {
	if h.UART.Status()&1 == 0 {
		t.SetWaiting(task.WaitUARTInput, task.AnyChild, 0)
		rewindToEcall(t, hart)
		return
	}
	b, ok := h.UART.ReadRxData()
	if !ok {
		t.SetWaiting(task.WaitUARTInput, task.AnyChild, 0)
		rewindToEcall(t, hart)
		return
	}
	buf := t.Reg(11)
	if err := h.VM.WriteByte(buf, b); err != nil {
		t.SetReg(10, uint32(int32(-1)))
		return
	}
	t.SetReg(10, 1)
}

// doFork implements spec.md §4.6 FORK: AS-copy, verbatim register clone with
// the child's a0 forced to 0, parent/child linkage, child left READY.
func (h *Handler) doFork(t *task.Task) (*task.Task, error) {
	childPID := h.Registry.ReservePID()

	var childAS task.AddressSpace
	switch vm := h.VM.(type) {
	case *paged.MMU:
		parentAS, ok := t.AS.(*paged.AddressSpace)
		if !ok {
			t.SetReg(10, uint32(int32(-1)))
			return nil, nil
		}
		as, err := vm.CopyAddressSpace(parentAS, childPID)
		if err != nil {
			t.SetReg(10, uint32(int32(-1)))
			return nil, nil
		}
		childAS = as
	case *contiguous.MMU:
		space, err := vm.Fork(t.PID, childPID)
		if err != nil {
			t.SetReg(10, uint32(int32(-1)))
			return nil, nil
		}
		childAS = space
	default:
		return nil, fmt.Errorf("syscall: fork: unsupported VM backend %T", h.VM)
	}

	child := h.Registry.CreateProcessWithPID(childPID, t.Name+"-fork", t.Priority, childAS)
	child.SetRegisters(t.GetRegisters())
	child.SetPC(t.GetPC())
	child.SetReg(10, 0)
	child.StackBase, child.StackSize = t.StackBase, t.StackSize
	child.SetState(task.StateReady)

	h.Registry.Link(t, child)
	t.SetReg(10, uint32(childPID))
	return child, nil
}

// doExec implements spec.md §4.6 EXEC via the scratch-PID technique
// (DESIGN.md): the new address space is built under a synthetic PID so any
// failure (BAD_ELF, OOM_FRAME) leaves t's current address space untouched,
// and only a fully-built image is rebound onto t's real PID and allowed to
// replace the old one.
func (h *Handler) doExec(t *task.Task) {
	pathPtr, argvPtr := t.Reg(10), t.Reg(11)

	path, err := readCString(h.VM, pathPtr, maxPathLen)
	if err != nil {
		t.SetReg(10, uint32(int32(-1)))
		return
	}
	argv, err := readArgv(h.VM, argvPtr)
	if err != nil {
		t.SetReg(10, uint32(int32(-1)))
		return
	}

	data, err := h.LoadELF(path)
	if err != nil {
		t.SetReg(10, uint32(int32(-1)))
		return
	}

	scratch := scratchPID(t.PID)

	var newEntry, newSP, newArgv uint32
	var newAS task.AddressSpace

	switch vm := h.VM.(type) {
	case *paged.MMU:
		as, entry, sp, argvAddr, err := elf.LoadPaged(vm, scratch, data, argv)
		if err != nil {
			t.SetReg(10, uint32(int32(-1)))
			return
		}
		evicted, err := vm.Rebind(as, t.PID)
		if err != nil {
			_ = as.Destroy()
			t.SetReg(10, uint32(int32(-1)))
			return
		}
		if evicted != nil {
			_ = evicted.Destroy()
		}
		newAS, newEntry, newSP, newArgv = as, entry, sp, argvAddr

	case *contiguous.MMU:
		space, entry, sp, argvAddr, err := elf.LoadContiguous(vm, scratch, data, argv)
		if err != nil {
			t.SetReg(10, uint32(int32(-1)))
			return
		}
		if err := vm.Rebind(space, t.PID); err != nil {
			_ = space.Destroy()
			t.SetReg(10, uint32(int32(-1)))
			return
		}
		newAS, newEntry, newSP, newArgv = space, entry, sp, argvAddr

	default:
		t.SetReg(10, uint32(int32(-1)))
		return
	}

	t.AS = newAS
	t.SetPC(newEntry)
	t.SetReg(2, newSP)    // sp = x2
	t.SetReg(11, newArgv) // a1 = argv array address
	t.SetReg(10, uint32(len(argv)))
}

// doWait implements spec.md §4.6 WAIT(statusPtr).
func (h *Handler) doWait(t *task.Task, hart *cpu.Hart) {
	statusPtr := t.Reg(10)

	zombie, ok := t.FindZombieChild()
	if ok {
		if statusPtr != 0 {
			_ = h.VM.WriteWord(statusPtr, uint32(zombie.GetExitCode()))
		}
		if zombie.AS != nil {
			_ = zombie.AS.Destroy()
		}
		h.Registry.Remove(zombie.PID)
		t.SetReg(10, uint32(zombie.PID))
		return
	}

	if t.HasChildren() {
		t.SetWaiting(task.WaitProcessExit, task.AnyChild, 0)
		rewindToEcall(t, hart)
		return
	}

	t.SetReg(10, uint32(int32(-1)))
}

func defaultNowMillis() int64 {
	return time.Now().UnixMilli()
}

func readCString(vm mem.Memory, va uint32, max int) (string, error) {
	buf := make([]byte, 0, 64)
	for i := 0; i < max; i++ {
		b, err := vm.ReadByte(va + uint32(i))
		if err != nil {
			return "", err
		}
		if b == 0 {
			return string(buf), nil
		}
		buf = append(buf, b)
	}
	return string(buf), nil
}

func readArgv(vm mem.Memory, ptrArray uint32) ([]string, error) {
	if ptrArray == 0 {
		return nil, nil
	}
	var out []string
	for i := 0; i < maxArgv; i++ {
		p, err := vm.ReadWord(ptrArray + uint32(i)*4)
		if err != nil {
			return nil, err
		}
		if p == 0 {
			break
		}
		s, err := readCString(vm, p, maxArgLen)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
