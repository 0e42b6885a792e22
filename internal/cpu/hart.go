package cpu

import (
	"fmt"

	"github.com/Ewad245/RISCV32/internal/mem"
)

// ExceptionCode enumerates the exception causes the hart can report to the
// kernel dispatcher. This simulator does not model the full RISC-V trap
// cause encoding; these are internal classifications consumed by
// kernel.dispatch's TERMINATED path.
type ExceptionCode uint8

const (
	ExcNone ExceptionCode = iota
	ExcIllegalInstruction
	ExcMisalignedFetch
	ExcMemFault
	ExcProtectionFault
)

// RegFile is the 32-entry integer register file; x0 is always read as zero
// and writes to it are discarded.
type RegFile [32]uint32

// Hart is one simulated hardware thread: 32 integer registers, PC, the
// pending-ECALL/pending-exception flags the dispatcher polls after every
// Step, and the memory interface currently in effect for the dispatched
// task (the kernel swaps this via the MMU's context-switch before running a
// task — see kernel.Kernel.execute).
type Hart struct {
	ID int

	Regs RegFile
	PC   uint32

	Mem mem.Memory

	pendingEcall     bool
	pendingException bool
	excCode          ExceptionCode
	excValue         uint32

	lastDecoded Decoded
	instrCount  uint64
}

// NewHart constructs a hart with the given id. Mem must be set by the
// caller (kernel.Kernel) before Step is called.
func NewHart(id int) *Hart {
	return &Hart{ID: id}
}

// IsEcall reports whether the most recent Step trapped on ECALL/EBREAK.
func (h *Hart) IsEcall() bool { return h.pendingEcall }

// IsException reports whether the most recent Step raised a hardware
// exception (illegal instruction, misaligned fetch, or a memory fault
// surfaced by the Memory interface).
func (h *Hart) IsException() bool { return h.pendingException }

// ExceptionCode returns the cause of the most recent exception.
func (h *Hart) ExceptionCode() ExceptionCode { return h.excCode }

// ExceptionValue returns the faulting address/value, when applicable.
func (h *Hart) ExceptionValue() uint32 { return h.excValue }

// ClearTrap resets the pending-ECALL/pending-exception flags; called by the
// dispatcher once it has acted on them.
func (h *Hart) ClearTrap() {
	h.pendingEcall = false
	h.pendingException = false
	h.excCode = ExcNone
	h.excValue = 0
}

func (h *Hart) reg(i uint32) uint32 {
	if i == 0 {
		return 0
	}
	return h.Regs[i]
}

func (h *Hart) setReg(i uint32, v uint32) {
	if i == 0 {
		return
	}
	h.Regs[i] = v
}

// SetProgramCounter rewinds or redirects the PC. The syscall layer uses this
// to rewind PC by 4 before a WAITING transition so that re-dispatch re-runs
// the ECALL (spec.md §4.6, testable property 5). There is no hardware
// invariant that the instruction at pc-4 actually decodes to ECALL; debug
// builds (-tags rvsim_debug) assert it via assertRewindIsEcall.
func (h *Hart) SetProgramCounter(pc uint32) {
	assertRewindIsEcall(h, pc)
	h.PC = pc
}

// Step fetches one instruction via the EXEC access kind, decodes and
// executes it. It returns normally in all cases (including traps/faults);
// the dispatcher must poll IsEcall/IsException after every call, per the
// "exceptions for control flow" design note in spec.md §9.
func (h *Hart) Step() error {
	if h.PC%4 != 0 {
		h.pendingException = true
		h.excCode = ExcMisalignedFetch
		h.excValue = h.PC
		return &MisalignedFetchError{PC: h.PC}
	}

	insn, err := h.fetch(h.PC)
	if err != nil {
		h.pendingException = true
		h.excCode = ExcMemFault
		h.excValue = h.PC
		return err
	}

	d := decode(insn)
	h.lastDecoded = d
	h.instrCount++

	return h.execute(d)
}

// InstrCount returns the number of instructions this hart has retired since
// creation, including those that trapped. Used only for progress reporting.
func (h *Hart) InstrCount() uint64 { return h.instrCount }

// fetch reads the instruction word at pc. When Mem implements
// mem.ExecMemory (the paged MMU does; the contiguous MMU does not need to,
// since it carries no per-page permission bits) it goes through
// ReadInstruction so X-permission is enforced separately from plain R
// loads; otherwise it falls back to ReadWord.
func (h *Hart) fetch(pc uint32) (uint32, error) {
	if em, ok := h.Mem.(mem.ExecMemory); ok {
		return em.ReadInstruction(pc)
	}
	return h.Mem.ReadWord(pc)
}

// LastDecoded exposes the most recently decoded instruction for Debug-level
// trace logging only.
func (h *Hart) LastDecoded() Decoded { return h.lastDecoded }

func (h *Hart) raiseMemFault(err error) error {
	h.pendingException = true
	h.excCode = ExcMemFault
	if fe, ok := err.(*mem.FaultError); ok {
		h.excValue = fe.Addr
	} else if pf, ok := err.(*mem.ProtectionFaultError); ok {
		h.excCode = ExcProtectionFault
		h.excValue = pf.Addr
	}
	return err
}

func (h *Hart) raiseIllegal(d Decoded) error {
	h.pendingException = true
	h.excCode = ExcIllegalInstruction
	h.excValue = d.Insn
	return &IllegalInstructionError{PC: h.PC, Insn: d.Insn}
}

// TaskState mirrors the subset of task.Task the hart needs for
// SaveState/RestoreState without importing the task package, which would
// create an import cycle (task does not need cpu, but kernel needs both and
// wires them together).
type TaskState interface {
	GetRegisters() RegFile
	SetRegisters(RegFile)
	GetPC() uint32
	SetPC(uint32)
}

// SaveState copies the hart's registers and PC into the task record.
func (h *Hart) SaveState(t TaskState) {
	t.SetRegisters(h.Regs)
	t.SetPC(h.PC)
}

// RestoreState copies a task record's registers and PC into the hart.
func (h *Hart) RestoreState(t TaskState) {
	h.Regs = t.GetRegisters()
	h.PC = t.GetPC()
}

func (h *Hart) String() string {
	return fmt.Sprintf("hart%d@0x%08x", h.ID, h.PC)
}
