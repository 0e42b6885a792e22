package cpu

import (
	"testing"

	"github.com/Ewad245/RISCV32/internal/mem"
)

// flatMemory is a trivial Memory implementation over a byte slice, used to
// keep these tests independent of the MMU packages.
type flatMemory struct {
	ram *mem.RAM
}

func newFlatMemory(size uint32) *flatMemory {
	return &flatMemory{ram: mem.NewRAM(size)}
}

func (m *flatMemory) ReadByte(va uint32) (byte, error)   { return m.ram.ReadByte(va) }
func (m *flatMemory) ReadHalf(va uint32) (uint16, error) { return m.ram.ReadHalf(va) }
func (m *flatMemory) ReadWord(va uint32) (uint32, error) { return m.ram.ReadWord(va) }
func (m *flatMemory) WriteByte(va uint32, v byte) error  { return m.ram.WriteByte(va, v) }
func (m *flatMemory) WriteHalf(va uint32, v uint16) error {
	return m.ram.WriteHalf(va, v)
}
func (m *flatMemory) WriteWord(va uint32, v uint32) error {
	return m.ram.WriteWord(va, v)
}
func (m *flatMemory) WriteByteToVirtual(va uint32, v byte) error {
	return m.ram.WriteByte(va, v)
}

func encodeI(opcode, rd, funct3, rs1 uint32, imm int32) uint32 {
	return (uint32(imm)<<20)&0xfff00000 | (rs1 << 15) | (funct3 << 12) | (rd << 7) | opcode
}

func encodeR(opcode, rd, funct3, rs1, rs2, funct7 uint32) uint32 {
	return (funct7 << 25) | (rs2 << 20) | (rs1 << 15) | (funct3 << 12) | (rd << 7) | opcode
}

func TestExitRoundTrip(t *testing.T) {
	// addi a7,zero,93 ; addi a0,zero,42 ; ecall  (S1, spec.md §8)
	m := newFlatMemory(4096)
	prog := []uint32{
		encodeI(opOPIMM, 17, 0, 0, 93), // a7 = x17
		encodeI(opOPIMM, 10, 0, 0, 42), // a0 = x10
		(0 << 20) | opSYSTEM,           // ecall
	}
	for i, w := range prog {
		_ = m.ram.WriteWord(uint32(i*4), w)
	}

	h := NewHart(0)
	h.Mem = m

	for i := 0; i < 2; i++ {
		if err := h.Step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if h.Regs[17] != 93 || h.Regs[10] != 42 {
		t.Fatalf("a7=%d a0=%d, want 93,42", h.Regs[17], h.Regs[10])
	}

	if err := h.Step(); err != nil {
		t.Fatalf("ecall step: %v", err)
	}
	if !h.IsEcall() {
		t.Fatalf("expected pending ECALL")
	}
	if h.PC != 8 {
		t.Fatalf("PC = %d, want 8 (unchanged by ECALL)", h.PC)
	}
}

func TestDivideByZero(t *testing.T) {
	m := newFlatMemory(64)
	h := NewHart(0)
	h.Mem = m
	h.Regs[1] = 10
	h.Regs[2] = 0

	divInsn := encodeR(opOP, 3, 4, 1, 2, funct7MExt)  // div x3, x1, x2
	remInsn := encodeR(opOP, 4, 6, 1, 2, funct7MExt)  // rem x4, x1, x2
	_ = m.ram.WriteWord(0, divInsn)
	_ = m.ram.WriteWord(4, remInsn)

	if err := h.Step(); err != nil {
		t.Fatal(err)
	}
	if int32(h.Regs[3]) != -1 {
		t.Fatalf("div by zero = %d, want -1", int32(h.Regs[3]))
	}
	if err := h.Step(); err != nil {
		t.Fatal(err)
	}
	if h.Regs[4] != 10 {
		t.Fatalf("rem by zero = %d, want dividend 10", h.Regs[4])
	}
}

func TestBranchTaken(t *testing.T) {
	m := newFlatMemory(64)
	h := NewHart(0)
	h.Mem = m
	h.Regs[1] = 5
	h.Regs[2] = 5

	// beq x1, x2, +8 — B-type immediate is split as imm[12|10:5|4:1|11]
	beq := ((8 >> 12 & 1) << 31) | ((8 >> 5 & 0x3f) << 25) | (2 << 20) | (1 << 15) | (0 << 12) | ((8 >> 1 & 0xf) << 8) | ((8 >> 11 & 1) << 7) | opBRANCH
	_ = m.ram.WriteWord(0, uint32(beq))

	if err := h.Step(); err != nil {
		t.Fatal(err)
	}
	if h.PC != 8 {
		t.Fatalf("PC = %d, want 8 after taken branch", h.PC)
	}
}

func TestIllegalInstruction(t *testing.T) {
	m := newFlatMemory(64)
	h := NewHart(0)
	h.Mem = m
	_ = m.ram.WriteWord(0, 0x0000006b) // reserved custom opcode

	if err := h.Step(); err == nil {
		t.Fatalf("expected illegal instruction error")
	}
	if !h.IsException() || h.ExceptionCode() != ExcIllegalInstruction {
		t.Fatalf("expected ExcIllegalInstruction, got %v", h.ExceptionCode())
	}
}

func TestMisalignedFetch(t *testing.T) {
	m := newFlatMemory(64)
	h := NewHart(0)
	h.Mem = m
	h.PC = 2

	if err := h.Step(); err == nil {
		t.Fatalf("expected misaligned fetch error")
	}
	if h.ExceptionCode() != ExcMisalignedFetch {
		t.Fatalf("expected ExcMisalignedFetch, got %v", h.ExceptionCode())
	}
}
