package main

import (
	"encoding/binary"
	"testing"

	"github.com/Ewad245/RISCV32/internal/config"
	"github.com/Ewad245/RISCV32/internal/contiguous"
	"github.com/Ewad245/RISCV32/internal/mem"
	"github.com/Ewad245/RISCV32/internal/paged"
	"github.com/Ewad245/RISCV32/internal/task"
)

func TestApplyFlagOverridesLeavesUnsetFieldsAlone(t *testing.T) {
	cfg := config.NewDefault()
	cfg.InitELFPath = "from-config.elf"

	applyFlagOverrides(cfg, "", 0, 0, "", "", 0, false)

	if cfg.InitELFPath != "from-config.elf" {
		t.Fatalf("InitELFPath = %q, want unchanged", cfg.InitELFPath)
	}
	if cfg.Harts != 1 {
		t.Fatalf("Harts = %d, want unchanged default 1", cfg.Harts)
	}
	if cfg.DebugPrintEnabled {
		t.Fatalf("DebugPrintEnabled = true, want unchanged false")
	}
}

func TestApplyFlagOverridesAppliesSetFields(t *testing.T) {
	cfg := config.NewDefault()

	applyFlagOverrides(cfg, "from-flag.elf", 4, 32, "contiguous", "priority", 2000, true)

	if cfg.InitELFPath != "from-flag.elf" {
		t.Fatalf("InitELFPath = %q, want from-flag.elf", cfg.InitELFPath)
	}
	if cfg.Harts != 4 {
		t.Fatalf("Harts = %d, want 4", cfg.Harts)
	}
	if cfg.RAMSize != 32*1024*1024 {
		t.Fatalf("RAMSize = %d, want 32 MiB", cfg.RAMSize)
	}
	if cfg.Memory.Mode != config.Contiguous {
		t.Fatalf("Memory.Mode = %v, want Contiguous", cfg.Memory.Mode)
	}
	if cfg.Scheduler.Kind != config.Priority {
		t.Fatalf("Scheduler.Kind = %v, want Priority", cfg.Scheduler.Kind)
	}
	if cfg.Scheduler.TimeSlice != 2000 {
		t.Fatalf("Scheduler.TimeSlice = %d, want 2000", cfg.Scheduler.TimeSlice)
	}
	if !cfg.DebugPrintEnabled {
		t.Fatalf("DebugPrintEnabled = false, want true")
	}
}

// buildTestELF mirrors internal/elf's own test helper: a minimal
// well-formed ELF32/RISC-V image with one R+X PT_LOAD segment.
func buildTestELF(t *testing.T, vaddr, entry uint32, code []byte) []byte {
	t.Helper()

	const ehSize = 52
	const phSize = 32

	buf := make([]byte, ehSize+phSize+len(code))

	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	buf[4] = 1 // ELFCLASS32
	buf[5] = 1 // ELFDATA2LSB
	binary.LittleEndian.PutUint16(buf[18:20], 243) // EM_RISCV
	binary.LittleEndian.PutUint32(buf[24:28], entry)
	binary.LittleEndian.PutUint32(buf[28:32], ehSize) // e_phoff
	binary.LittleEndian.PutUint16(buf[42:44], phSize) // e_phentsize
	binary.LittleEndian.PutUint16(buf[44:46], 1)      // e_phnum

	ph := buf[ehSize : ehSize+phSize]
	binary.LittleEndian.PutUint32(ph[0:4], 1) // PT_LOAD
	binary.LittleEndian.PutUint32(ph[4:8], ehSize+phSize)
	binary.LittleEndian.PutUint32(ph[8:12], vaddr)
	binary.LittleEndian.PutUint32(ph[16:20], uint32(len(code)))
	binary.LittleEndian.PutUint32(ph[20:24], uint32(len(code)))
	binary.LittleEndian.PutUint32(ph[24:28], 0x5) // R|X

	copy(buf[ehSize+phSize:], code)
	return buf
}

func TestBootInitPaged(t *testing.T) {
	const vaddr = 0x1000
	const entry = vaddr
	code := []byte{0x73, 0x00, 0x00, 0x00} // ECALL
	elfData := buildTestELF(t, vaddr, entry, code)

	ram := mem.NewRAM(4 * 1024 * 1024)
	m := paged.New(ram, 64, "clock", paged.Eager, mem.NewUART(nil))
	reg := task.NewRegistry()

	tk, err := bootInit(m, reg, elfData, []string{"/bin/init"})
	if err != nil {
		t.Fatalf("bootInit: %v", err)
	}
	if tk.PID != 1 {
		t.Fatalf("PID = %d, want 1", tk.PID)
	}
	if tk.GetPC() != entry {
		t.Fatalf("PC = 0x%x, want 0x%x", tk.GetPC(), entry)
	}
	if tk.State() != task.StateReady {
		t.Fatalf("State = %v, want Ready", tk.State())
	}
	if tk.Reg(10) != 1 {
		t.Fatalf("a0 (argc) = %d, want 1", tk.Reg(10))
	}
	if tk.Reg(2) == 0 {
		t.Fatalf("sp (x2) not set")
	}
}

func TestBootInitContiguous(t *testing.T) {
	const vaddr = 0x2000
	const entry = vaddr
	code := []byte{0x73, 0x00, 0x00, 0x00}
	elfData := buildTestELF(t, vaddr, entry, code)

	ram := mem.NewRAM(1024 * 1024)
	m := contiguous.New(ram, contiguous.FirstFit, mem.NewUART(nil))
	reg := task.NewRegistry()

	tk, err := bootInit(m, reg, elfData, nil)
	if err != nil {
		t.Fatalf("bootInit: %v", err)
	}
	if tk.GetPC() != entry {
		t.Fatalf("PC = 0x%x, want 0x%x", tk.GetPC(), entry)
	}
	if _, ok := m.BlockOf(1); !ok {
		t.Fatalf("expected pid 1 to hold an allocated block")
	}
}
