package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Ewad245/RISCV32/internal/mem"
	"github.com/Ewad245/RISCV32/internal/sched"
)

func TestNewDefaultPassesValidateOnceInitELFPathIsSet(t *testing.T) {
	cfg := NewDefault()
	cfg.InitELFPath = "init.elf"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestNewDefaultFailsValidateWithoutInitELFPath(t *testing.T) {
	cfg := NewDefault()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Validate() = nil, want BadConfigError for missing init_elf_path")
	}
}

func TestLoadAppliesDefaultsForOmittedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "boot.yaml")
	yaml := "init_elf_path: /bin/init\nharts: 2\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Harts != 2 {
		t.Fatalf("Harts = %d, want 2 (from file)", cfg.Harts)
	}
	if cfg.Memory.Mode != Paged {
		t.Fatalf("Memory.Mode = %v, want default Paged", cfg.Memory.Mode)
	}
	if cfg.Scheduler.Kind != RoundRobin {
		t.Fatalf("Scheduler.Kind = %v, want default RoundRobin", cfg.Scheduler.Kind)
	}
	if cfg.RAMSize != 16*1024*1024 {
		t.Fatalf("RAMSize = %d, want default 16 MiB", cfg.RAMSize)
	}
}

func TestLoadParsesExplicitFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "boot.yaml")
	yaml := `
memory:
  mode: contiguous
  strategy: best
scheduler:
  kind: priority
  time_slice: 500
harts: 4
ram_size: 1048576
init_elf_path: /bin/init
debug_print_enabled: true
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Memory.Mode != Contiguous {
		t.Fatalf("Memory.Mode = %v, want Contiguous", cfg.Memory.Mode)
	}
	if cfg.Scheduler.Kind != Priority || cfg.Scheduler.TimeSlice != 500 {
		t.Fatalf("Scheduler = %+v, want {Priority 500}", cfg.Scheduler)
	}
	if cfg.Harts != 4 {
		t.Fatalf("Harts = %d, want 4", cfg.Harts)
	}
	if !cfg.DebugPrintEnabled {
		t.Fatalf("DebugPrintEnabled = false, want true")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejectsUnknownMemoryMode(t *testing.T) {
	cfg := NewDefault()
	cfg.InitELFPath = "init.elf"
	cfg.Memory.Mode = "bogus"
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("Validate() = nil, want BadConfigError")
	}
	var bce *BadConfigError
	if !asBadConfigError(err, &bce) {
		t.Fatalf("error type = %T, want *BadConfigError", err)
	}
	if bce.Field != "memory.mode" {
		t.Fatalf("Field = %q, want memory.mode", bce.Field)
	}
}

func asBadConfigError(err error, target **BadConfigError) bool {
	bce, ok := err.(*BadConfigError)
	if !ok {
		return false
	}
	*target = bce
	return true
}

func TestNewSchedulerBuildsConfiguredKind(t *testing.T) {
	cfg := NewDefault()
	cfg.Scheduler.Kind = Cooperative
	s := cfg.NewScheduler()
	if s.TimeSlice() != sched.MaxTimeSlice {
		t.Fatalf("TimeSlice() = %d, want MaxTimeSlice for Cooperative", s.TimeSlice())
	}
}

func TestNewContiguousMMUUsesConfiguredStrategy(t *testing.T) {
	cfg := NewDefault()
	cfg.Memory.Mode = Contiguous
	cfg.Memory.Strategy = "best"
	cfg.RAMSize = 64 * 1024

	ram := mem.NewRAM(cfg.RAMSize)
	m := cfg.NewContiguousMMU(ram, mem.NewUART(nil))
	if _, err := m.Allocate(1, 4096); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, ok := m.BlockOf(1); !ok {
		t.Fatalf("expected pid 1 to hold an allocated block")
	}
}

func TestNewPagedMMUUsesConfiguredFrameCount(t *testing.T) {
	cfg := NewDefault()
	cfg.Memory.Frames = 32

	ram := mem.NewRAM(4 * 1024 * 1024)
	m := cfg.NewPagedMMU(ram, mem.NewUART(nil))
	if m.TotalFrames() != 32 {
		t.Fatalf("TotalFrames() = %d, want 32", m.TotalFrames())
	}
}
