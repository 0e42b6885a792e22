// Package config implements the BootConfig the "Launcher CLI" of spec.md
// §6 is expected to produce: a memory mode, a scheduler choice, a hart
// count, a RAM size and an initial ELF path for PID 1, loaded from YAML the
// way the teacher pack's example specs are (`yaml.v3` struct tags over a
// plain Go struct, defaults applied after Unmarshal).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Ewad245/RISCV32/internal/contiguous"
	"github.com/Ewad245/RISCV32/internal/mem"
	"github.com/Ewad245/RISCV32/internal/paged"
	"github.com/Ewad245/RISCV32/internal/sched"
)

// MemoryMode selects which MMU backend a BootConfig configures.
type MemoryMode string

const (
	Contiguous MemoryMode = "contiguous"
	Paged      MemoryMode = "paged"
)

// SchedulerKind selects which ready-set policy a BootConfig configures.
type SchedulerKind string

const (
	RoundRobin  SchedulerKind = "round_robin"
	Priority    SchedulerKind = "priority"
	Cooperative SchedulerKind = "cooperative"
)

// MemoryConfig configures whichever MMU backend Mode selects. Strategy
// applies only to Contiguous ("first" or "best"); Fetch/Evict apply only to
// Paged ("demand"/"eager", "clock"/"lru"/"random" respectively).
type MemoryConfig struct {
	Mode     MemoryMode `yaml:"mode"`
	Strategy string     `yaml:"strategy,omitempty"`
	Fetch    string     `yaml:"fetch,omitempty"`
	Evict    string     `yaml:"evict,omitempty"`
	Frames   int        `yaml:"frames,omitempty"` // paged mode only: physical frame count
}

// SchedulerConfig configures the ready-set policy and its forced
// preemption budget (ignored for Cooperative).
type SchedulerConfig struct {
	Kind      SchedulerKind `yaml:"kind"`
	TimeSlice int           `yaml:"time_slice,omitempty"`
}

// BootConfig mirrors spec.md §6's launcher contract: "a memory mode
// choice..., a scheduler choice..., a hart count, a total RAM size, and an
// initial ELF path for PID 1". DebugPrintEnabled gates the DEBUG_PRINT
// syscall (spec.md §4.6).
type BootConfig struct {
	Memory            MemoryConfig    `yaml:"memory"`
	Scheduler         SchedulerConfig `yaml:"scheduler"`
	Harts             int             `yaml:"harts"`
	RAMSize           uint32          `yaml:"ram_size"`
	InitELFPath       string          `yaml:"init_elf_path"`
	DebugPrintEnabled bool            `yaml:"debug_print_enabled,omitempty"`
}

// Load reads and parses a BootConfig from a YAML file, applying the same
// defaults NewDefault does for any field the file leaves zero-valued.
func Load(path string) (*BootConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := NewDefault()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// NewDefault returns a BootConfig with every field at its documented
// default: paged memory with 4096 frames (demand/clock), round-robin
// scheduling with a 10000-instruction slice, a single hart and 16 MiB of
// RAM.
func NewDefault() *BootConfig {
	return &BootConfig{
		Memory: MemoryConfig{
			Mode:   Paged,
			Fetch:  "demand",
			Evict:  "clock",
			Frames: 4096,
		},
		Scheduler: SchedulerConfig{
			Kind:      RoundRobin,
			TimeSlice: 10000,
		},
		Harts:   1,
		RAMSize: 16 * 1024 * 1024,
	}
}

func (c *BootConfig) applyDefaults() {
	if c.Memory.Mode == "" {
		c.Memory.Mode = Paged
	}
	if c.Memory.Fetch == "" {
		c.Memory.Fetch = "demand"
	}
	if c.Memory.Evict == "" {
		c.Memory.Evict = "clock"
	}
	if c.Memory.Strategy == "" {
		c.Memory.Strategy = "first"
	}
	if c.Memory.Frames == 0 {
		c.Memory.Frames = 4096
	}
	if c.Scheduler.Kind == "" {
		c.Scheduler.Kind = RoundRobin
	}
	if c.Scheduler.TimeSlice == 0 {
		c.Scheduler.TimeSlice = 10000
	}
	if c.Harts == 0 {
		c.Harts = 1
	}
	if c.RAMSize == 0 {
		c.RAMSize = 16 * 1024 * 1024
	}
}

// Validate reports any configuration value that cannot be turned into a
// running machine (spec.md §7's BAD_CONFIG error class).
func (c *BootConfig) Validate() error {
	switch c.Memory.Mode {
	case Contiguous, Paged:
	default:
		return &BadConfigError{Field: "memory.mode", Value: string(c.Memory.Mode)}
	}
	switch c.Scheduler.Kind {
	case RoundRobin, Priority, Cooperative:
	default:
		return &BadConfigError{Field: "scheduler.kind", Value: string(c.Scheduler.Kind)}
	}
	if c.Harts < 1 {
		return &BadConfigError{Field: "harts", Value: fmt.Sprintf("%d", c.Harts)}
	}
	if c.RAMSize == 0 {
		return &BadConfigError{Field: "ram_size", Value: "0"}
	}
	if c.InitELFPath == "" {
		return &BadConfigError{Field: "init_elf_path", Value: "(empty)"}
	}
	return nil
}

// BadConfigError reports a BootConfig field with no valid interpretation.
type BadConfigError struct {
	Field string
	Value string
}

func (e *BadConfigError) Error() string {
	return fmt.Sprintf("config: invalid %s: %q", e.Field, e.Value)
}

// schedulerKind converts the YAML-level SchedulerKind to internal/sched's
// Kind enum.
func (c *BootConfig) schedulerKind() sched.Kind {
	switch c.Scheduler.Kind {
	case Priority:
		return sched.Priority
	case Cooperative:
		return sched.Cooperative
	default:
		return sched.RoundRobin
	}
}

// NewScheduler builds the scheduler this config describes.
func (c *BootConfig) NewScheduler() sched.Scheduler {
	return sched.New(c.schedulerKind(), c.Scheduler.TimeSlice)
}

// contiguousStrategy converts the YAML-level strategy string to
// internal/contiguous's Strategy enum, defaulting to FirstFit for anything
// other than "best".
func (c *BootConfig) contiguousStrategy() contiguous.Strategy {
	if c.Memory.Strategy == "best" {
		return contiguous.BestFit
	}
	return contiguous.FirstFit
}

// pagedFetch converts the YAML-level fetch string to internal/paged's
// FetchPolicy enum, defaulting to Demand for anything other than "eager".
func (c *BootConfig) pagedFetch() paged.FetchPolicy {
	if c.Memory.Fetch == "eager" {
		return paged.Eager
	}
	return paged.Demand
}

// NewContiguousMMU builds the contiguous backend this config describes.
// Callers must only call this when Memory.Mode == Contiguous.
func (c *BootConfig) NewContiguousMMU(ram *mem.RAM, uart *mem.UART) *contiguous.MMU {
	return contiguous.New(ram, c.contiguousStrategy(), uart)
}

// NewPagedMMU builds the paged backend this config describes. Callers must
// only call this when Memory.Mode == Paged.
func (c *BootConfig) NewPagedMMU(ram *mem.RAM, uart *mem.UART) *paged.MMU {
	return paged.New(ram, c.Memory.Frames, c.Memory.Evict, c.pagedFetch(), uart)
}
