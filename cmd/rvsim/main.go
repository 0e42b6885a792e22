// Command rvsim is the launcher CLI spec.md §6 leaves out of the core:
// it turns a BootConfig (optionally loaded from a YAML file, optionally
// overridden by flags) into a running machine, loads an ELF binary as
// PID 1, runs the kernel to completion and exits with PID 1's exit code.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/Ewad245/RISCV32/internal/config"
	"github.com/Ewad245/RISCV32/internal/contiguous"
	"github.com/Ewad245/RISCV32/internal/cpu"
	"github.com/Ewad245/RISCV32/internal/elf"
	"github.com/Ewad245/RISCV32/internal/kernel"
	"github.com/Ewad245/RISCV32/internal/mem"
	"github.com/Ewad245/RISCV32/internal/paged"
	"github.com/Ewad245/RISCV32/internal/sched"
	"github.com/Ewad245/RISCV32/internal/syscall"
	"github.com/Ewad245/RISCV32/internal/task"
)

func main() {
	if err := run(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintf(os.Stderr, "rvsim: %v\n", err)
		os.Exit(1)
	}
}

// exitError carries PID 1's exit code out of run() so main can os.Exit with
// it without run() itself calling os.Exit (which would skip deferred
// cleanup, notably UART raw-mode restore).
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("init exited with code %d", e.code) }

func run() error {
	configPath := flag.String("config", "", "Path to a BootConfig YAML file")
	initPath := flag.String("init", "", "Path to the init ELF binary (overrides config)")
	harts := flag.Int("harts", 0, "Number of harts (0 = use config default)")
	ramMB := flag.Uint64("ram-mb", 0, "RAM size in MiB (0 = use config default)")
	memMode := flag.String("mem", "", "Memory backend: contiguous|paged (empty = use config default)")
	schedKind := flag.String("scheduler", "", "Scheduler: round_robin|priority|cooperative (empty = use config default)")
	timeSlice := flag.Int("time-slice", 0, "Instruction time slice (0 = use config default)")
	debugPrint := flag.Bool("debug-print", false, "Enable the DEBUG_PRINT syscall")
	debug := flag.Bool("debug", false, "Enable debug logging")
	timeout := flag.Duration("timeout", 0, "Wall-clock timeout for the run (0 = no timeout)")
	termMode := flag.Bool("term", false, "Put the controlling terminal in raw mode and feed stdin to the guest UART")
	progress := flag.Bool("progress", false, "Show an instructions-executed progress spinner on stderr")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [argv...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Boot a RISC-V machine from a BootConfig and run it to completion.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg, *initPath, *harts, *ramMB, *memMode, *schedKind, *timeSlice, *debugPrint)

	if len(flag.Args()) > 0 {
		cfg.InitELFPath = flag.Args()[0]
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	elfData, err := os.ReadFile(cfg.InitELFPath)
	if err != nil {
		return fmt.Errorf("rvsim: read init ELF: %w", err)
	}

	registry := task.NewRegistry()
	uart := mem.NewUART(os.Stdout)
	ram := mem.NewRAM(cfg.RAMSize)

	var vm syscall.VM
	switch cfg.Memory.Mode {
	case config.Contiguous:
		vm = cfg.NewContiguousMMU(ram, uart)
	default:
		vm = cfg.NewPagedMMU(ram, uart)
	}

	initTask, err := bootInit(vm, registry, elfData, flag.Args())
	if err != nil {
		return fmt.Errorf("rvsim: boot init: %w", err)
	}

	scheduler := cfg.NewScheduler()
	scheduler.AddTask(sched.MaintenanceOwnerID, initTask)

	hartList := make([]*cpu.Hart, cfg.Harts)
	for i := range hartList {
		hartList[i] = cpu.NewHart(i)
	}

	handler := syscall.NewHandler(logger, vm, registry, uart, os.Stdout, cfg.DebugPrintEnabled)
	kern := kernel.New(logger, hartList, scheduler, registry, uart, handler, vm)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	// runCtx is a child of ctx so it also ends on Ctrl-C/timeout; watchInit
	// additionally cancels it directly once PID 1 terminates. By the time
	// kern.Run returns below, runCtx is guaranteed already done, so the
	// progress/stdin goroutines below (which key off runCtx) can be torn
	// down synchronously right after instead of via a deferred wait that
	// could block on an outer ctx that is not yet cancelled.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	go watchInit(runCtx, registry, cancelRun)

	if *termMode && term.IsTerminal(int(os.Stdin.Fd())) {
		oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("rvsim: enable raw mode: %w", err)
		}
		defer term.Restore(int(os.Stdin.Fd()), oldState)
		go pumpStdinToUART(runCtx, uart)
	}

	var bar *progressbar.ProgressBar
	var stopProgress func()
	if *progress {
		bar = progressbar.DefaultBytes(-1, "instructions executed")
		stopProgress = reportProgress(runCtx, hartList, bar)
	}

	runErr := kern.Run(runCtx)

	if stopProgress != nil {
		stopProgress()
		bar.Close()
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) && ctx.Err() == nil {
		return fmt.Errorf("rvsim: kernel run: %w", runErr)
	}
	if ctx.Err() != nil && !errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("rvsim: %w", ctx.Err())
	}

	if t, ok := registry.Get(initTask.PID); ok && t.State() == task.StateTerminated {
		return &exitError{code: int(t.GetExitCode())}
	}
	return nil
}

// loadConfig returns a NewDefault BootConfig if path is empty, else loads
// and parses the file at path.
func loadConfig(path string) (*config.BootConfig, error) {
	if path == "" {
		return config.NewDefault(), nil
	}
	return config.Load(path)
}

// applyFlagOverrides mutates cfg in place for every non-zero flag value;
// zero/empty flag values leave the config (whether defaulted or loaded from
// file) untouched, mirroring the "apply only if the user set it" pattern
// bundle boot defaults use for CLI overrides.
func applyFlagOverrides(cfg *config.BootConfig, initPath string, harts int, ramMB uint64, memMode, schedKind string, timeSlice int, debugPrint bool) {
	if initPath != "" {
		cfg.InitELFPath = initPath
	}
	if harts > 0 {
		cfg.Harts = harts
	}
	if ramMB > 0 {
		cfg.RAMSize = uint32(ramMB * 1024 * 1024)
	}
	if memMode != "" {
		cfg.Memory.Mode = config.MemoryMode(memMode)
	}
	if schedKind != "" {
		cfg.Scheduler.Kind = config.SchedulerKind(schedKind)
	}
	if timeSlice > 0 {
		cfg.Scheduler.TimeSlice = timeSlice
	}
	if debugPrint {
		cfg.DebugPrintEnabled = true
	}
}

// bootInit loads elfData into a fresh address space under PID 1 and
// registers the resulting task, READY to run. Unlike EXEC there is no
// existing task to rebind: PID 1 is the first address space either backend
// creates.
func bootInit(vm syscall.VM, registry *task.Registry, elfData []byte, argv []string) (*task.Task, error) {
	pid := registry.ReservePID()

	var as task.AddressSpace
	var entry, sp, argvAddr uint32
	var err error

	switch m := vm.(type) {
	case *paged.MMU:
		var pas *paged.AddressSpace
		pas, entry, sp, argvAddr, err = elf.LoadPaged(m, pid, elfData, argv)
		as = pas
	case *contiguous.MMU:
		var cs *contiguous.Space
		cs, entry, sp, argvAddr, err = elf.LoadContiguous(m, pid, elfData, argv)
		as = cs
	default:
		return nil, fmt.Errorf("rvsim: unsupported VM backend %T", vm)
	}
	if err != nil {
		return nil, err
	}

	t := registry.CreateProcessWithPID(pid, "init", 0, as)
	t.SetPC(entry)
	t.SetReg(2, sp)
	t.SetReg(11, argvAddr)
	t.SetReg(10, uint32(len(argv)))
	t.SetState(task.StateReady)
	return t, nil
}

// watchInit polls PID 1's state and cancels cancel once it terminates,
// since this simulator treats init's exit the way a Unix kernel treats
// PID 1 exiting: the machine has nothing left to run for.
func watchInit(ctx context.Context, registry *task.Registry, cancel context.CancelFunc) {
	const pollInterval = 5 * time.Millisecond
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t, ok := registry.Get(1)
			if ok && t.State() == task.StateTerminated {
				cancel()
				return
			}
		}
	}
}

// pumpStdinToUART copies raw bytes from stdin into the guest UART's RX
// queue until ctx is done, so a -term run behaves like a real serial
// console: keystrokes appear to the guest as soon as they're typed.
func pumpStdinToUART(ctx context.Context, uart *mem.UART) {
	buf := make([]byte, 1)
	for ctx.Err() == nil {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return
		}
		if n > 0 {
			uart.PushInput(buf[0])
		}
	}
}

// reportProgress spawns a goroutine that samples total retired instructions
// across every hart every 200ms and feeds the delta to bar, which renders
// it as an indeterminate spinner on stderr. The returned func blocks until
// the goroutine has exited (ctx done); call it before bar.Close().
func reportProgress(ctx context.Context, harts []*cpu.Hart, bar *progressbar.ProgressBar) func() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		var last uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				var total uint64
				for _, h := range harts {
					total += h.InstrCount()
				}
				if total > last {
					_ = bar.Add64(int64(total - last))
					last = total
				}
			}
		}
	}()
	return func() { <-done }
}
