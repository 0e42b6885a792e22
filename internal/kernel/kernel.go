// Package kernel implements the per-hart dispatcher loop, wait-queue
// routing and maintenance thread of spec.md §4.5: the glue between
// internal/cpu (instruction execution), internal/sched (the ready set),
// internal/syscall (ECALL semantics) and whichever internal/paged or
// internal/contiguous MMU backend is configured.
package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Ewad245/RISCV32/internal/cpu"
	"github.com/Ewad245/RISCV32/internal/mem"
	"github.com/Ewad245/RISCV32/internal/sched"
	"github.com/Ewad245/RISCV32/internal/syscall"
	"github.com/Ewad245/RISCV32/internal/task"
)

// idleRateLimit bounds how often an idle hart re-polls the scheduler and
// how often an AP hart re-polls the started flag, replacing a bare
// time.Sleep(1ms) busy-loop with a single governance point (SPEC_FULL.md
// §4.5).
const idleRateLimit = rate.Limit(1000) // ~1 poll/ms

// Kernel owns every hart goroutine, the scheduler, the task registry, the
// UART device and the wait queues that spec.md §4.5's dispatch table
// routes WAITING tasks into.
type Kernel struct {
	logger    *slog.Logger
	harts     []*cpu.Hart
	scheduler sched.Scheduler
	registry  *task.Registry
	uart      *mem.UART
	handler   *syscall.Handler
	vm        syscall.VM

	// ctxLock serialises execute() across harts: the configured MMU backend
	// has a single "current context" (SwitchContext), so only one hart may
	// be mid-dispatch against it at a time (spec.md §5 "operations on
	// different tasks... are unordered" still holds once each gets its own
	// serialized turn).
	ctxLock sync.Mutex

	waitMu    sync.Mutex
	ioWait    *ioWaitQueue
	sleepQ    *sleepQueue
	childWait *childWaitSet

	running atomic.Bool
	paused  atomic.Bool
	delayMs atomic.Int64
	started atomic.Bool

	idleLimiters []*rate.Limiter

	// NowMillis is the wall-clock source the maintenance loop compares
	// sleep-queue wakeup times against; overridable for deterministic tests.
	NowMillis func() int64

	// MaintenanceInterval is the cadence of the UART/timer sweep (spec.md
	// §4.5: "10 ms cadence"); overridable so tests don't need to wait on a
	// real timer.
	MaintenanceInterval time.Duration
}

// New constructs a Kernel wiring one hart per entry in harts to the shared
// scheduler/registry/UART/syscall handler. harts[0] is the BSP; the rest
// boot as APs per the started-flag pattern in Run.
func New(logger *slog.Logger, harts []*cpu.Hart, scheduler sched.Scheduler, registry *task.Registry, uart *mem.UART, handler *syscall.Handler, vm syscall.VM) *Kernel {
	limiters := make([]*rate.Limiter, len(harts))
	for i := range limiters {
		limiters[i] = rate.NewLimiter(idleRateLimit, 1)
	}
	return &Kernel{
		logger:               logger,
		harts:                harts,
		scheduler:            scheduler,
		registry:             registry,
		uart:                 uart,
		handler:              handler,
		vm:                   vm,
		ioWait:               &ioWaitQueue{},
		sleepQ:               newSleepQueue(),
		childWait:            newChildWaitSet(),
		idleLimiters:         limiters,
		NowMillis:            defaultNowMillis,
		MaintenanceInterval:  10 * time.Millisecond,
	}
}

func defaultNowMillis() int64 { return time.Now().UnixMilli() }

// Run launches one goroutine per hart plus the maintenance loop under an
// errgroup.Group (spec.md §4.5/§5). Cancelling ctx, or any goroutine
// panicking with DOUBLE_SCHEDULE/SPINLOCK_MISUSE (recovered and converted to
// an error at the top of each hart loop), tears down every other goroutine.
func (k *Kernel) Run(ctx context.Context) error {
	k.running.Store(true)
	defer k.running.Store(false)

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range k.harts {
		h := h
		g.Go(func() error {
			return k.safeHartLoop(gctx, h)
		})
	}
	g.Go(func() error {
		return k.maintenanceLoop(gctx)
	})
	return g.Wait()
}

// Stop clears the running flag; each hart observes it at the top of its
// next loop iteration and exits (spec.md §5 "Kernel shutdown is signalled
// by clearing the running flag").
func (k *Kernel) Stop() { k.running.Store(false) }

// Pause/Resume implement the `paused` suspension point of spec.md §4.5/§5.
func (k *Kernel) Pause()  { k.paused.Store(true) }
func (k *Kernel) Resume() { k.paused.Store(false) }

// SetDelay sets the per-iteration throttle every hart sleeps after each
// dispatch cycle (spec.md §4.5 "if delay>0: sleep(delay)").
func (k *Kernel) SetDelay(ms int64) { k.delayMs.Store(ms) }

func (k *Kernel) safeHartLoop(ctx context.Context, h *cpu.Hart) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("kernel: hart %d: %v", h.ID, r)
		}
	}()
	return k.hartLoop(ctx, h)
}

// hartLoop is the per-hart body of spec.md §4.5's pseudocode.
func (k *Kernel) hartLoop(ctx context.Context, h *cpu.Hart) error {
	limiter := k.idleLimiters[h.ID]

	if h.ID == 0 {
		k.started.Store(true)
	} else {
		for !k.started.Load() {
			if ctx.Err() != nil {
				return nil
			}
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
		}
	}

	for {
		if ctx.Err() != nil || !k.running.Load() {
			return nil
		}

		for k.paused.Load() {
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
			if ctx.Err() != nil || !k.running.Load() {
				return nil
			}
		}

		if d := k.delayMs.Load(); d > 0 {
			time.Sleep(time.Duration(d) * time.Millisecond)
		}

		t := k.scheduler.Schedule(h.ID)
		if t == nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
			continue
		}

		if !t.TryAcquireCPU(h.ID) {
			panic(fmt.Sprintf("kernel: double schedule: pid %d already held by hart %d", t.PID, t.ActiveHartID()))
		}

		spawned := k.execute(h, t)
		t.ReleaseCPU()
		k.dispatch(h.ID, t)

		if spawned != nil {
			k.scheduler.AddTask(h.ID, spawned)
		}
	}
}

// execute implements spec.md §4.5's execute(t): switch MMU context, restore
// the task's saved register/PC state, run up to one scheduler time slice,
// and stop early on ECALL (dispatching the syscall) or exception
// (terminating the task). Held for its entire duration under ctxLock since
// the MMU's "current context" is shared across harts.
func (k *Kernel) execute(h *cpu.Hart, t *task.Task) *task.Task {
	k.ctxLock.Lock()
	defer k.ctxLock.Unlock()

	if err := k.vm.SwitchContext(t.PID); err != nil {
		k.logger.Error("kernel: switch context failed", "pid", t.PID, "err", err)
		t.SetState(task.StateTerminated)
		return nil
	}
	h.Mem = k.vm

	t.SetState(task.StateRunning)
	h.RestoreState(t)

	var spawned *task.Task
	stopped := false
	slice := k.scheduler.TimeSlice()

	for i := 0; i < slice && t.State() == task.StateRunning; i++ {
		_ = h.Step() // traps are surfaced via IsEcall/IsException, not the error return

		if h.IsEcall() {
			h.ClearTrap()
			h.SaveState(t)
			// The hart leaves PC pointing at the ECALL itself (cpu.execute's
			// opSYSTEM case); advance past it here so a non-blocking syscall
			// resumes at the next instruction, and so a blocking one's rewind
			// (syscall.doRead/doWait, via Hart.SetProgramCounter) has this
			// advanced value to subtract 4 from.
			t.SetPC(t.GetPC() + 4)
			k.logger.Debug("kernel: ecall", "pid", t.PID, "insn", h.LastDecoded().Mnemonic())
			sp, err := k.handler.Dispatch(t, h)
			if err != nil {
				k.logger.Warn("kernel: syscall error", "pid", t.PID, "err", err)
			}
			spawned = sp
			stopped = true
			break
		}
		if h.IsException() {
			k.logger.Warn("kernel: exception terminates task", "pid", t.PID,
				"code", h.ExceptionCode(), "value", h.ExceptionValue())
			h.ClearTrap()
			h.SaveState(t)
			t.SetState(task.StateTerminated)
			stopped = true
			break
		}
	}

	if !stopped {
		h.SaveState(t)
		if t.State() == task.StateRunning {
			t.SetState(task.StateReady)
		}
	}

	return spawned
}

// dispatch routes t by its final state, per spec.md §4.5's dispatch(t)
// table. ownerID is the calling hart, passed through to the scheduler's
// spinlock for recursive-acquisition detection.
func (k *Kernel) dispatch(ownerID int, t *task.Task) {
	switch t.State() {
	case task.StateReady:
		k.scheduler.AddTask(ownerID, t)
	case task.StateWaiting:
		k.routeWait(t)
	case task.StateTerminated:
		k.onTerminated(t)
	}
}

func (k *Kernel) routeWait(t *task.Task) {
	k.waitMu.Lock()
	defer k.waitMu.Unlock()
	switch t.WaitReason() {
	case task.WaitUARTInput:
		k.ioWait.push(t)
	case task.WaitTimer:
		k.sleepQ.push(t, t.WakeupTime())
	case task.WaitProcessExit:
		k.childWait.push(t, t.WaitingForPID())
	}
}

// onTerminated wakes a parent blocked in WAIT on this task, specific or
// any-child (spec.md §4.5: "wake parent if it is waiting on this"). The
// terminated task itself is left as a zombie in the registry and in its
// parent's Children set until that parent's WAIT call observes and removes
// it.
func (k *Kernel) onTerminated(t *task.Task) {
	k.waitMu.Lock()
	parent, ok := k.childWait.wakeForChild(t.PID)
	k.waitMu.Unlock()

	k.logger.Info("kernel: task terminated", "pid", t.PID, "exit_code", t.GetExitCode())

	if ok {
		parent.SetState(task.StateReady)
		k.scheduler.AddTask(sched.MaintenanceOwnerID, parent)
	}
}

// maintenanceLoop implements spec.md §4.5's dedicated 10ms-cadence thread:
// wake every UART_INPUT waiter when the UART has data, and move every due
// sleeper to ready.
func (k *Kernel) maintenanceLoop(ctx context.Context) error {
	ticker := time.NewTicker(k.MaintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			k.maintenanceTick()
		}
	}
}

func (k *Kernel) maintenanceTick() {
	if k.uart.Status()&1 != 0 {
		k.waitMu.Lock()
		woken := k.ioWait.drain()
		k.waitMu.Unlock()
		for _, t := range woken {
			t.SetState(task.StateReady)
			k.scheduler.AddTask(sched.MaintenanceOwnerID, t)
		}
	}

	now := k.NowMillis()
	k.waitMu.Lock()
	due := k.sleepQ.popDue(now)
	k.waitMu.Unlock()
	for _, t := range due {
		t.SetState(task.StateReady)
		k.scheduler.AddTask(sched.MaintenanceOwnerID, t)
	}
}

// IOWaitSnapshot returns every task currently blocked on UART_INPUT, for
// internal/observe's kernel snapshot (spec.md §6 "kernel: I/O wait list").
func (k *Kernel) IOWaitSnapshot() []*task.Task {
	k.waitMu.Lock()
	defer k.waitMu.Unlock()
	return k.ioWait.snapshot()
}

// SleepWaitSnapshot returns every task currently blocked in SLEEP, for
// internal/observe's kernel snapshot (spec.md §6 "kernel: ... sleep wait
// list").
func (k *Kernel) SleepWaitSnapshot() []*task.Task {
	k.waitMu.Lock()
	defer k.waitMu.Unlock()
	return k.sleepQ.snapshot()
}

// TerminateTask implements the external terminateTask(pid) control of
// spec.md §5: sets state and removes t from the scheduler/wait queues. If t
// is currently running on a hart, the change is observed before that hart's
// next instruction: execute re-checks the task's state before every step.
func (k *Kernel) TerminateTask(pid int) {
	t, ok := k.registry.Get(pid)
	if !ok {
		return
	}
	k.scheduler.RemoveTask(sched.MaintenanceOwnerID, t)
	k.waitMu.Lock()
	k.childWait.remove(t)
	k.ioWait.remove(pid)
	k.sleepQ.remove(pid)
	k.waitMu.Unlock()
	t.SetState(task.StateTerminated)
	k.onTerminated(t)
}
