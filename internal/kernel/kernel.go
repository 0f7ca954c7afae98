// Package kernel implements the preemptive, priority-based task
// scheduler: the TCB table, the mutex and semaphore primitives, the
// supervisor-call surface tasks use to request kernel services, and the
// deferred context switch that is the only place a task is actually
// replaced.
//
// A real Cortex-M core traps SVC instructions and banks callee-saved
// registers to switch tasks; a Go process can do neither portably. This
// package keeps the reference firmware's data model and invariants
// exactly, and replaces only the trap/register mechanics with named Go
// equivalents: each task is a goroutine that calls synchronous methods
// on *Kernel instead of issuing an SVC, and exactly one task goroutine
// holds a "run token" at a time, handed off by requestSwitch — the
// single function that ever changes which task is current.
package kernel

import (
	"fmt"
	"sync"

	"github.com/cortexm-rtos/kernel/internal/hal"
	"github.com/cortexm-rtos/kernel/internal/heap"
	"github.com/cortexm-rtos/kernel/internal/mpu"
)

const (
	// MaxTasks is the fixed capacity of the task table.
	MaxTasks = 12
	// NumPriorities is the number of distinct scheduling priorities;
	// lower numerically is higher priority.
	NumPriorities = 8
	// IdlePriority is the lowest scheduling priority. Start requires some
	// task to be registered here before it will run, so "no ready tasks"
	// can only happen as a genuine bug rather than an empty table.
	IdlePriority = NumPriorities - 1

	// MaxMutexes and MaxSemaphores size the fixed-capacity IPC tables.
	MaxMutexes    = 4
	MaxSemaphores = 4

	// queueCapacity bounds each mutex/semaphore wait FIFO. MaxTasks-1 is
	// the most contenders that can ever simultaneously wait (every other
	// task), so this bound never silently drops a genuine waiter while
	// still being a small, fixed capacity.
	queueCapacity = MaxTasks - 1

	// normalizeEveryTicks is how often (in 1ms ticks) the SysTick driver
	// recomputes %CPU and resets the run-time accumulators.
	normalizeEveryTicks = 2000
)

// Sink is the privilege-ignorant byte writer the kernel reports
// diagnostics and fault messages to. It must never block the caller for
// long enough to matter at trap priority; internal/diag's buffered
// implementation satisfies that.
type Sink interface {
	WriteString(s string) (int, error)
}

// Kernel is the single aggregate owning every privileged table: the task
// descriptors, the priority cursors, the mutex and semaphore tables, the
// block heap and the MPU controller. Every trap-dispatched operation
// takes the executive mutex; tasks never hold a reference to Kernel
// fields directly, only to the Syscalls view trap.go hands them.
type Kernel struct {
	mu sync.Mutex

	tasks  [MaxTasks]TaskDescriptor
	gates  [MaxTasks]chan struct{}
	bodies [MaxTasks]func(Syscalls)

	taskCount      int
	current        int // index into tasks, or -1 before Start
	priorityCursor [NumPriorities]int
	roundRobinNext int

	mutexes     [MaxMutexes]mutexState
	semaphores  [MaxSemaphores]semaphoreState

	heap *heap.Heap
	mpu  mpu.Controller
	hal  hal.Backend
	sink Sink

	priorityScheduler   bool
	priorityInheritance bool
	preemption          bool

	msCounter uint16

	started bool
}

// Config bundles the collaborators New assembles a Kernel from, plus the
// scheduler policy flags a boot manifest may override. New takes the
// three flags verbatim, so a zero-value Config disables priority
// scheduling, priority inheritance and preemption alike; callers that
// want the reference firmware's boot defaults (PriorityScheduler and
// Preemption true, PriorityInheritance false) get them from
// DefaultPolicy.
type Config struct {
	MPU  mpu.Controller
	HAL  hal.Backend
	Sink Sink

	PriorityScheduler   bool
	PriorityInheritance bool
	Preemption          bool
}

// DefaultPolicy returns the reference firmware's boot-default scheduler
// policy flags, for callers building a Config by hand that still want
// those defaults rather than Go's zero value for bool.
func DefaultPolicy() (priorityScheduler, priorityInheritance, preemption bool) {
	return true, false, true
}

// New returns a Kernel with an empty task table, all tables initialized,
// and the scheduler policy flags taken verbatim from cfg.
func New(cfg Config) *Kernel {
	k := &Kernel{
		heap:                heap.New(),
		mpu:                 cfg.MPU,
		hal:                 cfg.HAL,
		sink:                cfg.Sink,
		priorityScheduler:   cfg.PriorityScheduler,
		priorityInheritance: cfg.PriorityInheritance,
		preemption:          cfg.Preemption,
		current:             -1,
	}
	for i := range k.mutexes {
		k.mutexes[i].init()
	}
	for i := range k.semaphores {
		k.semaphores[i].init(0)
	}
	for i := range k.tasks {
		k.tasks[i].heldMutex = noMutex
		k.tasks[i].awaitedSemaphore = noSemaphore
	}
	k.mpu.Init()
	return k
}

// writeDiag writes to the configured sink, ignoring write errors past a
// best-effort attempt: diagnostics must never be able to wedge a trap
// handler.
func (k *Kernel) writeDiag(format string, args ...any) {
	if k.sink == nil {
		return
	}
	_, _ = k.sink.WriteString(fmt.Sprintf(format, args...))
}

// withWidenedAccess runs fn with the MPU mask fully opened, then restores
// whatever mask was in effect for the currently running task. Diagnostic
// and administrative trap handlers (ps, ipcs, kill, reboot, setpriority,
// restart, pi, preempt, sched) run under it, since they read or mutate
// kernel state belonging to tasks other than the caller.
func (k *Kernel) withWidenedAccess(fn func()) {
	saved := k.mpu.CurrentMask()
	k.mpu.ApplyMask(mpu.FullAccess)
	fn()
	k.mpu.ApplyMask(saved)
}
