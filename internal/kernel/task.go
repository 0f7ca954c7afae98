package kernel

// State is a task's position in the scheduler's state machine.
type State int

const (
	StateInvalid State = iota
	StateUnrun
	StateReady
	StateDelayed
	StateBlockedSemaphore
	StateBlockedMutex
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateUnrun:
		return "UNRUN"
	case StateReady:
		return "READY"
	case StateDelayed:
		return "DELAYED"
	case StateBlockedSemaphore:
		return "SEM_BLK"
	case StateBlockedMutex:
		return "MTX_BLK"
	case StateKilled:
		return "KILLED"
	default:
		return "INVLD"
	}
}

// TaskID is a task's durable identity: an opaque handle around the
// reference firmware's raw function-pointer pid. It wraps
// the code pointer of the task's entry function, which is stable across
// restarts because restart re-registers the same Go function value.
type TaskID uint64

// NoTask is the sentinel TaskID meaning "no such task," the Go analogue of
// a null function pointer.
const NoTask TaskID = 0

// noMutex and noSemaphore are the "none" sentinels for held_mutex and
// awaited_semaphore, the Go analogue of the reference firmware's 0xFF.
const (
	noMutex     = -1
	noSemaphore = -1
)

// TaskDescriptor is one row of the fixed-capacity task table. Every field,
// including RunTimeMs and CPUPercentCenti, is read and written exclusively
// under Kernel.mu: the diagnostic path (PS, snapshot) is itself a
// privileged trap call that already holds the executive mutex, so there is
// no concurrent reader for these counters to race with.
type TaskDescriptor struct {
	state State
	id    TaskID
	name  string

	basePriority    int
	currentPriority int

	ticksRemaining uint32

	srdMask uint32

	heldMutex        int
	awaitedSemaphore int

	stackBase  uint32
	stackBytes uint32
	stackTop   uint32

	runTimeMs       uint64
	cpuPercentCenti uint32
}

// Snapshot is a read-only copy of a TaskDescriptor suitable for
// diagnostics and tests; it never aliases the live descriptor fields.
type Snapshot struct {
	State           State
	ID              TaskID
	Name            string
	BasePriority    int
	CurrentPriority int
	TicksRemaining  uint32
	SRDMask         uint32
	RunTimeMs       uint64
	CPUPercentCenti uint32
}

func (t *TaskDescriptor) snapshot() Snapshot {
	return Snapshot{
		State:           t.state,
		ID:              t.id,
		Name:            t.name,
		BasePriority:    t.basePriority,
		CurrentPriority: t.currentPriority,
		TicksRemaining:  t.ticksRemaining,
		SRDMask:         t.srdMask,
		RunTimeMs:       t.runTimeMs,
		CPUPercentCenti: t.cpuPercentCenti,
	}
}

func (t *TaskDescriptor) valid() bool {
	return t.state != StateInvalid && t.id != NoTask
}

func (t *TaskDescriptor) runnable() bool {
	return t.state == StateReady || t.state == StateUnrun
}
