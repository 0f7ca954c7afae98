package kernel

import (
	"fmt"
	"reflect"

	"github.com/cortexm-rtos/kernel/internal/mpu"
)

// identityOf returns the durable TaskID for a task body: the Go analogue
// of the reference firmware's raw function-pointer pid. Distinct
// top-level functions (or distinct named closures, not closures sharing
// one literal) yield distinct, stable code pointers across restarts.
func identityOf(body func(Syscalls)) TaskID {
	return TaskID(reflect.ValueOf(body).Pointer())
}

// CreateTask registers a task at boot. It fails if the table is full, if
// body's identity is already registered (duplicate entry detection by
// entry address), or if the heap cannot satisfy stackBytes. On success it
// occupies the lowest-index Invalid slot, allocates and aligns a stack,
// computes the task's SRD mask, and leaves the task Unrun.
func (k *Kernel) CreateTask(name string, priority int, stackBytes uint32, body func(Syscalls)) (TaskID, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.started {
		return NoTask, fmt.Errorf("kernel: CreateTask after Start: task set is bounded")
	}
	if k.taskCount >= MaxTasks {
		return NoTask, fmt.Errorf("kernel: task table full (capacity %d)", MaxTasks)
	}

	id := identityOf(body)
	for i := range k.tasks {
		if k.tasks[i].id == id && k.tasks[i].state != StateInvalid {
			return NoTask, fmt.Errorf("kernel: task entry already registered")
		}
	}

	idx := -1
	for i := range k.tasks {
		if k.tasks[i].state == StateInvalid {
			idx = i
			break
		}
	}
	if idx < 0 {
		return NoTask, fmt.Errorf("kernel: task table full (capacity %d)", MaxTasks)
	}

	ownerTag := uint16(idx + 1) // 0 means "no owner"; tasks are never tag 0
	base, ok := k.heap.Allocate(int(stackBytes), ownerTag)
	if !ok {
		return NoTask, fmt.Errorf("kernel: heap cannot satisfy %d-byte stack for %q", stackBytes, name)
	}
	stackTop := (base + stackBytes) &^ 7 // 8-byte alignment

	if priority < 0 || priority >= NumPriorities {
		priority = NumPriorities - 1
	}

	k.tasks[idx] = TaskDescriptor{
		state:            StateUnrun,
		id:               id,
		name:             truncateName(name),
		basePriority:     priority,
		currentPriority:  priority,
		heldMutex:        noMutex,
		awaitedSemaphore: noSemaphore,
		stackBase:        base,
		stackBytes:       stackBytes,
		stackTop:         stackTop,
		srdMask:          mpu.ForStack(base, stackBytes),
	}
	k.bodies[idx] = body
	k.gates[idx] = make(chan struct{})
	k.taskCount++

	return id, nil
}

func truncateName(name string) string {
	const maxNameBytes = 15
	if len(name) > maxNameBytes {
		return name[:maxNameBytes]
	}
	return name
}

func (k *Kernel) indexByID(id TaskID) (int, bool) {
	for i := range k.tasks {
		if k.tasks[i].id == id && k.tasks[i].state != StateInvalid {
			return i, true
		}
	}
	return 0, false
}

func (k *Kernel) indexByName(name string) (int, bool) {
	for i := range k.tasks {
		if k.tasks[i].valid() && k.tasks[i].name == name {
			return i, true
		}
	}
	return 0, false
}

// pidOf implements service 6: the matching task's id, or NoTask if none.
func (k *Kernel) pidOf(name string) TaskID {
	if idx, ok := k.indexByName(name); ok {
		return k.tasks[idx].id
	}
	return NoTask
}

// kill implements service 8. See trap.go for the self-vs-other handling
// that decides whether a switch must be requested.
func (k *Kernel) kill(idx int) {
	k.removeFromSemaphoreQueue(idx)
	k.releaseMutexesHeldBy(idx)

	if idx != k.current && k.tasks[idx].stackBase != 0 {
		k.heap.Free(k.tasks[idx].stackBase, uint16(idx+1))
		k.tasks[idx].stackBase = 0
	}

	k.tasks[idx].state = StateKilled
	k.tasks[idx].ticksRemaining = 0
	k.tasks[idx].runTimeMs = 0
	k.tasks[idx].cpuPercentCenti = 0
}

// restart implements service 9: rebuild the stack and reset to Unrun,
// spawning a fresh goroutine for the slot since the old one may be parked
// deep inside the task body and cannot be rewound to the entry point.
// Failure (heap exhaustion) leaves the task in its prior Killed state.
func (k *Kernel) restart(idx int) bool {
	if k.tasks[idx].stackBase != 0 {
		k.heap.Free(k.tasks[idx].stackBase, uint16(idx+1))
		k.tasks[idx].stackBase = 0
	}

	stackBytes := k.tasks[idx].stackBytes
	if stackBytes == 0 {
		stackBytes = 1024
	}

	base, ok := k.heap.Allocate(int(stackBytes), uint16(idx+1))
	if !ok {
		return false
	}

	k.tasks[idx].stackBase = base
	k.tasks[idx].stackBytes = stackBytes
	k.tasks[idx].stackTop = (base + stackBytes) &^ 7
	k.tasks[idx].srdMask = mpu.ForStack(base, stackBytes)
	k.tasks[idx].ticksRemaining = 0
	k.tasks[idx].runTimeMs = 0
	k.tasks[idx].cpuPercentCenti = 0
	k.tasks[idx].heldMutex = noMutex
	k.tasks[idx].awaitedSemaphore = noSemaphore
	k.tasks[idx].state = StateUnrun

	k.gates[idx] = make(chan struct{})
	k.spawn(idx)
	return true
}

// setPriority implements service 10: clamp to range, set both base and
// current priority.
func (k *Kernel) setPriority(idx int, priority int) {
	if priority < 0 {
		priority = 0
	}
	if priority >= NumPriorities {
		priority = NumPriorities - 1
	}
	k.tasks[idx].basePriority = priority
	k.tasks[idx].currentPriority = priority
}
