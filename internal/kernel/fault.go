package kernel

import "github.com/cortexm-rtos/kernel/internal/fault"

// fault.go models the hard/bus/usage/MPU fault handlers. A Go process has
// no CPU status registers to trap, so these are exposed as an explicit
// entry point a simulated memory access calls synchronously the moment it
// detects an out-of-bounds access, rather than something that happens
// automatically.

// ReportFault handles a fault observed while callerIdx was current.
// Unlike Tick, ReportFault must be called by callerIdx's own goroutine,
// in the same way a real fault traps the faulting instruction stream
// itself rather than some other core: it is a trap call site like Lock
// or Wait, and it is safe for it to wait on its own gate below. Hard,
// bus, and usage faults are fatal: the reference firmware's handlers for
// all three spin forever with interrupts masked rather than attempt any
// recovery, and this reports the fault and then halts the same way
// requestSwitch halts when no task is runnable — holding the executive
// lock forever, since nothing useful can happen system-wide past a fault
// these handlers don't even try to recover from. MPU faults are the one
// recoverable kind: the faulting instruction's stacked PC is advanced
// past the offending instruction using the same weak opcode-length
// heuristic the reference firmware uses, and the scheduler is asked to
// pick a next task.
func (k *Kernel) ReportFault(callerIdx int, desc fault.Descriptor, firstHalfword uint16) {
	k.mu.Lock()

	desc.TaskName = k.tasks[callerIdx].name
	k.writeDiag("kernel: %s in task %q: status=%#x addr=%#x(%v) pc=%#x lr=%#x\n",
		desc.Kind, desc.TaskName, desc.StatusWord, desc.FaultingAddr, desc.HasFaultAddr,
		desc.StackedPC, desc.StackedLR)

	if desc.Kind != fault.MemoryProtection {
		k.writeDiag("kernel: halt, unrecoverable fault in task %q\n", desc.TaskName)
		select {}
	}

	advance := fault.InstructionLength(firstHalfword)
	desc.StackedPC += uint32(advance)
	k.writeDiag("kernel: mpu fault recovered, resuming task %q at pc=%#x\n", desc.TaskName, desc.StackedPC)

	switched := k.requestSwitch(callerIdx)
	gate := k.gates[callerIdx]
	k.mu.Unlock()
	if switched {
		<-gate
	}
}
