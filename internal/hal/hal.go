// Package hal defines the capability interfaces the core consumes for
// operations tied to one microcontroller family's literal register
// layout: dropping to unprivileged mode, synthesizing a hardware
// exception frame, and triggering a system reset. Each is a small
// interface so the core never embeds ISA-specific bit layout; a
// bare-metal backend implements these against real registers, the host
// Default backend here implements them as plain bookkeeping for tests
// and for the CLI-driven simulator.
package hal

// Frame is the bookkeeping record of a task's simulated hardware+software
// stack frame. It never addresses real memory: the stack invariant it
// represents ("eight callee-saved words followed by the eight-word
// hardware frame") is a bookkeeping fact asserted by tests, not bytes a
// Go goroutine actually executes against.
type Frame struct {
	StackTop   uint32
	EntryPoint uint64 // opaque task identity, the Go analogue of the entry PC
}

// FrameBuilder synthesizes the initial frame for a task that has never
// run, the Go analogue of "build a hardware frame that, when returned
// from exception, enters the task's entry point in thumb mode."
type FrameBuilder interface {
	BuildInitialFrame(stackTop uint32, entryPoint uint64) Frame
}

// ResetController triggers a system reset. On real hardware this writes
// the SCB's AIRCR with the reset key; on the host it re-execs the current
// process image, which is the closest portable analogue available to a
// normal OS process.
type ResetController interface {
	Reset() error
}

// PrivilegeSwitch models dropping from privileged (kernel) to
// unprivileged (task) execution. Go has no hardware privilege rings, so
// the host backend is a no-op capability slot kept only so a bare-metal
// backend has somewhere to plug in real CONTROL-register manipulation.
type PrivilegeSwitch interface {
	DropToUnprivileged()
}

// Backend bundles the three capabilities a kernel needs from its HAL.
type Backend interface {
	FrameBuilder
	ResetController
	PrivilegeSwitch
}

// Default is the host-only implementation of all three capabilities.
type Default struct {
	resetFn func() error
}

// NewDefault returns a HAL backend suitable for the host simulator. resetFn
// is called by Reset; pass nil to get a no-op reset (used in tests that
// must never actually exec()).
func NewDefault(resetFn func() error) *Default {
	return &Default{resetFn: resetFn}
}

func (d *Default) BuildInitialFrame(stackTop uint32, entryPoint uint64) Frame {
	return Frame{StackTop: stackTop, EntryPoint: entryPoint}
}

func (d *Default) DropToUnprivileged() {}

func (d *Default) Reset() error {
	if d.resetFn == nil {
		return nil
	}
	return d.resetFn()
}
