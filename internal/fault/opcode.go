// Package fault classifies faulting instructions and fault statuses so
// the kernel's fault handlers can report a useful message without
// spreading bit tests across the reporting code.
package fault

// Kind identifies which fault handler observed the trap.
type Kind int

const (
	Usage Kind = iota
	Bus
	Hard
	MemoryProtection
)

func (k Kind) String() string {
	switch k {
	case Usage:
		return "usage fault"
	case Bus:
		return "bus fault"
	case Hard:
		return "hard fault"
	case MemoryProtection:
		return "MPU fault"
	default:
		return "unknown fault"
	}
}

// Descriptor is the tagged-variant fault report the handlers build instead
// of spreading status-word bit tests across their reporting code.
type Descriptor struct {
	Kind         Kind
	TaskName     string
	FaultingAddr uint32
	HasFaultAddr bool
	StatusWord   uint32
	StackedPC    uint32
	StackedLR    uint32
	StackedXPSR  uint32
	StackedArgs  [4]uint32 // R0-R3
	StackedR12   uint32
}

// InstructionLength reports how many bytes the faulting instruction
// occupies, using the first halfword's top five bits: 0b11101, 0b11110,
// and 0b11111 are reserved for 32-bit Thumb-2 encodings; every other
// pattern is a 16-bit instruction. This is the same weak heuristic the
// reference firmware uses to step a recoverable MPU fault past its
// offending instruction, not a full decoder.
func InstructionLength(firstHalfword uint16) int {
	top5 := firstHalfword >> 11
	switch top5 {
	case 0b11101, 0b11110, 0b11111:
		return 4
	default:
		return 2
	}
}
