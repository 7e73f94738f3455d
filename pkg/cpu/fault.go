package cpu

import "fmt"

type FaultKind int

const (
	DivideByZero FaultKind = iota
	MemoryOutOfBounds
	UnknownOpcode
	BadOperand
)

func (k FaultKind) String() string {
	switch k {
	case DivideByZero:
		return "divide by zero"
	case MemoryOutOfBounds:
		return "memory access out of bounds"
	case UnknownOpcode:
		return "unknown opcode"
	case BadOperand:
		return "bad operand"
	}
	return fmt.Sprintf("FaultKind(%d)", int(k))
}

// Fault stops execution. RIP is the address of the faulting instruction and
// Addr the memory address involved, when there is one.
type Fault struct {
	Kind   FaultKind
	RIP    uint64
	Addr   uint64
	Opcode uint16
}

func (f *Fault) Error() string {
	switch f.Kind {
	case MemoryOutOfBounds, BadOperand:
		return fmt.Sprintf("fault at rip=0x%x: %s (addr 0x%x)", f.RIP, f.Kind, f.Addr)
	case UnknownOpcode:
		return fmt.Sprintf("fault at rip=0x%x: %s 0x%x", f.RIP, f.Kind, f.Opcode)
	}
	return fmt.Sprintf("fault at rip=0x%x: %s", f.RIP, f.Kind)
}
