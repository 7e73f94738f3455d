package isa

import "strconv"

// NumRegisters is the size of the register file; ids are 6 bits wide.
const NumRegisters = 1 << 6

const (
	RAX uint8 = 0x00
	RBX uint8 = 0x01
	RCX uint8 = 0x02
	RDX uint8 = 0x03

	RSI uint8 = 0x0C
	RDI uint8 = 0x0D

	RSP uint8 = 0x3E
	RIP uint8 = 0x3F
)

type Register struct {
	Name string
	ID   uint8
}

var registers = []Register{
	{"rax", RAX}, {"rbx", RBX},
	{"rcx", RCX}, {"rdx", RDX},
	{"rdi", RDI}, {"rsi", RSI},
	{"rsp", RSP}, {"rip", RIP},
}

var registersByName = func() map[string]Register {
	m := make(map[string]Register, len(registers))
	for _, r := range registers {
		m[r.Name] = r
	}
	return m
}()

func LookupRegister(name string) (Register, bool) {
	r, ok := registersByName[name]
	return r, ok
}

// Registers returns the named registers in table order.
func Registers() []Register {
	out := make([]Register, len(registers))
	copy(out, registers)
	return out
}

// RegisterName returns the mnemonic for id, or r<id> for unnamed slots.
func RegisterName(id uint8) string {
	for _, r := range registers {
		if r.ID == id {
			return r.Name
		}
	}
	return "r" + strconv.Itoa(int(id))
}
