package cpu

import (
	"encoding/binary"

	"asmvm/pkg/isa"
)

// location is a resolved operand: a register slot when reg >= 0, otherwise a
// memory address. Constant operands resolve to the address of their literal.
type location struct {
	reg  int
	addr uint64
}

func mask(width int) uint64 {
	if width >= 8 {
		return ^uint64(0)
	}
	return 1<<(uint(width)*8) - 1
}

func (c *CPU) resolve(op isa.Operand) location {
	switch op.Kind {
	case isa.ArgRegister:
		return location{reg: int(op.Reg)}
	case isa.ArgConstant:
		return location{reg: -1, addr: uint64(op.Offset) + 1}
	default:
		addr := uint64(op.Value)
		for _, ix := range op.Index {
			addr += c.Regs[ix.Reg] * uint64(ix.Scale)
		}
		return location{reg: -1, addr: addr}
	}
}

func (c *CPU) checkRange(addr uint64, width int) error {
	if addr > uint64(len(c.Memory)) || uint64(len(c.Memory))-addr < uint64(width) {
		return &Fault{Kind: MemoryOutOfBounds, Addr: addr}
	}
	return nil
}

// read loads width bytes from loc. Registers yield their low bytes.
func (c *CPU) read(loc location, width int) (uint64, error) {
	if loc.reg >= 0 {
		return c.Regs[loc.reg] & mask(width), nil
	}
	if err := c.checkRange(loc.addr, width); err != nil {
		return 0, err
	}
	return c.loadLE(loc.addr, width), nil
}

// write stores the low width bytes of v. A register keeps its upper bytes.
func (c *CPU) write(loc location, width int, v uint64) error {
	m := mask(width)
	if loc.reg >= 0 {
		c.Regs[loc.reg] = c.Regs[loc.reg]&^m | v&m
		return nil
	}
	if err := c.checkRange(loc.addr, width); err != nil {
		return err
	}
	c.storeLE(loc.addr, width, v)
	return nil
}

func (c *CPU) loadLE(addr uint64, width int) uint64 {
	b := c.Memory[addr : addr+uint64(width)]
	switch width {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

func (c *CPU) storeLE(addr uint64, width int, v uint64) {
	b := c.Memory[addr : addr+uint64(width)]
	switch width {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}
}

// ReadMem returns width bytes at addr as a little-endian value.
func (c *CPU) ReadMem(addr uint64, width int) (uint64, error) {
	return c.read(location{reg: -1, addr: addr}, width)
}

// WriteMem stores the low width bytes of v at addr.
func (c *CPU) WriteMem(addr uint64, width int, v uint64) error {
	return c.write(location{reg: -1, addr: addr}, width, v)
}
