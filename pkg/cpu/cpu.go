package cpu

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"

	"asmvm/pkg/isa"
)

// DefaultMemorySize is the memory given to a CPU when none is requested.
const DefaultMemorySize = 32768

// LevelTrace sits below slog.LevelDebug and carries one record per executed
// instruction.
const LevelTrace slog.Level = slog.LevelDebug - 4

// ErrStepLimit is returned by RunLimit when the program is still running
// after the requested number of instructions.
var ErrStepLimit = errors.New("step limit reached")

// Flags is the status register. Carry and Aux are never written by any
// instruction; they keep whatever value they were given.
type Flags struct {
	Carry  bool
	Parity bool
	Aux    bool
	Zero   bool
	Sign   bool
}

type CPU struct {
	Regs  [isa.NumRegisters]uint64
	Flags Flags

	Memory []byte

	Halted bool

	// Output is where the print syscall writes. If nil, os.Stdout is used.
	Output io.Writer

	steps  int64
	logger *slog.Logger
	trace  bool
}

type Option func(*CPU)

func WithOutput(w io.Writer) Option {
	return func(c *CPU) { c.Output = w }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *CPU) { c.logger = l }
}

// WithTrace logs every instruction at LevelTrace before it executes.
func WithTrace(on bool) Option {
	return func(c *CPU) { c.trace = on }
}

// NewCPU creates a machine with memSize bytes of zeroed memory. A
// non-positive size selects DefaultMemorySize.
func NewCPU(memSize int, opts ...Option) *CPU {
	if memSize <= 0 {
		memSize = DefaultMemorySize
	}
	c := &CPU{
		Memory: make([]byte, memSize),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Regs[isa.RSP] = uint64(memSize)
	return c
}

// Load resets the machine, copies code to address 0 and points RIP at entry.
// Registers, flags and memory start zeroed; the stack starts at the top of
// memory and grows down.
func (c *CPU) Load(code []byte, entry uint64) error {
	if len(code) > len(c.Memory) {
		return errors.Errorf("program of %d bytes does not fit in %d bytes of memory", len(code), len(c.Memory))
	}
	c.Regs = [isa.NumRegisters]uint64{}
	c.Flags = Flags{}
	clear(c.Memory)
	copy(c.Memory, code)
	c.Regs[isa.RIP] = entry
	c.Regs[isa.RSP] = uint64(len(c.Memory))
	c.Halted = false
	c.steps = 0
	return nil
}

func (c *CPU) outputSink() io.Writer {
	if c.Output != nil {
		return c.Output
	}
	return os.Stdout
}

// RIP is the address of the next instruction.
func (c *CPU) RIP() uint64 { return c.Regs[isa.RIP] }

// RSP is the current stack pointer.
func (c *CPU) RSP() uint64 { return c.Regs[isa.RSP] }

// InstructionCount is the number of instructions executed since Load.
func (c *CPU) InstructionCount() int64 { return c.steps }

func (c *CPU) updateFlags(result uint64, width int) {
	c.Flags.Sign = result>>(uint(width)*8-1)&1 != 0
	c.Flags.Zero = result != 0
	c.Flags.Parity = result&1 == 0
}

// Step executes one instruction. A halted CPU does nothing. Faults leave the
// CPU state as it was before the instruction.
func (c *CPU) Step() error {
	if c.Halted {
		return nil
	}

	rip := c.Regs[isa.RIP]
	if rip >= uint64(len(c.Memory)) {
		return &Fault{Kind: MemoryOutOfBounds, RIP: rip, Addr: rip}
	}
	ins, err := isa.Decode(c.Memory, int(rip))
	if err != nil {
		return c.decodeFault(rip, err)
	}

	if c.trace {
		c.logger.Log(context.Background(), LevelTrace, "step",
			"rip", rip, "op", ins.Op.Name, "size", isa.SizeName(ins.Size),
			"rax", c.Regs[isa.RAX], "rsp", c.Regs[isa.RSP])
	}

	width := 1 << ins.Size
	next := rip + uint64(ins.Len)

	locs := make([]location, len(ins.Operands))
	for i, op := range ins.Operands {
		locs[i] = c.resolve(op)
	}

	if err := c.execute(ins, locs, width, next); err != nil {
		c.Regs[isa.RIP] = rip
		var f *Fault
		if errors.As(err, &f) {
			f.RIP = rip
			f.Opcode = ins.Op.ID
		}
		return err
	}
	c.steps++
	return nil
}

func (c *CPU) decodeFault(rip uint64, err error) error {
	var de *isa.DecodeError
	if !errors.As(err, &de) {
		return err
	}
	f := &Fault{RIP: rip, Addr: uint64(de.Offset)}
	switch de.Kind {
	case isa.UnknownOpcode:
		f.Kind = UnknownOpcode
		f.Opcode, _ = isa.DecodeHeader(binary.LittleEndian.Uint16(c.Memory[rip:]))
	case isa.BadTag:
		f.Kind = BadOperand
	default:
		f.Kind = MemoryOutOfBounds
	}
	return f
}

// execute applies one decoded instruction. Data instructions move RIP to next
// before touching their operands, so an operand naming rip observes the
// following address. Control transfers read their target first.
func (c *CPU) execute(ins isa.Instruction, locs []location, width int, next uint64) error {
	switch ins.Op.ID {
	case isa.OpADD, isa.OpSUB, isa.OpMUL, isa.OpDIV:
		c.Regs[isa.RIP] = next
		a, err := c.read(locs[0], width)
		if err != nil {
			return err
		}
		b, err := c.read(locs[1], width)
		if err != nil {
			return err
		}
		var result uint64
		switch ins.Op.ID {
		case isa.OpADD:
			result = a + b
		case isa.OpSUB:
			result = a - b
		case isa.OpMUL:
			result = a * b
		case isa.OpDIV:
			if b == 0 {
				return &Fault{Kind: DivideByZero}
			}
			result = a / b
		}
		result &= mask(width)
		if err := c.write(locs[0], width, result); err != nil {
			return err
		}
		c.updateFlags(result, width)

	case isa.OpINC, isa.OpDEC:
		c.Regs[isa.RIP] = next
		a, err := c.read(locs[0], width)
		if err != nil {
			return err
		}
		result := a + 1
		if ins.Op.ID == isa.OpDEC {
			result = a - 1
		}
		result &= mask(width)
		if err := c.write(locs[0], width, result); err != nil {
			return err
		}
		c.updateFlags(result, width)

	case isa.OpCMP:
		c.Regs[isa.RIP] = next
		a, err := c.read(locs[0], width)
		if err != nil {
			return err
		}
		b, err := c.read(locs[1], width)
		if err != nil {
			return err
		}
		c.updateFlags((a-b)&mask(width), width)

	case isa.OpMOV:
		c.Regs[isa.RIP] = next
		if locs[0] == locs[1] {
			return nil
		}
		v, err := c.read(locs[1], width)
		if err != nil {
			return err
		}
		return c.write(locs[0], width, v)

	case isa.OpPUSH:
		c.Regs[isa.RIP] = next
		v, err := c.read(locs[0], 8)
		if err != nil {
			return err
		}
		return c.push(v)

	case isa.OpPOP:
		c.Regs[isa.RIP] = next
		v, err := c.pop()
		if err != nil {
			return err
		}
		return c.write(locs[0], 8, v)

	case isa.OpCALL:
		target, err := c.read(locs[0], width)
		if err != nil {
			return err
		}
		if err := c.push(next); err != nil {
			return err
		}
		c.Regs[isa.RIP] = target

	case isa.OpRET:
		v, err := c.pop()
		if err != nil {
			return err
		}
		c.Regs[isa.RIP] = v

	case isa.OpJMP, isa.OpJE, isa.OpJNE:
		target, err := c.read(locs[0], width)
		if err != nil {
			return err
		}
		// Zero holds "result was nonzero", so je jumps on equal operands.
		taken := ins.Op.ID == isa.OpJMP ||
			(ins.Op.ID == isa.OpJE && !c.Flags.Zero) ||
			(ins.Op.ID == isa.OpJNE && c.Flags.Zero)
		if taken {
			c.Regs[isa.RIP] = target
		} else {
			c.Regs[isa.RIP] = next
		}

	case isa.OpSYSCALL:
		c.Regs[isa.RIP] = next
		return c.syscall()

	default:
		return &Fault{Kind: UnknownOpcode}
	}
	return nil
}

// push stores v below RSP. RSP only moves when the store succeeded.
func (c *CPU) push(v uint64) error {
	sp := c.Regs[isa.RSP] - 8
	if err := c.write(location{reg: -1, addr: sp}, 8, v); err != nil {
		return err
	}
	c.Regs[isa.RSP] = sp
	return nil
}

func (c *CPU) pop() (uint64, error) {
	sp := c.Regs[isa.RSP]
	v, err := c.read(location{reg: -1, addr: sp}, 8)
	if err != nil {
		return 0, err
	}
	c.Regs[isa.RSP] = sp + 8
	return v, nil
}

// Run executes until the program halts or faults.
func (c *CPU) Run() error {
	for !c.Halted {
		if err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}

// RunLimit is Run with a cap on the number of instructions. A non-positive
// max means no cap.
func (c *CPU) RunLimit(max int64) error {
	if max <= 0 {
		return c.Run()
	}
	for i := int64(0); !c.Halted; i++ {
		if i == max {
			return ErrStepLimit
		}
		if err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}
