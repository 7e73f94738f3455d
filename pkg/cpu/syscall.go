package cpu

import (
	"strconv"

	"github.com/pkg/errors"

	"asmvm/pkg/isa"
)

// Syscall numbers, passed in rax.
const (
	SysExit  = 0
	SysWrite = 1
)

// StdoutFD selects the output stream for SysWrite, passed in rbx.
const StdoutFD = 1

// syscall handles the supported calls; any other combination does nothing.
func (c *CPU) syscall() error {
	switch c.Regs[isa.RAX] {
	case SysExit:
		c.Halted = true
		c.logger.Debug("halt", "steps", c.steps+1, "rip", c.Regs[isa.RIP])
	case SysWrite:
		if c.Regs[isa.RBX] != StdoutFD {
			return nil
		}
		buf := strconv.AppendUint(nil, c.Regs[isa.RDX], 10)
		if _, err := c.outputSink().Write(buf); err != nil {
			return errors.Wrap(err, "syscall write")
		}
	}
	return nil
}
