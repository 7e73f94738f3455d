package asm

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"asmvm/pkg/isa"
)

// FormatInstruction renders a decoded instruction in source syntax, for
// example "mov qword rax, [rbx*4+16]".
func FormatInstruction(ins isa.Instruction) string {
	var b strings.Builder
	b.WriteString(ins.Op.Name)
	if ins.Op.Sized {
		b.WriteByte(' ')
		b.WriteString(isa.SizeName(ins.Size))
	}
	for i, op := range ins.Operands {
		if i == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteString(", ")
		}
		b.WriteString(FormatOperand(op))
	}
	return b.String()
}

func FormatOperand(op isa.Operand) string {
	switch op.Kind {
	case isa.ArgRegister:
		return isa.RegisterName(op.Reg)
	case isa.ArgConstant:
		return strconv.FormatInt(op.Value, 10)
	case isa.ArgMemory:
		var b strings.Builder
		b.WriteByte('[')
		for i, ix := range op.Index {
			if i > 0 {
				b.WriteByte('+')
			}
			b.WriteString(isa.RegisterName(ix.Reg))
			if ix.Scale != 1 {
				b.WriteByte('*')
				b.WriteString(strconv.Itoa(int(ix.Scale)))
			}
		}
		switch {
		case len(op.Index) == 0:
			b.WriteString(strconv.FormatInt(op.Value, 10))
		case op.Value > 0:
			b.WriteByte('+')
			b.WriteString(strconv.FormatInt(op.Value, 10))
		case op.Value < 0:
			b.WriteString(strconv.FormatInt(op.Value, 10))
		}
		b.WriteByte(']')
		return b.String()
	}
	return "?"
}

// Disassemble writes the instruction at pc to w and returns the offset of the
// next one. Bytes that do not decode are shown as a single db.
func Disassemble(code []byte, pc int, w io.Writer) (int, error) {
	if pc < 0 || pc >= len(code) {
		return pc, fmt.Errorf("disassemble: pc %d outside code of %d bytes", pc, len(code))
	}
	ins, err := isa.Decode(code, pc)
	if err != nil {
		if _, werr := fmt.Fprintf(w, "%08x  db 0x%02x\n", pc, code[pc]); werr != nil {
			return pc, werr
		}
		return pc + 1, nil
	}
	if _, err := fmt.Fprintf(w, "%08x  %s\n", pc, FormatInstruction(ins)); err != nil {
		return pc, err
	}
	return pc + ins.Len, nil
}

// DisassembleAll writes a listing of the whole code image.
func DisassembleAll(code []byte, w io.Writer) error {
	for pc := 0; pc < len(code); {
		next, err := Disassemble(code, pc, w)
		if err != nil {
			return err
		}
		pc = next
	}
	return nil
}
