package isa

import (
	"encoding/binary"
	"fmt"
)

// Index is one scaled register term of a memory operand.
type Index struct {
	Reg   uint8
	Scale uint8
}

// Operand is a decoded operand descriptor. Value holds the constant for
// ArgConstant and the displacement for ArgMemory. Offset is the position of
// the tag byte in the code.
type Operand struct {
	Kind   ArgKind
	Reg    uint8
	Index  []Index
	Value  int64
	Offset int
}

// Instruction is the structural view of one encoded instruction.
type Instruction struct {
	Op       Opcode
	Size     uint8
	Operands []Operand
	Offset   int
	Len      int
}

type DecodeErrorKind int

const (
	Truncated DecodeErrorKind = iota
	UnknownOpcode
	BadTag
)

// DecodeError reports malformed code at a byte offset.
type DecodeError struct {
	Kind   DecodeErrorKind
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode at offset %d: %s", e.Offset, e.Reason)
}

// Decode reads the instruction starting at code[off].
func Decode(code []byte, off int) (Instruction, error) {
	if off < 0 || off+HeaderLen > len(code) {
		return Instruction{}, &DecodeError{Truncated, off, "truncated header"}
	}
	id, size := DecodeHeader(binary.LittleEndian.Uint16(code[off:]))
	op, ok := OpcodeByID(id)
	if !ok {
		return Instruction{}, &DecodeError{UnknownOpcode, off, fmt.Sprintf("unknown opcode 0x%X", id)}
	}

	ins := Instruction{Op: op, Size: size, Offset: off}
	pc := off + HeaderLen
	for range op.Args {
		if pc >= len(code) {
			return Instruction{}, &DecodeError{Truncated, pc, "truncated operand"}
		}
		start := pc
		tag := code[pc]
		pc++
		switch tag & TagMask {
		case TagRegister:
			ins.Operands = append(ins.Operands, Operand{Kind: ArgRegister, Reg: tag & PayloadMask, Offset: start})
		case TagConstant:
			if pc+8 > len(code) {
				return Instruction{}, &DecodeError{Truncated, pc, "truncated constant"}
			}
			v := int64(binary.LittleEndian.Uint64(code[pc:]))
			pc += 8
			ins.Operands = append(ins.Operands, Operand{Kind: ArgConstant, Value: v, Offset: start})
		case TagMemory:
			n := int(tag & PayloadMask)
			if pc+n+8 > len(code) {
				return Instruction{}, &DecodeError{Truncated, pc, "truncated memory operand"}
			}
			operand := Operand{Kind: ArgMemory, Offset: start}
			for _, b := range code[pc : pc+n] {
				operand.Index = append(operand.Index, Index{Reg: b & PayloadMask, Scale: 1 << (b >> 6)})
			}
			pc += n
			operand.Value = int64(binary.LittleEndian.Uint64(code[pc:]))
			pc += 8
			ins.Operands = append(ins.Operands, operand)
		default:
			return Instruction{}, &DecodeError{BadTag, pc - 1, fmt.Sprintf("bad operand tag 0x%02X", tag)}
		}
	}
	ins.Len = pc - off
	return ins, nil
}
