package isa

import "encoding/binary"

// Instruction layout:
//
//	header   u16 LE   opcode id in bits 0-13, log2(operand width) in bits 14-15
//	operand  tag byte, bits 6-7 select the form:
//	         00 register  bits 0-5 register id
//	         01 constant  followed by an i64 LE value
//	         10 memory    bits 0-5 index term count, then one byte per term
//	                      (register id in bits 0-5, log2(scale) in bits 6-7),
//	                      then an i64 LE offset
const (
	HeaderLen   = 2
	MaxOpcodeID = 1<<14 - 1

	TagMask     byte = 0xC0
	TagRegister byte = 0x00
	TagConstant byte = 0x40
	TagMemory   byte = 0x80
	PayloadMask byte = 0x3F

	MaxIndexTerms = int(PayloadMask)

	RegisterOperandLen = 1
	ConstantOperandLen = 1 + 8
)

func MemoryOperandLen(terms int) int {
	return 1 + terms + 8
}

func EncodeHeader(id uint16, size uint8) uint16 {
	return id&MaxOpcodeID | uint16(size&0x03)<<14
}

func DecodeHeader(h uint16) (id uint16, size uint8) {
	return h & MaxOpcodeID, uint8(h >> 14)
}

// ScaleExponent returns log2(scale) for the scales an index term may use.
func ScaleExponent(scale int64) (uint8, bool) {
	switch scale {
	case 1:
		return 0, true
	case 2:
		return 1, true
	case 4:
		return 2, true
	case 8:
		return 3, true
	}
	return 0, false
}

func AppendHeader(buf []byte, id uint16, size uint8) []byte {
	return binary.LittleEndian.AppendUint16(buf, EncodeHeader(id, size))
}

func AppendRegister(buf []byte, reg uint8) []byte {
	return append(buf, TagRegister|reg&PayloadMask)
}

func AppendConstant(buf []byte, value int64) []byte {
	buf = append(buf, TagConstant)
	return binary.LittleEndian.AppendUint64(buf, uint64(value))
}

// AppendMemory encodes an indexed memory operand. Callers validate scales
// with ScaleExponent and the term count against MaxIndexTerms.
func AppendMemory(buf []byte, index []Index, offset int64) []byte {
	buf = append(buf, TagMemory|byte(len(index))&PayloadMask)
	for _, ix := range index {
		exp, _ := ScaleExponent(int64(ix.Scale))
		buf = append(buf, ix.Reg&PayloadMask|exp<<6)
	}
	return binary.LittleEndian.AppendUint64(buf, uint64(offset))
}
