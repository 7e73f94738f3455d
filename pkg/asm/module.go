package asm

import (
	"asmvm/pkg/isa"
	"asmvm/pkg/lexer"
)

// Record is one entry of a translated module: an Instruction or one of the
// pseudo-records DefineLabel, DeclareExtern, DeclareGlobal and PlaceBytes.
type Record interface {
	// Position is the first source token of the record.
	Position() lexer.Token
	record()
}

type Instruction struct {
	Op   isa.Opcode
	Size uint8 // log2 of the operand width in bytes
	Args []Argument
	Pos  lexer.Token
}

// EncodedLen is the number of bytes the linker will emit for the instruction.
func (i Instruction) EncodedLen() int {
	n := isa.HeaderLen
	for _, a := range i.Args {
		n += a.EncodedLen()
	}
	return n
}

type DefineLabel struct {
	Name string
	Pos  lexer.Token
}

type DeclareExtern struct {
	Name string
	Pos  lexer.Token
}

type DeclareGlobal struct {
	Name string
	Pos  lexer.Token
}

// PlaceBytes lays raw data out inline in the code stream.
type PlaceBytes struct {
	Data []byte
	Pos  lexer.Token
}

func (r Instruction) Position() lexer.Token   { return r.Pos }
func (r DefineLabel) Position() lexer.Token   { return r.Pos }
func (r DeclareExtern) Position() lexer.Token { return r.Pos }
func (r DeclareGlobal) Position() lexer.Token { return r.Pos }
func (r PlaceBytes) Position() lexer.Token    { return r.Pos }

func (Instruction) record()   {}
func (DefineLabel) record()   {}
func (DeclareExtern) record() {}
func (DeclareGlobal) record() {}
func (PlaceBytes) record()    {}

// Module is the translation of one compilation unit.
type Module struct {
	Name    string
	Records []Record
}

// Size is the number of bytes the module occupies once linked.
func (m *Module) Size() int {
	n := 0
	for _, r := range m.Records {
		switch r := r.(type) {
		case Instruction:
			n += r.EncodedLen()
		case PlaceBytes:
			n += len(r.Data)
		}
	}
	return n
}
