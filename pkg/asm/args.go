package asm

import (
	"errors"
	"math"

	"asmvm/pkg/isa"
)

// Argument is one parsed operand. The concrete type is one of RegisterArg,
// ConstantArg or MemoryArg.
type Argument interface {
	Kind() isa.ArgKind
	EncodedLen() int
	argument()
}

// SymbolTerm is a label reference scaled by Mult, resolved at link time.
type SymbolTerm struct {
	Mult  int64
	Label string
}

// IndexTerm is a register scaled by 1, 2, 4 or 8 inside a memory operand.
type IndexTerm struct {
	Scale uint8
	Reg   isa.Register
}

type RegisterArg struct {
	Reg isa.Register
}

// ConstantArg encodes the sum of its terms as a literal.
type ConstantArg struct {
	Consts  []int64
	Symbols []SymbolTerm
}

// MemoryArg addresses Σ(scale×register) plus the sum of its offset terms.
type MemoryArg struct {
	Index   []IndexTerm
	Consts  []int64
	Symbols []SymbolTerm
}

func (RegisterArg) Kind() isa.ArgKind { return isa.ArgRegister }
func (ConstantArg) Kind() isa.ArgKind { return isa.ArgConstant }
func (MemoryArg) Kind() isa.ArgKind   { return isa.ArgMemory }

func (RegisterArg) EncodedLen() int { return isa.RegisterOperandLen }
func (ConstantArg) EncodedLen() int { return isa.ConstantOperandLen }
func (m MemoryArg) EncodedLen() int { return isa.MemoryOperandLen(len(m.Index)) }

func (RegisterArg) argument() {}
func (ConstantArg) argument() {}
func (MemoryArg) argument()   {}

// ErrValueRange is returned when an operand's terms do not fit in an int64.
var ErrValueRange = errors.New("operand value out of range")

// UnresolvedLabel names a label the resolver did not know.
type UnresolvedLabel string

func (u UnresolvedLabel) Error() string { return "unresolved symbol " + string(u) }

// Offset sums the constant terms and the symbolic terms, looking labels up
// with resolve. An unknown label yields UnresolvedLabel; a sum or product
// leaving the int64 range yields ErrValueRange.
func Offset(consts []int64, symbols []SymbolTerm, resolve func(label string) (int64, bool)) (int64, error) {
	sum, ok := sumInt64(consts)
	if !ok {
		return 0, ErrValueRange
	}
	for _, s := range symbols {
		v, found := resolve(s.Label)
		if !found {
			return 0, UnresolvedLabel(s.Label)
		}
		term, ok := mulInt64(s.Mult, v)
		if !ok {
			return 0, ErrValueRange
		}
		if sum, ok = addInt64(sum, term); !ok {
			return 0, ErrValueRange
		}
	}
	return sum, nil
}

func addInt64(a, b int64) (int64, bool) {
	c := a + b
	if (b > 0 && c < a) || (b < 0 && c > a) {
		return 0, false
	}
	return c, true
}

func mulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	c := a * b
	if c/b != a {
		return 0, false
	}
	return c, true
}

func sumInt64(vs []int64) (int64, bool) {
	var sum int64
	for _, v := range vs {
		var ok bool
		if sum, ok = addInt64(sum, v); !ok {
			return 0, false
		}
	}
	return sum, true
}

// IsNumeric reports whether the operand needs no label resolution.
func (c ConstantArg) IsNumeric() bool {
	return len(c.Symbols) == 0
}

// Sum is the value of a purely numeric constant. The translator rejects
// constants whose terms overflow, so the sum always fits.
func (c ConstantArg) Sum() int64 {
	sum, _ := sumInt64(c.Consts)
	return sum
}
