package isa

// ArgKind is a set of operand forms an opcode accepts in one position.
type ArgKind uint8

const (
	ArgRegister ArgKind = 1 << iota
	ArgConstant
	ArgMemory

	ArgVar = ArgRegister | ArgMemory
	ArgAny = ArgVar | ArgConstant
)

func (k ArgKind) Has(other ArgKind) bool {
	return k&other != 0
}

func (k ArgKind) String() string {
	switch k {
	case ArgRegister:
		return "register"
	case ArgConstant:
		return "constant"
	case ArgMemory:
		return "memory"
	case ArgVar:
		return "register or memory"
	case ArgAny:
		return "any"
	case ArgRegister | ArgConstant:
		return "register or constant"
	}
	return "none"
}

const (
	OpADD     uint16 = 0x00
	OpSUB     uint16 = 0x01
	OpMUL     uint16 = 0x02
	OpDIV     uint16 = 0x03
	OpINC     uint16 = 0x0D
	OpDEC     uint16 = 0x0E
	OpCMP     uint16 = 0x0F
	OpCALL    uint16 = 0x10
	OpRET     uint16 = 0x11
	OpJMP     uint16 = 0x12
	OpJE      uint16 = 0x14
	OpJNE     uint16 = 0x15
	OpMOV     uint16 = 0x30
	OpPUSH    uint16 = 0x31
	OpPOP     uint16 = 0x32
	OpSYSCALL uint16 = 0xFF
)

// Opcode describes one mnemonic: its numeric id, the operand kinds it takes
// and whether it accepts a byte/word/dword/qword size keyword.
type Opcode struct {
	Name  string
	ID    uint16
	Args  []ArgKind
	Sized bool
}

// Arity returns the number of operands encoded after the header.
func (o Opcode) Arity() int {
	return len(o.Args)
}

var opcodes = []Opcode{
	{"add", OpADD, []ArgKind{ArgVar, ArgAny}, true},
	{"sub", OpSUB, []ArgKind{ArgVar, ArgAny}, true},
	{"mul", OpMUL, []ArgKind{ArgVar, ArgAny}, true},
	{"div", OpDIV, []ArgKind{ArgVar, ArgAny}, true},
	{"inc", OpINC, []ArgKind{ArgVar}, true},
	{"dec", OpDEC, []ArgKind{ArgVar}, true},
	{"cmp", OpCMP, []ArgKind{ArgAny, ArgAny}, true},

	{"mov", OpMOV, []ArgKind{ArgVar, ArgAny}, true},
	{"push", OpPUSH, []ArgKind{ArgRegister | ArgConstant}, false},
	{"pop", OpPOP, []ArgKind{ArgRegister}, false},

	{"call", OpCALL, []ArgKind{ArgAny}, false},
	{"ret", OpRET, nil, false},
	{"jmp", OpJMP, []ArgKind{ArgAny}, false},
	{"je", OpJE, []ArgKind{ArgAny}, false},
	{"jne", OpJNE, []ArgKind{ArgAny}, false},

	{"syscall", OpSYSCALL, nil, false},
}

var (
	opcodesByName = make(map[string]Opcode, len(opcodes))
	opcodesByID   [MaxOpcodeID + 1]*Opcode
)

func init() {
	for i := range opcodes {
		op := &opcodes[i]
		opcodesByName[op.Name] = *op
		opcodesByID[op.ID] = op
	}
}

// LookupOpcode finds an opcode by its mnemonic.
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opcodesByName[name]
	return op, ok
}

// OpcodeByID finds an opcode by the id packed into an instruction header.
func OpcodeByID(id uint16) (Opcode, bool) {
	if int(id) >= len(opcodesByID) || opcodesByID[id] == nil {
		return Opcode{}, false
	}
	return *opcodesByID[id], true
}

// Opcodes returns a copy of the opcode table in declaration order.
func Opcodes() []Opcode {
	out := make([]Opcode, len(opcodes))
	copy(out, opcodes)
	return out
}

var sizeKeywords = map[string]uint8{
	"byte":  0,
	"word":  1,
	"dword": 2,
	"qword": 3,
}

var sizeNames = [...]string{"byte", "word", "dword", "qword"}

// SizeExponent maps a size keyword to log2 of its width in bytes.
func SizeExponent(keyword string) (uint8, bool) {
	exp, ok := sizeKeywords[keyword]
	return exp, ok
}

// SizeName is the inverse of SizeExponent.
func SizeName(exp uint8) string {
	if int(exp) < len(sizeNames) {
		return sizeNames[exp]
	}
	return "?"
}

// DefaultSize is the operand size exponent used when no keyword is given.
const DefaultSize uint8 = 3
