package link

import "fmt"

// ErrorKind classifies a link failure.
type ErrorKind int

const (
	DuplicateLabel ErrorKind = iota
	DuplicateGlobal
	UndefinedGlobal
	ExternShadowsLocal
	UnresolvedExtern
	UnresolvedSymbol
	ValueOutOfRange
	MissingEntryPoint
)

var kindNames = [...]string{
	DuplicateLabel:     "duplicate label",
	DuplicateGlobal:    "duplicate global",
	UndefinedGlobal:    "undefined global",
	ExternShadowsLocal: "extern shadows local label",
	UnresolvedExtern:   "unresolved extern",
	UnresolvedSymbol:   "unresolved symbol",
	ValueOutOfRange:    "operand value out of range",
	MissingEntryPoint:  "missing entry point",
}

func (k ErrorKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is the first failure of a Link call. Module is empty for
// MissingEntryPoint; Symbol is empty for ValueOutOfRange.
type Error struct {
	Kind   ErrorKind
	Symbol string
	Module string
}

func (e *Error) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("link: %s: %s", e.Module, e.Kind)
	}
	if e.Module == "" {
		return fmt.Sprintf("link: %s '%s'", e.Kind, e.Symbol)
	}
	return fmt.Sprintf("link: %s: %s '%s'", e.Module, e.Kind, e.Symbol)
}
