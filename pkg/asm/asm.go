package asm

import (
	"errors"
	"fmt"
	"strconv"

	"asmvm/pkg/isa"
	"asmvm/pkg/lexer"
)

// Translator turns one filtered token stream into a Module. It makes a
// single pass with one token of lookahead.
type Translator struct {
	tokens []lexer.Token
	idx    int
	module *Module
}

func NewTranslator(name string, tokens []lexer.Token) *Translator {
	return &Translator{
		tokens: tokens,
		module: &Module{Name: name},
	}
}

// Translate translates tokens already passed through lexer.Filter.
func Translate(name string, tokens []lexer.Token) (*Module, error) {
	return NewTranslator(name, tokens).Translate()
}

// TranslateSource lexes, filters and translates src. The module name doubles
// as the file name in token positions.
func TranslateSource(name, src string) (*Module, error) {
	tokens := lexer.Filter(lexer.Tokenize(src, name, lexer.AsmTerminals))
	return Translate(name, tokens)
}

func (t *Translator) Translate() (*Module, error) {
	for t.idx < len(t.tokens) {
		prev := t.idx

		if err := t.tryDirective(); err != nil {
			return nil, err
		}
		if err := t.tryLabel(); err != nil {
			return nil, err
		}
		if err := t.tryInstruction(); err != nil {
			return nil, err
		}

		if prev == t.idx {
			return nil, t.errorf("instruction or label expected")
		}
	}
	return t.module, nil
}

func (t *Translator) atEnd() bool {
	return t.idx >= len(t.tokens)
}

// cur returns the current token; at end of input it returns the last one.
func (t *Translator) cur() lexer.Token {
	if t.atEnd() {
		if len(t.tokens) == 0 {
			return lexer.Token{}
		}
		return t.tokens[len(t.tokens)-1]
	}
	return t.tokens[t.idx]
}

func (t *Translator) is(text string) bool {
	return !t.atEnd() && t.tokens[t.idx].Text == text
}

func (t *Translator) peekIs(offset int, text string) bool {
	i := t.idx + offset
	return i < len(t.tokens) && t.tokens[i].Text == text
}

func (t *Translator) emit(r Record) {
	t.module.Records = append(t.module.Records, r)
}

func (t *Translator) errorf(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if t.atEnd() {
		msg = "unexpected end of input: " + msg
	}
	return &SyntaxError{Token: t.cur(), Msg: msg}
}

func (t *Translator) errorAt(tok lexer.Token, format string, args ...interface{}) error {
	return &SyntaxError{Token: tok, Msg: fmt.Sprintf(format, args...)}
}

// expectIdentifier consumes a symbol name.
func (t *Translator) expectIdentifier(what string) (string, error) {
	if t.atEnd() {
		return "", t.errorf("%s expected", what)
	}
	tok := t.tokens[t.idx]
	if !isIdentifier(tok.Text) {
		return "", t.errorf("invalid %s '%s'", what, tok.Text)
	}
	t.idx++
	return tok.Text, nil
}

// tryDirective handles global, extern and db. A directive keyword followed by
// ':' is left for tryLabel.
func (t *Translator) tryDirective() error {
	if t.atEnd() || t.peekIs(1, ":") {
		return nil
	}
	tok := t.tokens[t.idx]

	switch tok.Text {
	case "global", "extern":
		t.idx++
		name, err := t.expectIdentifier("symbol name")
		if err != nil {
			return err
		}
		if tok.Text == "global" {
			t.emit(DeclareGlobal{Name: name, Pos: tok})
		} else {
			t.emit(DeclareExtern{Name: name, Pos: tok})
		}
	case "db":
		t.idx++
		var data []byte
		for {
			start := t.cur()
			arg, err := t.parseConstant()
			if err != nil {
				return err
			}
			if !arg.IsNumeric() {
				return t.errorAt(start, "db values must be numeric")
			}
			data = append(data, byte(arg.Sum()))
			if !t.is(",") {
				break
			}
			t.idx++
		}
		t.emit(PlaceBytes{Data: data, Pos: tok})
	}
	return nil
}

func (t *Translator) tryLabel() error {
	if t.atEnd() || !t.peekIs(1, ":") {
		return nil
	}
	tok := t.tokens[t.idx]
	if !isIdentifier(tok.Text) {
		return t.errorf("invalid label '%s'", tok.Text)
	}
	t.idx += 2
	t.emit(DefineLabel{Name: tok.Text, Pos: tok})
	return nil
}

func (t *Translator) tryInstruction() error {
	if t.atEnd() {
		return nil
	}
	tok := t.tokens[t.idx]
	op, ok := isa.LookupOpcode(tok.Text)
	if !ok {
		return nil
	}
	t.idx++

	ins := Instruction{Op: op, Size: isa.DefaultSize, Pos: tok}
	if op.Sized && !t.atEnd() {
		if exp, ok := isa.SizeExponent(t.tokens[t.idx].Text); ok {
			ins.Size = exp
			t.idx++
		}
	}

	for i, kind := range op.Args {
		if i > 0 {
			if !t.is(",") {
				return t.errorf("',' expected")
			}
			t.idx++
		}
		arg, err := t.parseArgument(kind)
		if err != nil {
			return err
		}
		ins.Args = append(ins.Args, arg)
	}

	t.emit(ins)
	return nil
}

// parseArgument dispatches on the permitted kinds: register first, then a
// bracketed memory expression, then a constant expression.
func (t *Translator) parseArgument(kind isa.ArgKind) (Argument, error) {
	if t.atEnd() {
		return nil, t.errorf("%s operand expected", kind)
	}

	if kind.Has(isa.ArgRegister) {
		if reg, ok := isa.LookupRegister(t.tokens[t.idx].Text); ok {
			t.idx++
			return RegisterArg{Reg: reg}, nil
		}
	}

	if kind.Has(isa.ArgMemory) && t.is("[") {
		t.idx++
		var e expr
		if err := t.parseExpr(&e, true); err != nil {
			return nil, err
		}
		if !t.is("]") {
			return nil, t.errorf("']' expected")
		}
		t.idx++
		return MemoryArg{Index: e.index, Consts: e.consts, Symbols: e.symbols}, nil
	}

	if kind.Has(isa.ArgConstant) {
		return t.parseConstant()
	}

	return nil, t.errorf("invalid argument, %s operand expected", kind)
}

func (t *Translator) parseConstant() (ConstantArg, error) {
	var e expr
	if err := t.parseExpr(&e, false); err != nil {
		return ConstantArg{}, err
	}
	return ConstantArg{Consts: e.consts, Symbols: e.symbols}, nil
}

type expr struct {
	index   []IndexTerm
	consts  []int64
	symbols []SymbolTerm
}

// parseExpr reads
//
//	expr   := [sign] term { sign term }
//	term   := factor { '*' factor }
//	factor := integer | register | identifier
func (t *Translator) parseExpr(e *expr, allowRegs bool) error {
	first := true
	for first || t.is("+") || t.is("-") {
		sign := int64(1)
		if t.is("+") || t.is("-") {
			if t.is("-") {
				sign = -1
			}
			t.idx++
		}
		first = false
		termTok := t.cur()
		if err := t.parseTerm(e, sign, allowRegs); err != nil {
			return err
		}
		if _, ok := sumInt64(e.consts); !ok {
			return t.errorAt(termTok, "integer expression out of range")
		}
	}
	return nil
}

func (t *Translator) parseTerm(e *expr, coef int64, allowRegs bool) error {
	var (
		reg     *isa.Register
		label   string
		symTok  lexer.Token
		hasSymb bool
	)

	for {
		if t.atEnd() {
			return t.errorf("expression term expected")
		}
		tok := t.tokens[t.idx]

		if v, err := strconv.ParseInt(tok.Text, 0, 64); err == nil {
			var ok bool
			if coef, ok = mulInt64(coef, v); !ok {
				return t.errorf("integer expression out of range")
			}
		} else if errors.Is(err, strconv.ErrRange) {
			return t.errorf("integer '%s' out of range", tok.Text)
		} else if r, ok := isa.LookupRegister(tok.Text); ok {
			if !allowRegs {
				return t.errorf("register '%s' is only allowed inside a memory operand", tok.Text)
			}
			if hasSymb {
				return t.errorf("a term may hold only one register or label")
			}
			reg, hasSymb, symTok = &r, true, tok
		} else if isIdentifier(tok.Text) {
			if hasSymb {
				return t.errorf("a term may hold only one register or label")
			}
			label, hasSymb, symTok = tok.Text, true, tok
		} else {
			return t.errorf("invalid expression term '%s'", tok.Text)
		}
		t.idx++

		if !t.is("*") {
			break
		}
		t.idx++
	}

	switch {
	case reg != nil:
		if _, ok := isa.ScaleExponent(coef); !ok {
			return t.errorAt(symTok, "incorrect register multiplier %d", coef)
		}
		if len(e.index) == isa.MaxIndexTerms {
			return t.errorAt(symTok, "too many index registers (max %d)", isa.MaxIndexTerms)
		}
		e.index = append(e.index, IndexTerm{Scale: uint8(coef), Reg: *reg})
	case hasSymb:
		e.symbols = append(e.symbols, SymbolTerm{Mult: coef, Label: label})
	default:
		e.consts = append(e.consts, coef)
	}
	return nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case i > 0 && '0' <= c && c <= '9':
		default:
			return false
		}
	}
	return true
}
