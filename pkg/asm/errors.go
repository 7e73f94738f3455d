package asm

import (
	"fmt"

	"asmvm/pkg/lexer"
)

// SyntaxError is the first translation error of a unit. Token is the
// offending token, or the last token when input ended early.
type SyntaxError struct {
	Token lexer.Token
	Msg   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s: %s (near %q)", e.Token.Pos(), e.Msg, e.Token.Text)
}
