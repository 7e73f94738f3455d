package lexer

import "fmt"

// Token is a single lexical unit produced by Tokenize.
type Token struct {
	Text   string // the exact source text that was matched
	Line   int    // 0-based source line
	Column int    // 0-based byte column within the line
	File   string
}

// Pos renders the token position 1-based, as editors expect.
func (t Token) Pos() string {
	if t.File == "" {
		return fmt.Sprintf("%d:%d", t.Line+1, t.Column+1)
	}
	return fmt.Sprintf("%s:%d:%d", t.File, t.Line+1, t.Column+1)
}

func (t Token) String() string {
	return fmt.Sprintf("%-14q  %s", t.Text, t.Pos())
}

// Is reports whether the token text equals s.
func (t Token) Is(s string) bool {
	return t.Text == s
}
