package lexer

import (
	"sort"
	"strings"
)

// AsmTerminals is the terminal set of the assembly language.
var AsmTerminals = []string{
	" ", "\t", "\n", "\r",
	"+", "-", "*", "/",
	":", ";", ",", "[", "]",
}

// Lexer holds all mutable state for a single scanning pass over src.
type Lexer struct {
	src       string
	file      string
	terminals []string
	pos       int // byte index of the next character to consume
	line      int
	col       int
}

// NewLexer prepares a scan of src. Terminals are tried longest first so that
// a terminal which is a prefix of another never shadows it.
func NewLexer(src, file string, terminals []string) *Lexer {
	sorted := make([]string, 0, len(terminals))
	for _, t := range terminals {
		if t != "" {
			sorted = append(sorted, t)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i]) > len(sorted[j])
	})
	return &Lexer{src: src, file: file, terminals: sorted}
}

// Tokenize splits src into terminal tokens and the runs of non-terminal
// characters between them.
func Tokenize(src, file string, terminals []string) []Token {
	return NewLexer(src, file, terminals).All()
}

// matchTerminal returns the longest terminal starting at the current position.
func (l *Lexer) matchTerminal() string {
	rest := l.src[l.pos:]
	for _, t := range l.terminals {
		if strings.HasPrefix(rest, t) {
			return t
		}
	}
	return ""
}

// advance consumes n bytes, keeping line and column current.
func (l *Lexer) advance(n int) {
	for _, c := range []byte(l.src[l.pos : l.pos+n]) {
		if c == '\n' {
			l.line++
			l.col = 0
		} else {
			l.col++
		}
	}
	l.pos += n
}

// All scans the remaining input.
func (l *Lexer) All() []Token {
	var tokens []Token
	runStart := -1
	var runLine, runCol int

	flush := func() {
		if runStart >= 0 {
			tokens = append(tokens, Token{
				Text:   l.src[runStart:l.pos],
				Line:   runLine,
				Column: runCol,
				File:   l.file,
			})
			runStart = -1
		}
	}

	for l.pos < len(l.src) {
		t := l.matchTerminal()
		if t == "" {
			if runStart < 0 {
				runStart, runLine, runCol = l.pos, l.line, l.col
			}
			l.advance(1)
			continue
		}
		flush()
		tokens = append(tokens, Token{Text: t, Line: l.line, Column: l.col, File: l.file})
		l.advance(len(t))
	}
	flush()
	return tokens
}
