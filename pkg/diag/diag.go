// Package diag renders toolchain errors for people: syntax errors get the
// offending source line and a caret under the column.
package diag

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"asmvm/pkg/asm"
	"asmvm/pkg/cpu"
	"asmvm/pkg/lexer"
)

const (
	ansiRed   = "\033[1;31m"
	ansiGreen = "\033[1;32m"
	ansiReset = "\033[0m"
)

// SourceFunc returns the text of a named source file.
type SourceFunc func(file string) (string, bool)

// Printer writes diagnostics to W. Colour escapes are only emitted when
// Color is set.
type Printer struct {
	W      io.Writer
	Color  bool
	Source SourceFunc
}

func NewPrinter(w io.Writer, color bool, source SourceFunc) *Printer {
	return &Printer{W: w, Color: color, Source: source}
}

// MapSource serves sources from an in-memory map.
func MapSource(files map[string]string) SourceFunc {
	return func(file string) (string, bool) {
		text, ok := files[file]
		return text, ok
	}
}

func (p *Printer) paint(code, s string) string {
	if !p.Color {
		return s
	}
	return code + s + ansiReset
}

// Print writes err. Syntax errors are shown with their source line when the
// file is available; anything else is printed as a single line.
func (p *Printer) Print(err error) {
	var se *asm.SyntaxError
	if errors.As(err, &se) {
		p.At(se.Token, se.Msg)
		return
	}
	fmt.Fprintf(p.W, "%s %v\n", p.paint(ansiRed, "error:"), err)
}

// PrintFault reports a fault at the source line of the faulting instruction
// when the source map knows it.
func (p *Printer) PrintFault(f *cpu.Fault, sourceMap map[uint64]lexer.Token) {
	tok, ok := sourceMap[f.RIP]
	if !ok {
		p.Print(f)
		return
	}
	p.At(tok, f.Error())
}

// At writes msg against the position of tok.
func (p *Printer) At(tok lexer.Token, msg string) {
	fmt.Fprintf(p.W, "%s: %s %s\n", Location(tok), p.paint(ansiRed, "error:"), msg)

	if p.Source == nil {
		return
	}
	text, ok := p.Source(tok.File)
	if !ok {
		return
	}
	line, ok := SourceLine(text, tok.Line)
	if !ok {
		return
	}
	fmt.Fprintln(p.W, line)
	fmt.Fprintln(p.W, p.paint(ansiGreen, Caret(line, tok.Column)))
}

// Location renders a token position as file(line,col), 1-based.
func Location(tok lexer.Token) string {
	file := tok.File
	if file == "" {
		file = "<input>"
	}
	return fmt.Sprintf("%s(%d,%d)", file, tok.Line+1, tok.Column+1)
}

// SourceLine returns line n (0-based) of text without its line ending.
func SourceLine(text string, n int) (string, bool) {
	if n < 0 {
		return "", false
	}
	lines := strings.Split(text, "\n")
	if n >= len(lines) {
		return "", false
	}
	return strings.TrimRight(lines[n], "\r"), true
}

// Caret builds the marker line for byte column col of line. Tabs before the
// column are kept so the caret lines up with the source as displayed.
func Caret(line string, col int) string {
	if col > len(line) {
		col = len(line)
	}
	var b strings.Builder
	for i := 0; i < col; i++ {
		if line[i] == '\t' {
			b.WriteByte('\t')
		} else {
			b.WriteByte('~')
		}
	}
	b.WriteByte('^')
	return b.String()
}
