package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"asmvm/pkg/asm"
	"asmvm/pkg/cpu"
	"asmvm/pkg/grid"
	"asmvm/pkg/isa"
	"asmvm/pkg/link"
)

const (
	disasmLines   = 12
	stackWords    = 16
	stackColumns  = 2
	stepsPerFrame = 2000
)

// Debugger owns the VM shown in the window. All methods run on ebiten's
// update goroutine.
type Debugger struct {
	vm      *cpu.CPU
	bin     *link.Binary
	out     *bytes.Buffer
	running bool
	err     error
}

func NewDebugger(bin *link.Binary, memSize int) (*Debugger, error) {
	out := new(bytes.Buffer)
	vm := cpu.NewCPU(memSize, cpu.WithOutput(out))
	if err := vm.Load(bin.Code, bin.Entry); err != nil {
		return nil, err
	}
	return &Debugger{vm: vm, bin: bin, out: out}, nil
}

// Stopped reports whether the program can make no further progress.
func (d *Debugger) Stopped() bool {
	return d.vm.Halted || d.err != nil
}

// Step executes one instruction unless the program stopped.
func (d *Debugger) Step() {
	if d.Stopped() {
		return
	}
	if err := d.vm.Step(); err != nil {
		d.err = err
		d.running = false
	}
}

// ToggleRun switches between free running and single stepping.
func (d *Debugger) ToggleRun() {
	if d.Stopped() {
		d.running = false
		return
	}
	d.running = !d.running
}

// Tick advances a running program by up to n instructions.
func (d *Debugger) Tick(n int) {
	for i := 0; i < n && d.running && !d.Stopped(); i++ {
		d.Step()
	}
	if d.Stopped() {
		d.running = false
	}
}

func (d *Debugger) Status() string {
	switch {
	case d.err != nil:
		var f *cpu.Fault
		if errors.As(d.err, &f) {
			if tok, ok := d.bin.SourceMap[f.RIP]; ok {
				return fmt.Sprintf("FAULT %s: %v", tok.Pos(), f)
			}
		}
		return "FAULT " + d.err.Error()
	case d.vm.Halted:
		return fmt.Sprintf("HALTED after %d steps", d.vm.InstructionCount())
	case d.running:
		return fmt.Sprintf("RUNNING  steps=%d", d.vm.InstructionCount())
	}
	return fmt.Sprintf("PAUSED  steps=%d  [space] step  [r] run", d.vm.InstructionCount())
}

func (d *Debugger) RegistersText() string {
	var b strings.Builder
	for _, r := range isa.Registers() {
		fmt.Fprintf(&b, "%-4s %016x\n", r.Name, d.vm.Regs[r.ID])
	}
	f := d.vm.Flags
	fmt.Fprintf(&b, "\nC=%d P=%d A=%d Z=%d S=%d\n", b2i(f.Carry), b2i(f.Parity), b2i(f.Aux), b2i(f.Zero), b2i(f.Sign))
	return b.String()
}

func b2i(v bool) int {
	if v {
		return 1
	}
	return 0
}

// DisassemblyText lists instructions from RIP on, marking the current one and
// naming its source position when known.
func (d *Debugger) DisassemblyText() string {
	var b strings.Builder
	pc := int(d.vm.RIP())
	for i := 0; i < disasmLines && pc < len(d.bin.Code); i++ {
		marker := "  "
		if i == 0 {
			marker = "> "
		}
		var line bytes.Buffer
		n, err := asm.Disassemble(d.bin.Code, pc, &line)
		if err != nil {
			break
		}
		text := strings.TrimRight(line.String(), "\n")
		if tok, ok := d.bin.SourceMap[uint64(pc)]; ok {
			text = fmt.Sprintf("%-36s ; %d", text, tok.Line+1)
		}
		b.WriteString(marker + text + "\n")
		pc += n
	}
	return b.String()
}

// StackCells returns the words above RSP, each placed at its column and row
// in the stack pane.
func (d *Debugger) StackCells() []StackCell {
	var cells []StackCell
	mem := d.vm.Memory
	rsp := d.vm.RSP()
	for i := 0; i < stackWords; i++ {
		addr := rsp + uint64(i*8)
		if addr < rsp || addr+8 > uint64(len(mem)) {
			break
		}
		x, y := grid.GetGridCoords(i, stackColumns)
		cells = append(cells, StackCell{
			Col:  x,
			Row:  y,
			Text: fmt.Sprintf("%04x: %016x", addr, binary.LittleEndian.Uint64(mem[addr:])),
		})
	}
	return cells
}

type StackCell struct {
	Col, Row int
	Text     string
}

// Output is everything the program printed so far.
func (d *Debugger) Output() string {
	return d.out.String()
}
