package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"asmvm/pkg/build"
	"asmvm/pkg/cpu"
	"asmvm/pkg/isa"
	"asmvm/pkg/link"
)

// buildSources builds one module per source, named a.asm, b.asm, ...
func buildSources(t *testing.T, srcs ...string) *link.Binary {
	t.Helper()
	var sources []build.Source
	for i, s := range srcs {
		sources = append(sources, build.Source{Name: fmt.Sprintf("%c.asm", 'a'+i), Text: s})
	}
	bin, err := build.Build(context.Background(), sources)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return bin
}

func load(t *testing.T, bin *link.Binary, out io.Writer) *cpu.CPU {
	t.Helper()
	if out == nil {
		out = io.Discard
	}
	vm := cpu.NewCPU(0, cpu.WithOutput(out))
	if err := vm.Load(bin.Code, bin.Entry); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return vm
}

func runProgram(t *testing.T, srcs ...string) (*cpu.CPU, string) {
	t.Helper()
	var out bytes.Buffer
	vm := load(t, buildSources(t, srcs...), &out)
	if err := vm.RunLimit(100000); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !vm.Halted {
		t.Fatalf("program did not halt")
	}
	return vm, out.String()
}

func TestArithmetic(t *testing.T) {
	bin := buildSources(t, `
global start
start:
	mov rax, 5
	add rax, 3
	mov rbx, rax
	mov rax, 0
	syscall
`)
	vm := load(t, bin, nil)

	for i := 0; i < 2; i++ {
		if err := vm.Step(); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}
	if vm.Regs[isa.RAX] != 8 {
		t.Errorf("Expected rax to be 8, got %d", vm.Regs[isa.RAX])
	}

	if err := vm.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !vm.Halted || vm.Regs[isa.RBX] != 8 {
		t.Errorf("Expected halt with rbx=8, got halted=%t rbx=%d", vm.Halted, vm.Regs[isa.RBX])
	}
}

func TestFibonacciLoop(t *testing.T) {
	_, out := runProgram(t, `
global start
start:
	mov rax, 0      ; fib(i)
	mov rbx, 1      ; fib(i+1)
	mov rcx, 10
loop:
	cmp rcx, 0
	je done
	mov rdx, rax
	add rdx, rbx
	mov rax, rbx
	mov rbx, rdx
	dec rcx
	jmp loop
done:
	mov rdx, rax
	mov rax, 1
	mov rbx, 1
	syscall
	mov rax, 0
	syscall
`)
	if out != "55" {
		t.Errorf("Expected output 55, got %q", out)
	}
}

func TestRecursiveFactorial(t *testing.T) {
	vm, out := runProgram(t, `
global start
start:
	mov rdi, 5
	call fact
	mov rdx, rax
	mov rax, 1
	mov rbx, 1
	syscall
	mov rax, 0
	syscall

; rax = rdi!
fact:
	cmp rdi, 1
	jne recurse
	mov rax, 1
	ret
recurse:
	push rdi
	dec rdi
	call fact
	pop rdi
	mul rax, rdi
	ret
`)
	if out != "120" {
		t.Errorf("Expected output 120, got %q", out)
	}
	if vm.RSP() != cpu.DefaultMemorySize {
		t.Errorf("Expected stack fully unwound, rsp=0x%x", vm.RSP())
	}
}

func TestCrossModuleCall(t *testing.T) {
	vm, out := runProgram(t, `
extern f
global start
start:
	call f
	mov rdx, rax
	mov rax, 1
	mov rbx, 1
	syscall
	mov rax, 0
	syscall
`, `
global f
f:
	mov rax, 7
	ret
`)
	if out != "7" {
		t.Errorf("Expected output 7, got %q", out)
	}
	if vm.RSP() != cpu.DefaultMemorySize {
		t.Errorf("Expected rsp back at top of memory, got 0x%x", vm.RSP())
	}
}

func TestStackDiscipline(t *testing.T) {
	vm, _ := runProgram(t, `
global start
start:
	push 1
	push 2
	pop rcx
	pop rdx
	mov rax, 0
	syscall
`)
	if vm.Regs[isa.RCX] != 2 || vm.Regs[isa.RDX] != 1 {
		t.Errorf("Expected rcx=2 rdx=1, got rcx=%d rdx=%d", vm.Regs[isa.RCX], vm.Regs[isa.RDX])
	}
	if vm.RSP() != cpu.DefaultMemorySize {
		t.Errorf("Expected rsp=0x%x, got 0x%x", cpu.DefaultMemorySize, vm.RSP())
	}
}

func TestIndexedTable(t *testing.T) {
	_, out := runProgram(t, `
global start
start:
	mov rsi, 0
fill:
	mov rax, rsi
	mul rax, rsi
	mov [table + rsi*8], rax
	inc rsi
	cmp rsi, 4
	jne fill
	mov rdx, [table + 3*8]
	mov rax, 1
	mov rbx, 1
	syscall
	mov rax, 0
	syscall
table:
	db 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0
	db 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0
`)
	if out != "9" {
		t.Errorf("Expected output 9, got %q", out)
	}
}

func TestEntryOffset(t *testing.T) {
	bin := buildSources(t, `
helper:
	ret
global start
start:
	mov rax, 0
	syscall
`)
	if bin.Entry == 0 {
		t.Fatalf("Expected nonzero entry point")
	}
	vm := load(t, bin, nil)
	if vm.RIP() != bin.Entry {
		t.Errorf("Expected rip=0x%x, got 0x%x", bin.Entry, vm.RIP())
	}
	if err := vm.RunLimit(10); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !vm.Halted {
		t.Errorf("Expected program to halt")
	}
}

func TestInfiniteLoopStepLimit(t *testing.T) {
	bin := buildSources(t, "global start\nstart: jmp start\n")
	vm := load(t, bin, nil)

	err := vm.RunLimit(1000)
	if !errors.Is(err, cpu.ErrStepLimit) {
		t.Fatalf("Expected ErrStepLimit, got %v", err)
	}
	if vm.RIP() != bin.Entry {
		t.Errorf("Expected rip to stay at 0x%x, got 0x%x", bin.Entry, vm.RIP())
	}
	if vm.InstructionCount() != 1000 {
		t.Errorf("Expected 1000 instructions, got %d", vm.InstructionCount())
	}
}

func TestDeterministicBuild(t *testing.T) {
	srcs := []string{
		"extern g\nglobal start\nstart:\ncall g\nmov rax, 0\nsyscall\n",
		"global g\ng:\nmov [rbx*4 + g + 2], 1\nret\n",
	}
	first := buildSources(t, srcs...)
	for i := 0; i < 5; i++ {
		again := buildSources(t, srcs...)
		if !bytes.Equal(first.Code, again.Code) || first.Entry != again.Entry {
			t.Fatalf("build %d differs from the first", i)
		}
	}

	var a, b bytes.Buffer
	if _, err := first.WriteTo(&a); err != nil {
		t.Fatal(err)
	}
	if _, err := first.WriteTo(&b); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Errorf("binary file encoding is not deterministic")
	}
}

func TestFaultThroughPipeline(t *testing.T) {
	bin := buildSources(t, `
global start
start:
	mov rax, 0
	mov rbx, [rax + 100000]
`)
	vm := load(t, bin, nil)
	err := vm.Run()
	var f *cpu.Fault
	if !errors.As(err, &f) || f.Kind != cpu.MemoryOutOfBounds {
		t.Fatalf("Expected MemoryOutOfBounds fault, got %v", err)
	}
	tok, ok := bin.SourceMap[f.RIP]
	if !ok || tok.Line != 4 || tok.Text != "mov" {
		t.Errorf("Expected fault mapped to line 5 mov, got %+v (ok=%t)", tok, ok)
	}
}
