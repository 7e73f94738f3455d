package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"asmvm/pkg/cpu"
	"asmvm/pkg/diag"
	"asmvm/pkg/link"
)

type runFlags struct {
	maxSteps int64
	memory   int
	core     string
	trace    bool
	dumpRegs bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&f.maxSteps, "max-steps", 0, "stop after this many instructions (0 = no limit)")
	cmd.Flags().IntVar(&f.memory, "memory", cpu.DefaultMemorySize, "VM memory size in bytes")
	cmd.Flags().StringVar(&f.core, "core", "", "write a core dump here if the program faults")
	cmd.Flags().BoolVar(&f.trace, "trace", false, "log every instruction at trace level")
	cmd.Flags().BoolVar(&f.dumpRegs, "dump-regs", false, "print registers and flags after the run")
}

// apply lets flags given on the command line override the configuration.
func (f *runFlags) apply(cmd *cobra.Command) {
	if cmd.Flags().Changed("max-steps") {
		cfg.MaxSteps = f.maxSteps
	}
	if cmd.Flags().Changed("memory") {
		cfg.MemorySize = f.memory
	}
	if cmd.Flags().Changed("core") {
		cfg.CoreDump = f.core
	}
	if cmd.Flags().Changed("trace") {
		cfg.Trace = f.trace
	}
}

var runOpts runFlags

// onExit registers h to run when main leaves through atexit.Exit.
var onExit = func(h func()) { atexit.Register(h) }

var runCmd = &cobra.Command{
	Use:   "run BIN",
	Short: "Execute a linked binary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runOpts.apply(cmd)
		bin, err := link.Load(args[0])
		if err != nil {
			return err
		}
		return runBinary(bin, cmd.OutOrStdout(), runOpts.dumpRegs, stderrPrinter(nil))
	},
}

func init() {
	runOpts.register(runCmd)
	rootCmd.AddCommand(runCmd)
}

// runBinary executes bin with the current configuration. Faults are reported
// through p and turn into exit status 1. Program output is buffered and
// flushed on exit.
func runBinary(bin *link.Binary, out io.Writer, dumpRegs bool, p *diag.Printer) error {
	if cfg.MemorySize <= 0 {
		return fmt.Errorf("memory size must be positive, got %d", cfg.MemorySize)
	}
	w := bufio.NewWriter(out)
	onExit(func() {
		if err := w.Flush(); err != nil {
			slog.Error("flush program output", "error", err)
		}
	})
	vm := cpu.NewCPU(cfg.MemorySize,
		cpu.WithOutput(w),
		cpu.WithLogger(slog.Default()),
		cpu.WithTrace(cfg.Trace))
	if err := vm.Load(bin.Code, bin.Entry); err != nil {
		return err
	}

	err := vm.RunLimit(cfg.MaxSteps)
	slog.Info("run finished", "steps", vm.InstructionCount(), "halted", vm.Halted, "rip", vm.RIP())
	if dumpRegs {
		fmt.Fprintln(os.Stderr, registerTable(vm.Regs, vm.Flags))
	}
	if err == nil {
		return nil
	}

	var f *cpu.Fault
	switch {
	case errors.As(err, &f):
		p.PrintFault(f, bin.SourceMap)
	case errors.Is(err, cpu.ErrStepLimit):
		p.Print(fmt.Errorf("%w after %d instructions", err, vm.InstructionCount()))
	default:
		return err
	}
	if cfg.CoreDump != "" {
		if err := vm.SaveSnapshot(cfg.CoreDump); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "core dumped to %s\n", cfg.CoreDump)
	}
	return &exitError{code: 1}
}
