package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"asmvm/pkg/config"
	"asmvm/pkg/cpu"
	"asmvm/pkg/diag"
)

// exitError carries a process status out of a command without printing
// anything more.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return "exit" }

var (
	configPath string
	logLevel   string

	cfg = config.Default()
)

var rootCmd = &cobra.Command{
	Use:   "asmvm",
	Short: "Assembler, linker and virtual machine for the asmvm instruction set",
	Long: `asmvm translates assembly modules, links them into a flat binary with
a "start" entry point, and executes binaries on a 64-register virtual
machine with a byte-addressed memory and a downward growing stack.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			c.LogLevel = logLevel
			if err := c.Validate(); err != nil {
				return err
			}
		}
		cfg = c
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level:       cfg.Level(),
			ReplaceAttr: levelNames,
		})))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: trace, debug, info, warn or error")
}

// levelNames prints cpu.LevelTrace as TRACE instead of DEBUG-4.
func levelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey && len(groups) == 0 {
		if l, ok := a.Value.Any().(slog.Level); ok && l == cpu.LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

func stderrPrinter(source diag.SourceFunc) *diag.Printer {
	return diag.NewPrinter(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), source)
}

// execute runs the command line and returns the process status.
func execute() int {
	err := rootCmd.ExecuteContext(context.Background())
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	stderrPrinter(nil).Print(err)
	return 1
}
