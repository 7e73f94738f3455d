package main

import (
	"github.com/spf13/cobra"
)

var execOpts runFlags

var execCmd = &cobra.Command{
	Use:   "exec FILE...",
	Short: "Build assembly modules in memory and run them",
	Long: `Exec is build followed by run without writing the binary. Faults are
reported against the source line of the faulting instruction.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		execOpts.apply(cmd)
		sources, bin, err := buildWithSources(cmd, args)
		if err != nil {
			return err
		}
		return runBinary(bin, cmd.OutOrStdout(), execOpts.dumpRegs, stderrPrinter(sources))
	},
}

func init() {
	execOpts.register(execCmd)
	rootCmd.AddCommand(execCmd)
}
