package main

import (
	"github.com/spf13/cobra"

	"asmvm/pkg/asm"
	"asmvm/pkg/link"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm BIN",
	Short: "Print the disassembly of a linked binary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bin, err := link.Load(args[0])
		if err != nil {
			return err
		}
		cmd.Printf("; %d bytes, entry 0x%x\n", len(bin.Code), bin.Entry)
		return asm.DisassembleAll(bin.Code, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(disasmCmd)
}
