package main

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"asmvm/pkg/cpu"
	"asmvm/pkg/grid"
	"asmvm/pkg/isa"
)

var (
	inspectFrom   string
	inspectLength int
	inspectStack  int
)

var inspectCmd = &cobra.Command{
	Use:   "inspect CORE",
	Short: "Print the registers, flags and memory of a core dump",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := cpu.LoadSnapshot(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "halted=%t steps=%d memory=%d bytes\n", s.Halted, s.Steps, len(s.Memory))
		fmt.Fprintln(out, registerTable(s.Regs, s.Flags))

		if inspectStack > 0 {
			fmt.Fprintln(out, stackTable(s.Memory, s.Regs[isa.RSP], inspectStack))
		}
		if inspectLength > 0 {
			from, err := strconv.ParseUint(inspectFrom, 0, 64)
			if err != nil {
				return fmt.Errorf("bad --from address %q", inspectFrom)
			}
			if from > uint64(len(s.Memory)) {
				return fmt.Errorf("--from 0x%x is outside memory", from)
			}
			end := from + uint64(inspectLength)
			if end > uint64(len(s.Memory)) {
				end = uint64(len(s.Memory))
			}
			return grid.HexDump(out, s.Memory[from:end], from, 16)
		}
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectFrom, "from", "0", "first memory address to dump")
	inspectCmd.Flags().IntVar(&inspectLength, "length", 0, "number of memory bytes to dump")
	inspectCmd.Flags().IntVar(&inspectStack, "stack", 8, "number of stack words to show")
	rootCmd.AddCommand(inspectCmd)
}

// registerTable renders the named registers, any nonzero unnamed slot and the
// flags.
func registerTable(regs [isa.NumRegisters]uint64, flags cpu.Flags) string {
	regTable := table.NewWriter()
	regTable.SetTitle("Registers")
	regTable.AppendHeader(table.Row{"Register", "Hex", "Decimal"})

	named := make(map[uint8]bool)
	for _, r := range isa.Registers() {
		named[r.ID] = true
		regTable.AppendRow(table.Row{r.Name, fmt.Sprintf("0x%016x", regs[r.ID]), regs[r.ID]})
	}
	for id := 0; id < isa.NumRegisters; id++ {
		if named[uint8(id)] || regs[id] == 0 {
			continue
		}
		regTable.AppendRow(table.Row{isa.RegisterName(uint8(id)), fmt.Sprintf("0x%016x", regs[id]), regs[id]})
	}

	regTable.AppendSeparator()
	regTable.AppendRow(table.Row{"flags", formatFlags(flags), ""})
	return regTable.Render()
}

func formatFlags(f cpu.Flags) string {
	bit := func(name string, on bool) string {
		if on {
			return name
		}
		return "-"
	}
	return bit("C", f.Carry) + bit("P", f.Parity) + bit("A", f.Aux) + bit("Z", f.Zero) + bit("S", f.Sign)
}

// stackTable lists up to n 8-byte words starting at rsp.
func stackTable(mem []byte, rsp uint64, n int) string {
	t := table.NewWriter()
	t.SetTitle("Stack")
	t.AppendHeader(table.Row{"Address", "Value"})

	for i := 0; i < n; i++ {
		addr := rsp + uint64(i*8)
		if addr < rsp || addr+8 > uint64(len(mem)) {
			break
		}
		v := binary.LittleEndian.Uint64(mem[addr:])
		t.AppendRow(table.Row{fmt.Sprintf("0x%08x", addr), fmt.Sprintf("0x%016x", v)})
	}
	return t.Render()
}
