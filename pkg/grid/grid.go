// Package grid lays flat buffers out as rows and columns.
package grid

import (
	"fmt"
	"io"
	"strings"
)

// GetGridCoords returns the column and row of index in a grid cols wide.
func GetGridCoords(index, cols int) (x, y int) {
	return index % cols, index / cols
}

// HexDump writes mem as rows of cols bytes, each row prefixed with its
// address (base plus the row offset) and followed by a printable ASCII column.
func HexDump(w io.Writer, mem []byte, base uint64, cols int) error {
	if cols <= 0 {
		return fmt.Errorf("grid: invalid column count %d", cols)
	}
	rows := (len(mem) + cols - 1) / cols
	hex := make([]string, rows)
	text := make([][]byte, rows)
	for i := range hex {
		text[i] = make([]byte, 0, cols)
	}

	for i, b := range mem {
		x, y := GetGridCoords(i, cols)
		if x > 0 {
			hex[y] += " "
		}
		hex[y] += fmt.Sprintf("%02x", b)
		if b >= 0x20 && b < 0x7f {
			text[y] = append(text[y], b)
		} else {
			text[y] = append(text[y], '.')
		}
	}

	width := cols*3 - 1
	for y := 0; y < rows; y++ {
		addr := base + uint64(y*cols)
		if _, err := fmt.Fprintf(w, "%08x  %s%s  |%s|\n", addr, hex[y], strings.Repeat(" ", width-len(hex[y])), text[y]); err != nil {
			return err
		}
	}
	return nil
}
