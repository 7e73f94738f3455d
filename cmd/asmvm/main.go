// Command asmvm assembles, links, runs and inspects programs for the asmvm
// virtual machine.
package main

import (
	"github.com/tebeka/atexit"
)

func main() {
	atexit.Exit(execute())
}
