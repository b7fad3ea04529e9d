// Command netsim is the textual CLI driver for the network simulation
// engine, spec.md §6.
package main

import (
	"fmt"
	"os"

	"github.com/iti/netsim/cmd/netsim/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
