// Package cmd implements the netsim CLI using the cobra framework,
// following firestige-Otus's cmd/root.go shape: a persistent root command
// carrying global flags, with subcommands registered from init().
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	topoFile  string
	traceFile string
)

var rootCmd = &cobra.Command{
	Use:   "netsim",
	Short: "netsim - a deterministic layer 1-3 network simulator",
	Long: `netsim loads a YAML topology of end-hosts, learning bridges, and IPv4
routers connected by point-to-point cables, and drives it through a
discrete-tick engine: RSTP keeps the bridged fabric loop-free, RIPv2
converges router adjacencies, and ARP resolves next hops on demand.`,
}

// Execute runs the root command; called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&topoFile, "topo", "t", "", "topology YAML file (required)")
	rootCmd.PersistentFlags().StringVar(&traceFile, "trace", "", "write a trace dump (.yaml or .json) on exit")
	rootCmd.MarkPersistentFlagRequired("topo")

	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(runCmd)
}

func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "netsim: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "netsim: %s\n", msg)
	}
	os.Exit(1)
}
