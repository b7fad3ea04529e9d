package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runTicks int64

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Advance the simulation a fixed number of ticks and exit",
	Run: func(cmd *cobra.Command, args []string) {
		e, _, tr, err := loadEngine()
		if err != nil {
			exitWithError("failed to load topology", err)
		}
		for i := int64(0); i < runTicks; i++ {
			if err := e.Tick(); err != nil {
				exitWithError("tick failed", err)
			}
		}
		fmt.Printf("ran %d ticks\n", runTicks)
		if traceFile != "" {
			if err := tr.WriteToFile(traceFile); err != nil {
				exitWithError("failed to write trace", err)
			}
		}
	},
}

func init() {
	runCmd.Flags().Int64VarP(&runTicks, "ticks", "n", 1, "number of ticks to run")
}
