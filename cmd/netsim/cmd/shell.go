package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/iti/netsim/device"
	"github.com/iti/netsim/engine"
	"github.com/spf13/cobra"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive session against a loaded topology",
	Long: `shell loads the topology named by --topo and reads commands from
stdin, one per line:

  ping <device> <ip> [count]
  ipconfig <device>
  show mac-address-table <device>
  show spanning-tree <device>
  show ip route <device>
  show arp <device>
  tick [n]
  quit

Each device command is queued and the engine is advanced one tick so the
device has a chance to act on it before its result is printed.`,
	Run: func(cmd *cobra.Command, args []string) {
		e, ids, tr, err := loadEngine()
		if err != nil {
			exitWithError("failed to load topology", err)
		}
		runShell(e, ids)
		if traceFile != "" {
			if err := tr.WriteToFile(traceFile); err != nil {
				exitWithError("failed to write trace", err)
			}
		}
	},
}

func runShell(e *engine.Engine, ids map[string]int) {
	sc := bufio.NewScanner(os.Stdin)
	fmt.Printf("netsim ready, %d devices loaded. type 'quit' to exit.\n", len(ids))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "quit", "exit":
			return
		case "tick":
			n := int64(1)
			if len(fields) > 1 {
				if v, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
					n = v
				}
			}
			for i := int64(0); i < n; i++ {
				if err := e.Tick(); err != nil {
					fmt.Fprintf(os.Stderr, "tick: %v\n", err)
					break
				}
			}
			fmt.Printf("tick -> %d\n", e.Now())
		case "ping":
			runDeviceCommand(e, ids, fields, 1, "ping")
		case "ipconfig":
			runDeviceCommand(e, ids, fields, 0, "ipconfig")
		case "show":
			runShow(e, ids, fields)
		default:
			fmt.Fprintf(os.Stderr, "unrecognized command %q\n", fields[0])
		}
	}
}

func runShow(e *engine.Engine, ids map[string]int, fields []string) {
	if len(fields) < 2 {
		fmt.Fprintln(os.Stderr, "show: expected a subcommand (mac-address-table, spanning-tree, ip route, arp)")
		return
	}
	switch fields[1] {
	case "mac-address-table":
		runDeviceCommand(e, ids, fields[1:], 0, "show-mac-address-table")
	case "spanning-tree":
		runDeviceCommand(e, ids, fields[1:], 0, "show-spanning-tree")
	case "arp":
		runDeviceCommand(e, ids, fields[1:], 0, "show-arp")
	case "ip":
		if len(fields) < 3 || fields[2] != "route" {
			fmt.Fprintln(os.Stderr, "show ip: expected 'show ip route <device>'")
			return
		}
		runDeviceCommand(e, ids, fields[2:], 0, "show-ip-route")
	default:
		fmt.Fprintf(os.Stderr, "show: unrecognized subcommand %q\n", fields[1])
	}
}

// runDeviceCommand resolves fields[1] (the device name that follows the
// command word) to a device id, queues op with any remaining fields as
// arguments, ticks the engine once, and prints the result.
func runDeviceCommand(e *engine.Engine, ids map[string]int, fields []string, minArgs int, op string) {
	if len(fields) < 2 {
		fmt.Fprintf(os.Stderr, "%s: expected a device name\n", op)
		return
	}
	name := fields[1]
	id, ok := ids[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "%s: unknown device %q\n", op, name)
		return
	}
	args := fields[2:]
	if len(args) < minArgs {
		fmt.Fprintf(os.Stderr, "%s: not enough arguments\n", op)
		return
	}
	if err := e.EnqueueCommand(id, device.Command{Op: op, Args: args}); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", op, err)
		return
	}
	if err := e.Tick(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: tick failed: %v\n", op, err)
		return
	}
	for _, r := range e.CommandResults(id) {
		if r.Err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", op, r.Err)
			continue
		}
		fmt.Print(r.Output)
		if !strings.HasSuffix(r.Output, "\n") {
			fmt.Println()
		}
	}
}
