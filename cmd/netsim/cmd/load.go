package cmd

import (
	"fmt"

	"github.com/iti/netsim/engine"
	"github.com/iti/netsim/topo"
	"github.com/iti/netsim/trace"
)

// loadEngine reads and validates the topology named by the --topo flag and
// builds a live engine.Engine from it, returning the name-to-id table
// commands use to resolve a device argument.
func loadEngine() (*engine.Engine, map[string]int, *trace.Manager, error) {
	if topoFile == "" {
		return nil, nil, nil, fmt.Errorf("--topo is required")
	}
	f, err := topo.ReadTopoFrame(topoFile)
	if err != nil {
		return nil, nil, nil, err
	}
	desc, err := f.Transform()
	if err != nil {
		return nil, nil, nil, err
	}
	if err := topo.CheckConnected(desc); err != nil {
		return nil, nil, nil, err
	}
	tr := trace.New(desc.Name, traceFile != "")
	e, ids, err := topo.Build(desc, tr)
	if err != nil {
		return nil, nil, nil, err
	}
	return e, ids, tr, nil
}
