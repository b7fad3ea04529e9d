package topo

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// buildGraph turns a Desc's cable list into an undirected, unit-weighted
// gonum graph keyed by device name's position in a stable node-id table,
// the same "convert to graph module representation, run Dijkstra" idiom
// routes.go uses for MrNesbits device ids.
func buildGraph(d *Desc) (graph.Graph, map[string]int64, error) {
	nodeID := make(map[string]int64)
	next := int64(0)
	assign := func(name string) {
		if _, ok := nodeID[name]; !ok {
			nodeID[name] = next
			next++
		}
	}
	for _, dk := range d.Desktops {
		assign(dk.Name)
	}
	for _, sw := range d.Switches {
		assign(sw.Name)
	}
	for _, rt := range d.Routers {
		assign(rt.Name)
	}

	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	for _, id := range nodeID {
		g.AddNode(simple.Node(id))
	}
	for _, c := range d.Cables {
		fromID, ok := nodeID[c.DeviceA]
		if !ok {
			return nil, nil, fmt.Errorf("topo: cable references unknown device %q", c.DeviceA)
		}
		toID, ok := nodeID[c.DeviceB]
		if !ok {
			return nil, nil, fmt.Errorf("topo: cable references unknown device %q", c.DeviceB)
		}
		g.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(fromID), T: simple.Node(toID), W: 1})
	}
	return g, nodeID, nil
}

// CheckConnected reports whether every device in d is reachable from every
// other over the cable fabric alone, the validation routes.go's
// buildconnGraph enables for MrNesbits before a run: a topology with an
// isolated device or a split fabric is caught here rather than surfacing
// as a mysteriously-unreachable destination during simulation.
func CheckConnected(d *Desc) error {
	g, nodeID, err := buildGraph(d)
	if err != nil {
		return err
	}
	if len(nodeID) == 0 {
		return nil
	}
	var root int64 = -1
	for _, id := range nodeID {
		root = id
		break
	}
	tree := path.DijkstraFrom(simple.Node(root), g)
	for name, id := range nodeID {
		if id == root {
			continue
		}
		if _, weight := tree.To(id); math.IsInf(weight, 1) {
			return fmt.Errorf("topo: device %q is not reachable over the cable fabric", name)
		}
	}
	return nil
}

// ShortestPath returns the device-name sequence of a minimum-hop-count
// path from src to dst, a ground-truth hop count in the role routeFrom/
// ShowPath play for MrNesbits in routes.go. This module's own tests
// exercise it only on a single-switch topology; no RIP test uses it.
func ShortestPath(d *Desc, src, dst string) ([]string, error) {
	g, nodeID, err := buildGraph(d)
	if err != nil {
		return nil, err
	}
	srcID, ok := nodeID[src]
	if !ok {
		return nil, fmt.Errorf("topo: unknown device %q", src)
	}
	dstID, ok := nodeID[dst]
	if !ok {
		return nil, fmt.Errorf("topo: unknown device %q", dst)
	}
	tree := path.DijkstraFrom(simple.Node(srcID), g)
	nodes, _ := tree.To(dstID)
	if len(nodes) == 0 {
		return nil, fmt.Errorf("topo: no path from %q to %q", src, dst)
	}
	byID := make(map[int64]string, len(nodeID))
	for name, id := range nodeID {
		byID[id] = name
	}
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = byID[n.ID()]
	}
	return out, nil
}
