// Package topo loads a YAML topology descriptor and builds a live
// engine.Engine from it, following the teacher's own Frame/Desc split in
// desc-topo.go: a *Frame is the loose, name-addressed shape a driver or a
// config file assembles, and Transform validates it into an immutable,
// ready-to-build *Desc.
package topo

import (
	"fmt"
	"os"
	"path"

	"github.com/iti/netsim/addr"
	"gopkg.in/yaml.v3"
)

// DesktopFrame describes one end-host by name.
type DesktopFrame struct {
	Name    string `yaml:"name"`
	IP      string `yaml:"ip"`
	Mask    string `yaml:"mask"`
	Gateway string `yaml:"gateway,omitempty"`
}

// SwitchFrame describes one learning bridge by name and port count.
type SwitchFrame struct {
	Name     string `yaml:"name"`
	Priority uint16 `yaml:"priority"`
	Ports    int    `yaml:"ports"`
}

// RouterIfaceFrame describes one interface of a RouterFrame.
type RouterIfaceFrame struct {
	IP   string `yaml:"ip"`
	Mask string `yaml:"mask"`
}

// RouterFrame describes one router by name and its interfaces, in order;
// a CableFrame's port index into a router names one of these.
type RouterFrame struct {
	Name       string             `yaml:"name"`
	Interfaces []RouterIfaceFrame `yaml:"interfaces"`
}

// CableFrame names the two (device, port) endpoints a cable joins.
type CableFrame struct {
	DeviceA string `yaml:"device_a"`
	PortA   int    `yaml:"port_a"`
	DeviceB string `yaml:"device_b"`
	PortB   int    `yaml:"port_b"`
}

// TopoFrame is the top-level, name-addressed topology descriptor as it
// appears in a YAML config file.
type TopoFrame struct {
	Name     string         `yaml:"name"`
	Desktops []DesktopFrame `yaml:"desktops"`
	Switches []SwitchFrame  `yaml:"switches"`
	Routers  []RouterFrame  `yaml:"routers"`
	Cables   []CableFrame   `yaml:"cables"`
}

// ReadTopoFrame loads a TopoFrame from a YAML file, mirroring
// desc-topo.go's ReadDevExecList load path.
func ReadTopoFrame(filename string) (*TopoFrame, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("topo: read %s: %w", filename, err)
	}
	var f TopoFrame
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("topo: parse %s: %w", filename, err)
	}
	return &f, nil
}

// WriteToFile serializes the frame back to YAML, choosing the format by
// file extension as desc-topo.go's Desc.WriteToFile does. Only .yaml,
// .yml and .YAML are accepted; JSON is not written, and any other
// extension returns an error.
func (f *TopoFrame) WriteToFile(filename string) error {
	var out []byte
	var err error
	switch path.Ext(filename) {
	case ".yaml", ".yml", ".YAML":
		out, err = yaml.Marshal(f)
	default:
		return fmt.Errorf("topo: unrecognized topology file extension %q", path.Ext(filename))
	}
	if err != nil {
		return fmt.Errorf("topo: marshal: %w", err)
	}
	return os.WriteFile(filename, out, 0o644)
}

// deviceKind tags what a resolved name in a Desc refers to, for cable
// endpoint validation.
type deviceKind int

const (
	kindDesktop deviceKind = iota
	kindSwitch
	kindRouter
)

// Desc is the validated, build-ready form of a TopoFrame: every cable
// endpoint is confirmed to name a real device and a port index within
// range, and every device gets a synthetic locally-administered MAC per
// port (spec.md leaves address assignment to the driver; this module's
// choice is documented in DESIGN.md).
type Desc struct {
	Name     string
	Desktops []DesktopFrame
	Switches []SwitchFrame
	Routers  []RouterFrame
	Cables   []CableFrame

	// PortMAC[deviceName][portIndex] is the MAC synthesized for that port.
	PortMAC map[string][]addr.MAC

	kindOf   map[string]deviceKind
	portsOf  map[string]int
}

// Transform validates f and assigns deterministic port MACs, returning a
// build-ready Desc. It never mutates f.
func (f *TopoFrame) Transform() (*Desc, error) {
	d := &Desc{
		Name: f.Name, Desktops: f.Desktops, Switches: f.Switches,
		Routers: f.Routers, Cables: f.Cables,
		PortMAC: make(map[string][]addr.MAC),
		kindOf:  make(map[string]deviceKind),
		portsOf: make(map[string]int),
	}

	seen := make(map[string]bool)
	register := func(name string, kind deviceKind, ports int) error {
		if seen[name] {
			return fmt.Errorf("topo: duplicate device name %q", name)
		}
		seen[name] = true
		d.kindOf[name] = kind
		d.portsOf[name] = ports
		d.PortMAC[name] = syntheticMACs(name, ports)
		return nil
	}

	for _, dk := range f.Desktops {
		if err := register(dk.Name, kindDesktop, 1); err != nil {
			return nil, err
		}
	}
	for _, sw := range f.Switches {
		if sw.Ports < 1 {
			return nil, fmt.Errorf("topo: switch %q must have at least one port", sw.Name)
		}
		if err := register(sw.Name, kindSwitch, sw.Ports); err != nil {
			return nil, err
		}
	}
	for _, rt := range f.Routers {
		if len(rt.Interfaces) < 1 {
			return nil, fmt.Errorf("topo: router %q must have at least one interface", rt.Name)
		}
		if err := register(rt.Name, kindRouter, len(rt.Interfaces)); err != nil {
			return nil, err
		}
	}

	for _, c := range f.Cables {
		if err := d.checkEndpoint(c.DeviceA, c.PortA); err != nil {
			return nil, err
		}
		if err := d.checkEndpoint(c.DeviceB, c.PortB); err != nil {
			return nil, err
		}
	}

	return d, nil
}

func (d *Desc) checkEndpoint(name string, port int) error {
	n, ok := d.portsOf[name]
	if !ok {
		return fmt.Errorf("topo: cable references unknown device %q", name)
	}
	if port < 0 || port >= n {
		return fmt.Errorf("topo: device %q has no port %d", name, port)
	}
	return nil
}

// syntheticMACs derives locally-administered MACs for a device's ports
// from its name, so the same topology file always produces the same
// addressing (useful for reproducible trace output and tests).
func syntheticMACs(name string, n int) []addr.MAC {
	out := make([]addr.MAC, n)
	h := fnv32(name)
	for i := range out {
		out[i] = addr.MAC{0x02, byte(h >> 24), byte(h >> 16), byte(h >> 8), byte(h), byte(i)}
	}
	return out
}

// fnv32 is a small non-cryptographic hash (FNV-1a), used only to spread
// device names across the locally-administered MAC space deterministically.
func fnv32(s string) uint32 {
	const offset32 = 2166136261
	const prime32 = 16777619
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
