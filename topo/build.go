package topo

import (
	"fmt"

	"github.com/iti/netsim/addr"
	"github.com/iti/netsim/engine"
	"github.com/iti/netsim/fabric"
	"github.com/iti/netsim/trace"
)

// Build constructs a live engine.Engine from a validated Desc: every
// device is registered, then every cable is connected, mirroring
// mrnes.go's BuildExperimentNet two-pass shape (devices first, links
// second, since a link needs both endpoints to already exist).
func Build(d *Desc, traceMgr *trace.Manager) (*engine.Engine, map[string]int, error) {
	if traceMgr == nil {
		traceMgr = trace.New(d.Name, false)
	}
	e := engine.New(traceMgr)
	ids := make(map[string]int, len(d.PortMAC))

	for _, dk := range d.Desktops {
		ip, err := addr.ParseIPv4(dk.IP)
		if err != nil {
			return nil, nil, fmt.Errorf("topo: desktop %q: %w", dk.Name, err)
		}
		mask, err := parseMask(dk.Mask)
		if err != nil {
			return nil, nil, fmt.Errorf("topo: desktop %q: %w", dk.Name, err)
		}
		id := e.AddDesktop(dk.Name, d.PortMAC[dk.Name][0], ip, mask)
		ids[dk.Name] = id
		if dk.Gateway != "" {
			gw, err := addr.ParseIPv4(dk.Gateway)
			if err != nil {
				return nil, nil, fmt.Errorf("topo: desktop %q gateway: %w", dk.Name, err)
			}
			dev, _ := e.Device(id)
			dev.(interface{ SetGateway(addr.IPv4) }).SetGateway(gw)
		}
	}

	for _, sw := range d.Switches {
		id := e.AddSwitch(sw.Name, sw.Priority, d.PortMAC[sw.Name])
		ids[sw.Name] = id
	}

	for _, rt := range d.Routers {
		specs := make([]engine.RouterIfaceSpec, len(rt.Interfaces))
		macs := d.PortMAC[rt.Name]
		for i, ifc := range rt.Interfaces {
			ip, err := addr.ParseIPv4(ifc.IP)
			if err != nil {
				return nil, nil, fmt.Errorf("topo: router %q interface %d: %w", rt.Name, i, err)
			}
			mask, err := parseMask(ifc.Mask)
			if err != nil {
				return nil, nil, fmt.Errorf("topo: router %q interface %d: %w", rt.Name, i, err)
			}
			specs[i] = engine.RouterIfaceSpec{MAC: macs[i], IP: ip, Mask: mask}
		}
		id := e.AddRouter(rt.Name, specs)
		ids[rt.Name] = id
	}

	for _, c := range d.Cables {
		a := fabric.Addr{Device: ids[c.DeviceA], Port: c.PortA}
		b := fabric.Addr{Device: ids[c.DeviceB], Port: c.PortB}
		if err := e.Connect(a, b); err != nil {
			return nil, nil, fmt.Errorf("topo: connect %s:%d <-> %s:%d: %w", c.DeviceA, c.PortA, c.DeviceB, c.PortB, err)
		}
	}

	return e, ids, nil
}

// parseMask accepts either dotted-decimal ("255.255.255.0") or CIDR
// prefix-length ("/24" or "24") mask notation.
func parseMask(s string) (addr.Mask, error) {
	if len(s) > 0 && s[0] == '/' {
		s = s[1:]
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			m, err := addr.ParseIPv4(s)
			return addr.Mask(m), err
		}
	}
	n := 0
	for i := 0; i < len(s); i++ {
		n = n*10 + int(s[i]-'0')
	}
	if n < 0 || n > 32 {
		return addr.Mask{}, fmt.Errorf("addr: prefix length %d out of range", n)
	}
	return addr.MaskFromPrefixLen(n), nil
}
