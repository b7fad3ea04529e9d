package device

import (
	"fmt"
	"sort"

	"github.com/iti/netsim/addr"
	"github.com/iti/netsim/fabric"
	"github.com/iti/netsim/frame"
	"github.com/iti/rngstream"
)

// macTableEntry binds a learned source MAC to the port it was seen on,
// spec.md §4.4.
type macTableEntry struct {
	Port    int
	SetTick int64
}

// Switch is spec.md §4.4's learning bridge: a MAC address table and a
// full RSTP state machine running per port.
type Switch struct {
	id    int
	name  string
	ports []*fabric.Port
	rstp  []portRSTP

	priority uint16
	bridgeID frame.BridgeID

	rootID       frame.BridgeID
	rootPathCost uint32
	tcUntil      int64

	macTable map[addr.MAC]macTableEntry

	rng *rngstream.RngStream
}

// NewSwitch builds a bridge with one port per MAC in macs, at the given
// RSTP priority (spec.md's default is DefaultBridgePriority). The
// bridge-id is priority || lowest-port-MAC, spec.md §4.4.
func NewSwitch(id int, name string, priority uint16, macs []addr.MAC) *Switch {
	ports := make([]*fabric.Port, len(macs))
	rstp := make([]portRSTP, len(macs))
	lowest := macs[0]
	for _, m := range macs[1:] {
		if m.Less(lowest) {
			lowest = m
		}
	}
	bridgeID := frame.BridgeID{Priority: priority, MAC: lowest}
	for i, m := range macs {
		ports[i] = fabric.NewPort(m)
		ports[i].Role = fabric.RoleDesignated
	}
	s := &Switch{
		id: id, name: name, ports: ports, rstp: rstp,
		priority: priority, bridgeID: bridgeID,
		rootID:   bridgeID,
		macTable: make(map[addr.MAC]macTableEntry),
		rng:      rngstream.New(name),
	}
	return s
}

func (s *Switch) ID() int              { return s.id }
func (s *Switch) Kind() Kind           { return KindSwitch }
func (s *Switch) Name() string         { return s.name }
func (s *Switch) Ports() []*fabric.Port { return s.ports }
func (s *Switch) BridgeID() frame.BridgeID { return s.bridgeID }
func (s *Switch) RootID() frame.BridgeID   { return s.rootID }
func (s *Switch) IsRoot() bool             { return s.rootID.Equal(s.bridgeID) }

// macAging returns the effective MAC table aging interval: shortened to
// ForwardDelay while a topology change is in flight, per spec.md §4.4
// step 5.
func (s *Switch) macAging(now int64) int64 {
	if now < s.tcUntil {
		return ForwardDelay
	}
	return MACAgingTicks
}

// Poll runs the bridge's per-tick work: RSTP timer evaluation and role
// election, then draining and forwarding/flooding data frames, per
// spec.md §4.4.
func (s *Switch) Poll(ctx *Context) {
	s.ageBPDUVectors(ctx)
	s.electRoles(ctx)
	s.emitHellos(ctx)
	s.ageMACTable(ctx)

	for i, p := range s.ports {
		for _, ef := range p.DrainInbox() {
			s.handleFrame(ctx, i, ef)
		}
	}
}

func (s *Switch) ageMACTable(ctx *Context) {
	limit := s.macAging(ctx.Tick)
	for mac, e := range s.macTable {
		if ctx.Tick-e.SetTick >= limit {
			delete(s.macTable, mac)
		}
	}
}

func (s *Switch) handleFrame(ctx *Context, ingress int, ef frame.EtherFrame) {
	if ef.IsBPDU() {
		var b frame.BPDU
		if err := b.Unmarshal(ef.Payload); err != nil {
			s.ports[ingress].Counters.CodecErrors++
			return
		}
		s.receiveBPDU(ctx, ingress, b)
		return
	}
	if ef.Dst == addr.RSTPGroupMAC {
		// The RSTP group address is consumed by the bridge itself; a
		// non-BPDU frame sent to it is dropped, never relayed.
		return
	}

	ingressState := s.ports[ingress].State
	if ingressState == fabric.Disabled {
		return
	}

	if ingressState == fabric.Learning || ingressState == fabric.Forwarding {
		s.learn(ef.Src, ingress, ctx.Tick)
	}
	if ingressState != fabric.Forwarding {
		return
	}

	if ef.Dst.IsBroadcast() || ef.Dst.IsMulticast() {
		s.flood(ingress, ef)
		return
	}
	entry, known := s.macTable[ef.Dst]
	if !known {
		s.flood(ingress, ef)
		return
	}
	if entry.Port == ingress {
		return
	}
	egress := s.ports[entry.Port]
	if egress.State != fabric.Forwarding {
		return
	}
	egress.Enqueue(ef)
}

func (s *Switch) learn(mac addr.MAC, port int, now int64) {
	if mac.IsBroadcast() || mac.IsMulticast() {
		return
	}
	s.macTable[mac] = macTableEntry{Port: port, SetTick: now}
}

func (s *Switch) flood(ingress int, ef frame.EtherFrame) {
	for i, p := range s.ports {
		if i == ingress || p.State != fabric.Forwarding {
			continue
		}
		p.Enqueue(ef)
	}
}

// MACTableSnapshot returns a stable copy for "show mac-address-table".
func (s *Switch) MACTableSnapshot() map[addr.MAC]macTableEntry {
	out := make(map[addr.MAC]macTableEntry, len(s.macTable))
	for k, v := range s.macTable {
		out[k] = v
	}
	return out
}

// PortRoles returns each port's current (role, state) pair for "show
// spanning-tree".
func (s *Switch) PortRoles() []struct {
	Port  int
	Role  fabric.RSTPRole
	State fabric.RSTPState
} {
	out := make([]struct {
		Port  int
		Role  fabric.RSTPRole
		State fabric.RSTPState
	}, len(s.ports))
	for i, p := range s.ports {
		out[i] = struct {
			Port  int
			Role  fabric.RSTPRole
			State fabric.RSTPState
		}{Port: i, Role: p.Role, State: p.State}
	}
	return out
}

// Command implements the driver-facing subset of spec.md §6 relevant to a
// bridge.
func (s *Switch) Command(ctx *Context, cmd Command) (string, error) {
	switch cmd.Op {
	case "show-mac-address-table":
		macs := make([]addr.MAC, 0, len(s.macTable))
		for m := range s.macTable {
			macs = append(macs, m)
		}
		sort.Slice(macs, func(i, j int) bool { return macs[i].Less(macs[j]) })
		out := ""
		for _, m := range macs {
			e := s.macTable[m]
			out += fmt.Sprintf("%s -> port %d (age %d)\n", m, e.Port, ctx.Tick-e.SetTick)
		}
		return out, nil
	case "show-spanning-tree":
		out := fmt.Sprintf("bridge %s id %d/%s root %d/%s\n", s.name, s.bridgeID.Priority, s.bridgeID.MAC, s.rootID.Priority, s.rootID.MAC)
		for _, pr := range s.PortRoles() {
			out += fmt.Sprintf("  port %d: role %s state %s\n", pr.Port, pr.Role, pr.State)
		}
		return out, nil
	default:
		return "", fmt.Errorf("device: switch does not support command %q", cmd.Op)
	}
}

// PortsConnected returns the indexes of every currently-connected port,
// in ascending order.
func (s *Switch) PortsConnected() []int {
	out := []int{}
	for i, p := range s.ports {
		if p.Connected() {
			out = append(out, i)
		}
	}
	return out
}
