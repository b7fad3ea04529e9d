// Package fabric implements the point-to-point cable plane: ports, the
// frame queues attached to them, and the cables that couple two ports so
// that a frame queued on one side is delivered to the other one tick
// later. It never holds an owning reference to a device; cables and ports
// address each other only by (device id, port index), per spec.md §9's
// design note on avoiding cyclic ownership.
package fabric

import (
	"github.com/iti/netsim/addr"
	"github.com/iti/netsim/frame"
)

// RSTPState is the per-port forwarding state spec.md §4.4 defines. Every
// port carries one, but only device.Switch actually runs the state
// machine that moves it through Blocking and Learning. A Desktop or
// Router port is Forwarding while cabled; Fabric.Disconnect marks any
// port Disabled and Fabric.Connect sets it back to Forwarding.
type RSTPState int

const (
	Forwarding RSTPState = iota
	Learning
	Blocking
	Disabled
)

func (s RSTPState) String() string {
	switch s {
	case Forwarding:
		return "Forwarding"
	case Learning:
		return "Learning"
	case Blocking:
		return "Blocking"
	case Disabled:
		return "Disabled"
	default:
		return "Unknown"
	}
}

// RSTPRole is the per-port role spec.md §4.4 defines.
type RSTPRole int

const (
	RoleDesignated RSTPRole = iota
	RoleRoot
	RoleAlternate
	RoleBackup
	// RoleNone marks a port on a device that does not run RSTP at all
	// (Desktop, Router), and a Switch port with no cable attached.
	RoleNone
)

func (r RSTPRole) String() string {
	switch r {
	case RoleDesignated:
		return "Designated"
	case RoleRoot:
		return "Root"
	case RoleAlternate:
		return "Alternate"
	case RoleBackup:
		return "Backup"
	default:
		return "None"
	}
}

// Addr identifies a port by the id of the device that owns it and the
// port's index within that device, never by a direct reference.
type Addr struct {
	Device int
	Port   int
}

// Counters tracks per-port traffic for observability (spec.md §7:
// codec errors are "counted on the ingress port"; supplemented from
// original_source/src/physical/packet_sim.rs, which keeps sent/received/
// dropped counters purely for the terminal driver to display).
type Counters struct {
	FramesSent    uint64
	FramesRecv    uint64
	FramesDropped uint64
	CodecErrors   uint64
}

// Port is a device's attachment point to the cable fabric: a MAC address,
// inbound/outbound frame queues, and RSTP forwarding state.
type Port struct {
	MAC addr.MAC

	Peer *Addr // nil until a cable connects this port

	Outbox []frame.EtherFrame
	Inbox  []frame.EtherFrame

	State RSTPState
	Role  RSTPRole

	Counters Counters
}

// NewPort creates a port with the given MAC, initially Forwarding (the
// correct default for Desktop/Router ports, and the state a Switch port
// starts in before RSTP has run at all, per spec.md §4.4 step 1).
func NewPort(mac addr.MAC) *Port {
	return &Port{MAC: mac, State: Forwarding, Role: RoleNone}
}

// Connected reports whether a cable is attached to this port.
func (p *Port) Connected() bool {
	return p.Peer != nil
}

// CanForwardData reports whether the port may carry data frames outbound;
// Blocking and Disabled ports must drop them, per spec.md §4.2.
func (p *Port) CanForwardData() bool {
	return p.State == Forwarding || p.State == Learning
}

// Enqueue places a frame in the outbound queue, dropping it and counting
// the drop if the port's RSTP state forbids the frame from egressing: data
// frames are dropped on a Blocking/Disabled port, but BPDUs (spec.md
// §4.2 parenthetical: "BPDUs still flow on blocking ports") always go out
// as long as the port isn't Disabled.
func (p *Port) Enqueue(f frame.EtherFrame) {
	if p.State == Disabled {
		p.Counters.FramesDropped++
		return
	}
	if !p.CanForwardData() && !f.IsBPDU() {
		p.Counters.FramesDropped++
		return
	}
	p.Outbox = append(p.Outbox, f)
}

// DrainInbox removes and returns every frame queued on the inbound side,
// in FIFO arrival order, per spec.md §5's per-device FIFO guarantee.
func (p *Port) DrainInbox() []frame.EtherFrame {
	in := p.Inbox
	p.Inbox = nil
	return in
}
