package fabric

import "fmt"

// ConfigError is returned by fabric operations the driver can trigger
// synchronously, per spec.md §7's ConfigError taxonomy: connecting an
// already-paired port, or disconnecting one with no cable.
type ConfigError struct {
	Op     string
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("fabric: %s: %s", e.Op, e.Detail)
}

// Resolver looks up a Port by address. engine.Engine implements this;
// keeping it as an interface here is what lets Cable/Fabric store only
// Addr values and never a direct pointer into a device, per spec.md §9.
type Resolver interface {
	PortAt(a Addr) (*Port, error)
}

// Cable is an unordered pair of port addresses, spec.md §3.
type Cable struct {
	A, B Addr
}

// Fabric owns every cable in the topology and is the sole mutator of port
// queues, per spec.md §5's resource policy.
type Fabric struct {
	cables []Cable
}

// NewFabric creates an empty cable fabric.
func NewFabric() *Fabric {
	return &Fabric{}
}

// Connect couples two ports with a cable. It fails with a ConfigError if
// either port already has a peer, per spec.md §4.2, and leaves fabric
// state unchanged on failure.
func (f *Fabric) Connect(r Resolver, a, b Addr) error {
	if a == b {
		return &ConfigError{Op: "connect", Detail: "a port cannot be cabled to itself"}
	}
	pa, err := r.PortAt(a)
	if err != nil {
		return err
	}
	pb, err := r.PortAt(b)
	if err != nil {
		return err
	}
	if pa.Connected() {
		return &ConfigError{Op: "connect", Detail: fmt.Sprintf("port %+v already has a peer", a)}
	}
	if pb.Connected() {
		return &ConfigError{Op: "connect", Detail: fmt.Sprintf("port %+v already has a peer", b)}
	}
	pa.Peer = &Addr{Device: b.Device, Port: b.Port}
	pb.Peer = &Addr{Device: a.Device, Port: a.Port}
	if pa.State == Disabled {
		pa.State = Forwarding
	}
	if pb.State == Disabled {
		pb.State = Forwarding
	}
	f.cables = append(f.cables, Cable{A: a, B: b})
	return nil
}

// Disconnect drains both queues of the cable attached to port p and
// clears the peer link at both ends, per spec.md §4.2. A port with no
// cable becomes Disabled, matching spec.md §4.4's "link down immediately
// marks the port Disabled".
func (f *Fabric) Disconnect(r Resolver, p Addr) error {
	idx := -1
	var other Addr
	for i, c := range f.cables {
		if c.A == p {
			idx, other = i, c.B
			break
		}
		if c.B == p {
			idx, other = i, c.A
			break
		}
	}
	if idx < 0 {
		return &ConfigError{Op: "disconnect", Detail: fmt.Sprintf("port %+v has no cable", p)}
	}
	pp, err := r.PortAt(p)
	if err != nil {
		return err
	}
	po, err := r.PortAt(other)
	if err != nil {
		return err
	}
	pp.Inbox, pp.Outbox = nil, nil
	po.Inbox, po.Outbox = nil, nil
	pp.Peer, po.Peer = nil, nil
	pp.State = Disabled
	po.State = Disabled
	f.cables = append(f.cables[:idx], f.cables[idx+1:]...)
	return nil
}

// RemoveDeviceCables disconnects every cable touching the given device id,
// used by engine.RemoveDevice to detach cables before a device is dropped
// (spec.md §3 lifecycle: "removal detaches the cable from both ends
// before the device is dropped").
func (f *Fabric) RemoveDeviceCables(r Resolver, deviceID int) {
	for {
		found := false
		for _, c := range f.cables {
			if c.A.Device == deviceID || c.B.Device == deviceID {
				_ = f.Disconnect(r, c.A)
				found = true
				break
			}
		}
		if !found {
			break
		}
	}
}

// Tick moves every frame queued in each cable's two outboxes into the
// peer's inbox, atomically per tick with fixed unit latency: a frame
// queued at tick T is visible at the peer at tick T+1 and nowhere else
// (spec.md §3, §4.2, §5).
func (f *Fabric) Tick(r Resolver) error {
	// Each port belongs to at most one cable (Connect refuses an
	// already-paired port), so cables never share a port and can be
	// drained and delivered independently within the same pass.
	for _, c := range f.cables {
		pa, err := r.PortAt(c.A)
		if err != nil {
			return err
		}
		pb, err := r.PortAt(c.B)
		if err != nil {
			return err
		}
		outA, outB := pa.Outbox, pb.Outbox
		pa.Outbox, pb.Outbox = nil, nil
		pb.Inbox = append(pb.Inbox, outA...)
		pa.Inbox = append(pa.Inbox, outB...)
		pb.Counters.FramesRecv += uint64(len(outA))
		pa.Counters.FramesRecv += uint64(len(outB))
		pa.Counters.FramesSent += uint64(len(outA))
		pb.Counters.FramesSent += uint64(len(outB))
	}
	return nil
}
