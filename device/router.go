package device

import (
	"fmt"
	"sort"

	"github.com/iti/netsim/addr"
	"github.com/iti/netsim/fabric"
	"github.com/iti/netsim/frame"
	"github.com/iti/rngstream"
)

// Interface is one of a Router's IPv4-speaking attachment points: a port,
// its own address and mask, and the ARP cache/pending queue that address
// keeps, per spec.md §4.5 ("A router interface is, in effect, its own
// small end-host stack").
type Interface struct {
	port *fabric.Port
	ip   addr.IPv4
	mask addr.Mask

	arp     *ArpCache
	pending *PendingQueue

	ripDue int64 // next tick this interface sends its periodic RIP response
}

func (i *Interface) Port() *fabric.Port  { return i.port }
func (i *Interface) IP() addr.IPv4       { return i.ip }
func (i *Interface) Mask() addr.Mask     { return i.mask }
func (i *Interface) Subnet() addr.Subnet { return addr.NewSubnet(i.ip, i.mask) }
func (i *Interface) ArpCache() *ArpCache { return i.arp }

// Router is spec.md §4.5's IPv4 router: a set of interfaces, a routing
// table seeded with one directly-connected entry per interface and grown
// by RIPv2, and the RIPv2 control-plane bookkeeping in rip.go.
type Router struct {
	id    int
	name  string
	ifs   []*Interface
	table []*RouteEntry

	rng *rngstream.RngStream

	dirty          []*RouteEntry
	triggerPending bool
	triggerAllowed int64
}

// NewRouter builds a router with no interfaces; call AddInterface once
// per link before it is wired into a topology.
func NewRouter(id int, name string) *Router {
	return &Router{
		id:   id,
		name: name,
		rng:  rngstream.New(name),
	}
}

// AddInterface attaches a new IPv4-configured port and installs the
// corresponding directly-connected routing table entry, spec.md §4.5's
// "Directly-connected routes always win over learned routes of the same
// prefix length" invariant depends on this entry existing from the start.
func (r *Router) AddInterface(mac addr.MAC, ip addr.IPv4, mask addr.Mask) int {
	iface := &Interface{
		port:    fabric.NewPort(mac),
		ip:      ip,
		mask:    mask,
		arp:     NewArpCache(),
		pending: NewPendingQueue(),
	}
	idx := len(r.ifs)
	r.ifs = append(r.ifs, iface)
	r.table = append(r.table, &RouteEntry{
		Net:      iface.Subnet(),
		NextHop:  nil,
		Egress:   idx,
		Metric:   0,
		Directly: true,
		Age:      0,
	})
	return idx
}

// SetInterfaceIP re-addresses one interface after construction, spec.md
// §6's configure_ip operation, keeping the interface's directly-connected
// routing table entry in step.
func (r *Router) SetInterfaceIP(ifaceIdx int, ip addr.IPv4, mask addr.Mask) error {
	if ifaceIdx < 0 || ifaceIdx >= len(r.ifs) {
		return fmt.Errorf("device: router %s has no interface %d", r.name, ifaceIdx)
	}
	iface := r.ifs[ifaceIdx]
	iface.ip, iface.mask = ip, mask
	for _, e := range r.table {
		if e.Directly && e.Egress == ifaceIdx {
			e.Net = iface.Subnet()
		}
	}
	return nil
}

func (r *Router) ID() int                { return r.id }
func (r *Router) Kind() Kind             { return KindRouter }
func (r *Router) Name() string           { return r.name }
func (r *Router) Interfaces() []*Interface { return r.ifs }

func (r *Router) Ports() []*fabric.Port {
	out := make([]*fabric.Port, len(r.ifs))
	for i, iface := range r.ifs {
		out[i] = iface.port
	}
	return out
}

// RouteTableSnapshot returns a stable, insertion-ordered copy of the
// routing table for "show ip route" and engine.Snapshot.
func (r *Router) RouteTableSnapshot() []RouteEntry {
	out := make([]RouteEntry, len(r.table))
	for i, e := range r.table {
		out[i] = *e
	}
	return out
}

// Poll runs a router's per-tick work: interface ARP/pending maintenance,
// RIP timer evaluation, then draining and forwarding each interface's
// inbound frames, per spec.md §4.5.
func (r *Router) Poll(ctx *Context) {
	for _, iface := range r.ifs {
		iface.arp.AgeOut(ctx.Tick)
		iface.pending.EvictExpired(ctx.Tick)
		for _, nextHop := range iface.pending.PendingNextHops() {
			if iface.pending.DueForRetry(nextHop, ctx.Tick) {
				req := frame.NewARPRequest(iface.port.MAC, iface.ip, nextHop)
				body, _ := req.Marshal()
				iface.port.Enqueue(frame.NewEthernetII(addr.BroadcastMAC, iface.port.MAC, frame.EtherTypeARP, body))
			}
		}
	}

	r.ageRoutes(ctx)
	r.emitPeriodicRIP(ctx)
	r.emitTriggeredRIP(ctx)

	for idx, iface := range r.ifs {
		for _, ef := range iface.port.DrainInbox() {
			r.handleFrame(ctx, idx, ef)
		}
	}
}

func (r *Router) handleFrame(ctx *Context, ingress int, ef frame.EtherFrame) {
	iface := r.ifs[ingress]
	if ef.Dst != iface.port.MAC && !ef.Dst.IsBroadcast() && !ef.Dst.IsMulticast() {
		return
	}
	switch ef.Kind {
	case frame.KindEthernetII:
		switch ef.EtherType {
		case frame.EtherTypeARP:
			r.handleARP(ctx, ingress, ef)
		case frame.EtherTypeIPv4:
			r.handleIPv4(ctx, ingress, ef)
		}
	default:
		// Routers do not run RSTP; 802.3+LLC frames are meaningless here.
	}
}

func (r *Router) handleARP(ctx *Context, ifaceIdx int, ef frame.EtherFrame) {
	iface := r.ifs[ifaceIdx]
	var pkt frame.ARPPacket
	if err := pkt.Unmarshal(ef.Payload); err != nil {
		iface.port.Counters.CodecErrors++
		return
	}
	switch pkt.Op {
	case frame.ARPRequest:
		iface.arp.Insert(pkt.SenderIP, pkt.SenderMAC, ctx.Tick)
		if pkt.TargetIP == iface.ip {
			reply := frame.NewARPReply(iface.port.MAC, iface.ip, pkt.SenderMAC, pkt.SenderIP)
			body, _ := reply.Marshal()
			iface.port.Enqueue(frame.NewEthernetII(pkt.SenderMAC, iface.port.MAC, frame.EtherTypeARP, body))
		}
		for _, p := range iface.pending.Flush(pkt.SenderIP) {
			r.emitFromInterface(ifaceIdx, pkt.SenderMAC, p.Payload)
		}
	case frame.ARPReply:
		iface.arp.Insert(pkt.SenderIP, pkt.SenderMAC, ctx.Tick)
		for _, p := range iface.pending.Flush(pkt.SenderIP) {
			r.emitFromInterface(ifaceIdx, pkt.SenderMAC, p.Payload)
		}
	}
}

func (r *Router) handleIPv4(ctx *Context, ingress int, ef frame.EtherFrame) {
	iface := r.ifs[ingress]
	var pkt frame.IPv4Packet
	if err := pkt.Unmarshal(ef.Payload); err != nil {
		iface.port.Counters.CodecErrors++
		return
	}

	if r.isLocal(pkt.Dst) {
		r.consumeLocally(ctx, ingress, pkt)
		return
	}

	if pkt.TTL <= 1 {
		icmp := frame.ICMPMessage{Type: frame.ICMPTimeExceeded, Payload: pkt.Payload}
		body, _ := icmp.Marshal()
		reply := frame.NewIPv4Packet(iface.ip, pkt.Src, frame.ProtoICMP, body)
		r.route(ctx, reply)
		return
	}
	pkt.TTL--
	r.route(ctx, pkt)
}

// isLocal reports whether dst names one of this router's own interface
// addresses or one of their directed broadcasts.
func (r *Router) isLocal(dst addr.IPv4) bool {
	if dst == addr.LimitedBroadcast {
		return true
	}
	for _, iface := range r.ifs {
		if dst == iface.ip || dst == iface.Subnet().DirectedBroadcast() {
			return true
		}
	}
	return false
}

func (r *Router) consumeLocally(ctx *Context, ingress int, pkt frame.IPv4Packet) {
	switch pkt.Protocol {
	case frame.ProtoICMP:
		var icmp frame.ICMPMessage
		if err := icmp.Unmarshal(pkt.Payload); err != nil {
			r.ifs[ingress].port.Counters.CodecErrors++
			return
		}
		if icmp.Type == frame.ICMPEchoRequest {
			reply := frame.EchoReplyTo(icmp)
			body, _ := reply.Marshal()
			out := frame.NewIPv4Packet(r.ifs[ingress].ip, pkt.Src, frame.ProtoICMP, body)
			r.route(ctx, out)
		}
	case frame.ProtoRIP:
		var msg frame.RIPMessage
		if err := msg.Unmarshal(pkt.Payload); err != nil {
			r.ifs[ingress].port.Counters.CodecErrors++
			return
		}
		r.handleRIP(ctx, ingress, pkt.Src, msg)
	}
}

// route implements spec.md §4.5's forward path: longest-prefix-match
// lookup, then ARP-resolve-and-park on the chosen egress interface.
func (r *Router) route(ctx *Context, pkt frame.IPv4Packet) {
	route := r.lookupRoute(pkt.Dst)
	if route == nil {
		ctx.Trace(r.id, "no-route", fmt.Sprintf("dst=%s", pkt.Dst))
		return
	}
	nextHop := pkt.Dst
	if route.NextHop != nil {
		nextHop = *route.NextHop
	}
	body, err := pkt.Marshal()
	if err != nil {
		return
	}
	iface := r.ifs[route.Egress]
	if mac, ok := iface.arp.Lookup(nextHop, ctx.Tick); ok {
		r.emitFromInterface(route.Egress, mac, body)
		return
	}
	iface.pending.Park(nextHop, PendingPacket{Dst: pkt.Dst, Payload: body, Deadline: ctx.Tick + ARPPendingTimeout})
	iface.pending.MarkRequested(nextHop, ctx.Tick)
	req := frame.NewARPRequest(iface.port.MAC, iface.ip, nextHop)
	reqBody, _ := req.Marshal()
	iface.port.Enqueue(frame.NewEthernetII(addr.BroadcastMAC, iface.port.MAC, frame.EtherTypeARP, reqBody))
}

func (r *Router) emitFromInterface(ifaceIdx int, dstMAC addr.MAC, ipv4Body []byte) {
	iface := r.ifs[ifaceIdx]
	iface.port.Enqueue(frame.NewEthernetII(dstMAC, iface.port.MAC, frame.EtherTypeIPv4, ipv4Body))
}

// Command implements the driver-facing subset of spec.md §6 relevant to a
// router.
func (r *Router) Command(ctx *Context, cmd Command) (string, error) {
	switch cmd.Op {
	case "show-ip-route":
		nets := r.RouteTableSnapshot()
		sort.Slice(nets, func(i, j int) bool { return nets[i].Net.String() < nets[j].Net.String() })
		out := ""
		for _, e := range nets {
			via := "directly connected"
			if e.NextHop != nil {
				via = fmt.Sprintf("via %s", *e.NextHop)
			}
			out += fmt.Sprintf("%s %s metric %d egress %d\n", e.Net, via, e.Metric, e.Egress)
		}
		return out, nil
	case "show-arp":
		out := ""
		for i, iface := range r.ifs {
			for ip, e := range iface.arp.Snapshot() {
				out += fmt.Sprintf("if%d: %s -> %s (age %d)\n", i, ip, e.MAC, ctx.Tick-e.InsertedTick)
			}
		}
		return out, nil
	case "ipconfig":
		out := ""
		for i, iface := range r.ifs {
			out += fmt.Sprintf("if%d: ip %s mask %s mac %s\n", i, iface.ip, iface.mask, iface.port.MAC)
		}
		return out, nil
	default:
		return "", fmt.Errorf("device: router does not support command %q", cmd.Op)
	}
}
