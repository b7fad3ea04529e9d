package device

import (
	"fmt"
	"strconv"

	"github.com/iti/netsim/addr"
	"github.com/iti/netsim/fabric"
	"github.com/iti/netsim/frame"
)

// PingJob tracks an in-progress `ping <ip> count=N` command.
type PingJob struct {
	Dst       addr.IPv4
	Remaining int
	NextSend  int64 // tick at which the next echo-request should be emitted
}

// PingResult records the outcome of one echo-request/reply pair, spec.md
// §4.3.
type PingResult struct {
	Seq      uint16
	SentTick int64
	Replied  bool
	RTTTicks int64
}

// Desktop is spec.md §4.3's end-host: one port, one IPv4 address, a
// default gateway, an ARP cache, a pending-send queue, and an ICMP
// sequence counter.
type Desktop struct {
	id   int
	name string
	port *fabric.Port

	ip      addr.IPv4
	mask    addr.Mask
	gateway *addr.IPv4

	arp     *ArpCache
	pending *PendingQueue

	seq uint16

	job     *PingJob
	results []PingResult
}

// NewDesktop constructs an end-host with the given identity, address, and
// mask. Gateway is set later via SetGateway if the host needs off-link
// reachability.
func NewDesktop(id int, name string, mac addr.MAC, ip addr.IPv4, mask addr.Mask) *Desktop {
	return &Desktop{
		id:      id,
		name:    name,
		port:    fabric.NewPort(mac),
		ip:      ip,
		mask:    mask,
		arp:     NewArpCache(),
		pending: NewPendingQueue(),
	}
}

func (d *Desktop) ID() int          { return d.id }
func (d *Desktop) Kind() Kind       { return KindDesktop }
func (d *Desktop) Name() string     { return d.name }
func (d *Desktop) Ports() []*fabric.Port { return []*fabric.Port{d.port} }
func (d *Desktop) Port() *fabric.Port    { return d.port }
func (d *Desktop) IP() addr.IPv4         { return d.ip }
func (d *Desktop) Mask() addr.Mask       { return d.mask }
func (d *Desktop) Subnet() addr.Subnet   { return addr.NewSubnet(d.ip, d.mask) }
func (d *Desktop) ArpCache() *ArpCache   { return d.arp }
func (d *Desktop) PingResults() []PingResult { return append([]PingResult(nil), d.results...) }

// SetGateway configures the default gateway used for off-link
// destinations.
func (d *Desktop) SetGateway(gw addr.IPv4) {
	d.gateway = &gw
}

// SetIP re-addresses the host, spec.md §6's configure_ip operation.
func (d *Desktop) SetIP(ip addr.IPv4, mask addr.Mask) {
	d.ip = ip
	d.mask = mask
}

// nextHopFor implements spec.md §4.3's next-hop selection: on-link
// destinations resolve directly, off-link destinations resolve via the
// gateway.
func (d *Desktop) nextHopFor(dst addr.IPv4) (addr.IPv4, error) {
	if d.Subnet().Contains(dst) {
		return dst, nil
	}
	if d.gateway == nil {
		return addr.IPv4{}, fmt.Errorf("device: %s has no default gateway for off-link %s", d.name, dst)
	}
	return *d.gateway, nil
}

// SendIPv4 implements spec.md §4.3's send_ipv4 operation: resolve the
// next hop, and either encapsulate immediately on an ARP hit or park the
// packet and emit an ARP request on a miss.
func (d *Desktop) SendIPv4(ctx *Context, dst addr.IPv4, proto frame.IPProto, payload []byte) error {
	nextHop, err := d.nextHopFor(dst)
	if err != nil {
		return err
	}
	pkt := frame.NewIPv4Packet(d.ip, dst, proto, payload)
	body, err := pkt.Marshal()
	if err != nil {
		return err
	}
	if mac, ok := d.arp.Lookup(nextHop, ctx.Tick); ok {
		d.emitIPv4(mac, body)
		return nil
	}
	d.pending.Park(nextHop, PendingPacket{Dst: dst, Payload: body, Deadline: ctx.Tick + ARPPendingTimeout})
	d.pending.MarkRequested(nextHop, ctx.Tick)
	d.sendArpRequest(nextHop)
	return nil
}

func (d *Desktop) emitIPv4(dstMAC addr.MAC, ipv4Body []byte) {
	ef := frame.NewEthernetII(dstMAC, d.port.MAC, frame.EtherTypeIPv4, ipv4Body)
	d.port.Enqueue(ef)
}

func (d *Desktop) sendArpRequest(target addr.IPv4) {
	req := frame.NewARPRequest(d.port.MAC, d.ip, target)
	body, _ := req.Marshal()
	ef := frame.NewEthernetII(addr.BroadcastMAC, d.port.MAC, frame.EtherTypeARP, body)
	d.port.Enqueue(ef)
}

// Ping implements spec.md §4.3's ping operation: schedule count
// echo-requests, one per tick, starting now.
func (d *Desktop) Ping(ctx *Context, dst addr.IPv4, count int) {
	d.job = &PingJob{Dst: dst, Remaining: count, NextSend: ctx.Tick}
	d.results = nil
	ctx.Trace(d.id, "ping-start", fmt.Sprintf("dst=%s count=%d", dst, count))
}

// PingInProgress reports whether a ping job still has requests to send.
// It turns false once the last request is sent, whether or not its reply
// has arrived; PingResults shows which replies came back.
func (d *Desktop) PingInProgress() bool {
	return d.job != nil
}

// Poll drains the inbound queue, services the ARP cache and pending-send
// timers, and advances any in-progress ping job.
func (d *Desktop) Poll(ctx *Context) {
	d.arp.AgeOut(ctx.Tick)
	d.pending.EvictExpired(ctx.Tick)
	for _, nextHop := range d.pending.PendingNextHops() {
		if d.pending.DueForRetry(nextHop, ctx.Tick) {
			d.sendArpRequest(nextHop)
		}
	}

	for _, ef := range d.port.DrainInbox() {
		d.handleFrame(ctx, ef)
	}

	if d.job != nil && d.job.Remaining > 0 && ctx.Tick >= d.job.NextSend {
		d.seq++
		payload := []byte(fmt.Sprintf("ping-%d", d.seq))
		icmp := frame.NewEchoRequest(uint16(d.id), d.seq, payload)
		body, _ := icmp.Marshal()
		if err := d.SendIPv4(ctx, d.job.Dst, frame.ProtoICMP, body); err == nil {
			d.results = append(d.results, PingResult{Seq: d.seq, SentTick: ctx.Tick})
		}
		d.job.Remaining--
		d.job.NextSend = ctx.Tick + 1
		if d.job.Remaining == 0 {
			d.job = nil
		}
	}
}

func (d *Desktop) handleFrame(ctx *Context, ef frame.EtherFrame) {
	if ef.Dst != d.port.MAC && !ef.Dst.IsBroadcast() && !ef.Dst.IsMulticast() {
		return
	}
	switch ef.Kind {
	case frame.KindEthernetII:
		switch ef.EtherType {
		case frame.EtherTypeARP:
			d.handleARP(ctx, ef)
		case frame.EtherTypeIPv4:
			d.handleIPv4(ctx, ef)
		}
	default:
		// 802.3+LLC frames (BPDUs) are meaningless to an end-host; drop.
	}
}

func (d *Desktop) handleARP(ctx *Context, ef frame.EtherFrame) {
	var pkt frame.ARPPacket
	if err := pkt.Unmarshal(ef.Payload); err != nil {
		d.port.Counters.CodecErrors++
		return
	}
	switch pkt.Op {
	case frame.ARPRequest:
		d.arp.Insert(pkt.SenderIP, pkt.SenderMAC, ctx.Tick)
		if pkt.TargetIP == d.ip {
			reply := frame.NewARPReply(d.port.MAC, d.ip, pkt.SenderMAC, pkt.SenderIP)
			body, _ := reply.Marshal()
			d.port.Enqueue(frame.NewEthernetII(pkt.SenderMAC, d.port.MAC, frame.EtherTypeARP, body))
		}
		for _, p := range d.pending.Flush(pkt.SenderIP) {
			d.emitIPv4(pkt.SenderMAC, p.Payload)
		}
	case frame.ARPReply:
		d.arp.Insert(pkt.SenderIP, pkt.SenderMAC, ctx.Tick)
		for _, p := range d.pending.Flush(pkt.SenderIP) {
			d.emitIPv4(pkt.SenderMAC, p.Payload)
		}
	}
}

func (d *Desktop) handleIPv4(ctx *Context, ef frame.EtherFrame) {
	var pkt frame.IPv4Packet
	if err := pkt.Unmarshal(ef.Payload); err != nil {
		d.port.Counters.CodecErrors++
		return
	}
	if pkt.Dst != d.ip && pkt.Dst != addr.LimitedBroadcast && pkt.Dst != d.Subnet().DirectedBroadcast() {
		return
	}
	if pkt.Protocol != frame.ProtoICMP {
		return
	}
	var icmp frame.ICMPMessage
	if err := icmp.Unmarshal(pkt.Payload); err != nil {
		d.port.Counters.CodecErrors++
		return
	}
	switch icmp.Type {
	case frame.ICMPEchoRequest:
		reply := frame.EchoReplyTo(icmp)
		body, _ := reply.Marshal()
		_ = d.SendIPv4(ctx, pkt.Src, frame.ProtoICMP, body)
	case frame.ICMPEchoReply:
		for i := range d.results {
			if d.results[i].Seq == icmp.Seq && !d.results[i].Replied {
				d.results[i].Replied = true
				d.results[i].RTTTicks = ctx.Tick - d.results[i].SentTick
				ctx.Trace(d.id, "ping-reply", fmt.Sprintf("seq=%d rtt=%d", icmp.Seq, d.results[i].RTTTicks))
				break
			}
		}
	}
}

// Command implements the driver-facing subset of spec.md §6 relevant to
// an end-host: ping and ipconfig/show-arp.
func (d *Desktop) Command(ctx *Context, cmd Command) (string, error) {
	switch cmd.Op {
	case "ping":
		if len(cmd.Args) < 1 {
			return "", fmt.Errorf("device: ping requires a destination IP")
		}
		dst, err := addr.ParseIPv4(cmd.Args[0])
		if err != nil {
			return "", err
		}
		count := 1
		if len(cmd.Args) > 1 {
			n, err := strconv.Atoi(cmd.Args[1])
			if err == nil && n > 0 {
				count = n
			}
		}
		d.Ping(ctx, dst, count)
		return fmt.Sprintf("PING %s: %d packets queued", dst, count), nil
	case "ipconfig":
		return fmt.Sprintf("%s: ip %s mask %s mac %s", d.name, d.ip, d.mask, d.port.MAC), nil
	case "show-arp":
		out := ""
		for ip, e := range d.arp.Snapshot() {
			out += fmt.Sprintf("%s -> %s (age %d)\n", ip, e.MAC, ctx.Tick-e.InsertedTick)
		}
		return out, nil
	default:
		return "", fmt.Errorf("device: desktop does not support command %q", cmd.Op)
	}
}
