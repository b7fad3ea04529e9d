// Package device implements the three device variants a simulated network
// is built from: end-host (Desktop), learning bridge with RSTP (Switch),
// and IPv4 router with ARP and RIPv2 (Router). Each carries a uniform
// Poll contract the engine dispatches by variant, per spec.md §9's note
// that polymorphism here is a tagged variant, not a class hierarchy.
package device

import (
	"fmt"

	"github.com/iti/netsim/addr"
	"github.com/iti/netsim/fabric"
	"github.com/iti/netsim/trace"
)

// Kind tags which of the three device variants a Device value is.
type Kind int

const (
	KindDesktop Kind = iota
	KindSwitch
	KindRouter
)

func (k Kind) String() string {
	switch k {
	case KindDesktop:
		return "desktop"
	case KindSwitch:
		return "switch"
	case KindRouter:
		return "router"
	default:
		return "unknown"
	}
}

// Context is everything a device's Poll needs beyond its own state: the
// current engine tick and an (optional) trace sink. Devices never reach
// back into the fabric or other devices during Poll; all interaction with
// the outside world happens through the ports the device already owns,
// per spec.md §5's "no shared mutable state crosses devices except
// through cables".
type Context struct {
	Tick    int64
	TraceMgr *trace.Manager
}

// Trace records one event against deviceID if a trace sink is attached;
// callers never need to guard against a nil TraceMgr, mirroring the
// teacher's own AddNetTrace call sites that fire unconditionally and let
// Manager.InUse decide whether anything is actually recorded.
func (c *Context) Trace(deviceID int, op, detail string) {
	if c.TraceMgr == nil {
		return
	}
	c.TraceMgr.Add(c.Tick, deviceID, op, detail)
}

// Device is the uniform contract the engine dispatches by Kind. Poll
// drains inbound frames, updates protocol state, and may enqueue outbound
// frames on the device's own ports; it never blocks and never suspends,
// per spec.md §5.
type Device interface {
	ID() int
	Kind() Kind
	Name() string
	Ports() []*fabric.Port
	Poll(ctx *Context)
	// Command hands a driver-issued textual command (ping, show ...) to
	// the device; spec.md §6's EnqueueCommand.
	Command(ctx *Context, cmd Command) (string, error)
}

// Command is a driver request queued for a device to act on during its
// next Poll, spec.md §6.
type Command struct {
	Op   string // "ping", "show-arp", "show-mac-address-table", "show-spanning-tree", "show-ip-route"
	Args []string
}

// ErrNoRoute, ErrNoARP, and ErrTTLExpired name the router-side error
// cases. They are defined here only: the router's forwarding path neither
// returns nor counts them, it drops the packet (tracing "no-route" where
// there is no route) and the tick goes on.
var (
	ErrNoRoute    = fmt.Errorf("device: no route to destination")
	ErrNoARP      = fmt.Errorf("device: address unresolved")
	ErrTTLExpired = fmt.Errorf("device: ttl expired")
)

// ArpEntry is a single (IPv4 -> MAC) binding with its insertion tick,
// spec.md §3.
type ArpEntry struct {
	MAC          addr.MAC
	InsertedTick int64
}

// ArpCache resolves next-hop IPv4 addresses to MAC addresses and evicts
// bindings older than ARPCacheTTL, per spec.md §4.3's invariant that no
// stale binding is ever used.
type ArpCache struct {
	entries map[addr.IPv4]ArpEntry
}

// NewArpCache creates an empty cache.
func NewArpCache() *ArpCache {
	return &ArpCache{entries: make(map[addr.IPv4]ArpEntry)}
}

// Lookup returns the MAC bound to ip if a fresh binding exists.
func (c *ArpCache) Lookup(ip addr.IPv4, now int64) (addr.MAC, bool) {
	e, ok := c.entries[ip]
	if !ok {
		return addr.MAC{}, false
	}
	if now-e.InsertedTick >= ARPCacheTTL {
		delete(c.entries, ip)
		return addr.MAC{}, false
	}
	return e.MAC, true
}

// Insert installs or refreshes a binding.
func (c *ArpCache) Insert(ip addr.IPv4, mac addr.MAC, now int64) {
	c.entries[ip] = ArpEntry{MAC: mac, InsertedTick: now}
}

// AgeOut removes every binding older than ARPCacheTTL. Called once per
// poll so an eviction never survives past the tick where it goes stale,
// per spec.md §4.3.
func (c *ArpCache) AgeOut(now int64) {
	for ip, e := range c.entries {
		if now-e.InsertedTick >= ARPCacheTTL {
			delete(c.entries, ip)
		}
	}
}

// Snapshot returns a stable copy of the cache contents for read-only
// inspection (engine.Snapshot, "show arp").
func (c *ArpCache) Snapshot() map[addr.IPv4]ArpEntry {
	out := make(map[addr.IPv4]ArpEntry, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// PendingPacket is an IPv4 packet parked while its next hop's MAC is
// being resolved, spec.md §3/§4.3.
type PendingPacket struct {
	Dst      addr.IPv4 // final IPv4 destination
	Payload  []byte    // full serialized IPv4 packet ready to wrap in Ethernet once resolved
	Deadline int64     // tick at which this entry is dropped if still unresolved
}

// PendingQueue holds packets awaiting ARP resolution, keyed by next-hop
// IPv4 address, per spec.md §4.3.
type PendingQueue struct {
	byNextHop map[addr.IPv4][]PendingPacket
	retryDue  map[addr.IPv4]int64
}

// NewPendingQueue creates an empty queue.
func NewPendingQueue() *PendingQueue {
	return &PendingQueue{
		byNextHop: make(map[addr.IPv4][]PendingPacket),
		retryDue:  make(map[addr.IPv4]int64),
	}
}

// Park stores a packet awaiting resolution of nextHop.
func (q *PendingQueue) Park(nextHop addr.IPv4, p PendingPacket) {
	q.byNextHop[nextHop] = append(q.byNextHop[nextHop], p)
}

// Flush removes and returns every packet parked on nextHop, called once
// its MAC binding arrives.
func (q *PendingQueue) Flush(nextHop addr.IPv4) []PendingPacket {
	pkts := q.byNextHop[nextHop]
	delete(q.byNextHop, nextHop)
	delete(q.retryDue, nextHop)
	return pkts
}

// MarkRequested records that an ARP request for nextHop was just sent,
// so DueForRetry will not fire again until ARPRetryInterval ticks from
// now. Call once right after Park's initial request, so the first retry
// comes one full ARPRetryInterval after that request (the next tick, at
// the current interval of 1) rather than in the same tick.
func (q *PendingQueue) MarkRequested(nextHop addr.IPv4, now int64) {
	q.retryDue[nextHop] = now + ARPRetryInterval
}

// DueForRetry reports whether nextHop still has packets parked and its
// ARP request should be resent now, advancing its retry deadline by
// ARPRetryInterval so Poll can call this once per tick per next hop and
// resend at most once every ARPRetryInterval ticks (every tick at the
// current interval of 1). Spec.md §4.3 bounds total resolution time
// with ARPPendingTimeout but says nothing against retrying within it.
func (q *PendingQueue) DueForRetry(nextHop addr.IPv4, now int64) bool {
	if _, ok := q.byNextHop[nextHop]; !ok {
		return false
	}
	if due, ok := q.retryDue[nextHop]; ok && now < due {
		return false
	}
	q.retryDue[nextHop] = now + ARPRetryInterval
	return true
}

// EvictExpired drops every parked packet whose deadline has passed,
// spec.md §4.3: "A parked packet whose resolution does not complete
// within ARP_PENDING_TIMEOUT ticks is dropped."
func (q *PendingQueue) EvictExpired(now int64) int {
	dropped := 0
	for nh, pkts := range q.byNextHop {
		kept := pkts[:0]
		for _, p := range pkts {
			if now >= p.Deadline {
				dropped++
				continue
			}
			kept = append(kept, p)
		}
		if len(kept) == 0 {
			delete(q.byNextHop, nh)
			delete(q.retryDue, nh)
		} else {
			q.byNextHop[nh] = kept
		}
	}
	return dropped
}

// PendingNextHops lists every next hop with at least one parked packet,
// used by Poll to know which ARP requests are outstanding.
func (q *PendingQueue) PendingNextHops() []addr.IPv4 {
	out := make([]addr.IPv4, 0, len(q.byNextHop))
	for nh := range q.byNextHop {
		out = append(out, nh)
	}
	return out
}
