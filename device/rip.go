package device

import (
	"fmt"

	"github.com/iti/netsim/addr"
	"github.com/iti/netsim/frame"
)

// markDirty records e as changed since the last triggered update, spec.md
// §4.5's "any metric change emits an immediate response" rule.
func (r *Router) markDirty(e *RouteEntry) {
	for _, d := range r.dirty {
		if d == e {
			return
		}
	}
	r.dirty = append(r.dirty, e)
	r.triggerPending = true
}

// ageRoutes implements spec.md §4.5's RIP_TIMEOUT/RIP_GARBAGE lifecycle: a
// learned route unrefreshed for RIP_TIMEOUT ticks is marked unreachable
// (metric 16), announced as such by the next triggered update, and kept
// in the table for RIP_GARBAGE more ticks before it is finally dropped;
// periodic updates leave it out meanwhile. Directly-connected entries
// never age.
func (r *Router) ageRoutes(ctx *Context) {
	kept := r.table[:0]
	for _, e := range r.table {
		switch {
		case e.Directly:
			kept = append(kept, e)
		case e.Metric < RIPInfinity:
			if ctx.Tick-e.Age >= RIPTimeout {
				e.Metric = RIPInfinity
				e.Garbage = ctx.Tick + RIPGarbage
				r.markDirty(e)
			}
			kept = append(kept, e)
		case e.Garbage > 0 && ctx.Tick >= e.Garbage:
			// dropped: not carried into kept
		default:
			kept = append(kept, e)
		}
	}
	r.table = kept
}

// buildEntries renders routes as RTEs for advertisement out ifaceIdx,
// applying split-horizon-with-poisoned-reverse: a learned route whose
// egress is the interface it would be advertised on is poisoned to metric
// 16 rather than omitted. includeInfinite controls whether already-16
// entries are rendered at all: periodic updates omit them once garbage
// collection has begun, but a triggered update must announce a route's
// transition to unreachable at least once.
func (r *Router) buildEntries(ifaceIdx int, routes []*RouteEntry, includeInfinite bool) []frame.RTE {
	var out []frame.RTE
	for _, e := range routes {
		if e.Metric >= RIPInfinity && !includeInfinite {
			continue
		}
		metric := e.Metric
		if !e.Directly && e.Egress == ifaceIdx {
			metric = RIPInfinity
		}
		out = append(out, frame.RTE{IP: e.Net.Network, Mask: e.Net.Mask, NextHop: addr.IPv4{}, Metric: metric})
	}
	return out
}

// ripMaxRTEsPerMessage mirrors frame.RIPMessage's 25-entry wire limit;
// a router with more routes than that splits its advertisement across
// several messages.
const ripMaxRTEsPerMessage = 25

// sendRIPResponse emits entries out ifaceIdx as one or more RIPv2
// response messages, addressed to the IPv4 limited broadcast
// (255.255.255.255) where a real RIP speaker would use 224.0.0.9 or the
// segment's broadcast address; this simulation has no multicast routing.
func (r *Router) sendRIPResponse(ifaceIdx int, entries []frame.RTE) {
	if len(entries) == 0 {
		return
	}
	iface := r.ifs[ifaceIdx]
	for len(entries) > 0 {
		n := len(entries)
		if n > ripMaxRTEsPerMessage {
			n = ripMaxRTEsPerMessage
		}
		msg := frame.RIPMessage{Command: frame.RIPResponse, Entries: entries[:n]}
		entries = entries[n:]
		body, err := msg.Marshal()
		if err != nil {
			continue
		}
		pkt := frame.NewIPv4Packet(iface.ip, addr.LimitedBroadcast, frame.ProtoRIP, body)
		pktBody, err := pkt.Marshal()
		if err != nil {
			continue
		}
		r.emitFromInterface(ifaceIdx, addr.BroadcastMAC, pktBody)
	}
}

// emitPeriodicRIP sends each interface's full non-infinite route set every
// RIPUpdateInterval ticks, spec.md §4.5. A per-interface jitter on the
// first send, drawn from the router's RNG stream, keeps routers that
// booted on the same tick from advertising in lockstep, mirroring the
// same jitter device.Switch applies to RSTP hellos.
func (r *Router) emitPeriodicRIP(ctx *Context) {
	for idx, iface := range r.ifs {
		if iface.ripDue == 0 {
			jitter := int64(r.rng.RandU01() * float64(RIPUpdateInterval))
			iface.ripDue = ctx.Tick + jitter
		}
		if ctx.Tick < iface.ripDue {
			continue
		}
		iface.ripDue = ctx.Tick + RIPUpdateInterval
		r.sendRIPResponse(idx, r.buildEntries(idx, r.table, false))
	}
}

// emitTriggeredRIP fires an out-of-cycle update for every route that
// changed since the last one, gated by a random RIP_HOLD_DOWN so a burst
// of changes collapses into a single update, spec.md §4.5.
func (r *Router) emitTriggeredRIP(ctx *Context) {
	if !r.triggerPending || ctx.Tick < r.triggerAllowed {
		return
	}
	for idx := range r.ifs {
		if entries := r.buildEntries(idx, r.dirty, true); len(entries) > 0 {
			r.sendRIPResponse(idx, entries)
		}
	}
	r.dirty = nil
	r.triggerPending = false
	span := RIPHoldDownMax - RIPHoldDownMin + 1
	r.triggerAllowed = ctx.Tick + RIPHoldDownMin + int64(r.rng.RandU01()*float64(span))
}

// handleRIP folds an incoming RIPv2 message into the routing table, spec.md
// §4.5's install/refresh/replace rules: a route with no existing entry is
// installed; a route already learned from the same neighbor is always
// refreshed (even if its metric got worse, so a neighbor's rising metric
// propagates); otherwise a strictly better metric replaces the incumbent.
// An RTE already advertised as unreachable (metric 16) is ignored rather
// than installed, per spec.md §8's boundary case, even when it comes from
// the neighbor the route was learned from; such a route then ages out
// through RIP_TIMEOUT.
func (r *Router) handleRIP(ctx *Context, ingress int, srcIP addr.IPv4, msg frame.RIPMessage) {
	if msg.Command == frame.RIPRequest {
		r.sendRIPResponse(ingress, r.buildEntries(ingress, r.table, false))
		return
	}
	for _, rte := range msg.Entries {
		if rte.Metric >= RIPInfinity {
			continue
		}
		metricPrime := rte.Metric + 1
		if metricPrime > RIPInfinity {
			metricPrime = RIPInfinity
		}
		net := addr.Subnet{Network: rte.IP, Mask: rte.Mask}
		existing := r.findRoute(net)
		switch {
		case existing == nil:
			e := &RouteEntry{Net: net, NextHop: &srcIP, Egress: ingress, Metric: metricPrime, Age: ctx.Tick}
			if metricPrime >= RIPInfinity {
				e.Garbage = ctx.Tick + RIPGarbage
			}
			r.table = append(r.table, e)
			r.markDirty(e)
			ctx.Trace(r.id, "route-learned", fmt.Sprintf("net=%s via=%s metric=%d", net, srcIP, metricPrime))
		case existing.Directly:
			// never overridden by a learned route to the same prefix.
		case existing.NextHop != nil && *existing.NextHop == srcIP:
			old := existing.Metric
			existing.Metric = metricPrime
			existing.Egress = ingress
			existing.Age = ctx.Tick
			if metricPrime >= RIPInfinity {
				existing.Garbage = ctx.Tick + RIPGarbage
			} else {
				existing.Garbage = 0
			}
			if metricPrime != old {
				r.markDirty(existing)
			}
		case metricPrime < existing.Metric:
			existing.NextHop = &srcIP
			existing.Egress = ingress
			existing.Metric = metricPrime
			existing.Age = ctx.Tick
			r.markDirty(existing)
		}
	}
}
