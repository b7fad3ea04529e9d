package device

import "github.com/iti/netsim/addr"

// RouteEntry is spec.md §3's routing table entry: destination network,
// next hop (nil means directly connected), egress interface, metric, and
// age.
type RouteEntry struct {
	Net      addr.Subnet
	NextHop  *addr.IPv4
	Egress   int
	Metric   uint32
	Directly bool
	Age      int64 // tick this entry was installed or last refreshed
	Garbage  int64 // tick after which an unreachable entry is removed; 0 if n/a
}

// lookupRoute implements spec.md §4.5's longest-prefix-match lookup:
// among routes whose network covers dst, the longest prefix wins; among
// equal-length prefixes, a directly-connected route wins over a learned
// one, then the lower metric, then the entry installed earliest (the one
// already held, since ties are resolved by not displacing it).
func (r *Router) lookupRoute(dst addr.IPv4) *RouteEntry {
	var best *RouteEntry
	bestPrefix := -1
	for _, e := range r.table {
		if e.Metric >= RIPInfinity {
			continue
		}
		if !e.Net.Contains(dst) {
			continue
		}
		pl := e.Net.PrefixLen()
		switch {
		case pl > bestPrefix:
			best, bestPrefix = e, pl
		case pl == bestPrefix && best != nil:
			if e.Directly && !best.Directly {
				best = e
			} else if e.Directly == best.Directly && e.Metric < best.Metric {
				best = e
			}
		}
	}
	return best
}

// findRoute returns the entry for an exact (network, mask) pair, or nil.
func (r *Router) findRoute(net addr.Subnet) *RouteEntry {
	for _, e := range r.table {
		if e.Net.Equal(net) {
			return e
		}
	}
	return nil
}
