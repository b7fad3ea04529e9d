package device

import (
	"fmt"
	"testing"

	"github.com/iti/netsim/addr"
	"github.com/iti/netsim/fabric"
	"github.com/iti/netsim/frame"
)

func net24(t *testing.T, s string) addr.Subnet {
	t.Helper()
	ip := mustIP(t, s)
	return addr.NewSubnet(ip, addr.MaskFromPrefixLen(24))
}

func TestLookupRouteLongestPrefixMatch(t *testing.T) {
	r := NewRouter(1, "r1")
	wide := &RouteEntry{Net: net24(t, "10.0.0.0"), Metric: 5}
	// narrower /25 covering the same low half of 10.0.0.0/24
	narrow := &RouteEntry{Net: addr.NewSubnet(mustIP(t, "10.0.0.0"), addr.MaskFromPrefixLen(25)), Metric: 5}
	r.table = []*RouteEntry{wide, narrow}

	got := r.lookupRoute(mustIP(t, "10.0.0.5"))
	if got != narrow {
		t.Errorf("expected the longer /25 prefix to win, got %+v", got)
	}
}

func TestLookupRouteTieBreaksDirectThenMetric(t *testing.T) {
	r := NewRouter(1, "r1")
	learned := &RouteEntry{Net: net24(t, "10.0.0.0"), Metric: 2, Directly: false}
	direct := &RouteEntry{Net: net24(t, "10.0.0.0"), Metric: 0, Directly: true}
	r.table = []*RouteEntry{learned, direct}
	if got := r.lookupRoute(mustIP(t, "10.0.0.5")); got != direct {
		t.Errorf("a directly connected route must win over a learned one of equal prefix length, got %+v", got)
	}

	cheap := &RouteEntry{Net: net24(t, "192.168.1.0"), Metric: 1}
	costly := &RouteEntry{Net: net24(t, "192.168.1.0"), Metric: 4}
	r.table = []*RouteEntry{costly, cheap}
	if got := r.lookupRoute(mustIP(t, "192.168.1.5")); got != cheap {
		t.Errorf("the lower-metric route must win among equal-prefix learned routes, got %+v", got)
	}
}

func TestLookupRouteIgnoresInfiniteMetric(t *testing.T) {
	r := NewRouter(1, "r1")
	r.table = []*RouteEntry{{Net: net24(t, "10.0.0.0"), Metric: RIPInfinity}}
	if got := r.lookupRoute(mustIP(t, "10.0.0.5")); got != nil {
		t.Errorf("an unreachable (metric 16) route must not be selected, got %+v", got)
	}
}

func TestRouterARPResolveAndParkThenForward(t *testing.T) {
	r := NewRouter(1, "r1")
	idxA := r.AddInterface(addr.MAC{1}, mustIP(t, "10.0.0.1"), addr.MaskFromPrefixLen(24))
	idxB := r.AddInterface(addr.MAC{2}, mustIP(t, "10.0.1.1"), addr.MaskFromPrefixLen(24))
	_ = idxB

	dst := mustIP(t, "10.0.0.5")
	ctx := &Context{Tick: 0}
	pkt := frame.NewIPv4Packet(mustIP(t, "10.0.1.5"), dst, frame.ProtoICMP, []byte("x"))
	r.route(ctx, pkt)

	out := r.Interfaces()[idxA].Port().Outbox
	if len(out) != 1 || out[0].EtherType != frame.EtherTypeARP {
		t.Fatalf("expected an ARP request queued on interface A, got %+v", out)
	}
	r.Interfaces()[idxA].Port().Outbox = nil

	reply := frame.NewARPReply(addr.MAC{9}, dst, addr.MAC{1}, mustIP(t, "10.0.0.1"))
	body, _ := reply.Marshal()
	r.Interfaces()[idxA].Port().Inbox = append(r.Interfaces()[idxA].Port().Inbox,
		frame.NewEthernetII(addr.MAC{1}, addr.MAC{9}, frame.EtherTypeARP, body))
	r.Poll(ctx)

	out = r.Interfaces()[idxA].Port().Outbox
	if len(out) != 1 || out[0].EtherType != frame.EtherTypeIPv4 {
		t.Fatalf("expected the parked packet to flush once ARP resolved, got %+v", out)
	}
}

func TestRouterTTLExpiredGeneratesTimeExceeded(t *testing.T) {
	r := NewRouter(1, "r1")
	idxA := r.AddInterface(addr.MAC{1}, mustIP(t, "10.0.0.1"), addr.MaskFromPrefixLen(24))
	r.AddInterface(addr.MAC{2}, mustIP(t, "10.0.1.1"), addr.MaskFromPrefixLen(24))

	pkt := frame.NewIPv4Packet(mustIP(t, "10.0.1.5"), mustIP(t, "8.8.8.8"), frame.ProtoICMP, []byte("x"))
	pkt.TTL = 1
	body, _ := pkt.Marshal()
	ef := frame.NewEthernetII(addr.MAC{2}, addr.MAC{9}, frame.EtherTypeIPv4, body)

	ctx := &Context{Tick: 0}
	r.Interfaces()[1].Port().Inbox = append(r.Interfaces()[1].Port().Inbox, ef)
	r.Poll(ctx)

	// TTL-expired reply routes back out toward the original source (10.0.1.5,
	// which is on interface B's own subnet), so it queues an ARP request there.
	outB := r.Interfaces()[1].Port().Outbox
	if len(outB) != 1 || outB[0].EtherType != frame.EtherTypeARP {
		t.Fatalf("expected an ARP request while routing the ICMP time-exceeded reply, got %+v", outB)
	}
	_ = idxA
}

func TestRouterCommandShowRouteArpIpconfig(t *testing.T) {
	r := NewRouter(1, "r1")
	r.AddInterface(addr.MAC{1, 2, 3, 4, 5, 6}, mustIP(t, "10.0.0.1"), addr.MaskFromPrefixLen(24))
	ctx := &Context{Tick: 0}

	out, err := r.Command(ctx, Command{Op: "show-ip-route"})
	if err != nil || out == "" {
		t.Fatalf("show-ip-route: out=%q err=%v", out, err)
	}
	out, err = r.Command(ctx, Command{Op: "ipconfig"})
	if err != nil || out == "" {
		t.Fatalf("ipconfig: out=%q err=%v", out, err)
	}
	out, err = r.Command(ctx, Command{Op: "show-arp"})
	if err != nil {
		t.Fatalf("show-arp: %v", err)
	}
	if _, err := r.Command(ctx, Command{Op: "bogus"}); err == nil {
		t.Error("expected an error for an unsupported command")
	}
}

// routerPortResolver implements fabric.Resolver over two routers, used to
// exercise RIPv2 convergence across a real fabric.Fabric link.
type routerPortResolver map[int]*Router

func (r routerPortResolver) PortAt(a fabric.Addr) (*fabric.Port, error) {
	rt, ok := r[a.Device]
	if !ok || a.Port >= len(rt.Ports()) {
		return nil, fmt.Errorf("no such port %+v", a)
	}
	return rt.Ports()[a.Port], nil
}

func TestTwoRouterRIPConvergence(t *testing.T) {
	r1 := NewRouter(1, "r1")
	r1.AddInterface(addr.MAC{1}, mustIP(t, "10.0.0.1"), addr.MaskFromPrefixLen(24))         // LAN A
	r1.AddInterface(addr.MAC{2}, mustIP(t, "192.168.0.1"), addr.MaskFromPrefixLen(30))      // link to r2

	r2 := NewRouter(2, "r2")
	r2.AddInterface(addr.MAC{3}, mustIP(t, "192.168.0.2"), addr.MaskFromPrefixLen(30)) // link to r1
	r2.AddInterface(addr.MAC{4}, mustIP(t, "10.0.1.1"), addr.MaskFromPrefixLen(24))    // LAN B

	res := routerPortResolver{1: r1, 2: r2}
	fab := fabric.NewFabric()
	if err := fab.Connect(res, fabric.Addr{Device: 1, Port: 1}, fabric.Addr{Device: 2, Port: 0}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx := &Context{}
	for tick := int64(0); tick < 2*RIPUpdateInterval; tick++ {
		ctx.Tick = tick
		if err := fab.Tick(res); err != nil {
			t.Fatalf("fab.Tick: %v", err)
		}
		r1.Poll(ctx)
		r2.Poll(ctx)
	}

	laneB := net24(t, "10.0.1.0")
	learned := r1.findRoute(laneB)
	if learned == nil {
		t.Fatal("r1 never learned r2's LAN B route via RIP")
	}
	if learned.Metric != 1 {
		t.Errorf("learned metric = %d, want 1", learned.Metric)
	}

	laneA := net24(t, "10.0.0.0")
	if learned := r2.findRoute(laneA); learned == nil || learned.Metric != 1 {
		t.Errorf("r2 should have learned r1's LAN A route at metric 1, got %+v", learned)
	}
}

func TestHandleRIPInstallRefreshReplace(t *testing.T) {
	r := NewRouter(1, "r1")
	r.AddInterface(addr.MAC{1}, mustIP(t, "10.0.0.1"), addr.MaskFromPrefixLen(24))
	neighborA := mustIP(t, "10.0.0.2")
	neighborB := mustIP(t, "10.0.0.3")
	target := net24(t, "172.16.0.0")

	ctx := &Context{Tick: 0}
	r.handleRIP(ctx, 0, neighborA, frame.RIPMessage{Command: frame.RIPResponse, Entries: []frame.RTE{
		{IP: target.Network, Mask: target.Mask, Metric: 3},
	}})
	e := r.findRoute(target)
	if e == nil || e.Metric != 4 || e.NextHop == nil || *e.NextHop != neighborA {
		t.Fatalf("expected install via neighborA at metric 4, got %+v", e)
	}

	// Same neighbor refreshes even with a worse metric.
	ctx.Tick = 1
	r.handleRIP(ctx, 0, neighborA, frame.RIPMessage{Command: frame.RIPResponse, Entries: []frame.RTE{
		{IP: target.Network, Mask: target.Mask, Metric: 10},
	}})
	e = r.findRoute(target)
	if e.Metric != 11 {
		t.Fatalf("expected the incumbent neighbor's worse metric to refresh, got %d", e.Metric)
	}

	// A different neighbor only replaces on strictly better metric.
	ctx.Tick = 2
	r.handleRIP(ctx, 0, neighborB, frame.RIPMessage{Command: frame.RIPResponse, Entries: []frame.RTE{
		{IP: target.Network, Mask: target.Mask, Metric: 20},
	}})
	e = r.findRoute(target)
	if e.NextHop == nil || *e.NextHop != neighborA {
		t.Fatalf("a worse-metric route from a different neighbor must not replace the incumbent, got %+v", e)
	}

	ctx.Tick = 3
	r.handleRIP(ctx, 0, neighborB, frame.RIPMessage{Command: frame.RIPResponse, Entries: []frame.RTE{
		{IP: target.Network, Mask: target.Mask, Metric: 1},
	}})
	e = r.findRoute(target)
	if e.NextHop == nil || *e.NextHop != neighborB || e.Metric != 2 {
		t.Fatalf("a strictly better metric from a different neighbor must replace the incumbent, got %+v", e)
	}
}

func TestAgeRoutesTimeoutThenGarbageCollect(t *testing.T) {
	r := NewRouter(1, "r1")
	learned := &RouteEntry{Net: net24(t, "172.16.0.0"), Metric: 3, Age: 0, NextHop: &addr.IPv4{}}
	r.table = []*RouteEntry{learned}

	ctx := &Context{Tick: RIPTimeout - 1}
	r.ageRoutes(ctx)
	if learned.Metric != 3 {
		t.Fatal("a route refreshed within RIP_TIMEOUT must not age out yet")
	}

	ctx.Tick = RIPTimeout
	r.ageRoutes(ctx)
	if learned.Metric != RIPInfinity {
		t.Fatalf("a stale route must become unreachable at RIP_TIMEOUT, got metric %d", learned.Metric)
	}
	if len(r.table) != 1 {
		t.Fatal("an unreachable route must still be kept during its garbage window")
	}

	ctx.Tick = learned.Garbage
	r.ageRoutes(ctx)
	if len(r.table) != 0 {
		t.Errorf("expected the route dropped once its garbage timer expired, got %+v", r.table)
	}
}

func TestBuildEntriesSplitHorizonPoisonedReverse(t *testing.T) {
	r := NewRouter(1, "r1")
	r.AddInterface(addr.MAC{1}, mustIP(t, "10.0.0.1"), addr.MaskFromPrefixLen(24))
	learnedNextHop := mustIP(t, "10.0.0.9")
	learned := &RouteEntry{Net: net24(t, "192.168.1.0"), Metric: 3, Egress: 0, NextHop: &learnedNextHop}
	r.table = append(r.table, learned)

	entries := r.buildEntries(0, r.table, false)
	for _, e := range entries {
		if e.IP == learned.Net.Network {
			if e.Metric != RIPInfinity {
				t.Errorf("a route learned via the advertising interface must be poisoned, got metric %d", e.Metric)
			}
		}
	}
}
