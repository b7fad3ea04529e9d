package engine

import (
	"testing"

	"github.com/iti/netsim/addr"
	"github.com/iti/netsim/device"
	"github.com/iti/netsim/fabric"
)

// TestSwitchReElectsRootPortAfterLinkDown builds two switches joined by a
// redundant pair of cables (a two-node loop), each carrying one host. RSTP
// blocks one of the two cables on swB's side at bring-up; disconnecting the
// active cable must make swB re-elect its remaining cable as its new root
// port and, once that port's Blocking->Learning->Forwarding dwell has run,
// restore end-to-end connectivity across it, spec.md §8 scenario 6.
func TestSwitchReElectsRootPortAfterLinkDown(t *testing.T) {
	e := newTestEngine()
	mask := addr.MaskFromPrefixLen(24)
	h1 := e.AddDesktop("h1", addr.MAC{0xA1}, mustIP(t, "10.0.0.1"), mask)
	h2 := e.AddDesktop("h2", addr.MAC{0xA2}, mustIP(t, "10.0.0.2"), mask)
	swA := e.AddSwitch("swA", device.DefaultBridgePriority, []addr.MAC{{0x01}, {0x02}, {0x03}})
	swB := e.AddSwitch("swB", device.DefaultBridgePriority, []addr.MAC{{0x10}, {0x11}, {0x12}})

	link0A := fabric.Addr{Device: swA, Port: 0}
	link0B := fabric.Addr{Device: swB, Port: 0}
	if err := e.Connect(link0A, link0B); err != nil {
		t.Fatalf("Connect swA-swB link0: %v", err)
	}
	if err := e.Connect(fabric.Addr{Device: swA, Port: 1}, fabric.Addr{Device: swB, Port: 1}); err != nil {
		t.Fatalf("Connect swA-swB link1: %v", err)
	}
	if err := e.Connect(fabric.Addr{Device: h1, Port: 0}, fabric.Addr{Device: swA, Port: 2}); err != nil {
		t.Fatalf("Connect h1-swA: %v", err)
	}
	if err := e.Connect(fabric.Addr{Device: h2, Port: 0}, fabric.Addr{Device: swB, Port: 2}); err != nil {
		t.Fatalf("Connect h2-swB: %v", err)
	}

	bringUp := int(2*device.ForwardDelay) + 10
	for i := 0; i < bringUp; i++ {
		if err := e.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}

	devA, _ := e.Device(swA)
	devB, _ := e.Device(swB)
	swDevA := devA.(*device.Switch)
	swDevB := devB.(*device.Switch)
	if !swDevA.IsRoot() {
		t.Fatal("swA has the lower bridge id and must be root")
	}
	if swDevB.Ports()[0].Role != fabric.RoleRoot || swDevB.Ports()[0].State != fabric.Forwarding {
		t.Fatalf("swB's link0 port = role %s state %s, want Root/Forwarding", swDevB.Ports()[0].Role, swDevB.Ports()[0].State)
	}
	if swDevB.Ports()[1].Role != fabric.RoleAlternate {
		t.Fatalf("swB's link1 port = role %s, want Alternate (the redundant blocked path)", swDevB.Ports()[1].Role)
	}

	if err := e.EnqueueCommand(h1, device.Command{Op: "ping", Args: []string{"10.0.0.2", "1"}}); err != nil {
		t.Fatalf("EnqueueCommand: %v", err)
	}
	// Each hop costs one tick and h1-swA-swB-h2 is three hops, so the ARP
	// exchange plus the echo exchange needs 13 ticks.
	for i := 0; i < 15; i++ {
		if err := e.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	devH1, _ := e.Device(h1)
	if results := devH1.(*device.Desktop).PingResults(); len(results) != 1 || !results[0].Replied {
		t.Fatalf("expected the ping over the active link to complete before the failure, got %+v", results)
	}

	if err := e.Disconnect(link0A); err != nil {
		t.Fatalf("Disconnect link0: %v", err)
	}

	for i := 0; i < bringUp; i++ {
		if err := e.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}

	if swDevB.Ports()[0].Role != fabric.RoleNone || swDevB.Ports()[0].State != fabric.Disabled {
		t.Errorf("swB's disconnected port = role %s state %s, want None/Disabled", swDevB.Ports()[0].Role, swDevB.Ports()[0].State)
	}
	if swDevB.Ports()[1].Role != fabric.RoleRoot {
		t.Fatalf("swB must re-elect its remaining cable as root port, got role %s", swDevB.Ports()[1].Role)
	}
	if swDevB.Ports()[1].State != fabric.Forwarding {
		t.Fatalf("swB's new root port must have dwelled through to Forwarding, got state %s", swDevB.Ports()[1].State)
	}
	if !swDevA.IsRoot() {
		t.Error("swA must remain root through the failure; it never lost a superior BPDU source")
	}

	if err := e.EnqueueCommand(h1, device.Command{Op: "ping", Args: []string{"10.0.0.2", "1"}}); err != nil {
		t.Fatalf("EnqueueCommand: %v", err)
	}
	// h1 still holds h2's ARP binding, so only the three-hop echo round
	// trip remains: 7 ticks.
	for i := 0; i < 15; i++ {
		if err := e.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	if results := devH1.(*device.Desktop).PingResults(); len(results) != 1 || !results[0].Replied {
		t.Fatalf("expected the ping to succeed again over the re-elected link, got %+v", results)
	}
}

// TestRouterRouteTimesOutAndIsGarbageCollectedAfterLinkDown connects two
// routers by a single link; r2 advertises a second, otherwise unreachable
// subnet over RIP that r1 can only learn about through that link.
// Disconnecting it must leave r1's learned route to age past RIP_TIMEOUT
// into metric 16 and then be garbage-collected RIP_GARBAGE ticks later,
// spec.md §8 scenario 6.
func TestRouterRouteTimesOutAndIsGarbageCollectedAfterLinkDown(t *testing.T) {
	e := newTestEngine()
	mask := addr.MaskFromPrefixLen(30)

	r1 := e.AddRouter("r1", []RouterIfaceSpec{
		{MAC: addr.MAC{0x01}, IP: mustIP(t, "10.0.0.1"), Mask: mask},
	})
	r2 := e.AddRouter("r2", []RouterIfaceSpec{
		{MAC: addr.MAC{0x02}, IP: mustIP(t, "10.0.0.2"), Mask: mask},
		{MAC: addr.MAC{0x03}, IP: mustIP(t, "192.168.9.1"), Mask: addr.MaskFromPrefixLen(24)},
	})

	link := fabric.Addr{Device: r1, Port: 0}
	if err := e.Connect(link, fabric.Addr{Device: r2, Port: 0}); err != nil {
		t.Fatalf("Connect r1-r2: %v", err)
	}

	learnedNet := addr.NewSubnet(mustIP(t, "192.168.9.0"), addr.MaskFromPrefixLen(24))

	findRoute := func() *device.RouteEntry {
		dev, _ := e.Device(r1)
		for _, entry := range dev.(*device.Router).RouteTableSnapshot() {
			entry := entry
			if entry.Net.Equal(learnedNet) {
				return &entry
			}
		}
		return nil
	}

	// 100 ticks comfortably covers the initial jittered advertisement
	// (within RIPUpdateInterval) plus several periodic refreshes, so the
	// learned route's Age is recent when the link drops below.
	for i := 0; i < 100; i++ {
		if err := e.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	route := findRoute()
	if route == nil || route.Metric != 1 || route.Directly {
		t.Fatalf("expected r1 to learn 192.168.9.0/24 via RIP at metric 1, got %+v", route)
	}

	if err := e.Disconnect(link); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	// e.Now() == 100 here, so the route's Age is at most 99; RIP_TIMEOUT=180
	// marks it unreachable by tick 279 at the latest, and RIP_GARBAGE=120
	// more removes it by tick 399 at the latest.
	for e.Now() < 320 {
		if err := e.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	route = findRoute()
	if route == nil {
		t.Fatal("the route must still be held during its garbage-collection window, not dropped early")
	}
	if route.Metric != device.RIPInfinity {
		t.Fatalf("the route must have timed out to RIP_INFINITY by now, got metric %d", route.Metric)
	}

	for e.Now() < 420 {
		if err := e.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	if route := findRoute(); route != nil {
		t.Fatalf("expected the stale route to be garbage-collected, still present: %+v", route)
	}
}
