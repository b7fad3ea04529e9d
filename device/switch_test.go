package device

import (
	"fmt"
	"testing"

	"github.com/iti/netsim/addr"
	"github.com/iti/netsim/fabric"
	"github.com/iti/netsim/frame"
)

// bringToForwarding polls a freshly built, fully-connected switch until
// every connected port has dwelled through Blocking and Learning into
// Forwarding, mirroring the 2*ForwardDelay bring-up spec.md §4.4 step 5
// requires before any single-switch topology can carry data.
func bringToForwarding(t *testing.T, s *Switch, ticks int64) {
	t.Helper()
	ctx := &Context{}
	for tick := int64(0); tick <= ticks; tick++ {
		ctx.Tick = tick
		s.Poll(ctx)
	}
}

func connectStandalone(p *fabric.Port, peer fabric.Addr) {
	p.Peer = &peer
}

// dataFrames counts the non-BPDU frames queued on p. Every connected
// Designated port also queues a hello each HelloTime ticks, and nothing
// drains a standalone switch's outboxes, so those hellos are left out.
func dataFrames(p *fabric.Port) int {
	n := 0
	for _, f := range p.Outbox {
		if !f.IsBPDU() {
			n++
		}
	}
	return n
}

func TestSwitchPortBringUpSequence(t *testing.T) {
	s := NewSwitch(1, "s1", DefaultBridgePriority, []addr.MAC{{1}, {2}})
	connectStandalone(s.Ports()[0], fabric.Addr{Device: 99, Port: 0})
	connectStandalone(s.Ports()[1], fabric.Addr{Device: 99, Port: 1})

	ctx := &Context{Tick: 0}
	s.Poll(ctx)
	if s.Ports()[0].State != fabric.Blocking {
		t.Fatalf("port state at tick 0 = %s, want Blocking", s.Ports()[0].State)
	}

	ctx.Tick = ForwardDelay
	s.Poll(ctx)
	if s.Ports()[0].State != fabric.Learning {
		t.Fatalf("port state at tick %d = %s, want Learning", ForwardDelay, s.Ports()[0].State)
	}

	ctx.Tick = 2 * ForwardDelay
	s.Poll(ctx)
	if s.Ports()[0].State != fabric.Forwarding {
		t.Fatalf("port state at tick %d = %s, want Forwarding", 2*ForwardDelay, s.Ports()[0].State)
	}
}

func TestSwitchFloodsUnknownDestinationAndLearnsSource(t *testing.T) {
	s := NewSwitch(1, "s1", DefaultBridgePriority, []addr.MAC{{1}, {2}, {3}})
	for i, p := range s.Ports() {
		connectStandalone(p, fabric.Addr{Device: 99, Port: i})
	}
	bringToForwarding(t, s, 2*ForwardDelay)

	src := addr.MAC{0xaa}
	ef := frame.NewEthernetII(addr.BroadcastMAC, src, frame.EtherTypeIPv4, []byte("x"))
	s.Ports()[0].Inbox = append(s.Ports()[0].Inbox, ef)

	ctx := &Context{Tick: 2*ForwardDelay + 1}
	s.Poll(ctx)

	if dataFrames(s.Ports()[1]) != 1 || dataFrames(s.Ports()[2]) != 1 {
		t.Fatalf("expected the frame flooded to both other ports, got %d and %d",
			dataFrames(s.Ports()[1]), dataFrames(s.Ports()[2]))
	}
	if dataFrames(s.Ports()[0]) != 0 {
		t.Error("the ingress port must never receive its own flood")
	}

	entry, known := s.MACTableSnapshot()[src]
	if !known || entry.Port != 0 {
		t.Errorf("expected %s learned on port 0, got %+v known=%v", src, entry, known)
	}
}

func TestSwitchForwardsToLearnedPortOnly(t *testing.T) {
	s := NewSwitch(1, "s1", DefaultBridgePriority, []addr.MAC{{1}, {2}, {3}})
	for i, p := range s.Ports() {
		connectStandalone(p, fabric.Addr{Device: 99, Port: i})
	}
	bringToForwarding(t, s, 2*ForwardDelay)

	dst := addr.MAC{0xbb}
	ctx := &Context{Tick: 2 * ForwardDelay}
	s.macTable[dst] = macTableEntry{Port: 2, SetTick: ctx.Tick}

	ef := frame.NewEthernetII(dst, addr.MAC{0xcc}, frame.EtherTypeIPv4, []byte("x"))
	s.Ports()[0].Inbox = append(s.Ports()[0].Inbox, ef)
	ctx.Tick++
	s.Poll(ctx)

	if dataFrames(s.Ports()[2]) != 1 {
		t.Fatalf("expected the frame forwarded to port 2 only, got %d", dataFrames(s.Ports()[2]))
	}
	if dataFrames(s.Ports()[1]) != 0 {
		t.Error("a known-unicast frame must not be flooded")
	}
}

func TestSwitchBlockingPortNeitherLearnsNorForwards(t *testing.T) {
	s := NewSwitch(1, "s1", DefaultBridgePriority, []addr.MAC{{1}, {2}})
	connectStandalone(s.Ports()[0], fabric.Addr{Device: 99, Port: 0})
	connectStandalone(s.Ports()[1], fabric.Addr{Device: 99, Port: 1})

	ctx := &Context{Tick: 0} // both ports are still Blocking on their first poll
	src := addr.MAC{0xaa}
	ef := frame.NewEthernetII(addr.BroadcastMAC, src, frame.EtherTypeIPv4, []byte("x"))
	s.Ports()[0].Inbox = append(s.Ports()[0].Inbox, ef)
	s.Poll(ctx)

	if dataFrames(s.Ports()[1]) != 0 {
		t.Error("a Blocking port must not flood inbound data frames")
	}
	if _, known := s.MACTableSnapshot()[src]; known {
		t.Error("a Blocking port must not learn source addresses")
	}
}

func TestAgeBPDUVectorsEvictsAtMaxAge(t *testing.T) {
	s := NewSwitch(1, "s1", DefaultBridgePriority, []addr.MAC{{1}, {2}})
	s.rstp[0].Received = true
	s.rstp[0].BestSetTick = 0

	ctx := &Context{Tick: MaxAge - 1}
	s.ageBPDUVectors(ctx)
	if !s.rstp[0].Received {
		t.Fatal("a vector one tick under MAX_AGE must still be trusted")
	}

	ctx.Tick = MaxAge
	s.ageBPDUVectors(ctx)
	if s.rstp[0].Received {
		t.Error("a vector exactly MAX_AGE old must be discarded this tick")
	}
}

func TestTopologyChangeShortensAging(t *testing.T) {
	s := NewSwitch(1, "s1", DefaultBridgePriority, []addr.MAC{{1}})
	if s.macAging(0) != MACAgingTicks {
		t.Fatalf("baseline aging = %d, want %d", s.macAging(0), MACAgingTicks)
	}
	s.tcUntil = 10
	if s.macAging(5) != ForwardDelay {
		t.Errorf("aging during a topology change = %d, want %d", s.macAging(5), ForwardDelay)
	}
	if s.macAging(10) != MACAgingTicks {
		t.Error("aging must return to normal once tcUntil has passed")
	}
}

// switchPortResolver implements fabric.Resolver over two switches, keyed
// by device id, so a real fabric.Fabric can carry BPDUs between them for
// the root-election scenario below.
type switchPortResolver map[int]*Switch

func (r switchPortResolver) PortAt(a fabric.Addr) (*fabric.Port, error) {
	s, ok := r[a.Device]
	if !ok || a.Port >= len(s.Ports()) {
		return nil, fmt.Errorf("no such port %+v", a)
	}
	return s.Ports()[a.Port], nil
}

func TestTwoSwitchRootElection(t *testing.T) {
	swA := NewSwitch(1, "swA", DefaultBridgePriority, []addr.MAC{{1}, {2}})
	swB := NewSwitch(2, "swB", DefaultBridgePriority, []addr.MAC{{3}, {4}})

	res := switchPortResolver{1: swA, 2: swB}
	fab := fabric.NewFabric()
	if err := fab.Connect(res, fabric.Addr{Device: 1, Port: 0}, fabric.Addr{Device: 2, Port: 0}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx := &Context{}
	for tick := int64(0); tick < 4*MaxAge; tick++ {
		ctx.Tick = tick
		if err := fab.Tick(res); err != nil {
			t.Fatalf("fab.Tick: %v", err)
		}
		swA.Poll(ctx)
		swB.Poll(ctx)
	}

	if !swA.IsRoot() {
		t.Error("swA has the numerically lower bridge id and must become root")
	}
	if swB.IsRoot() {
		t.Error("swB must not consider itself root once it hears swA's superior BPDU")
	}
	if swB.Ports()[0].Role != fabric.RoleRoot {
		t.Errorf("swB's connected port role = %s, want Root", swB.Ports()[0].Role)
	}
	if swA.Ports()[0].Role != fabric.RoleDesignated {
		t.Errorf("swA's connected port role = %s, want Designated", swA.Ports()[0].Role)
	}
	if swA.Ports()[0].State != fabric.Forwarding || swB.Ports()[0].State != fabric.Forwarding {
		t.Errorf("both ends of a loop-free link should converge to Forwarding: swA=%s swB=%s",
			swA.Ports()[0].State, swB.Ports()[0].State)
	}
}

func TestSwitchCommandShowMacAddressTableAndSpanningTree(t *testing.T) {
	s := NewSwitch(1, "s1", DefaultBridgePriority, []addr.MAC{{1}, {2}})
	s.macTable[addr.MAC{0xaa}] = macTableEntry{Port: 0, SetTick: 0}
	ctx := &Context{Tick: 5}

	out, err := s.Command(ctx, Command{Op: "show-mac-address-table"})
	if err != nil || out == "" {
		t.Fatalf("show-mac-address-table: out=%q err=%v", out, err)
	}

	out, err = s.Command(ctx, Command{Op: "show-spanning-tree"})
	if err != nil || out == "" {
		t.Fatalf("show-spanning-tree: out=%q err=%v", out, err)
	}

	if _, err := s.Command(ctx, Command{Op: "bogus"}); err == nil {
		t.Error("expected an error for an unsupported command")
	}
}
