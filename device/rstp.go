package device

import (
	"fmt"

	"github.com/iti/netsim/addr"
	"github.com/iti/netsim/fabric"
	"github.com/iti/netsim/frame"
)

// portRSTP is the RSTP bookkeeping kept alongside each of a Switch's
// ports: the best priority vector heard there, when it was last
// refreshed (for the MAX_AGE eviction of spec.md §4.4 step 3/6), and the
// tick a pending Blocking->Learning->Forwarding dwell started (spec.md
// §4.4 step 5).
type portRSTP struct {
	Received     bool
	Best         frame.PriorityVector
	BestSetTick  int64
	DwellSince   int64
	dwellPending bool
	HelloDue     int64
}

// selfVector is the priority vector a port advertises when nothing
// superior has been heard: this bridge as root, cost zero, this bridge
// and this port as sender. It is what makes step 1 of spec.md §4.4 true
// without special-casing an unheard port.
func (s *Switch) selfVector(portIdx int) frame.PriorityVector {
	return frame.PriorityVector{
		RootID:       s.bridgeID,
		RootPathCost: 0,
		SenderID:     s.bridgeID,
		SenderPortID: uint16(portIdx),
	}
}

// storedVector returns the vector a port currently contributes to
// bridge-wide root election: the best one received there, or the self
// vector if nothing has been received (or the received one has aged out).
func (s *Switch) storedVector(portIdx int) frame.PriorityVector {
	rp := &s.rstp[portIdx]
	if rp.Received {
		return rp.Best
	}
	return s.selfVector(portIdx)
}

// electRoles recomputes root selection and every port's role, per
// spec.md §4.4 steps 3-6. Poll runs it once per tick, after MAX_AGE
// eviction and before that tick's inbound BPDUs are folded in, so a BPDU
// takes effect on the following poll; it is idempotent when nothing has
// changed. The bridge's own vector is the starting candidate, so a port
// only becomes root port if what it heard beats this bridge as root.
func (s *Switch) electRoles(ctx *Context) {
	rootPort := -1
	best := s.selfVector(0)
	for i, p := range s.ports {
		if !p.Connected() {
			// A disconnected port's stored vector is stale the instant the
			// cable drops; it must not win root selection while it waits
			// out MAX_AGE.
			continue
		}
		v := s.storedVector(i)
		if v.Less(best) {
			best = v
			if !best.SenderID.Equal(s.bridgeID) {
				rootPort = i
			} else {
				rootPort = -1
			}
		}
	}

	s.rootID = best.RootID
	if rootPort >= 0 {
		s.rootPathCost = best.RootPathCost + 1
	} else {
		s.rootPathCost = 0
	}

	for i, p := range s.ports {
		if !p.Connected() {
			s.setRole(ctx, i, fabric.RoleNone, fabric.Disabled)
			continue
		}
		if i == rootPort {
			s.setRole(ctx, i, fabric.RoleRoot, s.dwellState(ctx, i, fabric.RoleRoot))
			continue
		}
		// What we would advertise on this port if we are designated
		// there.
		ours := frame.PriorityVector{RootID: s.rootID, RootPathCost: s.rootPathCost, SenderID: s.bridgeID, SenderPortID: uint16(i)}
		rp := &s.rstp[i]
		switch {
		case !rp.Received:
			s.setRole(ctx, i, fabric.RoleDesignated, s.dwellState(ctx, i, fabric.RoleDesignated))
		case rp.Best.SenderID.Equal(s.bridgeID):
			// Our own BPDU reflected back: this bridge reaches the same
			// segment via two ports (a hub-like loop onto itself).
			s.setRole(ctx, i, fabric.RoleBackup, fabric.Blocking)
		case rp.Best.Less(ours):
			s.setRole(ctx, i, fabric.RoleAlternate, fabric.Blocking)
		default:
			s.setRole(ctx, i, fabric.RoleDesignated, s.dwellState(ctx, i, fabric.RoleDesignated))
		}
	}
}

// dwellState implements spec.md §4.4 step 5's timing: a port that just
// became Root or Designated starts Blocking, moves to Learning after
// ForwardDelay, and to Forwarding after another ForwardDelay. A port that
// already held the role keeps counting from when it first got it.
func (s *Switch) dwellState(ctx *Context, portIdx int, newRole fabric.RSTPRole) fabric.RSTPState {
	rp := &s.rstp[portIdx]
	p := s.ports[portIdx]
	if p.Role != newRole {
		rp.DwellSince = ctx.Tick
		rp.dwellPending = true
		return fabric.Blocking
	}
	elapsed := ctx.Tick - rp.DwellSince
	switch {
	case elapsed >= 2*ForwardDelay:
		rp.dwellPending = false
		return fabric.Forwarding
	case elapsed >= ForwardDelay:
		return fabric.Learning
	default:
		return fabric.Blocking
	}
}

// setRole applies a role/state pair to a port, raising the topology
// change flag and shortening MAC aging when a port loses Designated/Root
// status, per spec.md §4.4 step 5. When a port is first taken to
// Disabled (its cable removed), every MAC address learned on it is
// forgotten, so traffic for those stations is flooded again instead of
// being sent to a dead port.
func (s *Switch) setRole(ctx *Context, portIdx int, role fabric.RSTPRole, state fabric.RSTPState) {
	p := s.ports[portIdx]
	lostDesignation := (p.Role == fabric.RoleDesignated || p.Role == fabric.RoleRoot) &&
		role != fabric.RoleDesignated && role != fabric.RoleRoot
	if lostDesignation {
		s.tcUntil = ctx.Tick + TCWhile
		ctx.Trace(s.id, "topology-change", fmt.Sprintf("port=%d lost designation", portIdx))
	}
	if state == fabric.Disabled && p.Role != fabric.RoleNone {
		for mac, e := range s.macTable {
			if e.Port == portIdx {
				delete(s.macTable, mac)
			}
		}
	}
	if role != p.Role {
		s.rstp[portIdx].DwellSince = ctx.Tick
		s.rstp[portIdx].dwellPending = true
		ctx.Trace(s.id, "port-role", fmt.Sprintf("port=%d role=%s state=%s", portIdx, role, state))
	}
	p.Role = role
	p.State = state
}

// ageBPDUVectors evicts any port's stored vector once it has been held
// longer than MaxAge, spec.md §4.4 step 3/6 and §8's boundary case: "BPDU
// with stored vector exactly MAX_AGE old is discarded this tick."
func (s *Switch) ageBPDUVectors(ctx *Context) {
	for i := range s.rstp {
		rp := &s.rstp[i]
		if rp.Received && ctx.Tick-rp.BestSetTick >= MaxAge {
			rp.Received = false
		}
	}
}

// receiveBPDU folds a decoded BPDU into the ingress port's stored vector,
// per spec.md §4.4 step 3: adopt it if it is superior to what is stored,
// or refresh the age if it is a repeat from the same sender.
func (s *Switch) receiveBPDU(ctx *Context, portIdx int, b frame.BPDU) {
	rp := &s.rstp[portIdx]
	candidate := frame.FromBPDU(b)
	sameSender := rp.Received && rp.Best.SenderID.Equal(candidate.SenderID) && rp.Best.SenderPortID == candidate.SenderPortID
	if !rp.Received || sameSender || candidate.Less(rp.Best) {
		rp.Best = candidate
		rp.BestSetTick = ctx.Tick
		rp.Received = true
	}
	if b.Flags.TopologyChange() {
		s.tcUntil = ctx.Tick + TCWhile
	}
}

// emitHellos sends a BPDU out every Designated port whose HELLO_TIME has
// elapsed, per spec.md §4.4 step 2. A small per-port jitter drawn from
// the switch's RNG stream on the first hello keeps bridges that booted on
// the same tick from advertising in lockstep.
func (s *Switch) emitHellos(ctx *Context) {
	for i, p := range s.ports {
		if p.Role != fabric.RoleDesignated || !p.Connected() {
			continue
		}
		rp := &s.rstp[i]
		if rp.HelloDue == 0 {
			jitter := int64(s.rng.RandU01() * float64(HelloTime))
			rp.HelloDue = ctx.Tick + jitter
		}
		if ctx.Tick < rp.HelloDue {
			continue
		}
		rp.HelloDue = ctx.Tick + HelloTime
		bpdu := frame.BPDU{
			RootID:       s.rootID,
			RootPathCost: s.rootPathCost,
			BridgeID:     s.bridgeID,
			PortID:       uint16(i),
			MaxAge:       uint16(MaxAge),
			HelloTime:    uint16(HelloTime),
			ForwardDelay: uint16(ForwardDelay),
		}
		if ctx.Tick < s.tcUntil {
			bpdu.Flags = bpdu.Flags.WithTopologyChange(true)
		}
		body, _ := bpdu.Marshal()
		p.Enqueue(frame.NewLLCFrame(addr.RSTPGroupMAC, p.MAC, body))
	}
}
