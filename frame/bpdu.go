package frame

import (
	"encoding/binary"

	"github.com/iti/netsim/addr"
)

const (
	bpduProtocolID = 0x0000
	bpduVersion    = 2 // RSTP
	bpduType       = 0x02
	bpduWireLen    = 36
)

// BPDUFlags mirrors the single-byte flag field of an RSTP BPDU. Only the
// topology-change bit is modeled; the proposal/agreement/learning/
// forwarding bits are reserved for a full 802.1D-2004 handshake that
// spec.md §9 notes is out of scope (timer-driven transitions only).
type BPDUFlags uint8

const flagTopologyChange BPDUFlags = 0x01

// TopologyChange reports whether the TC bit is set.
func (f BPDUFlags) TopologyChange() bool { return f&flagTopologyChange != 0 }

// WithTopologyChange returns f with the TC bit set or cleared.
func (f BPDUFlags) WithTopologyChange(set bool) BPDUFlags {
	if set {
		return f | flagTopologyChange
	}
	return f &^ flagTopologyChange
}

// BridgeID is the (priority, MAC) tuple spec.md's glossary defines as
// totally ordered lexicographically: compare priority first, then MAC.
type BridgeID struct {
	Priority uint16
	MAC      addr.MAC
}

// Less implements the total order used for root/designated/bridge-id
// comparisons throughout RSTP.
func (b BridgeID) Less(other BridgeID) bool {
	if b.Priority != other.Priority {
		return b.Priority < other.Priority
	}
	return b.MAC.Less(other.MAC)
}

// Equal reports whether two bridge ids are identical.
func (b BridgeID) Equal(other BridgeID) bool {
	return b.Priority == other.Priority && b.MAC == other.MAC
}

// BPDU is a Rapid Spanning Tree Protocol configuration BPDU, spec.md
// §4.1/§4.4.
type BPDU struct {
	Flags        BPDUFlags
	RootID       BridgeID
	RootPathCost uint32
	BridgeID     BridgeID
	PortID       uint16
	MessageAge   uint16 // 1/256ths of a second, as in real STP; here whole ticks
	MaxAge       uint16
	HelloTime    uint16
	ForwardDelay uint16
}

// Marshal serializes the fixed 36-byte RSTP BPDU layout.
func (p BPDU) Marshal() ([]byte, error) {
	b := make([]byte, bpduWireLen)
	binary.BigEndian.PutUint16(b[0:2], bpduProtocolID)
	b[2] = bpduVersion
	b[3] = bpduType
	b[4] = byte(p.Flags)
	binary.BigEndian.PutUint16(b[5:7], p.RootID.Priority)
	copy(b[7:13], p.RootID.MAC[:])
	binary.BigEndian.PutUint32(b[13:17], p.RootPathCost)
	binary.BigEndian.PutUint16(b[17:19], p.BridgeID.Priority)
	copy(b[19:25], p.BridgeID.MAC[:])
	binary.BigEndian.PutUint16(b[25:27], p.PortID)
	binary.BigEndian.PutUint16(b[27:29], p.MessageAge)
	binary.BigEndian.PutUint16(b[29:31], p.MaxAge)
	binary.BigEndian.PutUint16(b[31:33], p.HelloTime)
	binary.BigEndian.PutUint16(b[33:35], p.ForwardDelay)
	b[35] = 0 // v1-length, always zero: no version-1-compatible extensions carried
	return b, nil
}

// Unmarshal decodes a BPDU, rejecting anything shorter than the fixed
// layout or not carrying the RSTP protocol-id/version/type triple.
func (p *BPDU) Unmarshal(b []byte) error {
	if len(b) < bpduWireLen {
		return truncated("bpdu", "shorter than fixed 36-byte layout")
	}
	if binary.BigEndian.Uint16(b[0:2]) != bpduProtocolID {
		return unsupported("bpdu", "unknown protocol id")
	}
	if b[2] != bpduVersion || b[3] != bpduType {
		return unsupported("bpdu", "not an RSTP configuration BPDU")
	}
	p.Flags = BPDUFlags(b[4])
	p.RootID = BridgeID{Priority: binary.BigEndian.Uint16(b[5:7]), MAC: addr.MACFromBytes(b[7:13])}
	p.RootPathCost = binary.BigEndian.Uint32(b[13:17])
	p.BridgeID = BridgeID{Priority: binary.BigEndian.Uint16(b[17:19]), MAC: addr.MACFromBytes(b[19:25])}
	p.PortID = binary.BigEndian.Uint16(b[25:27])
	p.MessageAge = binary.BigEndian.Uint16(b[27:29])
	p.MaxAge = binary.BigEndian.Uint16(b[29:31])
	p.HelloTime = binary.BigEndian.Uint16(b[31:33])
	p.ForwardDelay = binary.BigEndian.Uint16(b[33:35])
	return nil
}

// PriorityVector is the (root-id, root-path-cost, sender-bridge-id,
// sender-port-id) tuple RSTP compares under a single total order,
// spec.md §4.4 step 3 / glossary.
type PriorityVector struct {
	RootID       BridgeID
	RootPathCost uint32
	SenderID     BridgeID
	SenderPortID uint16
}

// FromBPDU extracts the priority vector a received BPDU advertises.
func FromBPDU(p BPDU) PriorityVector {
	return PriorityVector{RootID: p.RootID, RootPathCost: p.RootPathCost, SenderID: p.BridgeID, SenderPortID: p.PortID}
}

// Less implements the total, deterministic tie-break order spec.md §4.4
// step 3/6 requires: lower root-id, then lower cost, then lower sender
// bridge-id, then lower sender port-id.
func (v PriorityVector) Less(other PriorityVector) bool {
	if !v.RootID.Equal(other.RootID) {
		return v.RootID.Less(other.RootID)
	}
	if v.RootPathCost != other.RootPathCost {
		return v.RootPathCost < other.RootPathCost
	}
	if !v.SenderID.Equal(other.SenderID) {
		return v.SenderID.Less(other.SenderID)
	}
	return v.SenderPortID < other.SenderPortID
}
