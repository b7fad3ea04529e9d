package frame

import (
	"encoding/binary"

	"github.com/iti/netsim/addr"
)

// ARPOp is the ARP operation code, spec.md §4.1.
type ARPOp uint16

const (
	ARPRequest ARPOp = 1
	ARPReply   ARPOp = 2
)

const (
	arpHType = 1      // Ethernet hardware type
	arpPType = 0x0800 // IPv4 protocol type
	arpHLen  = addr.MACLen
	arpPLen  = addr.IPv4Len
	arpWireLen = 28 // 8 fixed-format bytes + 2*(hlen+plen)
)

// ARPPacket is the ARP payload carried inside an Ethernet II frame with
// EtherType 0x0806.
type ARPPacket struct {
	Op        ARPOp
	SenderMAC addr.MAC
	SenderIP  addr.IPv4
	TargetMAC addr.MAC
	TargetIP  addr.IPv4
}

// NewARPRequest builds a "who-has targetIP, tell senderIP" broadcast
// request, per spec.md §4.3.
func NewARPRequest(senderMAC addr.MAC, senderIP addr.IPv4, targetIP addr.IPv4) ARPPacket {
	return ARPPacket{Op: ARPRequest, SenderMAC: senderMAC, SenderIP: senderIP, TargetIP: targetIP}
}

// NewARPReply builds a unicast reply to a request.
func NewARPReply(senderMAC addr.MAC, senderIP addr.IPv4, targetMAC addr.MAC, targetIP addr.IPv4) ARPPacket {
	return ARPPacket{Op: ARPReply, SenderMAC: senderMAC, SenderIP: senderIP, TargetMAC: targetMAC, TargetIP: targetIP}
}

// Marshal serializes the fixed 28-byte Ethernet/IPv4 ARP layout.
func (p ARPPacket) Marshal() ([]byte, error) {
	b := make([]byte, arpWireLen)
	binary.BigEndian.PutUint16(b[0:2], arpHType)
	binary.BigEndian.PutUint16(b[2:4], arpPType)
	b[4] = arpHLen
	b[5] = arpPLen
	binary.BigEndian.PutUint16(b[6:8], uint16(p.Op))
	copy(b[8:14], p.SenderMAC[:])
	copy(b[14:18], p.SenderIP[:])
	copy(b[18:24], p.TargetMAC[:])
	copy(b[24:28], p.TargetIP[:])
	return b, nil
}

// Unmarshal decodes an ARP packet, rejecting anything shorter than the
// fixed layout or carrying a hardware/protocol combination other than
// Ethernet/IPv4, and any opcode other than request/reply.
func (p *ARPPacket) Unmarshal(b []byte) error {
	if len(b) < arpWireLen {
		return truncated("arp", "shorter than fixed Ethernet/IPv4 ARP layout")
	}
	htype := binary.BigEndian.Uint16(b[0:2])
	ptype := binary.BigEndian.Uint16(b[2:4])
	hlen, plen := b[4], b[5]
	if htype != arpHType || ptype != arpPType || hlen != arpHLen || plen != arpPLen {
		return unsupported("arp", "hardware/protocol type is not Ethernet/IPv4")
	}
	op := ARPOp(binary.BigEndian.Uint16(b[6:8]))
	if op != ARPRequest && op != ARPReply {
		return unsupported("arp", "unknown opcode")
	}
	p.Op = op
	p.SenderMAC = addr.MACFromBytes(b[8:14])
	p.SenderIP = addr.IPv4FromBytes(b[14:18])
	p.TargetMAC = addr.MACFromBytes(b[18:24])
	p.TargetIP = addr.IPv4FromBytes(b[24:28])
	return nil
}
