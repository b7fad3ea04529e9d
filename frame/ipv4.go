package frame

import (
	"encoding/binary"

	"github.com/iti/netsim/addr"
)

// IPProto identifies the transport/control protocol carried in an IPv4
// packet.
type IPProto uint8

const ProtoICMP IPProto = 1

// ProtoRIP labels a RIPv2 message riding directly in an IPv4 payload,
// standing in for the UDP/520 encapsulation RFC 2453 actually uses; this
// simulation has no transport layer, so RIP is carried the same way ICMP
// is, per spec.md §4.1's short protocol list.
const ProtoRIP IPProto = 17

const (
	ipv4Version     = 4
	ipv4IHL         = 5 // header words; options are never supported (spec.md §4.1)
	ipv4HeaderLen   = ipv4IHL * 4
	ipv4DefaultTTL  = 64
)

// IPv4Packet is the network-layer header plus payload. The checksum field
// is always written zero and never validated on receive; this is the
// documented deviation from RFC 791 that spec.md §6/§9 calls out.
type IPv4Packet struct {
	TTL      uint8
	Protocol IPProto
	ID       uint16
	Src      addr.IPv4
	Dst      addr.IPv4
	Payload  []byte
}

// NewIPv4Packet builds a packet with the default TTL of 64 (spec.md
// §4.1).
func NewIPv4Packet(src, dst addr.IPv4, proto IPProto, payload []byte) IPv4Packet {
	return IPv4Packet{TTL: ipv4DefaultTTL, Protocol: proto, Src: src, Dst: dst, Payload: payload}
}

// Marshal serializes the packet with ihl=5 (no options), DSCP/ECN=0,
// flags+frag=0, and a checksum field written as zero.
func (p IPv4Packet) Marshal() ([]byte, error) {
	totalLen := ipv4HeaderLen + len(p.Payload)
	b := make([]byte, totalLen)
	b[0] = ipv4Version<<4 | ipv4IHL
	b[1] = 0 // DSCP/ECN
	binary.BigEndian.PutUint16(b[2:4], uint16(totalLen))
	binary.BigEndian.PutUint16(b[4:6], p.ID)
	binary.BigEndian.PutUint16(b[6:8], 0) // flags + fragment offset
	b[8] = p.TTL
	b[9] = byte(p.Protocol)
	binary.BigEndian.PutUint16(b[10:12], 0) // checksum: reserved, always zero
	copy(b[12:16], p.Src[:])
	copy(b[16:20], p.Dst[:])
	copy(b[20:], p.Payload)
	return b, nil
}

// Unmarshal decodes an IPv4 header and payload. It rejects frames shorter
// than the fixed 20-byte header, a version other than 4, an IHL other than
// 5 (options are unsupported), and a total-length field inconsistent with
// the bytes actually present.
func (p *IPv4Packet) Unmarshal(b []byte) error {
	if len(b) < ipv4HeaderLen {
		return truncated("ipv4", "shorter than 20-byte header")
	}
	version := b[0] >> 4
	ihl := b[0] & 0x0f
	if version != ipv4Version {
		return unsupported("ipv4", "version is not 4")
	}
	if ihl != ipv4IHL {
		return unsupported("ipv4", "options are not supported")
	}
	totalLen := int(binary.BigEndian.Uint16(b[2:4]))
	if totalLen < ipv4HeaderLen || totalLen > len(b) {
		return truncated("ipv4", "total length exceeds bytes present")
	}
	p.ID = binary.BigEndian.Uint16(b[4:6])
	p.TTL = b[8]
	p.Protocol = IPProto(b[9])
	p.Src = addr.IPv4FromBytes(b[12:16])
	p.Dst = addr.IPv4FromBytes(b[16:20])
	payload := make([]byte, totalLen-ipv4HeaderLen)
	copy(payload, b[ipv4HeaderLen:totalLen])
	p.Payload = payload
	return nil
}
