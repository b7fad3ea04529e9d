package frame

import "encoding/binary"

// ICMPType is the ICMP message type, spec.md §4.1.
type ICMPType uint8

const (
	ICMPEchoReply   ICMPType = 0
	ICMPEchoRequest ICMPType = 8
	// ICMPTimeExceeded is emitted (best effort) by a router that
	// decrements a packet's TTL to zero; spec.md §4.5.
	ICMPTimeExceeded ICMPType = 11
)

const icmpHeaderLen = 8

// ICMPMessage covers the echo request/reply and time-exceeded messages
// this simulation needs; all three share the same 8-byte header shape
// (type, code, checksum, then a 4-byte type-specific field).
type ICMPMessage struct {
	Type    ICMPType
	Code    uint8
	ID      uint16 // echo request/reply identifier
	Seq     uint16 // echo request/reply sequence number
	Payload []byte
}

// NewEchoRequest builds an echo-request carrying an identifier, sequence
// number, and arbitrary payload.
func NewEchoRequest(id, seq uint16, payload []byte) ICMPMessage {
	return ICMPMessage{Type: ICMPEchoRequest, ID: id, Seq: seq, Payload: payload}
}

// EchoReplyTo builds the reply to an echo request, copying its
// identifier, sequence number, and payload, per spec.md §4.3's
// "swapping src/dst" receive path.
func EchoReplyTo(req ICMPMessage) ICMPMessage {
	return ICMPMessage{Type: ICMPEchoReply, ID: req.ID, Seq: req.Seq, Payload: req.Payload}
}

// Marshal serializes the message with the checksum field written as zero,
// the same documented deviation as the IPv4 header.
func (m ICMPMessage) Marshal() ([]byte, error) {
	b := make([]byte, icmpHeaderLen+len(m.Payload))
	b[0] = byte(m.Type)
	b[1] = m.Code
	binary.BigEndian.PutUint16(b[2:4], 0) // checksum: reserved, always zero
	binary.BigEndian.PutUint16(b[4:6], m.ID)
	binary.BigEndian.PutUint16(b[6:8], m.Seq)
	copy(b[8:], m.Payload)
	return b, nil
}

// Unmarshal decodes an ICMP message, rejecting anything shorter than the
// 8-byte header or carrying a type other than the three this simulation
// models.
func (m *ICMPMessage) Unmarshal(b []byte) error {
	if len(b) < icmpHeaderLen {
		return truncated("icmp", "shorter than 8-byte header")
	}
	t := ICMPType(b[0])
	switch t {
	case ICMPEchoReply, ICMPEchoRequest, ICMPTimeExceeded:
	default:
		return unsupported("icmp", "unknown message type")
	}
	m.Type = t
	m.Code = b[1]
	m.ID = binary.BigEndian.Uint16(b[4:6])
	m.Seq = binary.BigEndian.Uint16(b[6:8])
	payload := make([]byte, len(b)-icmpHeaderLen)
	copy(payload, b[icmpHeaderLen:])
	m.Payload = payload
	return nil
}
