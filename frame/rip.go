package frame

import (
	"encoding/binary"

	"github.com/iti/netsim/addr"
)

// RIPCommand distinguishes a RIP request from a response, spec.md §4.1.
type RIPCommand uint8

const (
	RIPRequest  RIPCommand = 1
	RIPResponse RIPCommand = 2
)

const (
	ripVersion    = 2
	ripAFIInet    = 2
	ripHeaderLen  = 4
	ripRTELen     = 20
	ripMaxRTEs    = 25
	ripInfinity   = 16 // spec.md §4.5, §8: metric >= 16 is unreachable
)

// RTE is a single Route Table Entry inside a RIPv2 message.
type RTE struct {
	RouteTag uint16
	IP       addr.IPv4
	Mask     addr.Mask
	NextHop  addr.IPv4
	Metric   uint32
}

// RIPMessage is a RIPv2 request or response, carrying up to 25 route
// table entries per spec.md §4.1.
type RIPMessage struct {
	Command RIPCommand
	Entries []RTE
}

// Marshal serializes the message. It refuses to encode more than 25 RTEs,
// the limit spec.md §4.1 fixes for a single RIPv2 message; callers that
// have more routes to advertise split them across multiple messages.
func (m RIPMessage) Marshal() ([]byte, error) {
	if len(m.Entries) > ripMaxRTEs {
		return nil, unsupported("rip", "more than 25 route table entries in one message")
	}
	b := make([]byte, ripHeaderLen+ripRTELen*len(m.Entries))
	b[0] = byte(m.Command)
	b[1] = ripVersion
	binary.BigEndian.PutUint16(b[2:4], 0) // zero field
	off := ripHeaderLen
	for _, e := range m.Entries {
		binary.BigEndian.PutUint16(b[off:off+2], ripAFIInet)
		binary.BigEndian.PutUint16(b[off+2:off+4], e.RouteTag)
		copy(b[off+4:off+8], e.IP[:])
		copy(b[off+8:off+12], e.Mask[:])
		copy(b[off+12:off+16], e.NextHop[:])
		binary.BigEndian.PutUint32(b[off+16:off+20], e.Metric)
		off += ripRTELen
	}
	return b, nil
}

// Unmarshal decodes a RIPv2 message. It rejects a header shorter than 4
// bytes, a body length that isn't an exact multiple of the 20-byte RTE
// size, more than 25 entries, a version other than 2, and a command other
// than request/response.
func (m *RIPMessage) Unmarshal(b []byte) error {
	if len(b) < ripHeaderLen {
		return truncated("rip", "shorter than 4-byte header")
	}
	cmd := RIPCommand(b[0])
	if cmd != RIPRequest && cmd != RIPResponse {
		return unsupported("rip", "unknown command")
	}
	if b[1] != ripVersion {
		return unsupported("rip", "unsupported version")
	}
	body := b[ripHeaderLen:]
	if len(body)%ripRTELen != 0 {
		return truncated("rip", "body is not a whole number of route table entries")
	}
	n := len(body) / ripRTELen
	if n > ripMaxRTEs {
		return unsupported("rip", "more than 25 route table entries in one message")
	}
	entries := make([]RTE, n)
	for i := 0; i < n; i++ {
		off := i * ripRTELen
		afi := binary.BigEndian.Uint16(body[off : off+2])
		if afi != ripAFIInet {
			return unsupported("rip", "route table entry address family is not IPv4")
		}
		entries[i] = RTE{
			RouteTag: binary.BigEndian.Uint16(body[off+2 : off+4]),
			IP:       addr.IPv4FromBytes(body[off+4 : off+8]),
			Mask:     addr.Mask(addr.IPv4FromBytes(body[off+8 : off+12])),
			NextHop:  addr.IPv4FromBytes(body[off+12 : off+16]),
			Metric:   binary.BigEndian.Uint32(body[off+16 : off+20]),
		}
	}
	m.Command = cmd
	m.Entries = entries
	return nil
}
