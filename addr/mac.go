// Package addr holds the value types shared by every layer of the
// simulation: 48-bit hardware addresses and IPv4 addresses with their
// companion subnet masks.
package addr

import "fmt"

// MACLen is the width in octets of an Ethernet hardware address.
const MACLen = 6

// RSTPGroupMAC is the fixed multicast destination BPDUs are sent to,
// 01:80:C2:00:00:00, defined by IEEE 802.1D-2004.
var RSTPGroupMAC = MAC{0x01, 0x80, 0xc2, 0x00, 0x00, 0x00}

// BroadcastMAC is the all-ones Ethernet broadcast address.
var BroadcastMAC = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// MAC is a 48-bit Ethernet hardware address, stored big-endian as it
// appears on the wire.
type MAC [MACLen]byte

// String renders the address in the usual colon-separated hex form.
func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// IsBroadcast reports whether m is the all-ones address.
func (m MAC) IsBroadcast() bool {
	return m == BroadcastMAC
}

// IsMulticast reports whether the multicast bit (the LSB of the first
// octet) is set. Broadcast is a special case of multicast but callers
// that need to distinguish the two should check IsBroadcast first.
func (m MAC) IsMulticast() bool {
	return m[0]&0x01 != 0
}

// IsZero reports whether m is the unset all-zero address.
func (m MAC) IsZero() bool {
	return m == MAC{}
}

// Less gives MAC addresses a total order, used for RSTP bridge-id and
// port-id tie-breaks, and for choosing a switch's lowest-MAC port as the
// low bytes of its bridge-id.
func (m MAC) Less(other MAC) bool {
	for i := 0; i < MACLen; i++ {
		if m[i] != other[i] {
			return m[i] < other[i]
		}
	}
	return false
}

// Bytes returns a fresh copy of the address octets, safe for a caller to
// mutate without corrupting m.
func (m MAC) Bytes() []byte {
	b := make([]byte, MACLen)
	copy(b, m[:])
	return b
}

// MACFromBytes builds a MAC from a 6-byte slice. The caller must have
// already checked the slice is long enough; codecs do that as part of
// their minimum-length check.
func MACFromBytes(b []byte) MAC {
	var m MAC
	copy(m[:], b[:MACLen])
	return m
}
