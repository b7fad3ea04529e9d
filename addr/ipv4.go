package addr

import (
	"fmt"
	"strconv"
	"strings"
)

// IPv4Len is the width in octets of an IPv4 address.
const IPv4Len = 4

// LimitedBroadcast is 255.255.255.255, the network-wide broadcast address.
var LimitedBroadcast = IPv4{255, 255, 255, 255}

// IPv4 is a 32-bit IPv4 address stored big-endian, as it appears on the
// wire and in the IPv4 header's src/dst fields.
type IPv4 [IPv4Len]byte

// String renders the address in dotted-decimal form.
func (a IPv4) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", a[0], a[1], a[2], a[3])
}

// Uint32 packs the address into a big-endian uint32, useful for mask
// arithmetic and for ordering addresses numerically.
func (a IPv4) Uint32() uint32 {
	return uint32(a[0])<<24 | uint32(a[1])<<16 | uint32(a[2])<<8 | uint32(a[3])
}

// IPv4FromUint32 is the inverse of Uint32.
func IPv4FromUint32(v uint32) IPv4 {
	return IPv4{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// IPv4FromBytes builds an IPv4 address from a 4-byte slice.
func IPv4FromBytes(b []byte) IPv4 {
	var a IPv4
	copy(a[:], b[:IPv4Len])
	return a
}

// ParseIPv4 parses dotted-decimal text, e.g. "10.0.0.1".
func ParseIPv4(s string) (IPv4, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return IPv4{}, fmt.Errorf("addr: %q is not a dotted-decimal IPv4 address", s)
	}
	var a IPv4
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return IPv4{}, fmt.Errorf("addr: %q is not a dotted-decimal IPv4 address", s)
		}
		a[i] = byte(n)
	}
	return a, nil
}

// Mask is a contiguous, high-order-ones subnet mask.
type Mask [IPv4Len]byte

// MaskFromPrefixLen builds the contiguous mask for a /prefixLen network.
// prefixLen must be in [0, 32]; callers that accept prefix length from a
// config file should validate the range before calling this.
func MaskFromPrefixLen(prefixLen int) Mask {
	v := uint32(0)
	if prefixLen > 0 {
		v = ^uint32(0) << uint(32-prefixLen)
	}
	return Mask(IPv4FromUint32(v))
}

// PrefixLen counts the leading one bits in the mask.
func (m Mask) PrefixLen() int {
	v := IPv4(m).Uint32()
	n := 0
	for i := 31; i >= 0; i-- {
		if v&(1<<uint(i)) == 0 {
			break
		}
		n++
	}
	return n
}

// String renders the mask in dotted-decimal form.
func (m Mask) String() string {
	return IPv4(m).String()
}

// Subnet is a (network, mask) pair: the network address is the address
// with all host bits cleared.
type Subnet struct {
	Network IPv4
	Mask    Mask
}

// NewSubnet derives the subnet a configured address belongs to.
func NewSubnet(a IPv4, m Mask) Subnet {
	return Subnet{Network: IPv4FromUint32(a.Uint32() & m.Uint32()), Mask: m}
}

// Uint32 exposes the mask as a bit pattern for arithmetic.
func (m Mask) Uint32() uint32 { return IPv4(m).Uint32() }

// Contains reports whether addr falls inside the subnet: addr & mask ==
// network & mask.
func (s Subnet) Contains(a IPv4) bool {
	return a.Uint32()&s.Mask.Uint32() == s.Network.Uint32()&s.Mask.Uint32()
}

// DirectedBroadcast is network | ~mask, the subnet's local broadcast
// address.
func (s Subnet) DirectedBroadcast() IPv4 {
	return IPv4FromUint32(s.Network.Uint32() | ^s.Mask.Uint32())
}

// PrefixLen returns the number of leading one-bits in the subnet mask,
// used for longest-prefix-match comparisons in the routing table.
func (s Subnet) PrefixLen() int {
	return s.Mask.PrefixLen()
}

// String renders the subnet in CIDR-ish "network/prefixlen" form.
func (s Subnet) String() string {
	return fmt.Sprintf("%s/%d", s.Network, s.PrefixLen())
}

// Equal reports whether two subnets have the same network and prefix
// length. Used to detect duplicate routing table entries.
func (s Subnet) Equal(other Subnet) bool {
	return s.Network == other.Network && s.Mask == other.Mask
}
