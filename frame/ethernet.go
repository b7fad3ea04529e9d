package frame

import (
	"encoding/binary"

	"github.com/iti/netsim/addr"
)

// EtherType identifies the upper-layer protocol carried by an Ethernet II
// frame.
type EtherType uint16

const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
)

// ethernetIIThreshold is the smallest length/type field value that IEEE
// 802.3 reserves for EtherType use; anything below it is a frame length,
// per spec.md §3/§4.1.
const ethernetIIThreshold = 0x0600

// LLC header bytes fixed for the SNAP-less BPDU encapsulation this
// simulation uses: DSAP=0x42, SSAP=0x42, control=0x03 (unnumbered
// information).
const (
	llcDSAP    = 0x42
	llcSSAP    = 0x42
	llcControl = 0x03
)

// Kind distinguishes the two Ethernet framings this simulation puts on the
// wire.
type Kind int

const (
	// KindEthernetII carries an IPv4 or ARP payload behind an EtherType.
	KindEthernetII Kind = iota
	// Kind8023LLC carries a BPDU behind an 802.3 length field and a
	// fixed 0x42 0x42 0x03 LLC header.
	Kind8023LLC
)

const minEthernetHeader = 2 * addr.MACLen // dst + src, before the length/type field
const llcHeaderLen = 3

// EtherFrame is the outermost link-layer envelope. It is the value every
// fabric.Port queue carries; Marshal/Unmarshal round-trip it byte-exact,
// satisfying spec.md's decode(encode(f)) == f invariant.
type EtherFrame struct {
	Dst       addr.MAC
	Src       addr.MAC
	Kind      Kind
	EtherType EtherType // meaningful when Kind == KindEthernetII
	Payload   []byte    // upper-layer packet (EthernetII) or BPDU body (802.3+LLC)
}

// NewEthernetII builds an Ethernet II frame carrying payload behind et.
func NewEthernetII(dst, src addr.MAC, et EtherType, payload []byte) EtherFrame {
	return EtherFrame{Dst: dst, Src: src, Kind: KindEthernetII, EtherType: et, Payload: payload}
}

// NewLLCFrame builds an 802.3+LLC frame carrying a BPDU payload.
func NewLLCFrame(dst, src addr.MAC, payload []byte) EtherFrame {
	return EtherFrame{Dst: dst, Src: src, Kind: Kind8023LLC, Payload: payload}
}

// Marshal serializes the frame to its exact on-wire octets. FCS is
// deliberately omitted, per spec.md §6's documented deviation.
func (f EtherFrame) Marshal() ([]byte, error) {
	switch f.Kind {
	case KindEthernetII:
		b := make([]byte, minEthernetHeader+2+len(f.Payload))
		copy(b[0:6], f.Dst[:])
		copy(b[6:12], f.Src[:])
		binary.BigEndian.PutUint16(b[12:14], uint16(f.EtherType))
		copy(b[14:], f.Payload)
		return b, nil
	case Kind8023LLC:
		length := llcHeaderLen + len(f.Payload)
		if length >= ethernetIIThreshold {
			return nil, unsupported("ethernet", "802.3 payload too large to fit below the length/type threshold")
		}
		b := make([]byte, minEthernetHeader+2+llcHeaderLen+len(f.Payload))
		copy(b[0:6], f.Dst[:])
		copy(b[6:12], f.Src[:])
		binary.BigEndian.PutUint16(b[12:14], uint16(length))
		b[14] = llcDSAP
		b[15] = llcSSAP
		b[16] = llcControl
		copy(b[17:], f.Payload)
		return b, nil
	default:
		return nil, unsupported("ethernet", "unknown frame kind")
	}
}

// Unmarshal decodes b into f, classifying the frame as Ethernet II or
// 802.3+LLC by inspecting the length/type field as spec.md §3 requires.
func (f *EtherFrame) Unmarshal(b []byte) error {
	if len(b) < minEthernetHeader+2 {
		return truncated("ethernet", "shorter than dst+src+length/type")
	}
	f.Dst = addr.MACFromBytes(b[0:6])
	f.Src = addr.MACFromBytes(b[6:12])
	lengthOrType := binary.BigEndian.Uint16(b[12:14])

	if lengthOrType >= ethernetIIThreshold {
		f.Kind = KindEthernetII
		f.EtherType = EtherType(lengthOrType)
		payload := make([]byte, len(b)-14)
		copy(payload, b[14:])
		f.Payload = payload
		return nil
	}

	f.Kind = Kind8023LLC
	if len(b) < minEthernetHeader+2+llcHeaderLen {
		return truncated("ethernet", "802.3 frame shorter than LLC header")
	}
	if b[14] != llcDSAP || b[15] != llcSSAP || b[16] != llcControl {
		return unsupported("ethernet", "802.3 frame without the SNAP-less BPDU LLC header")
	}
	payload := make([]byte, len(b)-17)
	copy(payload, b[17:])
	f.Payload = payload
	return nil
}

// IsBPDU reports whether the frame is addressed to the RSTP group MAC,
// meaning bridges must consume it themselves rather than forward or flood
// it (spec.md §4.4).
func (f EtherFrame) IsBPDU() bool {
	return f.Kind == Kind8023LLC && f.Dst == addr.RSTPGroupMAC
}
