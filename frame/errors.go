// Package frame implements byte-exact encode/decode of the wire formats
// this simulation reproduces: Ethernet II, 802.3+LLC, ARP, IPv4, ICMP,
// RSTP BPDUs, and RIPv2. Every codec satisfies the required invariant that
// decode(encode(v)) reproduces v bit-for-bit; see the *_test.go files for
// round-trip coverage of each format.
package frame

import "fmt"

// CodecError is returned by every Unmarshal in this package. Callers on
// the receive path (device.Desktop/Switch/Router) count these
// against the ingress port rather than treating them as fatal, per
// spec.md's error taxonomy: a bad frame is dropped and counted, never
// aborts the tick.
type CodecError struct {
	Format string // which wire format failed to decode, e.g. "ethernet", "arp"
	Reason string // "truncated" or "unsupported"
	Detail string
}

func (e *CodecError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("frame: %s: %s", e.Format, e.Reason)
	}
	return fmt.Sprintf("frame: %s: %s: %s", e.Format, e.Reason, e.Detail)
}

func truncated(format, detail string) error {
	return &CodecError{Format: format, Reason: "truncated", Detail: detail}
}

func unsupported(format, detail string) error {
	return &CodecError{Format: format, Reason: "unsupported", Detail: detail}
}

// IsTruncated reports whether err is a CodecError caused by a short frame.
func IsTruncated(err error) bool {
	ce, ok := err.(*CodecError)
	return ok && ce.Reason == "truncated"
}

// IsUnsupported reports whether err is a CodecError caused by an unknown
// protocol number or opcode.
func IsUnsupported(err error) bool {
	ce, ok := err.(*CodecError)
	return ok && ce.Reason == "unsupported"
}
