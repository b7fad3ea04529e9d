package frame

import (
	"bytes"
	"testing"

	"github.com/iti/netsim/addr"
)

func TestEtherFrameRoundTrip(t *testing.T) {
	dst := addr.MAC{1, 2, 3, 4, 5, 6}
	src := addr.MAC{6, 5, 4, 3, 2, 1}
	f := NewEthernetII(dst, src, EtherTypeIPv4, []byte("hello"))

	wire, err := f.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got EtherFrame
	if err := got.Unmarshal(wire); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Dst != f.Dst || got.Src != f.Src || got.Kind != f.Kind || got.EtherType != f.EtherType {
		t.Errorf("round trip header mismatch: got %+v, want %+v", got, f)
	}
	if !bytes.Equal(got.Payload, f.Payload) {
		t.Errorf("round trip payload mismatch: got %q, want %q", got.Payload, f.Payload)
	}
}

func TestLLCFrameRoundTripAndIsBPDU(t *testing.T) {
	f := NewLLCFrame(addr.RSTPGroupMAC, addr.MAC{1, 1, 1, 1, 1, 1}, []byte{0xaa, 0xbb})
	if !f.IsBPDU() {
		t.Fatal("frame addressed to the RSTP group MAC should be a BPDU")
	}
	wire, err := f.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got EtherFrame
	if err := got.Unmarshal(wire); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Kind != Kind8023LLC {
		t.Errorf("Kind = %v, want Kind8023LLC", got.Kind)
	}
	if !bytes.Equal(got.Payload, f.Payload) {
		t.Errorf("payload mismatch: got %v, want %v", got.Payload, f.Payload)
	}
}

func TestEtherFrameUnmarshalTruncated(t *testing.T) {
	var f EtherFrame
	if err := f.Unmarshal([]byte{1, 2, 3}); !IsTruncated(err) {
		t.Errorf("expected a truncated CodecError, got %v", err)
	}
}
