package addr

import "testing"

func TestMACString(t *testing.T) {
	m := MAC{0x02, 0x10, 0x20, 0x30, 0x40, 0x50}
	want := "02:10:20:30:40:50"
	if got := m.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestMACBroadcastMulticast(t *testing.T) {
	if !BroadcastMAC.IsBroadcast() {
		t.Error("BroadcastMAC.IsBroadcast() = false")
	}
	if !BroadcastMAC.IsMulticast() {
		t.Error("broadcast is a special case of multicast")
	}
	if !RSTPGroupMAC.IsMulticast() {
		t.Error("RSTPGroupMAC.IsMulticast() = false")
	}
	unicast := MAC{0x02, 0, 0, 0, 0, 1}
	if unicast.IsMulticast() || unicast.IsBroadcast() {
		t.Error("locally-administered unicast MAC misclassified")
	}
}

func TestMACLess(t *testing.T) {
	a := MAC{0, 0, 0, 0, 0, 1}
	b := MAC{0, 0, 0, 0, 0, 2}
	if !a.Less(b) || b.Less(a) {
		t.Error("MAC.Less does not give a consistent total order")
	}
	if a.Less(a) {
		t.Error("a value must not be Less than itself")
	}
}

func TestMACFromBytesRoundTrip(t *testing.T) {
	m := MAC{1, 2, 3, 4, 5, 6}
	got := MACFromBytes(m.Bytes())
	if got != m {
		t.Errorf("MACFromBytes(m.Bytes()) = %v, want %v", got, m)
	}
}
