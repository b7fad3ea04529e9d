package engine

import (
	"github.com/iti/netsim/addr"
	"github.com/iti/netsim/device"
	"github.com/iti/netsim/fabric"
)

// PortSnapshot is a read-only view of one port, spec.md §6's Snapshot
// operation.
type PortSnapshot struct {
	Index     int
	MAC       addr.MAC
	Connected bool
	Peer      *fabric.Addr
	State     fabric.RSTPState
	Role      fabric.RSTPRole
	Counters  fabric.Counters
}

// DeviceSnapshot is a read-only view of one device: its identity, ports,
// and whatever protocol state its kind carries (ARP cache, MAC table, RSTP
// roles, RIP table), per spec.md §6.
type DeviceSnapshot struct {
	ID    int
	Name  string
	Kind  device.Kind
	Ports []PortSnapshot

	// Desktop/Router
	ArpCache map[addr.IPv4]device.ArpEntry
	// Desktop
	PingResults []device.PingResult
	// Switch
	MACTable map[addr.MAC]int
	BridgeID *frameBridgeID
	RootID   *frameBridgeID
	// Router
	RouteTable []device.RouteEntry
}

// frameBridgeID mirrors frame.BridgeID without importing frame into this
// file's exported surface twice; kept as a plain value type for callers
// that only want to print it.
type frameBridgeID struct {
	Priority uint16
	MAC      addr.MAC
}

// Snapshot renders every device's read-only state, spec.md §6.
func (e *Engine) Snapshot() []DeviceSnapshot {
	out := make([]DeviceSnapshot, 0, len(e.devices))
	for _, id := range e.DeviceIDs() {
		out = append(out, e.snapshotDevice(id))
	}
	return out
}

func (e *Engine) snapshotDevice(id int) DeviceSnapshot {
	d := e.devices[id]
	snap := DeviceSnapshot{ID: id, Name: d.Name(), Kind: d.Kind()}
	for i, p := range d.Ports() {
		snap.Ports = append(snap.Ports, PortSnapshot{
			Index: i, MAC: p.MAC, Connected: p.Connected(), Peer: p.Peer,
			State: p.State, Role: p.Role, Counters: p.Counters,
		})
	}
	switch v := d.(type) {
	case *device.Desktop:
		snap.ArpCache = v.ArpCache().Snapshot()
		snap.PingResults = v.PingResults()
	case *device.Switch:
		mt := v.MACTableSnapshot()
		snap.MACTable = make(map[addr.MAC]int, len(mt))
		for mac, entry := range mt {
			snap.MACTable[mac] = entry.Port
		}
		bid, rid := v.BridgeID(), v.RootID()
		snap.BridgeID = &frameBridgeID{Priority: bid.Priority, MAC: bid.MAC}
		snap.RootID = &frameBridgeID{Priority: rid.Priority, MAC: rid.MAC}
	case *device.Router:
		snap.RouteTable = v.RouteTableSnapshot()
		snap.ArpCache = make(map[addr.IPv4]device.ArpEntry)
		for _, iface := range v.Interfaces() {
			for ip, entry := range iface.ArpCache().Snapshot() {
				snap.ArpCache[ip] = entry
			}
		}
	}
	return snap
}
