// Package engine implements spec.md §5's discrete-tick scheduler and §6's
// external driver interface: a device registry, the point-to-point cable
// fabric, and the single-threaded Tick loop that drives both, grounded on
// the teacher's BuildExperimentNet/RunExperiment shape in mrnes.go and
// scheduler.go.
package engine

import (
	"fmt"

	"github.com/iti/netsim/addr"
	"github.com/iti/netsim/device"
	"github.com/iti/netsim/fabric"
	"github.com/iti/netsim/trace"
	"golang.org/x/exp/slices"
)

// ConfigError is returned by driver operations that fail synchronously
// (bad device id, wrong interface index), spec.md §7.
type ConfigError struct {
	Op     string
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("engine: %s: %s", e.Op, e.Detail)
}

// CommandResult is the outcome of one queued driver command, retrievable
// after the tick in which it ran.
type CommandResult struct {
	Tick   int64
	Cmd    device.Command
	Output string
	Err    error
}

// Engine owns every device, the cable fabric between them, and the trace
// sink, and is the sole driver of simulated time. It implements
// fabric.Resolver so Cable/Fabric can address ports without ever holding a
// pointer into a device, per spec.md §9.
type Engine struct {
	devices map[int]device.Device
	nextID  int

	fab   *fabric.Fabric
	trace *trace.Manager

	tick int64

	pending map[int][]device.Command
	results map[int][]CommandResult
}

// New creates an empty engine. traceMgr may be trace.New(name, false) to
// keep tracing inert without special-casing call sites, per trace.Manager's
// own InUse guard.
func New(traceMgr *trace.Manager) *Engine {
	return &Engine{
		devices: make(map[int]device.Device),
		fab:     fabric.NewFabric(),
		trace:   traceMgr,
		pending: make(map[int][]device.Command),
		results: make(map[int][]CommandResult),
	}
}

// PortAt implements fabric.Resolver.
func (e *Engine) PortAt(a fabric.Addr) (*fabric.Port, error) {
	d, ok := e.devices[a.Device]
	if !ok {
		return nil, &ConfigError{Op: "PortAt", Detail: fmt.Sprintf("no device with id %d", a.Device)}
	}
	ports := d.Ports()
	if a.Port < 0 || a.Port >= len(ports) {
		return nil, &ConfigError{Op: "PortAt", Detail: fmt.Sprintf("device %d has no port %d", a.Device, a.Port)}
	}
	return ports[a.Port], nil
}

func (e *Engine) allocID() int {
	id := e.nextID
	e.nextID++
	return id
}

// AddDesktop registers a new end-host, spec.md §6's add_device operation.
func (e *Engine) AddDesktop(name string, mac addr.MAC, ip addr.IPv4, mask addr.Mask) int {
	id := e.allocID()
	d := device.NewDesktop(id, name, mac, ip, mask)
	e.devices[id] = d
	e.trace.AddName(id, name, device.KindDesktop.String())
	return id
}

// AddSwitch registers a new learning bridge with one port per MAC in macs.
func (e *Engine) AddSwitch(name string, priority uint16, macs []addr.MAC) int {
	id := e.allocID()
	s := device.NewSwitch(id, name, priority, macs)
	e.devices[id] = s
	e.trace.AddName(id, name, device.KindSwitch.String())
	return id
}

// RouterIfaceSpec configures one interface of a new router.
type RouterIfaceSpec struct {
	MAC  addr.MAC
	IP   addr.IPv4
	Mask addr.Mask
}

// AddRouter registers a new router with one interface per entry in ifaces.
func (e *Engine) AddRouter(name string, ifaces []RouterIfaceSpec) int {
	id := e.allocID()
	r := device.NewRouter(id, name)
	for _, spec := range ifaces {
		r.AddInterface(spec.MAC, spec.IP, spec.Mask)
	}
	e.devices[id] = r
	e.trace.AddName(id, name, device.KindRouter.String())
	return id
}

// Device returns the device registered under id, for callers (topo, tests,
// cmd/netsim) that need the concrete type.
func (e *Engine) Device(id int) (device.Device, bool) {
	d, ok := e.devices[id]
	return d, ok
}

// DeviceIDs returns every registered device id in ascending order.
func (e *Engine) DeviceIDs() []int {
	ids := make([]int, 0, len(e.devices))
	for id := range e.devices {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// RemoveDevice detaches every cable touching id and drops the device,
// spec.md §3's lifecycle rule: "removal detaches the cable from both ends
// before the device is dropped".
func (e *Engine) RemoveDevice(id int) error {
	if _, ok := e.devices[id]; !ok {
		return &ConfigError{Op: "RemoveDevice", Detail: fmt.Sprintf("no device with id %d", id)}
	}
	e.fab.RemoveDeviceCables(e, id)
	delete(e.devices, id)
	delete(e.pending, id)
	delete(e.results, id)
	return nil
}

// Connect cables two ports together, spec.md §6.
func (e *Engine) Connect(a, b fabric.Addr) error {
	return e.fab.Connect(e, a, b)
}

// Disconnect removes the cable attached to p, spec.md §6.
func (e *Engine) Disconnect(p fabric.Addr) error {
	return e.fab.Disconnect(e, p)
}

// ConfigureIP re-addresses a desktop or one router interface after
// construction, spec.md §6's configure_ip operation.
func (e *Engine) ConfigureIP(deviceID, ifaceIdx int, ip addr.IPv4, mask addr.Mask) error {
	d, ok := e.devices[deviceID]
	if !ok {
		return &ConfigError{Op: "ConfigureIP", Detail: fmt.Sprintf("no device with id %d", deviceID)}
	}
	switch v := d.(type) {
	case *device.Desktop:
		v.SetIP(ip, mask)
		return nil
	case *device.Router:
		if err := v.SetInterfaceIP(ifaceIdx, ip, mask); err != nil {
			return &ConfigError{Op: "ConfigureIP", Detail: err.Error()}
		}
		return nil
	default:
		return &ConfigError{Op: "ConfigureIP", Detail: "device does not carry an IPv4 address"}
	}
}

// EnqueueCommand queues a driver command for deviceID's next Tick, spec.md
// §6.
func (e *Engine) EnqueueCommand(deviceID int, cmd device.Command) error {
	if _, ok := e.devices[deviceID]; !ok {
		return &ConfigError{Op: "EnqueueCommand", Detail: fmt.Sprintf("no device with id %d", deviceID)}
	}
	e.pending[deviceID] = append(e.pending[deviceID], cmd)
	return nil
}

// CommandResults returns and clears every command result produced for
// deviceID so far.
func (e *Engine) CommandResults(deviceID int) []CommandResult {
	out := e.results[deviceID]
	delete(e.results, deviceID)
	return out
}

// Tick advances the simulation by one step, spec.md §5: fabric delivery,
// then every device polled in ascending device-id order (queued commands
// drained first), matching mrnes's own single run-loop, RunExperiment,
// which advances all devices before returning control to the driver.
func (e *Engine) Tick() error {
	if err := e.fab.Tick(e); err != nil {
		return err
	}

	ctx := &device.Context{Tick: e.tick, TraceMgr: e.trace}
	for _, id := range e.DeviceIDs() {
		d := e.devices[id]
		for _, cmd := range e.pending[id] {
			out, err := d.Command(ctx, cmd)
			e.results[id] = append(e.results[id], CommandResult{Tick: e.tick, Cmd: cmd, Output: out, Err: err})
		}
		delete(e.pending, id)
		d.Poll(ctx)
	}

	e.tick++
	return nil
}

// Now returns the current engine tick.
func (e *Engine) Now() int64 { return e.tick }
