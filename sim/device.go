// Package sim provides an in-memory host peripheral with a serial dispatch
// queue and a scripted GATT table. Tests and the demo binary use it in place
// of a real BLE stack: it records every emitted operation and delivers
// delegate callbacks either automatically or under manual control.
package sim

import (
	"sync"

	"github.com/user/bluecore/corebt"
)

// OpKind names an operation emitted to the simulated host stack.
type OpKind string

const (
	OpDiscoverServices        OpKind = "discover_services"
	OpDiscoverCharacteristics OpKind = "discover_characteristics"
	OpDiscoverDescriptors     OpKind = "discover_descriptors"
	OpReadValue               OpKind = "read_value"
	OpWriteValue              OpKind = "write_value"
	OpSetNotify               OpKind = "set_notify"
	OpReadRSSI                OpKind = "read_rssi"
)

// Op is one recorded host-stack operation.
type Op struct {
	Kind           OpKind
	Service        string
	Characteristic string
	UUIDs          []string
	Data           []byte
	Mode           corebt.WriteMode
	Enabled        bool
}

// Device simulates the host stack's handle for one remote peripheral. All
// delegate callbacks are delivered on a single dispatch goroutine, mirroring
// the serial queue a real stack uses.
type Device struct {
	id   string
	name string

	// AutoRespond makes reads, writes and RSSI reads complete immediately
	// from the scripted table, and makes writes without response signal
	// ready-to-send. With it off, tests drive those completions by hand via
	// the Complete* methods and SignalReady. Discovery and set-notify always
	// complete on their own.
	AutoRespond bool

	mu         sync.Mutex
	delegate   corebt.PeripheralDelegate
	state      corebt.PeripheralState
	table      []*corebt.Service
	discovered []*corebt.Service
	values     map[string][]byte
	rssi       int
	mtu        int
	ops        []Op

	dispatch chan func()
	done     chan struct{}
}

var _ corebt.Peripheral = (*Device)(nil)

// NewDevice builds a device around a scripted GATT table. Parent
// back-references are wired and a CCCD descriptor is attached to every
// characteristic that supports notify or indicate, the way a real GATT
// server exposes them.
func NewDevice(id, name string, table []*corebt.Service) *Device {
	for _, svc := range table {
		for _, ch := range svc.Characteristics {
			ch.Service = svc
			if ch.Properties.Contains(corebt.PropNotify) || ch.Properties.Contains(corebt.PropIndicate) {
				ch.Descriptors = append(ch.Descriptors, &corebt.Descriptor{
					UUID:           corebt.UUIDCCCD,
					Value:          append([]byte(nil), corebt.CCCDDisableNotificationValue...),
					Characteristic: ch,
				})
			}
		}
	}
	d := &Device{
		id:       id,
		name:     name,
		table:    table,
		values:   make(map[string][]byte),
		rssi:     -60,
		mtu:      185,
		dispatch: make(chan func(), 256),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Device) run() {
	for {
		select {
		case <-d.done:
			return
		case f := <-d.dispatch:
			f()
		}
	}
}

func (d *Device) post(f func()) {
	select {
	case d.dispatch <- f:
	case <-d.done:
	}
}

// Close stops the dispatch queue.
func (d *Device) Close() {
	close(d.done)
}

func (d *Device) Identifier() string { return d.id }

func (d *Device) Name() string { return d.name }

func (d *Device) State() corebt.PeripheralState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// SetState moves the simulated link state. The central side of a test drives
// this before reporting connect/disconnect to the coordinator.
func (d *Device) SetState(state corebt.PeripheralState) {
	d.mu.Lock()
	d.state = state
	d.mu.Unlock()
}

func (d *Device) Services() []*corebt.Service {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.discovered
}

func (d *Device) SetDelegate(delegate corebt.PeripheralDelegate) {
	d.mu.Lock()
	d.delegate = delegate
	d.mu.Unlock()
}

func (d *Device) currentDelegate() corebt.PeripheralDelegate {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delegate
}

func (d *Device) record(op Op) {
	d.mu.Lock()
	d.ops = append(d.ops, op)
	d.mu.Unlock()
}

// Ops returns a snapshot of every operation emitted so far.
func (d *Device) Ops() []Op {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Op(nil), d.ops...)
}

// DiscoveryComplete reports whether services have been discovered and every
// one of them has its characteristics populated. Tests poll this before
// touching discovered handles; the lock round-trip orders their reads after
// the population writes.
func (d *Device) DiscoveryComplete() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.discovered) == 0 {
		return false
	}
	for _, svc := range d.discovered {
		if len(svc.Characteristics) == 0 {
			return false
		}
	}
	return true
}

// OpCount counts recorded operations of one kind.
func (d *Device) OpCount(kind OpKind) int {
	n := 0
	for _, op := range d.Ops() {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// SetRSSI scripts the value auto-responding RSSI reads return.
func (d *Device) SetRSSI(rssi int) {
	d.mu.Lock()
	d.rssi = rssi
	d.mu.Unlock()
}

// SetValue scripts the stored value for a characteristic; auto-responding
// reads return it.
func (d *Device) SetValue(serviceUUID, characteristicUUID string, data []byte) {
	d.mu.Lock()
	d.values[valueKey(serviceUUID, characteristicUUID)] = append([]byte(nil), data...)
	d.mu.Unlock()
}

func valueKey(serviceUUID, characteristicUUID string) string {
	return serviceUUID + "/" + characteristicUUID
}
