package corebt

// WriteMode selects between confirmed and unconfirmed characteristic writes.
type WriteMode int

const (
	WriteWithResponse    WriteMode = 0 // Wait for ACK (default)
	WriteWithoutResponse WriteMode = 1 // Fire and forget, flow-controlled by the ready signal
)

// Peripheral is the host-stack handle for a remote device. All operations
// are asynchronous: they return immediately and the outcome arrives via the
// PeripheralDelegate on the stack's serial queue.
//
// A nil element or empty slice for the UUID filters means "discover all".
type Peripheral interface {
	Identifier() string
	Name() string
	State() PeripheralState
	Services() []*Service
	SetDelegate(delegate PeripheralDelegate)

	DiscoverServices(serviceUUIDs []string)
	DiscoverCharacteristics(characteristicUUIDs []string, service *Service)
	DiscoverDescriptors(characteristic *Characteristic)

	ReadValue(characteristic *Characteristic)
	WriteValue(data []byte, characteristic *Characteristic, mode WriteMode)
	SetNotifyValue(enabled bool, characteristic *Characteristic)
	ReadRSSI()

	// MaximumWriteValueLength returns the MTU-derived maximum payload for a
	// single write in the given mode.
	MaximumWriteValueLength(mode WriteMode) int
}

// PeripheralDelegate receives the host stack's callbacks. The stack calls
// every method on its own serial queue; callback order matches wire order.
type PeripheralDelegate interface {
	DidUpdateName(peripheral Peripheral, name string)
	DidReadRSSI(peripheral Peripheral, rssi int, err error)
	DidModifyServices(peripheral Peripheral, invalidated []*Service)
	DidDiscoverServices(peripheral Peripheral, err error)
	DidDiscoverCharacteristics(peripheral Peripheral, service *Service, err error)
	DidDiscoverDescriptors(peripheral Peripheral, characteristic *Characteristic, err error)
	DidUpdateValue(peripheral Peripheral, characteristic *Characteristic, err error)
	DidWriteValue(peripheral Peripheral, characteristic *Characteristic, err error)
	DidUpdateNotificationState(peripheral Peripheral, characteristic *Characteristic, err error)
	IsReadyToSendWriteWithoutResponse(peripheral Peripheral)
}
