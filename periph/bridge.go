package periph

import "github.com/user/bluecore/corebt"

// delegateBridge is the host stack's delegate object. The stack requires a
// distinct delegate identity and invokes it on its own serial queue; the
// bridge forwards each callback into the coordinator in arrival order. It
// holds a non-owning reference back to the coordinator.
type delegateBridge struct {
	c *Coordinator
}

var _ corebt.PeripheralDelegate = (*delegateBridge)(nil)

func (b *delegateBridge) DidUpdateName(_ corebt.Peripheral, name string) {
	// Snapshot-only update, safe to write directly from the host queue.
	b.c.Snapshot.setName(name)
}

func (b *delegateBridge) DidReadRSSI(_ corebt.Peripheral, rssi int, err error) {
	b.c.handleReadRSSI(rssi, err)
}

func (b *delegateBridge) DidModifyServices(_ corebt.Peripheral, invalidated []*corebt.Service) {
	b.c.handleModifiedServices(invalidated)
}

func (b *delegateBridge) DidDiscoverServices(_ corebt.Peripheral, err error) {
	b.c.handleDiscoveredServices(err)
}

func (b *delegateBridge) DidDiscoverCharacteristics(_ corebt.Peripheral, service *corebt.Service, err error) {
	b.c.handleDiscoveredCharacteristics(service, err)
}

func (b *delegateBridge) DidDiscoverDescriptors(_ corebt.Peripheral, characteristic *corebt.Characteristic, err error) {
	b.c.handleDiscoveredDescriptors(characteristic, err)
}

func (b *delegateBridge) DidUpdateValue(_ corebt.Peripheral, characteristic *corebt.Characteristic, err error) {
	b.c.handleUpdatedValue(characteristic, err)
}

func (b *delegateBridge) DidWriteValue(_ corebt.Peripheral, characteristic *corebt.Characteristic, err error) {
	b.c.handleWroteValue(characteristic, err)
}

func (b *delegateBridge) DidUpdateNotificationState(_ corebt.Peripheral, characteristic *corebt.Characteristic, err error) {
	b.c.handleUpdatedNotificationState(characteristic, err)
}

func (b *delegateBridge) IsReadyToSendWriteWithoutResponse(_ corebt.Peripheral) {
	b.c.handleReadyToSendWriteWithoutResponse()
}
