package sim

import "github.com/user/bluecore/corebt"

// Manual delivery. With AutoRespond off, tests script exactly when each
// callback fires, which is what the ordering and coalescing scenarios need.

func (d *Device) findDiscovered(serviceUUID, characteristicUUID string) *corebt.Characteristic {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, svc := range d.discovered {
		if svc.UUID != serviceUUID {
			continue
		}
		for _, ch := range svc.Characteristics {
			if ch.UUID == characteristicUUID {
				return ch
			}
		}
	}
	return nil
}

// CompleteRead delivers the outcome of an outstanding read.
func (d *Device) CompleteRead(serviceUUID, characteristicUUID string, data []byte, err error) {
	ch := d.findDiscovered(serviceUUID, characteristicUUID)
	if ch == nil {
		return
	}
	d.post(func() {
		if err == nil {
			ch.Value = append([]byte(nil), data...)
		}
		if delegate := d.currentDelegate(); delegate != nil {
			delegate.DidUpdateValue(d, ch, err)
		}
	})
}

// CompleteWrite delivers the outcome of an outstanding write-with-response.
func (d *Device) CompleteWrite(serviceUUID, characteristicUUID string, err error) {
	ch := d.findDiscovered(serviceUUID, characteristicUUID)
	if ch == nil {
		return
	}
	d.post(func() {
		if delegate := d.currentDelegate(); delegate != nil {
			delegate.DidWriteValue(d, ch, err)
		}
	})
}

// CompleteRSSI delivers the outcome of an outstanding RSSI read.
func (d *Device) CompleteRSSI(rssi int, err error) {
	d.post(func() {
		if delegate := d.currentDelegate(); delegate != nil {
			delegate.DidReadRSSI(d, rssi, err)
		}
	})
}

// SignalReady fires the ready-to-send-write-without-response signal.
func (d *Device) SignalReady() {
	d.post(func() {
		if delegate := d.currentDelegate(); delegate != nil {
			delegate.IsReadyToSendWriteWithoutResponse(d)
		}
	})
}

// Notify pushes a server-initiated value update for a discovered
// characteristic.
func (d *Device) Notify(serviceUUID, characteristicUUID string, data []byte) {
	ch := d.findDiscovered(serviceUUID, characteristicUUID)
	if ch == nil {
		return
	}
	d.post(func() {
		ch.Value = append([]byte(nil), data...)
		if delegate := d.currentDelegate(); delegate != nil {
			delegate.DidUpdateValue(d, ch, nil)
		}
	})
}

// InvalidateServices reports the given services as modified, the way a GATT
// server signals a layout change.
func (d *Device) InvalidateServices(serviceUUIDs []string) {
	invalidated := make([]*corebt.Service, 0, len(serviceUUIDs))
	for _, uuid := range serviceUUIDs {
		invalidated = append(invalidated, &corebt.Service{UUID: uuid})
	}
	d.post(func() {
		if delegate := d.currentDelegate(); delegate != nil {
			delegate.DidModifyServices(d, invalidated)
		}
	})
}

// UpdateName reports a GAP name change.
func (d *Device) UpdateName(name string) {
	d.mu.Lock()
	d.name = name
	d.mu.Unlock()
	d.post(func() {
		if delegate := d.currentDelegate(); delegate != nil {
			delegate.DidUpdateName(d, name)
		}
	})
}
