package sim

import "github.com/user/bluecore/corebt"

// Host-stack operations. Each records an Op, then delivers the matching
// delegate callback on the dispatch queue (immediately, or when the test
// calls a Complete* method).

func (d *Device) DiscoverServices(serviceUUIDs []string) {
	d.record(Op{Kind: OpDiscoverServices, UUIDs: append([]string(nil), serviceUUIDs...)})
	d.post(func() {
		d.mu.Lock()
		fresh := make([]*corebt.Service, 0, len(d.table))
		for _, svc := range d.table {
			if len(serviceUUIDs) > 0 && !containsUUID(serviceUUIDs, svc.UUID) {
				continue
			}
			fresh = append(fresh, &corebt.Service{UUID: svc.UUID, IsPrimary: svc.IsPrimary})
		}
		// Re-discovery of a subset keeps earlier discovered services and
		// replaces the rediscovered ones, the way the host cache behaves.
		if len(serviceUUIDs) > 0 && d.discovered != nil {
			merged := make([]*corebt.Service, 0, len(d.discovered)+len(fresh))
			for _, svc := range d.discovered {
				if !containsUUID(serviceUUIDs, svc.UUID) {
					merged = append(merged, svc)
				}
			}
			fresh = append(merged, fresh...)
		}
		d.discovered = fresh
		delegate := d.delegate
		d.mu.Unlock()
		if delegate != nil {
			delegate.DidDiscoverServices(d, nil)
		}
	})
}

func (d *Device) DiscoverCharacteristics(characteristicUUIDs []string, service *corebt.Service) {
	d.record(Op{Kind: OpDiscoverCharacteristics, Service: service.UUID, UUIDs: append([]string(nil), characteristicUUIDs...)})
	d.post(func() {
		d.mu.Lock()
		var source *corebt.Service
		for _, svc := range d.table {
			if svc.UUID == service.UUID {
				source = svc
				break
			}
		}
		if source != nil {
			service.Characteristics = service.Characteristics[:0]
			for _, ch := range source.Characteristics {
				if len(characteristicUUIDs) > 0 && !containsUUID(characteristicUUIDs, ch.UUID) {
					continue
				}
				view := &corebt.Characteristic{
					UUID:       ch.UUID,
					Properties: ch.Properties,
					Service:    service,
				}
				for _, desc := range ch.Descriptors {
					view.Descriptors = append(view.Descriptors, &corebt.Descriptor{
						UUID:           desc.UUID,
						Value:          append([]byte(nil), desc.Value...),
						Characteristic: view,
					})
				}
				service.Characteristics = append(service.Characteristics, view)
			}
		}
		delegate := d.delegate
		d.mu.Unlock()
		if delegate != nil {
			delegate.DidDiscoverCharacteristics(d, service, nil)
		}
	})
}

func (d *Device) DiscoverDescriptors(characteristic *corebt.Characteristic) {
	d.record(Op{Kind: OpDiscoverDescriptors, Service: characteristic.Service.UUID, Characteristic: characteristic.UUID})
	d.post(func() {
		if delegate := d.currentDelegate(); delegate != nil {
			delegate.DidDiscoverDescriptors(d, characteristic, nil)
		}
	})
}

func (d *Device) ReadValue(characteristic *corebt.Characteristic) {
	d.record(Op{Kind: OpReadValue, Service: characteristic.Service.UUID, Characteristic: characteristic.UUID})
	if !d.AutoRespond {
		return
	}
	d.post(func() {
		d.mu.Lock()
		value := append([]byte(nil), d.values[valueKey(characteristic.Service.UUID, characteristic.UUID)]...)
		delegate := d.delegate
		d.mu.Unlock()
		characteristic.Value = value
		if delegate != nil {
			delegate.DidUpdateValue(d, characteristic, nil)
		}
	})
}

func (d *Device) WriteValue(data []byte, characteristic *corebt.Characteristic, mode corebt.WriteMode) {
	d.record(Op{
		Kind:           OpWriteValue,
		Service:        characteristic.Service.UUID,
		Characteristic: characteristic.UUID,
		Data:           append([]byte(nil), data...),
		Mode:           mode,
	})
	if !d.AutoRespond {
		return
	}
	d.mu.Lock()
	d.values[valueKey(characteristic.Service.UUID, characteristic.UUID)] = append([]byte(nil), data...)
	d.mu.Unlock()
	if mode == corebt.WriteWithResponse {
		d.post(func() {
			if delegate := d.currentDelegate(); delegate != nil {
				delegate.DidWriteValue(d, characteristic, nil)
			}
		})
	} else {
		d.post(func() {
			if delegate := d.currentDelegate(); delegate != nil {
				delegate.IsReadyToSendWriteWithoutResponse(d)
			}
		})
	}
}

func (d *Device) SetNotifyValue(enabled bool, characteristic *corebt.Characteristic) {
	d.record(Op{Kind: OpSetNotify, Service: characteristic.Service.UUID, Characteristic: characteristic.UUID, Enabled: enabled})
	d.post(func() {
		characteristic.IsNotifying.Store(enabled)
		for _, desc := range characteristic.Descriptors {
			if desc.UUID == corebt.UUIDCCCD {
				switch {
				case !enabled:
					desc.Value = append([]byte(nil), corebt.CCCDDisableNotificationValue...)
				case characteristic.Properties.Contains(corebt.PropIndicate):
					desc.Value = append([]byte(nil), corebt.CCCDEnableIndicationValue...)
				default:
					desc.Value = append([]byte(nil), corebt.CCCDEnableNotificationValue...)
				}
			}
		}
		if delegate := d.currentDelegate(); delegate != nil {
			delegate.DidUpdateNotificationState(d, characteristic, nil)
		}
	})
}

func (d *Device) ReadRSSI() {
	d.record(Op{Kind: OpReadRSSI})
	if !d.AutoRespond {
		return
	}
	d.post(func() {
		d.mu.Lock()
		rssi := d.rssi
		delegate := d.delegate
		d.mu.Unlock()
		if delegate != nil {
			delegate.DidReadRSSI(d, rssi, nil)
		}
	})
}

// MaximumWriteValueLength derives the single-write payload limit from the
// simulated MTU (ATT opcode + handle take 3 bytes).
func (d *Device) MaximumWriteValueLength(corebt.WriteMode) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	max := d.mtu - 3
	if max < 20 {
		max = 20
	}
	return max
}

func containsUUID(uuids []string, uuid string) bool {
	for _, u := range uuids {
		if u == uuid {
			return true
		}
	}
	return false
}
