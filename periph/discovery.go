package periph

import (
	"github.com/user/bluecore/corebt"
	"github.com/user/bluecore/devices"
)

// Post-connect pipeline: resolve the discovery plan from the central's
// device description, discover services, then characteristics, enable
// notifications for characteristics that already have handlers, and discover
// descriptors where the plan asks for them.

// HandleConnect is called by the central once the link is up. The discovery
// plan is fixed here, before the first discovery request goes out, and holds
// for the whole connect attempt.
func (c *Coordinator) HandleConnect() {
	c.mu.Lock()
	central := c.central
	c.mu.Unlock()

	var description *devices.DeviceDescription
	if central != nil {
		description = central.FindDeviceDescription(c.Snapshot.Advertisement())
	}
	plan := buildPlan(description)
	c.Snapshot.setPlan(plan)
	c.Snapshot.setState(c.peripheral.State())
	c.log.Info("peripheral connected, starting discovery")

	var serviceUUIDs []string
	if plan != nil {
		serviceUUIDs = make([]string, 0, len(plan))
		for uuid := range plan {
			serviceUUIDs = append(serviceUUIDs, uuid)
		}
	}
	c.peripheral.DiscoverServices(serviceUUIDs)
}

// buildPlan unions the description's service configurations per service
// UUID. A service configured without characteristics means "all
// characteristics of this service"; no description at all means "discover
// everything".
func buildPlan(description *devices.DeviceDescription) DiscoveryPlan {
	if description == nil || description.Services == nil {
		return nil
	}
	plan := make(DiscoveryPlan, len(description.Services))
	for _, svc := range description.Services {
		if svc.Characteristics == nil {
			// Discover-all wins over any filtered configuration for the
			// same service.
			plan[svc.ServiceID] = nil
			continue
		}
		set, seen := plan[svc.ServiceID]
		if seen && set == nil {
			continue
		}
		if set == nil {
			set = make(map[string]devices.CharacteristicDescription, len(svc.Characteristics))
			plan[svc.ServiceID] = set
		}
		for _, cd := range svc.Characteristics {
			if existing, ok := set[cd.CharacteristicID]; ok {
				existing.DiscoverDescriptors = existing.DiscoverDescriptors || cd.DiscoverDescriptors
				set[cd.CharacteristicID] = existing
				continue
			}
			set[cd.CharacteristicID] = cd
		}
	}
	return plan
}

func (c *Coordinator) handleDiscoveredServices(err error) {
	if err != nil {
		c.log.WithError(err).Error("service discovery failed")
		return
	}
	services := c.peripheral.Services()
	c.Snapshot.setServices(services)
	plan := c.Snapshot.RequestedCharacteristics()
	for _, svc := range services {
		var characteristicUUIDs []string
		if plan != nil {
			set, wanted := plan[svc.UUID]
			if !wanted {
				continue
			}
			if set != nil {
				characteristicUUIDs = make([]string, 0, len(set))
				for uuid := range set {
					characteristicUUIDs = append(characteristicUUIDs, uuid)
				}
			}
		}
		c.peripheral.DiscoverCharacteristics(characteristicUUIDs, svc)
	}
}

func (c *Coordinator) handleDiscoveredCharacteristics(service *corebt.Service, err error) {
	if err != nil {
		c.log.WithError(err).WithField("service", service.UUID).Error("characteristic discovery failed")
		return
	}
	plan := c.Snapshot.RequestedCharacteristics()
	for _, ch := range service.Characteristics {
		if ch.Properties.Contains(corebt.PropNotify) {
			loc := Locator{Service: service.UUID, Characteristic: ch.UUID}
			c.mu.Lock()
			registered := len(c.registry[loc]) > 0
			c.mu.Unlock()
			if registered {
				c.peripheral.SetNotifyValue(true, ch)
			}
		}
		if plan != nil {
			if set := plan[service.UUID]; set != nil {
				if cd, ok := set[ch.UUID]; ok && cd.DiscoverDescriptors {
					c.peripheral.DiscoverDescriptors(ch)
				}
			}
		}
	}
	// Republish so observers see the newly populated characteristics.
	c.Snapshot.setServices(c.peripheral.Services())
}

func (c *Coordinator) handleDiscoveredDescriptors(characteristic *corebt.Characteristic, err error) {
	if err != nil {
		c.log.WithError(err).WithField("characteristic", characteristic.UUID).Error("descriptor discovery failed")
		return
	}
	c.log.WithField("characteristic", characteristic.UUID).Debug("descriptors discovered")
}

// handleModifiedServices drops invalidated services from the snapshot and
// re-issues discovery for their UUIDs. Anything downstream of an invalidated
// service is stale until rediscovered.
func (c *Coordinator) handleModifiedServices(invalidated []*corebt.Service) {
	if len(invalidated) == 0 {
		return
	}
	gone := make(map[string]bool, len(invalidated))
	uuids := make([]string, 0, len(invalidated))
	for _, svc := range invalidated {
		gone[svc.UUID] = true
		uuids = append(uuids, svc.UUID)
	}
	current := c.Snapshot.Services()
	if current != nil {
		kept := make([]*corebt.Service, 0, len(current))
		for _, svc := range current {
			if !gone[svc.UUID] {
				kept = append(kept, svc)
			}
		}
		c.Snapshot.setServices(kept)
	}
	c.log.WithField("services", uuids).Info("services modified, rediscovering")
	c.peripheral.DiscoverServices(uuids)
}
