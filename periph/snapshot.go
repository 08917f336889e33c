package periph

import (
	"time"

	"go.uber.org/atomic"

	"github.com/user/bluecore/corebt"
	"github.com/user/bluecore/devices"
)

// DiscoveryPlan is the resolved per-connect discovery plan, keyed by service
// UUID. A nil inner map means "discover all characteristics of this
// service"; a nil plan altogether means "discover everything".
type DiscoveryPlan map[string]map[string]devices.CharacteristicDescription

// Snapshot is the observable state of a peripheral. Fields are published
// through per-field atomics so observers on any goroutine read without
// locking; writers are the coordinator and the host stack's serial queue.
// Cross-field consistency is intentionally not offered.
type Snapshot struct {
	name         atomic.Pointer[string]
	rssi         atomic.Int64
	state        atomic.Int32
	adv          atomic.Pointer[corebt.AdvertisementData]
	services     atomic.Pointer[[]*corebt.Service]
	lastActivity atomic.Time
	plan         atomic.Pointer[DiscoveryPlan]
}

func newSnapshot() *Snapshot {
	s := &Snapshot{}
	s.lastActivity.Store(time.Now())
	return s
}

// Name returns the last observed GAP name. ok is false if no name has been
// observed yet.
func (s *Snapshot) Name() (name string, ok bool) {
	p := s.name.Load()
	if p == nil {
		return "", false
	}
	return *p, true
}

// RSSI returns the latest signal-strength sample in dBm.
func (s *Snapshot) RSSI() int {
	return int(s.rssi.Load())
}

// State returns the logical connection state.
func (s *Snapshot) State() corebt.PeripheralState {
	return corebt.PeripheralState(s.state.Load())
}

// Advertisement returns the last observed advertisement data.
func (s *Snapshot) Advertisement() corebt.AdvertisementData {
	p := s.adv.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Services returns the discovered services. Nil means no discovery has
// completed since the last (re)connect, as opposed to "discovered and
// empty".
func (s *Snapshot) Services() []*corebt.Service {
	p := s.services.Load()
	if p == nil {
		return nil
	}
	return *p
}

// LastActivity is the time the peripheral was last seen. While the
// peripheral is not disconnected the effective value is "now".
func (s *Snapshot) LastActivity() time.Time {
	if s.State() != corebt.StateDisconnected {
		return time.Now()
	}
	return s.lastActivity.Load()
}

// RequestedCharacteristics returns the discovery plan of the current connect
// attempt, or nil for "discover everything".
func (s *Snapshot) RequestedCharacteristics() DiscoveryPlan {
	p := s.plan.Load()
	if p == nil {
		return nil
	}
	return *p
}

// IsStale reports whether the peripheral is disconnected and has not been
// seen within the given interval. The central uses this to garbage-collect
// devices that have neither advertised nor connected recently.
func (s *Snapshot) IsStale(interval time.Duration) bool {
	if s.State() != corebt.StateDisconnected {
		return false
	}
	return s.lastActivity.Load().Add(interval).Before(time.Now())
}

// findCharacteristic resolves a locator against the discovered services.
func (s *Snapshot) findCharacteristic(loc Locator) *corebt.Characteristic {
	for _, svc := range s.Services() {
		if svc.UUID == loc.Service {
			if c := svc.FindCharacteristic(loc.Characteristic); c != nil {
				return c
			}
		}
	}
	return nil
}

func (s *Snapshot) setName(name string) {
	s.name.Store(&name)
}

func (s *Snapshot) setRSSI(rssi int) {
	s.rssi.Store(int64(rssi))
}

func (s *Snapshot) setState(state corebt.PeripheralState) {
	s.state.Store(int32(state))
}

func (s *Snapshot) setAdvertisement(adv corebt.AdvertisementData) {
	s.adv.Store(&adv)
}

func (s *Snapshot) setServices(services []*corebt.Service) {
	if services == nil {
		s.services.Store(nil)
		return
	}
	s.services.Store(&services)
}

func (s *Snapshot) setLastActivity(t time.Time) {
	s.lastActivity.Store(t)
}

func (s *Snapshot) setPlan(plan DiscoveryPlan) {
	if plan == nil {
		s.plan.Store(nil)
		return
	}
	s.plan.Store(&plan)
}
