package periph_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/user/bluecore/corebt"
	"github.com/user/bluecore/devices"
	"github.com/user/bluecore/periph"
	"github.com/user/bluecore/sim"
)

const (
	batterySvc   = "180F"
	batteryLevel = "2A19"
	customSvc    = "FFF0"
	ioChr        = "FFF1"
	notifyChr    = "FFF2"
	streamChr    = "FFF3"
)

// fakeCentral plays the central manager's part: it flips the simulated link
// state and reports connect/disconnect to the coordinator, the way the real
// central would from its own delegate callbacks.
type fakeCentral struct {
	dev  *sim.Device
	desc *devices.DeviceDescription

	mu          sync.Mutex
	connects    int
	disconnects int
}

func (f *fakeCentral) Connect(c *periph.Coordinator) {
	f.mu.Lock()
	f.connects++
	f.mu.Unlock()
	f.dev.SetState(corebt.StateConnected)
	c.HandleConnect()
}

func (f *fakeCentral) Disconnect(c *periph.Coordinator) {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()
	f.dev.SetState(corebt.StateDisconnected)
	c.HandleDisconnect(nil)
}

func (f *fakeCentral) FindDeviceDescription(adv corebt.AdvertisementData) *devices.DeviceDescription {
	return f.desc
}

func (f *fakeCentral) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func testTable() []*corebt.Service {
	return []*corebt.Service{
		{
			UUID:      batterySvc,
			IsPrimary: true,
			Characteristics: []*corebt.Characteristic{
				{UUID: batteryLevel, Properties: corebt.PropRead | corebt.PropNotify},
			},
		},
		{
			UUID:      customSvc,
			IsPrimary: true,
			Characteristics: []*corebt.Characteristic{
				{UUID: ioChr, Properties: corebt.PropRead | corebt.PropWrite},
				{UUID: notifyChr, Properties: corebt.PropNotify},
				{UUID: streamChr, Properties: corebt.PropWriteWithoutResponse},
			},
		},
	}
}

func testAdvertisement() corebt.AdvertisementData {
	return corebt.AdvertisementData{
		corebt.AdvDataLocalName:     "Test Device",
		corebt.AdvDataServiceUUIDs:  []string{batterySvc, customSvc},
		corebt.AdvDataIsConnectable: true,
	}
}

// newRig stands up a simulated device and a coordinator around it. The
// returned central is already wired; callers still decide when to connect.
func newRig(t *testing.T, desc *devices.DeviceDescription, autoRespond bool) (*sim.Device, *periph.Coordinator, *fakeCentral) {
	t.Helper()
	dev := sim.NewDevice("aabbccdd-0000-1111-2222-333344445555", "Test Device", testTable())
	dev.AutoRespond = autoRespond
	t.Cleanup(dev.Close)
	central := &fakeCentral{dev: dev, desc: desc}
	c := periph.NewCoordinator(dev, central, testAdvertisement(), -50)
	return dev, c, central
}

// connectAndDiscover connects and waits until every expected service has its
// characteristics discovered.
func connectAndDiscover(t *testing.T, dev *sim.Device, c *periph.Coordinator, wantServices int) {
	t.Helper()
	c.Connect()
	require.Eventually(t, func() bool {
		return dev.DiscoveryComplete() && len(c.Snapshot.Services()) == wantServices
	}, 2*time.Second, 5*time.Millisecond, "discovery did not complete")
}

// discoveredChar resolves a characteristic handle from the snapshot.
func discoveredChar(t *testing.T, c *periph.Coordinator, serviceUUID, characteristicUUID string) *corebt.Characteristic {
	t.Helper()
	for _, svc := range c.Snapshot.Services() {
		if svc.UUID == serviceUUID {
			if ch := svc.FindCharacteristic(characteristicUUID); ch != nil {
				return ch
			}
		}
	}
	t.Fatalf("characteristic %s/%s not discovered", serviceUUID, characteristicUUID)
	return nil
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// waitOps blocks until the device has recorded n operations of the kind.
func waitOps(t *testing.T, dev *sim.Device, kind sim.OpKind, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return dev.OpCount(kind) >= n
	}, 2*time.Second, 5*time.Millisecond, "waiting for %d %s ops", n, kind)
}

// settle gives in-flight goroutines time to park before an assertion about
// something NOT happening.
func settle() {
	time.Sleep(50 * time.Millisecond)
}
