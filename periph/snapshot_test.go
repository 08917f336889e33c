package periph_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/bluecore/corebt"
	"github.com/user/bluecore/devices"
	"github.com/user/bluecore/sim"
)

func TestSnapshotObservation(t *testing.T) {
	dev, c, _ := newRig(t, nil, false)

	name, ok := c.Snapshot.Name()
	require.True(t, ok)
	assert.Equal(t, "Test Device", name)
	assert.Equal(t, -50, c.Snapshot.RSSI())
	assert.True(t, c.Snapshot.Advertisement().IsConnectable())
	assert.Nil(t, c.Snapshot.Services(), "services must be nil before discovery")
	assert.Equal(t, corebt.StateDisconnected, c.Snapshot.State())

	connectAndDiscover(t, dev, c, 2)
	assert.Equal(t, corebt.StateConnected, c.Snapshot.State())
	assert.Len(t, c.Snapshot.Services(), 2)

	dev.UpdateName("Renamed")
	require.Eventually(t, func() bool {
		name, _ := c.Snapshot.Name()
		return name == "Renamed"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStaleness(t *testing.T) {
	dev, c, _ := newRig(t, nil, false)
	c.SetDisconnectActivityInterval(2 * time.Hour)

	// Fresh advertisement: not stale even though disconnected.
	require.False(t, c.IsStale(time.Hour))

	connectAndDiscover(t, dev, c, 2)
	// While connected the device can never be stale; last activity is "now".
	require.False(t, c.IsStale(0))
	assert.WithinDuration(t, time.Now(), c.Snapshot.LastActivity(), time.Second)

	c.Disconnect()
	// The disconnect stamp is backdated by the configured interval.
	require.True(t, c.IsStale(time.Hour))
	require.False(t, c.IsStale(3*time.Hour))
}

// A device description narrows discovery to the configured services and
// characteristics, and requests descriptors where asked.
func TestDiscoveryPlanFiltering(t *testing.T) {
	desc := &devices.DeviceDescription{
		Name: "Test Device",
		Services: []devices.ServiceConfiguration{
			{
				ServiceID: batterySvc,
				Characteristics: []devices.CharacteristicDescription{
					{CharacteristicID: batteryLevel, DiscoverDescriptors: true},
				},
			},
		},
	}
	dev, c, _ := newRig(t, desc, false)
	connectAndDiscover(t, dev, c, 1)

	plan := c.Snapshot.RequestedCharacteristics()
	require.NotNil(t, plan)
	require.Contains(t, plan, batterySvc)
	require.Contains(t, plan[batterySvc], batteryLevel)

	var discoverSvcs, discoverChars, discoverDescs []sim.Op
	for _, op := range dev.Ops() {
		switch op.Kind {
		case sim.OpDiscoverServices:
			discoverSvcs = append(discoverSvcs, op)
		case sim.OpDiscoverCharacteristics:
			discoverChars = append(discoverChars, op)
		case sim.OpDiscoverDescriptors:
			discoverDescs = append(discoverDescs, op)
		}
	}
	require.Len(t, discoverSvcs, 1)
	assert.Equal(t, []string{batterySvc}, discoverSvcs[0].UUIDs)
	require.Len(t, discoverChars, 1)
	assert.Equal(t, batterySvc, discoverChars[0].Service)
	assert.Equal(t, []string{batteryLevel}, discoverChars[0].UUIDs)
	waitOps(t, dev, sim.OpDiscoverDescriptors, 1)
	for _, op := range dev.Ops() {
		if op.Kind == sim.OpDiscoverDescriptors {
			assert.Equal(t, batteryLevel, op.Characteristic)
		}
	}
}

// A service configured without characteristics discovers all of them.
func TestDiscoveryPlanServiceWildcard(t *testing.T) {
	desc := &devices.DeviceDescription{
		Services: []devices.ServiceConfiguration{
			{ServiceID: customSvc},
		},
	}
	dev, c, _ := newRig(t, desc, false)
	connectAndDiscover(t, dev, c, 1)

	require.Len(t, c.Snapshot.Services(), 1)
	assert.Equal(t, customSvc, c.Snapshot.Services()[0].UUID)
	for _, op := range dev.Ops() {
		if op.Kind == sim.OpDiscoverCharacteristics {
			assert.Empty(t, op.UUIDs, "wildcard service must discover every characteristic")
		}
	}
}
