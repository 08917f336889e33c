package periph_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/bluecore/corebt"
	"github.com/user/bluecore/periph"
	"github.com/user/bluecore/sim"
)

// Writers parked behind an in-flight write wake and emit in FIFO order.
func TestQueuedWritersWakeInOrder(t *testing.T) {
	dev, c, _ := newRig(t, nil, false)
	connectAndDiscover(t, dev, c, 2)
	ch := discoveredChar(t, c, customSvc, ioChr)

	done := make(chan byte, 3)
	write := func(tag byte) {
		require.NoError(t, c.Write(testCtx(t), []byte{tag}, ch))
		done <- tag
	}
	go write(1)
	waitOps(t, dev, sim.OpWriteValue, 1)
	go write(2)
	settle()
	go write(3)
	settle()

	for i := 0; i < 3; i++ {
		waitOps(t, dev, sim.OpWriteValue, i+1)
		settle()
		require.Equal(t, i+1, dev.OpCount(sim.OpWriteValue), "at most one write in flight")
		dev.CompleteWrite(customSvc, ioChr, nil)
		require.Equal(t, byte(i+1), <-done)
	}

	var tags []byte
	for _, op := range dev.Ops() {
		if op.Kind == sim.OpWriteValue {
			tags = append(tags, op.Data[0])
		}
	}
	assert.Equal(t, []byte{1, 2, 3}, tags, "writes must hit the wire in queue order")
}

// Concurrent RSSI reads share one in-flight sample.
func TestRSSICoalescing(t *testing.T) {
	dev, c, _ := newRig(t, nil, false)
	connectAndDiscover(t, dev, c, 2)

	results := make(chan int, 2)
	for i := 0; i < 2; i++ {
		go func() {
			rssi, err := c.ReadRSSI(testCtx(t))
			require.NoError(t, err)
			results <- rssi
		}()
	}
	waitOps(t, dev, sim.OpReadRSSI, 1)
	settle()
	require.Equal(t, 1, dev.OpCount(sim.OpReadRSSI))

	dev.CompleteRSSI(-42, nil)
	for i := 0; i < 2; i++ {
		select {
		case rssi := <-results:
			assert.Equal(t, -42, rssi)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for RSSI result")
		}
	}
	assert.Equal(t, -42, c.Snapshot.RSSI())
}

// A disconnect releases write-without-response callers without an error and
// resolves pending RSSI reads with NotPresent.
func TestDisconnectDrainsGateAndRSSI(t *testing.T) {
	dev, c, _ := newRig(t, nil, false)
	connectAndDiscover(t, dev, c, 2)
	ch := discoveredChar(t, c, customSvc, streamChr)

	require.NoError(t, c.WriteWithoutResponse(testCtx(t), []byte{1}, ch))
	waitOps(t, dev, sim.OpWriteValue, 1)

	wwrDone := make(chan error, 1)
	go func() { wwrDone <- c.WriteWithoutResponse(testCtx(t), []byte{2}, ch) }()
	rssiDone := make(chan error, 1)
	go func() {
		_, err := c.ReadRSSI(testCtx(t))
		rssiDone <- err
	}()
	waitOps(t, dev, sim.OpReadRSSI, 1)
	settle()

	c.Disconnect()
	require.NoError(t, <-wwrDone, "gated writers resolve without an error on disconnect")
	require.True(t, periph.IsNotPresent(<-rssiDone))
	// The parked writer must not have emitted after the drain.
	settle()
	assert.Equal(t, 1, dev.OpCount(sim.OpWriteValue))
}

// Transport errors from the host stack reach the caller verbatim.
func TestTransportErrorPassthrough(t *testing.T) {
	dev, c, _ := newRig(t, nil, false)
	connectAndDiscover(t, dev, c, 2)
	ch := discoveredChar(t, c, customSvc, ioChr)

	readDone := make(chan error, 1)
	go func() {
		_, err := c.Read(testCtx(t), ch)
		readDone <- err
	}()
	waitOps(t, dev, sim.OpReadValue, 1)
	dev.CompleteRead(customSvc, ioChr, nil, corebt.ATTErrorReadNotPermitted)
	require.Equal(t, corebt.ATTErrorReadNotPermitted, <-readDone)

	writeDone := make(chan error, 1)
	go func() { writeDone <- c.Write(testCtx(t), []byte{1}, ch) }()
	waitOps(t, dev, sim.OpWriteValue, 1)
	dev.CompleteWrite(customSvc, ioChr, corebt.ATTErrorWriteNotPermitted)
	require.Equal(t, corebt.ATTErrorWriteNotPermitted, <-writeDone)
}

// Operations on a peripheral that is not connected fail fast with
// NotPresent.
func TestOperationsWhileDisconnected(t *testing.T) {
	_, c, _ := newRig(t, nil, false)
	ch := &corebt.Characteristic{UUID: ioChr, Service: &corebt.Service{UUID: customSvc}}

	_, err := c.Read(testCtx(t), ch)
	require.True(t, periph.IsNotPresent(err))
	err = c.Write(testCtx(t), []byte{1}, ch)
	require.True(t, periph.IsNotPresent(err))
	_, err = c.ReadRSSI(testCtx(t))
	require.True(t, periph.IsNotPresent(err))
	require.NoError(t, c.WriteWithoutResponse(testCtx(t), []byte{1}, ch))
}

// A characteristic handle with no parent service is rejected.
func TestMissingParentService(t *testing.T) {
	_, c, _ := newRig(t, nil, false)
	orphan := &corebt.Characteristic{UUID: ioChr}

	_, err := c.Read(testCtx(t), orphan)
	require.True(t, periph.IsNotPresent(err))
	_, err = c.RegisterNotificationsFor(orphan, func([]byte) error { return nil })
	require.True(t, periph.IsNotPresent(err))
}

// Cancelling a subscription twice is a no-op the second time, and the last
// handler going away disables notifications on the wire once.
func TestDeregisterIdempotent(t *testing.T) {
	dev, c, _ := newRig(t, nil, false)
	connectAndDiscover(t, dev, c, 2)

	sub := c.RegisterNotifications(customSvc, notifyChr, func([]byte) error { return nil })
	waitOps(t, dev, sim.OpSetNotify, 1)

	sub.Cancel()
	waitOps(t, dev, sim.OpSetNotify, 2)
	sub.Cancel()
	settle()
	require.Equal(t, 2, dev.OpCount(sim.OpSetNotify))

	var disables int
	for _, op := range dev.Ops() {
		if op.Kind == sim.OpSetNotify && !op.Enabled {
			disables++
		}
	}
	assert.Equal(t, 1, disables)
}

// The registry survives a disconnect: reconnecting re-enables notifications
// on the wire.
func TestReconnectResubscribes(t *testing.T) {
	dev, c, _ := newRig(t, nil, false)
	sub := c.RegisterNotifications(customSvc, notifyChr, func([]byte) error { return nil })
	defer sub.Cancel()

	connectAndDiscover(t, dev, c, 2)
	waitOps(t, dev, sim.OpSetNotify, 1)

	c.Disconnect()
	require.Nil(t, c.Snapshot.Services())

	connectAndDiscover(t, dev, c, 2)
	require.Eventually(t, func() bool {
		enables := 0
		for _, op := range dev.Ops() {
			if op.Kind == sim.OpSetNotify && op.Enabled {
				enables++
			}
		}
		return enables == 2
	}, 2*time.Second, 5*time.Millisecond, "reconnect must re-enable notifications")
}

// An orphaned coordinator turns connect and disconnect into no-ops.
func TestOrphanedPeripheral(t *testing.T) {
	dev, c, central := newRig(t, nil, false)
	c.Orphan()
	c.Connect()
	c.Disconnect()
	settle()
	require.Equal(t, 0, central.connectCount())
	require.Equal(t, corebt.StateDisconnected, c.Snapshot.State())
	require.Equal(t, 0, dev.OpCount(sim.OpDiscoverServices))
}

// An abandoned reader detaches, but the in-flight read still completes and
// resolves the waiters that stayed.
func TestReadCancellation(t *testing.T) {
	dev, c, _ := newRig(t, nil, false)
	connectAndDiscover(t, dev, c, 2)
	ch := discoveredChar(t, c, batterySvc, batteryLevel)

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := make(chan error, 1)
	go func() {
		_, err := c.Read(ctx, ch)
		cancelled <- err
	}()
	waitOps(t, dev, sim.OpReadValue, 1)

	kept := make(chan []byte, 1)
	go func() {
		data, err := c.Read(testCtx(t), ch)
		require.NoError(t, err)
		kept <- data
	}()
	settle()

	cancel()
	require.ErrorIs(t, <-cancelled, context.Canceled)

	dev.CompleteRead(batterySvc, batteryLevel, []byte("ok"), nil)
	select {
	case data := <-kept:
		assert.Equal(t, []byte("ok"), data)
	case <-time.After(2 * time.Second):
		t.Fatal("surviving reader never resolved")
	}
	require.Equal(t, 1, dev.OpCount(sim.OpReadValue))
}

// Unsolicited completions are discarded without disturbing the tables.
func TestUnsolicitedCompletionsDiscarded(t *testing.T) {
	dev, c, _ := newRig(t, nil, false)
	connectAndDiscover(t, dev, c, 2)
	ch := discoveredChar(t, c, customSvc, ioChr)

	dev.CompleteWrite(customSvc, ioChr, nil)
	settle()

	// The table is still free: a fresh write goes straight to the wire.
	writeDone := make(chan error, 1)
	go func() { writeDone <- c.Write(testCtx(t), []byte{9}, ch) }()
	waitOps(t, dev, sim.OpWriteValue, 1)
	dev.CompleteWrite(customSvc, ioChr, nil)
	require.NoError(t, <-writeDone)
}
