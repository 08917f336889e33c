package periph

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/user/bluecore/corebt"
)

// Coordinator is the per-device request coordinator. It owns the host
// peripheral handle, serializes all request bookkeeping behind one mutex
// (never held across a suspension), and exposes awaitable read/write/notify
// operations on top of the host stack's callback interface.
type Coordinator struct {
	// Snapshot is the observable peripheral state. Reads are lock-free and
	// safe from any goroutine.
	Snapshot *Snapshot

	peripheral corebt.Peripheral
	bridge     *delegateBridge
	log        *logrus.Entry

	mu       sync.Mutex
	central  Central
	access   map[Locator]accessEntry
	registry map[Locator][]*subscription
	// wwrGate is the write-without-response gate. A leading nil entry marks
	// the write currently in flight; the rest are parked writers.
	wwrGate   []resumer
	rssiQueue []chan rssiResult

	// disconnectActivityInterval backdates last-activity on disconnect so a
	// central implementing a grace window can expire the device sooner.
	disconnectActivityInterval time.Duration
}

type rssiResult struct {
	rssi int
	err  error
}

// NewCoordinator creates the coordinator for a newly observed peripheral and
// installs its delegate on the host handle. adv and rssi come from the
// discovery event that surfaced the device.
func NewCoordinator(peripheral corebt.Peripheral, central Central, adv corebt.AdvertisementData, rssi int) *Coordinator {
	c := &Coordinator{
		Snapshot:   newSnapshot(),
		peripheral: peripheral,
		central:    central,
		access:     make(map[Locator]accessEntry),
		registry:   make(map[Locator][]*subscription),
		log:        logrus.WithField("device", shortID(peripheral.Identifier())),
	}
	c.bridge = &delegateBridge{c: c}
	peripheral.SetDelegate(c.bridge)
	c.Snapshot.setState(peripheral.State())
	c.HandleAdvertisement(adv, rssi)
	if name := peripheral.Name(); name != "" {
		c.Snapshot.setName(name)
	}
	return c
}

// SetDisconnectActivityInterval configures how far last-activity is
// backdated when the link drops. Zero (the default) stamps the disconnect
// time itself.
func (c *Coordinator) SetDisconnectActivityInterval(d time.Duration) {
	c.mu.Lock()
	c.disconnectActivityInterval = d
	c.mu.Unlock()
}

// Identifier returns the host stack's identifier for the peripheral.
func (c *Coordinator) Identifier() string {
	return c.peripheral.Identifier()
}

// MaximumWriteValueLength reports the MTU-derived payload limit for a single
// write in the given mode, for callers that chunk large transfers.
func (c *Coordinator) MaximumWriteValueLength(mode corebt.WriteMode) int {
	return c.peripheral.MaximumWriteValueLength(mode)
}

// IsStale reports whether the device is disconnected and unseen for longer
// than interval.
func (c *Coordinator) IsStale(interval time.Duration) bool {
	return c.Snapshot.IsStale(interval)
}

// Orphan severs the back-reference to the central. Used by the central when
// it drops the device; connect and disconnect become logged no-ops.
func (c *Coordinator) Orphan() {
	c.mu.Lock()
	c.central = nil
	c.mu.Unlock()
}

// Connect asks the central to establish a link. It returns once the request
// has been handed over; link-up is reported later through HandleConnect.
func (c *Coordinator) Connect() {
	c.mu.Lock()
	central := c.central
	c.mu.Unlock()
	if central == nil {
		c.log.Warn("connect requested on orphaned peripheral")
		return
	}
	c.Snapshot.setState(c.peripheral.State())
	central.Connect(c)
}

// Disconnect unsubscribes every notifying characteristic on the wire and
// asks the central to tear the link down.
func (c *Coordinator) Disconnect() {
	c.mu.Lock()
	central := c.central
	c.mu.Unlock()
	if central == nil {
		c.log.Warn("disconnect requested on orphaned peripheral")
		return
	}
	for _, svc := range c.Snapshot.Services() {
		for _, ch := range svc.Characteristics {
			if ch.IsNotifying.Load() {
				c.peripheral.SetNotifyValue(false, ch)
			}
		}
	}
	central.Disconnect(c)
}

// Read reads the characteristic's current value. Concurrent reads of the
// same characteristic coalesce onto one wire read and all receive the same
// outcome; a read never interleaves with a write in flight on the same
// characteristic.
func (c *Coordinator) Read(ctx context.Context, characteristic *corebt.Characteristic) ([]byte, error) {
	loc, err := locatorFor(characteristic)
	if err != nil {
		return nil, err
	}
	var granted *queuedResumer
	for {
		c.mu.Lock()
		if c.Snapshot.State() != corebt.StateConnected {
			c.mu.Unlock()
			stepDone(granted)
			return nil, &NotPresentError{Characteristic: loc.Characteristic}
		}
		switch entry := c.access[loc].(type) {
		case *readAccess:
			// Coalesce onto the in-flight read.
			w := make(readWaiter, 1)
			entry.waiters = append(entry.waiters, w)
			c.mu.Unlock()
			stepDone(granted)
			return c.awaitRead(ctx, loc, w)
		case *writeAccess:
			q := newQueuedResumer()
			entry.park(q)
			c.mu.Unlock()
			stepDone(granted)
			if err := c.awaitTurn(ctx, loc, q); err != nil {
				return nil, err
			}
			granted = q
		default:
			w := make(readWaiter, 1)
			c.access[loc] = &readAccess{waiters: []readWaiter{w}}
			c.mu.Unlock()
			c.peripheral.ReadValue(characteristic)
			stepDone(granted)
			return c.awaitRead(ctx, loc, w)
		}
	}
}

// Write writes the characteristic with response. At most one write is in
// flight per characteristic; further writers and readers queue in FIFO
// order behind it.
func (c *Coordinator) Write(ctx context.Context, data []byte, characteristic *corebt.Characteristic) error {
	loc, err := locatorFor(characteristic)
	if err != nil {
		return err
	}
	payload := append([]byte(nil), data...)
	var granted *queuedResumer
	for {
		c.mu.Lock()
		if c.Snapshot.State() != corebt.StateConnected {
			c.mu.Unlock()
			stepDone(granted)
			return &NotPresentError{Characteristic: loc.Characteristic}
		}
		if entry, busy := c.access[loc]; busy {
			q := newQueuedResumer()
			entry.park(q)
			c.mu.Unlock()
			stepDone(granted)
			if err := c.awaitTurn(ctx, loc, q); err != nil {
				return err
			}
			granted = q
			continue
		}
		completer := make(writeCompleter, 1)
		c.access[loc] = &writeAccess{completer: completer}
		c.mu.Unlock()
		c.peripheral.WriteValue(payload, characteristic, corebt.WriteWithResponse)
		stepDone(granted)
		select {
		case err := <-completer:
			return err
		case <-ctx.Done():
			// The write stays in flight; the entry is freed on completion or
			// on disconnect, and the buffered completer absorbs the result.
			return ctx.Err()
		}
	}
}

// WriteWithoutResponse writes the characteristic without response. Writers
// are admitted one at a time; the host's ready-to-send signal releases the
// next. There is no completion or error channel for these writes.
func (c *Coordinator) WriteWithoutResponse(ctx context.Context, data []byte, characteristic *corebt.Characteristic) error {
	if _, err := locatorFor(characteristic); err != nil {
		return err
	}
	payload := append([]byte(nil), data...)
	for {
		c.mu.Lock()
		if c.Snapshot.State() != corebt.StateConnected {
			c.mu.Unlock()
			return nil
		}
		if len(c.wwrGate) == 0 {
			// Claim the in-flight slot.
			c.wwrGate = append(c.wwrGate, nil)
			c.mu.Unlock()
			c.peripheral.WriteValue(payload, characteristic, corebt.WriteWithoutResponse)
			return nil
		}
		q := make(resumer, 1)
		c.wwrGate = append(c.wwrGate, q)
		c.mu.Unlock()
		select {
		case <-q:
		case <-ctx.Done():
			c.mu.Lock()
			c.wwrGate = removeResumer(c.wwrGate, q)
			c.mu.Unlock()
			return ctx.Err()
		}
	}
}

// ReadRSSI samples the link's signal strength. Concurrent callers piggy-back
// on one in-flight sample.
func (c *Coordinator) ReadRSSI(ctx context.Context) (int, error) {
	c.mu.Lock()
	if c.Snapshot.State() != corebt.StateConnected {
		c.mu.Unlock()
		return 0, &NotPresentError{}
	}
	w := make(chan rssiResult, 1)
	c.rssiQueue = append(c.rssiQueue, w)
	issue := len(c.rssiQueue) == 1
	c.mu.Unlock()
	if issue {
		c.peripheral.ReadRSSI()
	}
	select {
	case r := <-w:
		return r.rssi, r.err
	case <-ctx.Done():
		// The queued entry resolves into the buffered channel and is
		// discarded with it.
		return 0, ctx.Err()
	}
}

// RegisterNotifications registers a handler for server-initiated value
// pushes on the characteristic identified by service and characteristic
// UUID. Registration never fails: if the characteristic is not discovered
// yet, notifications are enabled on the wire as soon as discovery reveals
// it.
func (c *Coordinator) RegisterNotifications(serviceUUID, characteristicUUID string, handler NotificationHandler) *Subscription {
	loc := Locator{Service: serviceUUID, Characteristic: characteristicUUID}
	sub := &subscription{id: uuid.New(), handler: handler}
	c.mu.Lock()
	c.registry[loc] = append(c.registry[loc], sub)
	c.mu.Unlock()
	c.log.WithField("characteristic", loc.String()).Debug("notification handler registered")

	// Opportunistic enable: only possible once discovery has revealed the
	// characteristic and it advertises notify.
	if ch := c.Snapshot.findCharacteristic(loc); ch != nil && ch.Properties.Contains(corebt.PropNotify) && !ch.IsNotifying.Load() {
		c.peripheral.SetNotifyValue(true, ch)
	}
	return &Subscription{locator: loc, id: sub.id, coordinator: c}
}

// RegisterNotificationsFor registers a handler on a discovered
// characteristic handle. Fails only if the handle has no parent service.
func (c *Coordinator) RegisterNotificationsFor(characteristic *corebt.Characteristic, handler NotificationHandler) (*Subscription, error) {
	loc, err := locatorFor(characteristic)
	if err != nil {
		return nil, err
	}
	return c.RegisterNotifications(loc.Service, loc.Characteristic, handler), nil
}

// Deregister removes a subscription. Removing the last handler for a
// characteristic disables notifications on the wire when the characteristic
// is discovered. Deregistering twice is a no-op.
func (c *Coordinator) Deregister(sub *Subscription) {
	if sub == nil {
		return
	}
	loc := sub.locator
	c.mu.Lock()
	subs := c.registry[loc]
	found := false
	for i, s := range subs {
		if s.id == sub.id {
			subs = append(subs[:i], subs[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		c.mu.Unlock()
		return
	}
	if len(subs) == 0 {
		delete(c.registry, loc)
	} else {
		c.registry[loc] = subs
	}
	last := len(subs) == 0
	c.mu.Unlock()

	c.log.WithField("characteristic", loc.String()).Debug("notification handler deregistered")
	if !last {
		return
	}
	if ch := c.Snapshot.findCharacteristic(loc); ch != nil && ch.Properties.Contains(corebt.PropNotify) {
		c.peripheral.SetNotifyValue(false, ch)
	}
}

// HandleAdvertisement records a fresh advertisement for the device. Called
// by the central on every discovery event.
func (c *Coordinator) HandleAdvertisement(adv corebt.AdvertisementData, rssi int) {
	if adv != nil {
		c.Snapshot.setAdvertisement(adv)
		if name := adv.LocalName(); name != "" {
			c.Snapshot.setName(name)
		}
	}
	c.Snapshot.setRSSI(rssi)
	c.Snapshot.setLastActivity(time.Now())
}

// HandleDisconnect is called by the central when the link drops, whether
// requested or by loss. Every in-flight and queued request is resolved:
// reads, writes and RSSI samples with NotPresentError, gated
// write-without-response callers with no error (the operation has no
// acknowledgment, so an unacknowledged write counts as completed-unknown).
// The notification registry survives so a reconnect re-subscribes.
func (c *Coordinator) HandleDisconnect(err error) {
	c.mu.Lock()
	c.Snapshot.setState(corebt.StateDisconnected)
	c.Snapshot.setServices(nil)
	c.Snapshot.setPlan(nil)
	c.Snapshot.setLastActivity(time.Now().Add(-c.disconnectActivityInterval))
	access := c.access
	c.access = make(map[Locator]accessEntry)
	gate := c.wwrGate
	c.wwrGate = nil
	rssiQueue := c.rssiQueue
	c.rssiQueue = nil
	c.mu.Unlock()

	for loc, entry := range access {
		switch e := entry.(type) {
		case *readAccess:
			resolveReaders(e.waiters, nil, &NotPresentError{Characteristic: loc.Characteristic})
		case *writeAccess:
			e.completer <- &NotPresentError{Characteristic: loc.Characteristic}
		}
		wakeInOrder(entry.drainQueued())
	}
	for _, q := range gate {
		if q != nil {
			q <- struct{}{}
		}
	}
	for _, w := range rssiQueue {
		w <- rssiResult{err: &NotPresentError{}}
	}

	if err != nil {
		c.log.WithError(err).Info("peripheral disconnected")
	} else {
		c.log.Info("peripheral disconnected")
	}
}

// awaitRead parks the caller on a coalesced read waiter.
func (c *Coordinator) awaitRead(ctx context.Context, loc Locator, w readWaiter) ([]byte, error) {
	select {
	case r := <-w:
		return r.value, r.err
	case <-ctx.Done():
		// Detach this waiter only; the in-flight read still completes and
		// resolves the remaining group.
		c.mu.Lock()
		if e, ok := c.access[loc].(*readAccess); ok {
			e.waiters = removeReadWaiter(e.waiters, w)
		}
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// awaitTurn parks the caller behind the current entry until its wake-up. On
// cancellation the caller removes itself from the queue; if a completion
// already claimed the queue, the wake-up is consumed and acknowledged so the
// waker is not left hanging.
func (c *Coordinator) awaitTurn(ctx context.Context, loc Locator, q *queuedResumer) error {
	select {
	case <-q.wake:
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		removed := false
		if entry, ok := c.access[loc]; ok {
			removed = entry.unpark(q)
		}
		c.mu.Unlock()
		if !removed {
			<-q.wake
			close(q.done)
		}
		return ctx.Err()
	}
}

// stepDone acknowledges a consumed wake-up after the re-entry step finished.
func stepDone(q *queuedResumer) {
	if q != nil {
		close(q.done)
	}
}

// handleUpdatedValue drains a pending read for the characteristic, then fans
// the value out to registered notification handlers. A value that matches no
// read entry and no handler is an unsolicited update and is dropped.
func (c *Coordinator) handleUpdatedValue(characteristic *corebt.Characteristic, err error) {
	loc, lerr := locatorFor(characteristic)
	if lerr != nil {
		c.log.Warn("value update for characteristic without parent service, discarding")
		return
	}
	value := append([]byte(nil), characteristic.Value...)

	c.mu.Lock()
	var waiters []readWaiter
	var queued []*queuedResumer
	e, pendingRead := c.access[loc].(*readAccess)
	if pendingRead {
		delete(c.access, loc)
		waiters = e.waiters
		queued = e.queued
	}
	handlers := c.registryHandlers(loc)
	c.mu.Unlock()

	if pendingRead {
		// The coalesced group resolves atomically before any queued
		// requester runs.
		resolveReaders(waiters, value, err)
		wakeInOrder(queued)
	}

	if err != nil {
		if !pendingRead {
			c.log.WithError(err).WithField("characteristic", loc.String()).Warn("unsolicited value update error, discarding")
		}
		return
	}
	for _, h := range handlers {
		if herr := h(append([]byte(nil), value...)); herr != nil {
			c.log.WithError(herr).WithField("characteristic", loc.String()).Warn("notification handler failed")
		}
	}
}

// handleWroteValue completes the in-flight write for the characteristic.
func (c *Coordinator) handleWroteValue(characteristic *corebt.Characteristic, err error) {
	loc, lerr := locatorFor(characteristic)
	if lerr != nil {
		c.log.Warn("write completion for characteristic without parent service, discarding")
		return
	}
	c.mu.Lock()
	e, ok := c.access[loc].(*writeAccess)
	if ok {
		delete(c.access, loc)
	}
	c.mu.Unlock()
	if !ok {
		c.log.WithField("characteristic", loc.String()).Warn("write completion with no write in flight, discarding")
		return
	}
	e.completer <- err
	wakeInOrder(e.queued)
}

// handleReadRSSI resolves every caller waiting on the in-flight sample.
func (c *Coordinator) handleReadRSSI(rssi int, err error) {
	if err == nil {
		c.Snapshot.setRSSI(rssi)
	}
	c.mu.Lock()
	queue := c.rssiQueue
	c.rssiQueue = nil
	c.mu.Unlock()
	for _, w := range queue {
		w <- rssiResult{rssi: rssi, err: err}
	}
}

// handleReadyToSendWriteWithoutResponse opens the gate: every parked writer
// is resumed and the first to re-enter claims the in-flight slot. A wake-up
// may be wasted, a write never is.
func (c *Coordinator) handleReadyToSendWriteWithoutResponse() {
	c.mu.Lock()
	gate := c.wwrGate
	c.wwrGate = nil
	c.mu.Unlock()
	for _, q := range gate {
		if q != nil {
			q <- struct{}{}
		}
	}
}

// handleUpdatedNotificationState records the result of a set-notify request.
// The IsNotifying flag on the handle is mutated by the host stack itself;
// this is the coordinator's chance to surface failures.
func (c *Coordinator) handleUpdatedNotificationState(characteristic *corebt.Characteristic, err error) {
	if err != nil {
		c.log.WithError(err).WithField("characteristic", characteristic.UUID).Error("notification state change failed")
		return
	}
	c.log.WithFields(logrus.Fields{
		"characteristic": characteristic.UUID,
		"notifying":      characteristic.IsNotifying.Load(),
	}).Debug("notification state changed")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
