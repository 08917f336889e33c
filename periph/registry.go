package periph

import "github.com/google/uuid"

// NotificationHandler is invoked for every value the peripheral pushes on a
// subscribed characteristic. Handlers for one characteristic run
// sequentially in registration order; a failing handler is logged and does
// not affect the others, but it does delay the handlers after it.
type NotificationHandler func(data []byte) error

type subscription struct {
	id      uuid.UUID
	handler NotificationHandler
}

// Subscription is the handle returned by notification registration. It is a
// value; dropping it does not deregister — call Cancel. The registration
// itself survives disconnects so that a reconnect re-subscribes on the wire.
type Subscription struct {
	locator     Locator
	id          uuid.UUID
	coordinator *Coordinator
}

// Locator returns the characteristic the subscription is attached to.
func (s *Subscription) Locator() Locator { return s.locator }

// Cancel deregisters the subscription. Cancelling twice is a no-op on the
// second call.
func (s *Subscription) Cancel() {
	if s == nil || s.coordinator == nil {
		return
	}
	s.coordinator.Deregister(s)
}

// registryHandlers snapshots the handlers for a locator in insertion order.
// Callers must hold the coordinator mutex.
func (c *Coordinator) registryHandlers(loc Locator) []NotificationHandler {
	subs := c.registry[loc]
	if len(subs) == 0 {
		return nil
	}
	handlers := make([]NotificationHandler, len(subs))
	for i, s := range subs {
		handlers[i] = s.handler
	}
	return handlers
}
