// Package periph coordinates logical GATT requests against a single remote
// peripheral: it converts the host stack's one-shot delegate callbacks into
// per-characteristic request completions, serializes concurrent access,
// drives post-connect discovery and auto-subscription, and publishes an
// observable snapshot of peripheral state.
package periph

import (
	"fmt"

	"github.com/user/bluecore/corebt"
)

// Locator identifies a characteristic by its parent service UUID and its own
// UUID. It is the key for every per-characteristic table in the coordinator.
type Locator struct {
	Service        string
	Characteristic string
}

func (l Locator) String() string {
	return fmt.Sprintf("%s/%s", l.Service, l.Characteristic)
}

// locatorFor derives the Locator for a characteristic handle. Fails with
// NotPresentError when the handle has no parent service.
func locatorFor(c *corebt.Characteristic) (Locator, error) {
	if c == nil || c.Service == nil {
		uuid := ""
		if c != nil {
			uuid = c.UUID
		}
		return Locator{}, &NotPresentError{Characteristic: uuid}
	}
	return Locator{Service: c.Service.UUID, Characteristic: c.UUID}, nil
}
