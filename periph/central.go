package periph

import (
	"github.com/user/bluecore/corebt"
	"github.com/user/bluecore/devices"
)

// Central is the slice of the central manager the coordinator calls back
// into. The coordinator's reference to it is non-owning: the central owns
// its coordinators, and once it drops one (see Orphan), connect and
// disconnect degrade to logged no-ops.
type Central interface {
	// Connect asks the central to establish a link to the peripheral. The
	// central reports link-up by calling HandleConnect on the coordinator.
	Connect(c *Coordinator)

	// Disconnect asks the central to tear the link down. The central reports
	// the result by calling HandleDisconnect.
	Disconnect(c *Coordinator)

	// FindDeviceDescription resolves the discovery plan for a device from
	// its advertisement, or nil for "discover everything".
	FindDeviceDescription(adv corebt.AdvertisementData) *devices.DeviceDescription
}
