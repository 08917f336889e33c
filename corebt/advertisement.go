package corebt

// Advertisement data dictionary keys, matching the host stack's naming.
const (
	AdvDataLocalName        = "kCBAdvDataLocalName"
	AdvDataServiceUUIDs     = "kCBAdvDataServiceUUIDs"
	AdvDataManufacturerData = "kCBAdvDataManufacturerData"
	AdvDataTxPowerLevel     = "kCBAdvDataTxPowerLevel"
	AdvDataIsConnectable    = "kCBAdvDataIsConnectable"
)

// AdvertisementData is the advertisement dictionary delivered by the host
// stack on discovery. The coordinator treats it as opaque apart from the
// accessors below.
type AdvertisementData map[string]interface{}

// LocalName returns the advertised GAP name, or "" if not advertised.
func (a AdvertisementData) LocalName() string {
	name, _ := a[AdvDataLocalName].(string)
	return name
}

// ServiceUUIDs returns the advertised service UUIDs, or nil.
func (a AdvertisementData) ServiceUUIDs() []string {
	uuids, _ := a[AdvDataServiceUUIDs].([]string)
	return uuids
}

// IsConnectable reports the connectable bit of the advertisement.
func (a AdvertisementData) IsConnectable() bool {
	connectable, _ := a[AdvDataIsConnectable].(bool)
	return connectable
}
