package devices

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/user/bluecore/corebt"
)

// Catalog is an ordered set of device descriptions. The first description
// matching an advertisement wins.
type Catalog struct {
	Devices []DeviceDescription `yaml:"devices"`
}

// LoadCatalog reads a catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a catalog from YAML bytes.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return &c, nil
}

// Find matches an advertisement against the catalog. A description matches
// when one of its configured service UUIDs is advertised, or, for
// descriptions with no service filter, when the advertised local name equals
// the description name. Returns nil if nothing matches.
func (c *Catalog) Find(adv corebt.AdvertisementData) *DeviceDescription {
	advertised := adv.ServiceUUIDs()
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.Services == nil {
			if d.Name != "" && d.Name == adv.LocalName() {
				return d
			}
			continue
		}
		for _, svc := range d.Services {
			for _, uuid := range advertised {
				if svc.ServiceID == uuid {
					return d
				}
			}
		}
	}
	return nil
}
