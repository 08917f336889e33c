// Command periphsim runs the peripheral coordinator against a simulated
// device: connect, plan-driven discovery, auto-subscription, reads, writes,
// flow-controlled writes without response, RSSI sampling and disconnect.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/user/bluecore/corebt"
	"github.com/user/bluecore/devices"
	"github.com/user/bluecore/periph"
	"github.com/user/bluecore/sim"
)

const defaultCatalog = `
devices:
  - name: Thermo Tag
    services:
      - service: "181A"
        characteristics:
          - characteristic: "2A6E"
            discover_descriptors: true
      - service: "180F"
`

// demoCentral is a minimal central manager: it flips the simulated link
// state and resolves discovery plans from the catalog.
type demoCentral struct {
	dev     *sim.Device
	catalog *devices.Catalog
}

func (d *demoCentral) Connect(c *periph.Coordinator) {
	d.dev.SetState(corebt.StateConnected)
	c.HandleConnect()
}

func (d *demoCentral) Disconnect(c *periph.Coordinator) {
	d.dev.SetState(corebt.StateDisconnected)
	c.HandleDisconnect(nil)
}

func (d *demoCentral) FindDeviceDescription(adv corebt.AdvertisementData) *devices.DeviceDescription {
	return d.catalog.Find(adv)
}

func main() {
	level := flag.String("log-level", "debug", "log level (trace, debug, info, warn, error)")
	catalogPath := flag.String("catalog", "", "path to a device catalog YAML (built-in default if empty)")
	flag.Parse()

	parsed, err := logrus.ParseLevel(*level)
	if err != nil {
		logrus.WithError(err).Fatal("invalid log level")
	}
	logrus.SetLevel(parsed)

	var catalog *devices.Catalog
	if *catalogPath != "" {
		catalog, err = devices.LoadCatalog(*catalogPath)
	} else {
		catalog, err = devices.ParseCatalog([]byte(defaultCatalog))
	}
	if err != nil {
		logrus.WithError(err).Fatal("cannot load catalog")
	}

	dev := sim.NewDevice("d1e2a3b4-0000-4000-8000-123456789abc", "Thermo Tag", []*corebt.Service{
		{
			UUID:      "181A",
			IsPrimary: true,
			Characteristics: []*corebt.Characteristic{
				{UUID: "2A6E", Properties: corebt.PropRead | corebt.PropNotify},
			},
		},
		{
			UUID:      "180F",
			IsPrimary: true,
			Characteristics: []*corebt.Characteristic{
				{UUID: "2A19", Properties: corebt.PropRead},
				{UUID: "2A1A", Properties: corebt.PropWrite | corebt.PropWriteWithoutResponse},
			},
		},
	})
	defer dev.Close()
	dev.AutoRespond = true
	dev.SetValue("181A", "2A6E", []byte{0xE4, 0x09}) // 25.32 degrees, hundredths
	dev.SetValue("180F", "2A19", []byte{0x5F})       // 95 %

	central := &demoCentral{dev: dev, catalog: catalog}
	adv := corebt.AdvertisementData{
		corebt.AdvDataLocalName:     "Thermo Tag",
		corebt.AdvDataServiceUUIDs:  []string{"181A", "180F"},
		corebt.AdvDataIsConnectable: true,
	}
	c := periph.NewCoordinator(dev, central, adv, -58)

	sub := c.RegisterNotifications("181A", "2A6E", func(data []byte) error {
		logrus.WithField("data", data).Info("temperature notification")
		return nil
	})
	defer sub.Cancel()

	c.Connect()
	deadline := time.Now().Add(5 * time.Second)
	for !dev.DiscoveryComplete() {
		if time.Now().After(deadline) {
			logrus.Fatal("discovery did not complete")
		}
		time.Sleep(10 * time.Millisecond)
	}
	for _, svc := range c.Snapshot.Services() {
		logrus.WithFields(logrus.Fields{
			"service":         svc.UUID,
			"characteristics": len(svc.Characteristics),
		}).Info("discovered")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	battery := find(c, "180F", "2A19")
	pct, err := c.Read(ctx, battery)
	if err != nil || len(pct) == 0 {
		logrus.WithError(err).Fatal("battery read failed")
	}
	logrus.WithField("percent", pct[0]).Info("battery level")

	control := find(c, "180F", "2A1A")
	if err := c.Write(ctx, []byte{0x01}, control); err != nil {
		logrus.WithError(err).Fatal("control write failed")
	}
	if err := c.WriteWithoutResponse(ctx, []byte{0x02}, control); err != nil {
		logrus.WithError(err).Fatal("unacknowledged write failed")
	}

	rssi, err := c.ReadRSSI(ctx)
	if err != nil {
		logrus.WithError(err).Fatal("rssi read failed")
	}
	logrus.WithField("dBm", rssi).Info("rssi sample")

	dev.Notify("181A", "2A6E", []byte{0xF0, 0x09})
	time.Sleep(100 * time.Millisecond)

	c.Disconnect()
	logrus.WithField("stale_in_1h", c.IsStale(time.Hour)).Info("disconnected")
	os.Exit(0)
}

func find(c *periph.Coordinator, serviceUUID, characteristicUUID string) *corebt.Characteristic {
	for _, svc := range c.Snapshot.Services() {
		if svc.UUID == serviceUUID {
			if ch := svc.FindCharacteristic(characteristicUUID); ch != nil {
				return ch
			}
		}
	}
	logrus.WithFields(logrus.Fields{
		"service":        serviceUUID,
		"characteristic": characteristicUUID,
	}).Fatal("characteristic not discovered")
	return nil
}
