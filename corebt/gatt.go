package corebt

import (
	"strings"

	"go.uber.org/atomic"
)

// CCCD UUID constant (Client Characteristic Configuration Descriptor)
// This is the standard BLE descriptor UUID for enabling notifications/indications
const UUIDCCCD = "00002902-0000-1000-8000-00805f9b34fb"

// CCCD enable/disable values written by the client side of the link.
var (
	CCCDEnableNotificationValue  = []byte{0x01, 0x00} // Enable notifications
	CCCDEnableIndicationValue    = []byte{0x02, 0x00} // Enable indications
	CCCDDisableNotificationValue = []byte{0x00, 0x00} // Disable notifications/indications
)

// Properties is the characteristic property bitmask from the GATT
// characteristic declaration. Bit positions follow the Bluetooth spec.
type Properties uint8

const (
	PropBroadcast            Properties = 1 << 0
	PropRead                 Properties = 1 << 1
	PropWriteWithoutResponse Properties = 1 << 2
	PropWrite                Properties = 1 << 3
	PropNotify               Properties = 1 << 4
	PropIndicate             Properties = 1 << 5
)

// Contains reports whether every bit of p2 is set in p.
func (p Properties) Contains(p2 Properties) bool {
	return p&p2 == p2
}

func (p Properties) String() string {
	var names []string
	if p.Contains(PropBroadcast) {
		names = append(names, "broadcast")
	}
	if p.Contains(PropRead) {
		names = append(names, "read")
	}
	if p.Contains(PropWriteWithoutResponse) {
		names = append(names, "write_without_response")
	}
	if p.Contains(PropWrite) {
		names = append(names, "write")
	}
	if p.Contains(PropNotify) {
		names = append(names, "notify")
	}
	if p.Contains(PropIndicate) {
		names = append(names, "indicate")
	}
	return strings.Join(names, "|")
}

// Descriptor represents a discovered BLE descriptor.
type Descriptor struct {
	UUID           string
	Value          []byte
	Characteristic *Characteristic // Parent characteristic
}

// Characteristic represents a discovered BLE characteristic. Value is owned
// by the host stack; it updates it on its serial queue before delivering the
// corresponding delegate callback. IsNotifying is also stack-owned but may
// be read from any goroutine.
type Characteristic struct {
	UUID        string
	Properties  Properties
	Service     *Service // Parent service
	Value       []byte
	Descriptors []*Descriptor
	IsNotifying atomic.Bool
}

// Service represents a discovered BLE service.
type Service struct {
	UUID            string
	IsPrimary       bool
	Characteristics []*Characteristic
}

// FindCharacteristic returns the characteristic with the given UUID, or nil.
func (s *Service) FindCharacteristic(uuid string) *Characteristic {
	for _, c := range s.Characteristics {
		if c.UUID == uuid {
			return c
		}
	}
	return nil
}
