package gatt

import (
	"strings"
	"time"
)

// NormalizeUUID converts a UUID string to the internal format (lowercase,
// no dashes). Handles both the standard dashed form and short 16-bit UUIDs.
func NormalizeUUID(uuid string) string {
	return strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
}

// Advertisement carries the broadcast data captured for one sighting.
type Advertisement struct {
	RSSI             int
	TxPower          *int
	Connectable      bool
	ManufacturerData map[uint16][]byte
	ServiceData      map[string][]byte
	ServiceUUIDs     []string
}

// Device is one registry entry: an address plus whatever the last
// advertisement told us about it. Entries are immutable once recorded; a
// later sighting of the same address produces a replacement entry, never an
// in-place mutation.
type Device struct {
	Address  string
	Name     string
	LastSeen time.Time
	Adv      *Advertisement
}

// RSSI returns the last observed signal strength, or 0 when the sighting
// carried no advertisement.
func (d Device) RSSI() int {
	if d.Adv == nil {
		return 0
	}
	return d.Adv.RSSI
}

// DisplayName returns the advertised name or a placeholder for unnamed
// devices.
func (d Device) DisplayName() string {
	if d.Name == "" {
		return "(unknown)"
	}
	return d.Name
}

// Service is one resolved GATT service with its characteristics in
// peripheral enumeration order.
type Service struct {
	UUID            string
	Characteristics []*Characteristic
}

// Characteristic is one resolved GATT characteristic. Service is a
// non-owning back-reference to the parent.
type Characteristic struct {
	UUID         string
	Capabilities Capability
	Service      *Service
}
