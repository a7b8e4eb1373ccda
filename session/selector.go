package session

import (
	"github.com/sgrd/blemsg/internal/gatt"
)

// Candidates returns every characteristic carrying all required
// capability bits, in discovery order: services in declaration order,
// characteristics in declaration order within each service.
func Candidates(services []*gatt.Service, required gatt.Capability) []*gatt.Characteristic {
	var out []*gatt.Characteristic
	for _, svc := range services {
		for _, char := range svc.Characteristics {
			if char.Capabilities.Has(required) {
				out = append(out, char)
			}
		}
	}
	return out
}

// SelectCharacteristic returns the first characteristic carrying all
// required capability bits, or gatt.ErrNoCapableCharacteristic when none
// qualifies.
func SelectCharacteristic(services []*gatt.Service, required gatt.Capability) (*gatt.Characteristic, error) {
	if cands := Candidates(services, required); len(cands) > 0 {
		return cands[0], nil
	}
	return nil, gatt.Errorf(gatt.NoCapableCharacteristic,
		"no characteristic supports %s", required)
}

// SelectWithFallback tries each capability in preference order and
// returns the first match together with the capability that matched. The
// write path uses this to prefer acknowledged writes but fall back to
// write-without-response when that is all the peripheral offers.
func SelectWithFallback(services []*gatt.Service, prefs []gatt.Capability) (*gatt.Characteristic, gatt.Capability, error) {
	for _, cap := range prefs {
		if cands := Candidates(services, cap); len(cands) > 0 {
			return cands[0], cap, nil
		}
	}
	var want gatt.Capability
	for _, cap := range prefs {
		want |= cap
	}
	return nil, 0, gatt.Errorf(gatt.NoCapableCharacteristic,
		"no characteristic supports any of %s", want)
}
