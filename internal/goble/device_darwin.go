//go:build darwin

package goble

import (
	"fmt"
	"strings"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

func newHostDevice() (ble.Device, error) {
	dev, err := darwin.NewDevice()
	if err != nil {
		// CoreBluetooth reports a powered-off radio as an invalid
		// manager state; surface that as a readable message.
		if strings.Contains(err.Error(), "central manager has invalid state") {
			if strings.Contains(err.Error(), "have=4") { // StatePoweredOff
				return nil, fmt.Errorf("bluetooth is turned off: %w", err)
			}
			return nil, fmt.Errorf("bluetooth is not ready: %w", err)
		}
		return nil, err
	}
	return dev, nil
}
