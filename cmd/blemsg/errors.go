package main

import (
	"fmt"

	"github.com/sgrd/blemsg/internal/gatt"
)

// FormatUserError turns classified failures into actionable one-line
// messages; anything unclassified is printed as-is.
func FormatUserError(err error) string {
	switch gatt.KindOf(err) {
	case gatt.DiscoveryUnavailable:
		return fmt.Sprintf("Bluetooth is unavailable (is the adapter powered on?): %v", err)
	case gatt.ConnectTimeout:
		return fmt.Sprintf("the device did not answer in time; it may be out of range or asleep: %v", err)
	case gatt.ConnectRefused:
		return fmt.Sprintf("the device refused the connection: %v", err)
	case gatt.SessionBusy:
		return fmt.Sprintf("another operation is still in progress on this device: %v", err)
	case gatt.NoCapableCharacteristic:
		return fmt.Sprintf("the device exposes no characteristic supporting this operation: %v", err)
	case gatt.MalformedPayload:
		return fmt.Sprintf("could not encode the payload: %v", err)
	case gatt.WriteRejected:
		return fmt.Sprintf("the device rejected the write: %v", err)
	case gatt.ReadFailed:
		return fmt.Sprintf("reading the value failed: %v", err)
	case gatt.LinkLost:
		return fmt.Sprintf("the connection was lost: %v", err)
	case gatt.CapacityExceeded:
		return fmt.Sprintf("the adapter cannot open another connection: %v", err)
	default:
		return err.Error()
	}
}
