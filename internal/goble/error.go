package goble

import (
	"context"
	"errors"
	"strings"

	"github.com/sgrd/blemsg/internal/gatt"
)

// normalizeConnectError maps go-ble dial failures to the connect taxonomy.
// The upstream stacks report failures as strings, so matching is
// substring-based in the manner the messages have been stable across
// releases.
func normalizeConnectError(err error, address string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || containsIgnoreCase(err.Error(), "timeout"):
		return gatt.WrapError(gatt.ConnectTimeout, err, "device %s did not answer", address)
	case containsIgnoreCase(err.Error(), "connections exceeds"):
		return gatt.WrapError(gatt.CapacityExceeded, err, "host stack connection limit reached")
	default:
		return gatt.WrapError(gatt.ConnectRefused, err, "device %s refused connection", address)
	}
}

// isLinkLoss reports whether an exchange failure means the connection is
// gone rather than the single operation having failed.
func isLinkLoss(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return containsIgnoreCase(msg, "disconnected") ||
		containsIgnoreCase(msg, "not connected") ||
		containsIgnoreCase(msg, "connection closed")
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
