package gatt_test

import (
	"testing"

	"github.com/sgrd/blemsg/internal/gatt"
	"github.com/stretchr/testify/assert"
)

func TestCapabilityHas(t *testing.T) {
	caps := gatt.CapRead | gatt.CapWrite | gatt.CapNotify

	assert.True(t, caps.Has(gatt.CapWrite))
	assert.True(t, caps.Has(gatt.CapRead|gatt.CapNotify))
	assert.False(t, caps.Has(gatt.CapIndicate))
	assert.False(t, caps.Has(gatt.CapWrite|gatt.CapIndicate), "Has MUST require all bits")
}

func TestCapabilityString(t *testing.T) {
	tests := []struct {
		caps gatt.Capability
		want string
	}{
		{0, "none"},
		{gatt.CapRead, "read"},
		{gatt.CapWrite | gatt.CapNotify, "write,notify"},
		{gatt.CapWriteNoResponse | gatt.CapWrite, "write-without-response,write"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.caps.String())
	}
}

func TestParseCapabilities(t *testing.T) {
	assert.Equal(t, gatt.CapRead|gatt.CapNotify, gatt.ParseCapabilities("read,notify"))
	assert.Equal(t, gatt.CapWrite, gatt.ParseCapabilities(" Write "))
	assert.Equal(t, gatt.Capability(0), gatt.ParseCapabilities("bogus"))
}

func TestNormalizeUUID(t *testing.T) {
	assert.Equal(t, "180d", gatt.NormalizeUUID("180D"))
	assert.Equal(t, "0000180d00001000800000805f9b34fb", gatt.NormalizeUUID("0000180D-0000-1000-8000-00805F9B34FB"))
}
