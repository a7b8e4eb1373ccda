package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgrd/blemsg/internal/gatt"
)

func scanFixture() []gatt.Device {
	return []gatt.Device{
		{
			Name:     "Thermo",
			Address:  "AA:00",
			LastSeen: time.Now(),
			Adv: &gatt.Advertisement{
				RSSI:         -48,
				Connectable:  true,
				ServiceUUIDs: []string{"180d"},
				ManufacturerData: map[uint16][]byte{
					0x004c: {0x01},
				},
			},
		},
		{
			Address:  "AA:01",
			LastSeen: time.Now(),
			Adv:      &gatt.Advertisement{RSSI: -70, ServiceUUIDs: []string{"ff30"}},
		},
	}
}

func TestDisplayDevicesTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, displayDevicesTable(&buf, scanFixture()))

	out := buf.String()
	assert.Contains(t, out, "Thermo")
	assert.Contains(t, out, "AA:00")
	assert.Contains(t, out, "-48 dBm")
	// Known service UUID resolves to its assigned name, unknown stays raw.
	assert.Contains(t, out, "Heart Rate")
	assert.Contains(t, out, "ff30")
	// Unnamed devices get the placeholder.
	assert.Contains(t, out, "(unknown)")
}

func TestDisplayDevicesTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, displayDevicesTable(&buf, nil))
	assert.Contains(t, buf.String(), "No devices discovered")
}

func TestDisplayDevicesJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, displayDevicesJSON(&buf, scanFixture()))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)

	assert.Equal(t, "Thermo", decoded[0]["name"])
	assert.Equal(t, "AA:00", decoded[0]["address"])
	assert.Equal(t, float64(-48), decoded[0]["rssi"])
	assert.Equal(t, true, decoded[0]["connectable"])
	assert.Equal(t, "Apple", decoded[0]["manufacturer"])

	// Omitted name stays absent rather than empty.
	_, hasName := decoded[1]["name"]
	assert.False(t, hasName)
}
