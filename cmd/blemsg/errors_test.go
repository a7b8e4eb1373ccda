package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sgrd/blemsg/internal/gatt"
)

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string // substring expected in the formatted message
	}{
		{
			name: "discovery unavailable",
			err:  gatt.Errorf(gatt.DiscoveryUnavailable, "hci0 down"),
			want: "Bluetooth is unavailable",
		},
		{
			name: "connect timeout",
			err:  gatt.Errorf(gatt.ConnectTimeout, "no answer from AA:BB"),
			want: "did not answer in time",
		},
		{
			name: "session busy",
			err:  gatt.Errorf(gatt.SessionBusy, "exchange in progress"),
			want: "still in progress",
		},
		{
			name: "no capable characteristic",
			err:  gatt.Errorf(gatt.NoCapableCharacteristic, "nothing writable"),
			want: "no characteristic",
		},
		{
			name: "malformed payload",
			err:  gatt.Errorf(gatt.MalformedPayload, "odd hex length"),
			want: "could not encode",
		},
		{
			name: "link lost",
			err:  gatt.Errorf(gatt.LinkLost, "peer vanished"),
			want: "connection was lost",
		},
		{
			name: "wrapped kinds are still classified",
			err:  gatt.WrapError(gatt.WriteRejected, errors.New("ATT error 0x03"), "write to 2a39"),
			want: "rejected the write",
		},
		{
			name: "unclassified errors pass through",
			err:  errors.New("something else entirely"),
			want: "something else entirely",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := FormatUserError(tt.err)
			assert.True(t, strings.Contains(msg, tt.want),
				"message %q should contain %q", msg, tt.want)
		})
	}
}
