package gatt_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sgrd/blemsg/internal/gatt"
	"github.com/stretchr/testify/assert"
)

func TestErrorKindMatching(t *testing.T) {
	// GOAL: Verify errors.Is matches classified errors by kind regardless of detail

	err := gatt.Errorf(gatt.ConnectTimeout, "device %q did not answer", "AA:BB")

	assert.True(t, errors.Is(err, gatt.ErrConnectTimeout), "MUST match sentinel of same kind")
	assert.False(t, errors.Is(err, gatt.ErrConnectRefused), "MUST NOT match sentinel of other kind")
	assert.Equal(t, gatt.ConnectTimeout, gatt.KindOf(err))
}

func TestErrorWrapping(t *testing.T) {
	// GOAL: Verify wrapped causes survive classification and fmt.Errorf chains

	cause := errors.New("hci: connection refused")
	err := gatt.WrapError(gatt.ConnectRefused, cause, "peer %s declined", "AA:BB")
	wrapped := fmt.Errorf("probe: %w", err)

	assert.True(t, errors.Is(wrapped, gatt.ErrConnectRefused), "kind MUST survive wrapping")
	assert.True(t, errors.Is(wrapped, cause), "cause MUST survive wrapping")
	assert.Contains(t, err.Error(), "peer AA:BB declined")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestErrorMessageFormat(t *testing.T) {
	tests := []struct {
		name string
		err  *gatt.Error
		want string
	}{
		{"kind only", &gatt.Error{Kind: gatt.SessionBusy}, "session_busy"},
		{"kind and detail", gatt.Errorf(gatt.MalformedPayload, "odd hex length"), "malformed_payload: odd hex length"},
		{"nil receiver", nil, "<nil>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, gatt.FailureKind(""), gatt.KindOf(errors.New("plain")))
	assert.False(t, gatt.IsKind(nil, gatt.LinkLost))
}
