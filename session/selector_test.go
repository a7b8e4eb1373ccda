package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgrd/blemsg/internal/gatt"
)

// table builds a three-service profile used across the selector tests:
// service one exposes a read-only characteristic, service two a
// write+notify one, service three a bare write one.
func table() []*gatt.Service {
	build := func(svcUUID, charUUID string, caps gatt.Capability) *gatt.Service {
		svc := &gatt.Service{UUID: svcUUID}
		svc.Characteristics = []*gatt.Characteristic{
			{UUID: charUUID, Capabilities: caps, Service: svc},
		}
		return svc
	}
	return []*gatt.Service{
		build("1800", "2a00", gatt.CapRead),
		build("180d", "2a39", gatt.CapWrite|gatt.CapNotify),
		build("180f", "2a19", gatt.CapWrite),
	}
}

func TestCandidates_OrderFollowsDiscovery(t *testing.T) {
	cands := Candidates(table(), gatt.CapWrite)

	require.Len(t, cands, 2)
	assert.Equal(t, "2a39", cands[0].UUID)
	assert.Equal(t, "2a19", cands[1].UUID)
}

func TestCandidates_RequiresAllBits(t *testing.T) {
	cands := Candidates(table(), gatt.CapWrite|gatt.CapNotify)

	require.Len(t, cands, 1)
	assert.Equal(t, "2a39", cands[0].UUID)
}

func TestSelectCharacteristic_FirstWins(t *testing.T) {
	char, err := SelectCharacteristic(table(), gatt.CapWrite)

	require.NoError(t, err)
	assert.Equal(t, "2a39", char.UUID)
}

func TestSelectCharacteristic_NoMatch(t *testing.T) {
	_, err := SelectCharacteristic(table(), gatt.CapIndicate)

	assert.ErrorIs(t, err, gatt.ErrNoCapableCharacteristic)
}

func TestSelectWithFallback(t *testing.T) {
	tests := []struct {
		name     string
		prefs    []gatt.Capability
		wantUUID string
		wantCap  gatt.Capability
		wantErr  bool
	}{
		{
			name:     "first preference available",
			prefs:    []gatt.Capability{gatt.CapWrite, gatt.CapWriteNoResponse},
			wantUUID: "2a39",
			wantCap:  gatt.CapWrite,
		},
		{
			name:     "falls through to second preference",
			prefs:    []gatt.Capability{gatt.CapIndicate, gatt.CapNotify},
			wantUUID: "2a39",
			wantCap:  gatt.CapNotify,
		},
		{
			name:    "nothing matches",
			prefs:   []gatt.Capability{gatt.CapIndicate, gatt.CapBroadcast},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			char, matched, err := SelectWithFallback(table(), tt.prefs)
			if tt.wantErr {
				assert.ErrorIs(t, err, gatt.ErrNoCapableCharacteristic)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUUID, char.UUID)
			assert.Equal(t, tt.wantCap, matched)
		})
	}
}

func TestCandidates_EmptyProfile(t *testing.T) {
	assert.Empty(t, Candidates(nil, gatt.CapRead))
}
