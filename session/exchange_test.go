package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgrd/blemsg/internal/gatt"
)

func TestPayloadBytes(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		want    []byte
		wantErr bool
	}{
		{
			name:    "text passes through verbatim",
			payload: TextPayload("hello"),
			want:    []byte("hello"),
		},
		{
			name:    "text keeps multibyte runes",
			payload: TextPayload("héllo"),
			want:    []byte("héllo"),
		},
		{
			name:    "raw passes through",
			payload: RawPayload{0x00, 0xff},
			want:    []byte{0x00, 0xff},
		},
		{
			name:    "plain hex",
			payload: HexPayload("48656c6c6f"),
			want:    []byte("Hello"),
		},
		{
			name:    "hex with colons",
			payload: HexPayload("48:65:6c:6c:6f"),
			want:    []byte("Hello"),
		},
		{
			name:    "hex with spaces and 0x prefixes",
			payload: HexPayload("0x48 0x65 0x6C"),
			want:    []byte("Hel"),
		},
		{
			name:    "hex with dashes",
			payload: HexPayload("de-ad-be-ef"),
			want:    []byte{0xde, 0xad, 0xbe, 0xef},
		},
		{
			name:    "odd length",
			payload: HexPayload("abc"),
			wantErr: true,
		},
		{
			name:    "non-hex characters",
			payload: HexPayload("xyz1"),
			wantErr: true,
		},
		{
			name:    "separators only",
			payload: HexPayload(" : - "),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.payload.Bytes()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, gatt.ErrMalformedPayload)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
