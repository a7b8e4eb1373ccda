package session

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/sgrd/blemsg/internal/gatt"
)

// Payload is a write payload in one of three encodings. The set is
// closed; decoding failures surface as gatt.ErrMalformedPayload.
type Payload interface {
	Bytes() ([]byte, error)
	payload()
}

// TextPayload is a UTF-8 string sent verbatim.
type TextPayload string

func (p TextPayload) payload() {}

func (p TextPayload) Bytes() ([]byte, error) {
	return []byte(p), nil
}

// HexPayload is a hex-encoded string. Common separators (spaces, colons,
// dashes) and 0x prefixes are tolerated: "48:65:6c", "0x48 0x65", and
// "48656c" all decode to the same bytes.
type HexPayload string

func (p HexPayload) payload() {}

func (p HexPayload) Bytes() ([]byte, error) {
	cleaned := strings.NewReplacer(" ", "", ":", "", "-", "", "0x", "", "0X", "").Replace(string(p))
	if len(cleaned) == 0 {
		return nil, gatt.Errorf(gatt.MalformedPayload, "empty hex payload")
	}
	if len(cleaned)%2 != 0 {
		return nil, gatt.Errorf(gatt.MalformedPayload, "hex payload has odd length %d", len(cleaned))
	}
	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, gatt.WrapError(gatt.MalformedPayload, err, "invalid hex payload")
	}
	return data, nil
}

// RawPayload is a byte slice sent as-is.
type RawPayload []byte

func (p RawPayload) payload() {}

func (p RawPayload) Bytes() ([]byte, error) {
	return []byte(p), nil
}

// Write sends the payload to the characteristic. withResponse selects an
// acknowledged write; the characteristic must carry the matching
// capability. Exactly one exchange runs at a time; a concurrent Write or
// Read fails with gatt.ErrSessionBusy.
func (s *Session) Write(ctx context.Context, char *gatt.Characteristic, payload Payload, withResponse bool) error {
	data, err := payload.Bytes()
	if err != nil {
		return err
	}

	need := gatt.CapWrite
	if !withResponse {
		need = gatt.CapWriteNoResponse
	}
	if !char.Capabilities.Has(need) {
		return gatt.Errorf(gatt.WriteRejected,
			"characteristic %s does not support %s", char.UUID, need)
	}

	conn, gen, err := s.beginExchange()
	if err != nil {
		return err
	}

	err = conn.Write(ctx, char, data, withResponse)
	s.endExchange(gen, err)

	if err != nil {
		s.logger.WithError(err).Debug("Write failed")
		return err
	}
	return nil
}

// Read fetches the characteristic's current value.
func (s *Session) Read(ctx context.Context, char *gatt.Characteristic) ([]byte, error) {
	if !char.Capabilities.Has(gatt.CapRead) {
		return nil, gatt.Errorf(gatt.ReadFailed,
			"characteristic %s does not support read", char.UUID)
	}

	conn, gen, err := s.beginExchange()
	if err != nil {
		return nil, err
	}

	data, err := conn.Read(ctx, char)
	s.endExchange(gen, err)

	if err != nil {
		s.logger.WithError(err).Debug("Read failed")
		return nil, err
	}
	return data, nil
}
