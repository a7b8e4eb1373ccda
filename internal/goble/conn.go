package goble

import (
	"context"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/sgrd/blemsg/internal/gatt"
)

// conn wraps one ble.Client. Resolution keeps the live *ble.Characteristic
// handles keyed by "serviceUUID/charUUID" so later exchange calls can map
// the model back to the wire objects.
type conn struct {
	client  ble.Client
	adapter *Adapter
	logger  *logrus.Logger

	mu    sync.Mutex
	chars map[string]*ble.Characteristic

	closeOnce sync.Once
}

func newConn(client ble.Client, adapter *Adapter, logger *logrus.Logger) *conn {
	return &conn{
		client:  client,
		adapter: adapter,
		logger:  logger,
		chars:   make(map[string]*ble.Characteristic),
	}
}

// await runs a blocking client call in a goroutine so the caller's context
// stays in charge. The abandoned call finishes against the client in the
// background; the connection is unusable for further exchanges once the
// caller gives up, which the session enforces.
func await(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func charKey(svcUUID, charUUID string) string {
	return svcUUID + "/" + charUUID
}

func (c *conn) ResolveServices(ctx context.Context) ([]*gatt.Service, error) {
	var profile *ble.Profile
	err := await(ctx, func() error {
		var derr error
		profile, derr = c.client.DiscoverProfile(true)
		return derr
	})
	if err != nil {
		if isLinkLoss(err) {
			return nil, gatt.WrapError(gatt.LinkLost, err, "connection dropped during service discovery")
		}
		return nil, gatt.WrapError(gatt.ReadFailed, err, "service discovery failed")
	}

	services := make([]*gatt.Service, 0, len(profile.Services))

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, bleSvc := range profile.Services {
		svc := &gatt.Service{UUID: gatt.NormalizeUUID(bleSvc.UUID.String())}
		for _, bleChar := range bleSvc.Characteristics {
			char := &gatt.Characteristic{
				UUID:         gatt.NormalizeUUID(bleChar.UUID.String()),
				Capabilities: capsFromProperty(bleChar.Property),
				Service:      svc,
			}
			svc.Characteristics = append(svc.Characteristics, char)
			c.chars[charKey(svc.UUID, char.UUID)] = bleChar

			c.logger.WithFields(logrus.Fields{
				"service_uuid": svc.UUID,
				"char_uuid":    char.UUID,
				"capabilities": char.Capabilities.String(),
			}).Debug("Resolved characteristic")
		}
		services = append(services, svc)
	}

	return services, nil
}

// lookup maps a model characteristic back to its live handle.
func (c *conn) lookup(char *gatt.Characteristic) (*ble.Characteristic, error) {
	if char == nil || char.Service == nil {
		return nil, gatt.Errorf(gatt.InvalidState, "characteristic has no parent service")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	bc, ok := c.chars[charKey(char.Service.UUID, char.UUID)]
	if !ok {
		return nil, gatt.Errorf(gatt.InvalidState,
			"characteristic %s not resolved on this connection", char.UUID)
	}
	return bc, nil
}

func (c *conn) Read(ctx context.Context, char *gatt.Characteristic) ([]byte, error) {
	bc, err := c.lookup(char)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = await(ctx, func() error {
		var rerr error
		data, rerr = c.client.ReadCharacteristic(bc)
		return rerr
	})
	if err != nil {
		if isLinkLoss(err) {
			return nil, gatt.WrapError(gatt.LinkLost, err, "connection dropped during read")
		}
		return nil, gatt.WrapError(gatt.ReadFailed, err, "read of %s failed", char.UUID)
	}
	return data, nil
}

func (c *conn) Write(ctx context.Context, char *gatt.Characteristic, data []byte, withResponse bool) error {
	bc, err := c.lookup(char)
	if err != nil {
		return err
	}

	err = await(ctx, func() error {
		return c.client.WriteCharacteristic(bc, data, !withResponse)
	})
	if err != nil {
		if isLinkLoss(err) {
			return gatt.WrapError(gatt.LinkLost, err, "connection dropped during write")
		}
		return gatt.WrapError(gatt.WriteRejected, err, "write to %s rejected", char.UUID)
	}
	return nil
}

func (c *conn) Subscribe(char *gatt.Characteristic, onNotify func([]byte)) (gatt.SubscriptionHandle, error) {
	bc, err := c.lookup(char)
	if err != nil {
		return nil, err
	}

	if err := c.client.Subscribe(bc, false, func(data []byte) {
		onNotify(data)
	}); err != nil {
		if isLinkLoss(err) {
			return nil, gatt.WrapError(gatt.LinkLost, err, "connection dropped during subscribe")
		}
		return nil, gatt.WrapError(gatt.WriteRejected, err, "subscribe to %s rejected", char.UUID)
	}

	return &subscriptionHandle{conn: c, char: bc}, nil
}

func (c *conn) Disconnected() <-chan struct{} {
	return c.client.Disconnected()
}

// Close cancels the connection and returns the adapter slot. Idempotent;
// the underlying CancelConnection error is logged, not surfaced.
func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		if err := c.client.CancelConnection(); err != nil {
			c.logger.WithError(err).Debug("CancelConnection reported error")
		}
		c.adapter.release()
	})
	return nil
}

// subscriptionHandle cancels one notification registration.
type subscriptionHandle struct {
	char *ble.Characteristic
	conn *conn
	once sync.Once
}

func (h *subscriptionHandle) Cancel() error {
	h.once.Do(func() {
		// Tolerated failure: the link may already be gone, in which case
		// the peer-side registration died with it.
		if err := h.conn.client.Unsubscribe(h.char, false); err != nil {
			h.conn.logger.WithError(err).Debug("Unsubscribe reported error")
		}
	})
	return nil
}

func capsFromProperty(p ble.Property) gatt.Capability {
	var caps gatt.Capability
	if p&ble.CharBroadcast != 0 {
		caps |= gatt.CapBroadcast
	}
	if p&ble.CharRead != 0 {
		caps |= gatt.CapRead
	}
	if p&ble.CharWriteNR != 0 {
		caps |= gatt.CapWriteNoResponse
	}
	if p&ble.CharWrite != 0 {
		caps |= gatt.CapWrite
	}
	if p&ble.CharNotify != 0 {
		caps |= gatt.CapNotify
	}
	if p&ble.CharIndicate != 0 {
		caps |= gatt.CapIndicate
	}
	return caps
}
