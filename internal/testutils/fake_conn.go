package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/sgrd/blemsg/internal/gatt"
)

// FakeConn is one live connection to a FakePeripheral.
type FakeConn struct {
	adapter *FakeAdapter
	p       *FakePeripheral

	mu      sync.Mutex
	subs    map[string]func([]byte)
	dropped bool

	disconnected chan struct{}
	discOnce     sync.Once
	closeOnce    sync.Once

	// SubscribeCalls and CancelCalls are exposed for leak assertions.
	SubscribeCalls int
	CancelCalls    int
}

func newFakeConn(a *FakeAdapter, p *FakePeripheral) *FakeConn {
	return &FakeConn{
		adapter:      a,
		p:            p,
		subs:         make(map[string]func([]byte)),
		disconnected: make(chan struct{}),
	}
}

func (c *FakeConn) linkLost() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

func (c *FakeConn) ResolveServices(ctx context.Context) ([]*gatt.Service, error) {
	if c.linkLost() {
		return nil, gatt.Errorf(gatt.LinkLost, "connection to %s is gone", c.p.address)
	}
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	out := make([]*gatt.Service, len(c.p.services))
	copy(out, c.p.services)
	return out, nil
}

func (c *FakeConn) Read(ctx context.Context, char *gatt.Characteristic) ([]byte, error) {
	if c.linkLost() {
		return nil, gatt.Errorf(gatt.LinkLost, "connection to %s is gone", c.p.address)
	}
	key := charKey(char.Service.UUID, char.UUID)

	c.p.mu.Lock()
	delay := c.p.readDelays[key]
	rerr := c.p.readErrs[key]
	value := c.p.values[key]
	c.p.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, gatt.WrapError(gatt.ReadFailed, ctx.Err(), "read of %s timed out", char.UUID)
		case <-time.After(delay):
		}
	}
	if rerr != nil {
		return nil, gatt.WrapError(gatt.ReadFailed, rerr, "read of %s failed", char.UUID)
	}

	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (c *FakeConn) Write(ctx context.Context, char *gatt.Characteristic, data []byte, withResponse bool) error {
	if c.linkLost() {
		return gatt.Errorf(gatt.LinkLost, "connection to %s is gone", c.p.address)
	}
	key := charKey(char.Service.UUID, char.UUID)

	c.p.mu.Lock()
	werr := c.p.writeErrs[key]
	if werr == nil {
		stored := make([]byte, len(data))
		copy(stored, data)
		c.p.writes[key] = append(c.p.writes[key], stored)
		if c.p.echo {
			c.p.values[key] = stored
		}
	}
	c.p.mu.Unlock()

	if werr != nil {
		return gatt.WrapError(gatt.WriteRejected, werr, "write to %s rejected", char.UUID)
	}
	return nil
}

func (c *FakeConn) Subscribe(char *gatt.Characteristic, onNotify func([]byte)) (gatt.SubscriptionHandle, error) {
	if c.linkLost() {
		return nil, gatt.Errorf(gatt.LinkLost, "connection to %s is gone", c.p.address)
	}
	key := charKey(char.Service.UUID, char.UUID)

	c.mu.Lock()
	c.subs[key] = onNotify
	c.SubscribeCalls++
	c.mu.Unlock()

	return &fakeHandle{conn: c, key: key}, nil
}

func (c *FakeConn) Disconnected() <-chan struct{} {
	return c.disconnected
}

func (c *FakeConn) Close() error {
	c.closeOnce.Do(func() {
		c.dropLink()
		c.adapter.releaseConn()
	})
	return nil
}

// notify delivers one frame to the registered callback, if any.
func (c *FakeConn) notify(key string, data []byte) {
	c.mu.Lock()
	fn := c.subs[key]
	dropped := c.dropped
	c.mu.Unlock()
	if fn != nil && !dropped {
		fn(data)
	}
}

// dropLink marks the link gone and fires the Disconnected channel.
func (c *FakeConn) dropLink() {
	c.mu.Lock()
	c.dropped = true
	c.mu.Unlock()
	c.discOnce.Do(func() { close(c.disconnected) })
}

type fakeHandle struct {
	conn *FakeConn
	key  string
	once sync.Once
}

func (h *fakeHandle) Cancel() error {
	h.once.Do(func() {
		h.conn.mu.Lock()
		delete(h.conn.subs, h.key)
		h.conn.CancelCalls++
		h.conn.mu.Unlock()
	})
	return nil
}
