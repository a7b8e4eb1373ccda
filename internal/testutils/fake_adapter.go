// Package testutils provides the in-memory radio adapter and fluent
// peripheral builders shared by the scanner, prober, session, and command
// tests. The fake implements gatt.Adapter exactly, including capacity
// accounting, so tests exercise the same code paths as the go-ble adapter.
package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/sgrd/blemsg/internal/gatt"
)

// FakeAdapter is an in-memory gatt.Adapter. Configure it with
// AddSighting/Peripheral before use; all methods are safe for concurrent
// use.
type FakeAdapter struct {
	mu          sync.Mutex
	sightings   []gatt.Device
	scanErr     error
	scanHold    bool // keep the scan open until ctx is done
	peripherals map[string]*FakePeripheral
	capacity    int
	active      int

	// Call counters for leak assertions.
	ConnectCalls    int
	DisconnectCalls int
}

// NewFakeAdapter creates a fake with capacity 1, matching common host
// stacks.
func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{
		peripherals: make(map[string]*FakePeripheral),
		capacity:    1,
	}
}

// WithCapacity sets the simultaneous-connection limit.
func (a *FakeAdapter) WithCapacity(n int) *FakeAdapter {
	a.capacity = n
	return a
}

// WithScanError makes every Scan call fail (e.g. radio powered off).
func (a *FakeAdapter) WithScanError(err error) *FakeAdapter {
	a.scanErr = err
	return a
}

// HoldScanOpen keeps Scan blocked after replaying sightings until the
// caller's context ends, mimicking a radio that keeps listening for the
// whole window.
func (a *FakeAdapter) HoldScanOpen() *FakeAdapter {
	a.scanHold = true
	return a
}

// AddSighting queues one advertisement sighting for replay during Scan.
// Sightings are replayed in insertion order; queue the same address twice
// to exercise last-write-wins deduplication.
func (a *FakeAdapter) AddSighting(dev gatt.Device) *FakeAdapter {
	a.mu.Lock()
	a.sightings = append(a.sightings, dev)
	a.mu.Unlock()
	return a
}

// Peripheral returns the connectable peripheral registered at address,
// creating it on first use.
func (a *FakeAdapter) Peripheral(address string) *FakePeripheral {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.peripherals[address]
	if !ok {
		p = newFakePeripheral(a, address)
		a.peripherals[address] = p
	}
	return p
}

// Capacity implements gatt.Adapter.
func (a *FakeAdapter) Capacity() int {
	return a.capacity
}

// ActiveConnections reports currently open connections.
func (a *FakeAdapter) ActiveConnections() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Scan implements gatt.Adapter: replays queued sightings, then returns (or
// blocks until ctx is done when HoldScanOpen was set).
func (a *FakeAdapter) Scan(ctx context.Context, handler func(gatt.Device)) error {
	a.mu.Lock()
	err := a.scanErr
	sightings := make([]gatt.Device, len(a.sightings))
	copy(sightings, a.sightings)
	hold := a.scanHold
	a.mu.Unlock()

	if err != nil {
		return gatt.WrapError(gatt.DiscoveryUnavailable, err, "scan failed")
	}

	for _, dev := range sightings {
		if ctx.Err() != nil {
			return nil
		}
		handler(dev)
	}

	if hold {
		<-ctx.Done()
	}
	return nil
}

// Connect implements gatt.Adapter.
func (a *FakeAdapter) Connect(ctx context.Context, address string, timeout time.Duration) (gatt.Conn, error) {
	a.mu.Lock()
	a.ConnectCalls++
	if a.active >= a.capacity {
		a.mu.Unlock()
		return nil, gatt.Errorf(gatt.CapacityExceeded,
			"fake radio supports %d simultaneous connection(s)", a.capacity)
	}
	p := a.peripherals[address]
	a.mu.Unlock()

	if p == nil {
		return nil, gatt.Errorf(gatt.ConnectRefused, "no peripheral at %s", address)
	}

	connCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if p.connectDelay > 0 {
		select {
		case <-connCtx.Done():
			return nil, gatt.WrapError(gatt.ConnectTimeout, connCtx.Err(), "device %s did not answer", address)
		case <-time.After(p.connectDelay):
		}
	}
	if p.connectErr != nil {
		return nil, p.connectErr
	}

	a.mu.Lock()
	a.active++
	a.mu.Unlock()

	conn := newFakeConn(a, p)
	p.addConn(conn)
	return conn, nil
}

// releaseConn is called by FakeConn.Close exactly once per connection.
func (a *FakeAdapter) releaseConn() {
	a.mu.Lock()
	a.DisconnectCalls++
	if a.active > 0 {
		a.active--
	}
	a.mu.Unlock()
}

// Device is a convenience constructor for registry entries in tests.
func Device(address, name string, rssi int) gatt.Device {
	return gatt.Device{
		Address:  address,
		Name:     name,
		LastSeen: time.Now(),
		Adv:      &gatt.Advertisement{RSSI: rssi, Connectable: true},
	}
}
