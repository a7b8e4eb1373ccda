// Package goble implements the gatt.Adapter contract on top of
// github.com/go-ble/ble, covering the Linux (HCI socket) and macOS
// (CoreBluetooth) host stacks.
package goble

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/sgrd/blemsg/internal/gatt"
)

// DeviceFactory creates ble.Device instances (overridable in tests).
var DeviceFactory = func() (ble.Device, error) {
	return newHostDevice()
}

// Adapter is the production radio adapter. One Adapter owns one host
// device; the host device is created lazily on first use because opening
// it powers up the radio.
type Adapter struct {
	logger *logrus.Logger

	mu       sync.Mutex
	dev      ble.Device
	active   int
	maxConns int
}

// New creates an Adapter. Host stacks supported by go-ble accept a single
// outbound connection attempt at a time, so capacity is fixed at 1.
func New(logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Adapter{logger: logger, maxConns: 1}
}

// Capacity implements gatt.Adapter.
func (a *Adapter) Capacity() int {
	return a.maxConns
}

// hostDevice returns the lazily created ble.Device.
func (a *Adapter) hostDevice() (ble.Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dev != nil {
		return a.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		return nil, err
	}
	a.dev = dev
	return dev, nil
}

// Scan implements gatt.Adapter. Each call opens an independent scan pass;
// cancellation and deadline expiry end the pass without error.
func (a *Adapter) Scan(ctx context.Context, handler func(gatt.Device)) error {
	dev, err := a.hostDevice()
	if err != nil {
		return gatt.WrapError(gatt.DiscoveryUnavailable, err, "cannot open host radio")
	}

	a.logger.Debug("Starting radio scan")

	err = dev.Scan(ctx, true, func(adv ble.Advertisement) {
		handler(deviceFromAdvertisement(adv))
	})
	if err != nil && ctx.Err() == nil {
		return gatt.WrapError(gatt.DiscoveryUnavailable, err, "scan failed")
	}
	return nil
}

// Connect implements gatt.Adapter.
func (a *Adapter) Connect(ctx context.Context, address string, timeout time.Duration) (gatt.Conn, error) {
	a.mu.Lock()
	if a.active >= a.maxConns {
		a.mu.Unlock()
		return nil, gatt.Errorf(gatt.CapacityExceeded,
			"radio supports %d simultaneous connection(s), %d already open", a.maxConns, a.active)
	}
	a.active++
	a.mu.Unlock()

	dev, err := a.hostDevice()
	if err != nil {
		a.release()
		return nil, gatt.WrapError(gatt.ConnectRefused, err, "cannot open host radio")
	}

	connCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	a.logger.WithField("address", address).Debug("Dialing peripheral")

	client, err := dev.Dial(connCtx, ble.NewAddr(address))
	if err != nil {
		a.release()
		return nil, normalizeConnectError(err, address)
	}

	return newConn(client, a, a.logger), nil
}

// release returns one connection slot; called from conn.Close.
func (a *Adapter) release() {
	a.mu.Lock()
	if a.active > 0 {
		a.active--
	}
	a.mu.Unlock()
}

// deviceFromAdvertisement converts a go-ble advertisement into a registry
// entry. The manufacturer data AD structure starts with a little-endian
// company identifier.
func deviceFromAdvertisement(adv ble.Advertisement) gatt.Device {
	out := gatt.Advertisement{
		RSSI:        adv.RSSI(),
		Connectable: adv.Connectable(),
	}

	if tx := adv.TxPowerLevel(); tx != 0 {
		tx := tx
		out.TxPower = &tx
	}

	if md := adv.ManufacturerData(); len(md) >= 2 {
		company := binary.LittleEndian.Uint16(md[:2])
		payload := make([]byte, len(md)-2)
		copy(payload, md[2:])
		out.ManufacturerData = map[uint16][]byte{company: payload}
	}

	if sds := adv.ServiceData(); len(sds) > 0 {
		out.ServiceData = make(map[string][]byte, len(sds))
		for _, sd := range sds {
			data := make([]byte, len(sd.Data))
			copy(data, sd.Data)
			out.ServiceData[gatt.NormalizeUUID(sd.UUID.String())] = data
		}
	}

	for _, svc := range adv.Services() {
		out.ServiceUUIDs = append(out.ServiceUUIDs, gatt.NormalizeUUID(svc.String()))
	}

	return gatt.Device{
		Address:  adv.Addr().String(),
		Name:     adv.LocalName(),
		LastSeen: time.Now(),
		Adv:      &out,
	}
}
