// Package scanner populates the device registry from discovery passes.
package scanner

import (
	"context"
	"sort"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/sgrd/blemsg/internal/gatt"
	"github.com/sgrd/blemsg/internal/ringchan"
)

// ProgressCallback is called when the discovery phase changes.
type ProgressCallback func(phase string)

// DeviceEventType marks if the device was newly discovered or updated.
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
)

type DeviceEvent struct {
	Type   DeviceEventType
	Device gatt.Device
}

// eventBuffer bounds the advisory event stream; a slow consumer loses old
// events, never stalls the radio callback.
const eventBuffer = 100

// unnamedSentinel sorts after every printable name, pushing unnamed
// devices to the end of a snapshot.
const unnamedSentinel = "￿"

// Registry is the in-memory catalog of devices seen during one discovery
// pass, keyed by address. Entries are replaced, never mutated: the latest
// advertisement for an address wins.
type Registry struct {
	adapter gatt.Adapter
	devices *hashmap.Map[string, gatt.Device]
	events  *ringchan.RingChannel[DeviceEvent]
	logger  *logrus.Logger

	opts *DiscoverOptions
}

// DiscoverOptions configures one discovery pass.
type DiscoverOptions struct {
	Window       time.Duration
	AllowList    []string
	BlockList    []string
	ServiceUUIDs []string // keep only devices advertising one of these
}

// DefaultDiscoverOptions returns the default pass configuration.
func DefaultDiscoverOptions() *DiscoverOptions {
	return &DiscoverOptions{Window: 10 * time.Second}
}

// New creates a Registry backed by the given adapter.
func New(adapter gatt.Adapter, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		adapter: adapter,
		devices: hashmap.New[string, gatt.Device](),
		events:  ringchan.New[DeviceEvent](eventBuffer),
		logger:  logger,
	}
}

// Discover runs one bounded discovery pass and returns the resulting
// snapshot. Each call starts an independent pass over a fresh catalog.
// Cancellation mid-scan is not an error: the partial snapshot gathered so
// far is returned.
func (r *Registry) Discover(ctx context.Context, opts *DiscoverOptions, progress ProgressCallback) ([]gatt.Device, error) {
	if opts == nil {
		opts = DefaultDiscoverOptions()
	}
	if progress == nil {
		progress = func(string) {}
	}

	r.devices = hashmap.New[string, gatt.Device]()
	r.opts = opts

	r.logger.WithField("window", opts.Window).Info("Starting discovery pass")
	progress("Scanning")

	scanCtx := ctx
	if opts.Window > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, opts.Window)
		defer cancel()
	}

	if err := r.adapter.Scan(scanCtx, r.handleSighting); err != nil {
		return nil, err
	}

	r.logger.WithField("device_count", r.devices.Len()).Info("Discovery pass completed")
	progress("Processing results")

	return r.Snapshot(), nil
}

// handleSighting records or replaces one device entry.
func (r *Registry) handleSighting(dev gatt.Device) {
	if !r.shouldInclude(dev) {
		return
	}

	_, existing := r.devices.Get(dev.Address)
	r.devices.Set(dev.Address, dev)

	event := DeviceEvent{Device: dev}
	if existing {
		event.Type = EventUpdated
	} else {
		r.logger.WithFields(logrus.Fields{
			"device":  dev.DisplayName(),
			"address": dev.Address,
			"rssi":    dev.RSSI(),
		}).Info("Discovered new device")
		event.Type = EventNew
	}

	r.events.ForceSend(event)
}

// shouldInclude applies the allow/block/service filters.
func (r *Registry) shouldInclude(dev gatt.Device) bool {
	opts := r.opts

	for _, blocked := range opts.BlockList {
		if dev.Address == blocked {
			return false
		}
	}

	if len(opts.AllowList) > 0 {
		allowed := false
		for _, a := range opts.AllowList {
			if dev.Address == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if len(opts.ServiceUUIDs) > 0 {
		if dev.Adv == nil {
			return false
		}
		hasRequired := false
		for _, required := range opts.ServiceUUIDs {
			required = gatt.NormalizeUUID(required)
			for _, advertised := range dev.Adv.ServiceUUIDs {
				if gatt.NormalizeUUID(advertised) == required {
					hasRequired = true
					break
				}
			}
			if hasRequired {
				break
			}
		}
		if !hasRequired {
			return false
		}
	}

	return true
}

// Snapshot returns the devices known so far, sorted by name (case
// sensitive ascending, unnamed devices last) with address as tie-break so
// identical inputs always produce identical output.
func (r *Registry) Snapshot() []gatt.Device {
	devs := make([]gatt.Device, 0, r.devices.Len())
	r.devices.Range(func(_ string, dev gatt.Device) bool {
		devs = append(devs, dev)
		return true
	})

	sort.Slice(devs, func(i, j int) bool {
		ki, kj := sortKey(devs[i]), sortKey(devs[j])
		if ki != kj {
			return ki < kj
		}
		return devs[i].Address < devs[j].Address
	})
	return devs
}

func sortKey(dev gatt.Device) string {
	if dev.Name == "" {
		return unnamedSentinel
	}
	return dev.Name
}

// Events returns the advisory stream of discovery events; useful for
// watch-style UIs. Old events are dropped when the consumer lags.
func (r *Registry) Events() <-chan DeviceEvent {
	return r.events.C()
}
