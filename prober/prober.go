// Package prober filters discovered devices down to those that actually
// accept a GATT connection, by attempting a short connect-then-disconnect
// against each candidate.
package prober

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sgrd/blemsg/internal/gatt"
)

// Result is the per-device outcome of one probe pass. Err is nil for
// connectable devices.
type Result struct {
	Device gatt.Device
	Err    error
}

// DefaultTimeout bounds one connection attempt; unreachable peers burn
// the whole timeout, so keep it short.
const DefaultTimeout = 5 * time.Second

// Probe attempts a connect-then-disconnect against every candidate with an
// independent per-device timeout and returns the connectable subsequence in
// input order, plus the full per-device report.
//
// Failures are isolated: one device timing out or refusing never aborts the
// rest. Attempts run sequentially unless the adapter advertises capacity
// for more than one outbound connection, in which case a bounded worker
// pool of that size is used; either way the result order is the input
// order. Cancelling ctx stops the pass; devices not yet probed are
// reported as timed out, with the cancellation as the cause.
func Probe(ctx context.Context, adapter gatt.Adapter, devices []gatt.Device, perDeviceTimeout time.Duration, logger *logrus.Logger) ([]gatt.Device, []Result) {
	if logger == nil {
		logger = logrus.New()
	}
	if perDeviceTimeout <= 0 {
		perDeviceTimeout = DefaultTimeout
	}

	results := make([]Result, len(devices))

	workers := adapter.Capacity()
	if workers < 1 {
		workers = 1
	}
	if workers > len(devices) {
		workers = len(devices)
	}

	if workers <= 1 {
		for i, dev := range devices {
			if err := ctx.Err(); err != nil {
				results[i] = Result{Device: dev, Err: skipErr(dev, err)}
				continue
			}
			results[i] = Result{Device: dev, Err: probeOne(ctx, adapter, dev, perDeviceTimeout, logger)}
		}
	} else {
		// The radio supports several outbound connections; probe in a
		// bounded pool and restore input order by index.
		var wg sync.WaitGroup
		indexes := make(chan int)

		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range indexes {
					dev := devices[i]
					if err := ctx.Err(); err != nil {
						results[i] = Result{Device: dev, Err: skipErr(dev, err)}
						continue
					}
					results[i] = Result{Device: dev, Err: probeOne(ctx, adapter, dev, perDeviceTimeout, logger)}
				}
			}()
		}
		for i := range devices {
			indexes <- i
		}
		close(indexes)
		wg.Wait()
	}

	connectable := make([]gatt.Device, 0, len(devices))
	for _, res := range results {
		if res.Err == nil {
			connectable = append(connectable, res.Device)
		}
	}
	return connectable, results
}

// skipErr classifies a device skipped by cancellation. The cause stays
// reachable through Unwrap, so errors.Is(err, context.Canceled) still holds.
func skipErr(dev gatt.Device, cause error) error {
	return gatt.WrapError(gatt.ConnectTimeout, cause, "probe pass cancelled before attempting %s", dev.Address)
}

// probeOne runs a single connect-then-disconnect attempt.
func probeOne(ctx context.Context, adapter gatt.Adapter, dev gatt.Device, timeout time.Duration, logger *logrus.Logger) error {
	log := logger.WithFields(logrus.Fields{
		"device":  dev.DisplayName(),
		"address": dev.Address,
	})
	log.Debug("Probing connectability")

	conn, err := adapter.Connect(ctx, dev.Address, timeout)
	if err != nil {
		log.WithError(err).Debug("Probe failed")
		return err
	}
	_ = conn.Close()

	log.Debug("Probe succeeded")
	return nil
}
