package gatt

import (
	"context"
	"time"
)

// Adapter is the narrow contract over the host BLE stack. The production
// implementation lives in internal/goble; tests use the fake in
// internal/testutils.
//
// Scan, Connect, and every Conn method classify their failures with the
// taxonomy in errors.go; callers never see raw host-stack errors.
type Adapter interface {
	// Scan runs a discovery pass until ctx is done, invoking handler for
	// every advertisement sighting (duplicates included; deduplication is
	// the registry's job). Each call opens an independent scan. Returns
	// ErrDiscoveryUnavailable when the radio cannot scan at all;
	// cancellation and deadline expiry are normal completion, not errors.
	Scan(ctx context.Context, handler func(Device)) error

	// Connect opens a GATT connection to address within timeout. Failures
	// are classified as ErrConnectTimeout, ErrConnectRefused, or
	// ErrCapacityExceeded when Capacity() connections are already open.
	Connect(ctx context.Context, address string, timeout time.Duration) (Conn, error)

	// Capacity is the number of simultaneous outbound connections the
	// radio supports. Most host stacks report 1.
	Capacity() int
}

// Conn is one live GATT connection.
type Conn interface {
	// ResolveServices enumerates all services and characteristics in
	// peripheral order. The adapter may query the peer on every call;
	// caching is the session's job.
	ResolveServices(ctx context.Context) ([]*Service, error)

	// Read reads the current value of char.
	Read(ctx context.Context, char *Characteristic) ([]byte, error)

	// Write writes data to char. With withResponse the call blocks until
	// the peer acknowledges; without it the call returns on submission.
	Write(ctx context.Context, char *Characteristic, data []byte, withResponse bool) error

	// Subscribe registers onNotify for notifications from char and
	// returns a cancellable handle. onNotify must not retain its byte
	// slice beyond the call.
	Subscribe(char *Characteristic, onNotify func([]byte)) (SubscriptionHandle, error)

	// Disconnected is closed when the link drops, whether by Close or by
	// the peer.
	Disconnected() <-chan struct{}

	// Close releases the connection. Idempotent; never fails observably.
	Close() error
}

// SubscriptionHandle cancels one adapter-level notification registration.
type SubscriptionHandle interface {
	// Cancel deregisters the notification callback. Idempotent.
	Cancel() error
}
