// Package ringchan provides a bounded channel with overwrite-oldest
// semantics. The registry uses it for advisory device-event fan-out, where
// a slow consumer must never stall the radio callback.
package ringchan

import "sync/atomic"

// RingChannel wraps a buffered channel and guarantees producers never block:
// when the buffer is full, the oldest element is discarded.
//
// Writers use ForceSend or TrySend; readers range over C() until closed.
type RingChannel[T any] struct {
	ch          chan T
	overwritten atomic.Int64
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// TrySend attempts to insert without blocking; false if the buffer is full.
func (rc *RingChannel[T]) TrySend(v T) bool {
	select {
	case rc.ch <- v:
		return true
	default:
		return false
	}
}

// ForceSend always succeeds immediately, discarding the oldest element if
// needed. Reports whether an element was dropped.
func (rc *RingChannel[T]) ForceSend(v T) bool {
	dropped := false

	select {
	case rc.ch <- v:
	default:
		select {
		case <-rc.ch: // drop oldest
			rc.overwritten.Add(1)
			dropped = true
		default:
		}
		rc.ch <- v
	}

	return dropped
}

// TryReceive attempts a non-blocking receive.
func (rc *RingChannel[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-rc.ch:
		return
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Overwritten returns the number of elements dropped to make room.
func (rc *RingChannel[T]) Overwritten() int64 {
	return rc.overwritten.Load()
}

// Close closes the underlying channel. After this, sends panic.
func (rc *RingChannel[T]) Close() {
	close(rc.ch)
}
