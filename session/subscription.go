package session

import (
	"context"
	"sync"
	"time"

	"github.com/sgrd/blemsg/internal/gatt"
)

// Notification is one value pushed by the peripheral.
type Notification struct {
	Characteristic *gatt.Characteristic
	Data           []byte
	At             time.Time
	Seq            uint64
}

// Subscription delivers a characteristic's notifications in arrival
// order on Updates. Delivery is decoupled from the radio callback by an
// unbounded queue, so a slow consumer delays but never drops or reorders
// frames. The channel closes when the subscription ends, whether by
// Unsubscribe, session teardown, or link loss.
type Subscription struct {
	char    *gatt.Characteristic
	session *Session
	handle  gatt.SubscriptionHandle
	updates chan Notification

	mu     sync.Mutex
	queue  []Notification
	seq    uint64
	closed bool
	err    error
	wake   chan struct{}
	done   chan struct{}

	cancelOnce sync.Once
}

// Subscribe registers for the characteristic's notifications. The
// characteristic must support notify or indicate. The registration is an
// exchange like any read or write: it claims the session for its
// duration and fails fast with gatt.ErrSessionBusy while another
// exchange holds it. Only the delivered stream outlives the exchange.
func (s *Session) Subscribe(ctx context.Context, char *gatt.Characteristic) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !char.Capabilities.Has(gatt.CapNotify) && !char.Capabilities.Has(gatt.CapIndicate) {
		return nil, gatt.Errorf(gatt.NoCapableCharacteristic,
			"characteristic %s supports neither notify nor indicate", char.UUID)
	}

	conn, gen, err := s.beginExchange()
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		char:    char,
		session: s,
		updates: make(chan Notification, 16),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	handle, err := conn.Subscribe(char, sub.push)
	if err != nil {
		s.endExchange(gen, err)
		return nil, err
	}
	sub.handle = handle
	go sub.dispatch()

	s.mu.Lock()
	// Teardown may have raced the adapter call; end the fresh
	// subscription instead of tracking it.
	if gen != s.gen || s.state != StateBusy {
		reason := s.reason
		s.mu.Unlock()
		sub.terminate(reason)
		return nil, gatt.Errorf(gatt.LinkLost, "link to %s lost", s.Address())
	}
	s.subs = append(s.subs, sub)
	s.state = StateServicesResolved
	s.mu.Unlock()

	s.logger.WithField("characteristic", char.UUID).Debug("Subscribed")
	return sub, nil
}

// Updates is the notification stream. It closes when the subscription
// ends.
func (sub *Subscription) Updates() <-chan Notification {
	return sub.updates
}

// Characteristic reports what this subscription listens to.
func (sub *Subscription) Characteristic() *gatt.Characteristic {
	return sub.char
}

// Err reports why the subscription ended: nil after a plain Unsubscribe,
// the teardown reason otherwise. Valid once Updates is closed.
func (sub *Subscription) Err() error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.err
}

// Unsubscribe ends the subscription and closes Updates. Safe to call any
// number of times, and a no-op after session teardown already ended it.
func (sub *Subscription) Unsubscribe() error {
	sub.session.removeSub(sub)
	sub.terminate(nil)
	return nil
}

// removeSub drops the subscription from the session's teardown list.
func (s *Session) removeSub(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, candidate := range s.subs {
		if candidate == sub {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

// terminate cancels the radio-side subscription and stops the
// dispatcher. Idempotent.
func (sub *Subscription) terminate(reason error) {
	sub.cancelOnce.Do(func() {
		sub.mu.Lock()
		sub.closed = true
		if sub.err == nil {
			sub.err = reason
		}
		sub.mu.Unlock()

		if sub.handle != nil {
			// Best effort; the link may already be gone.
			_ = sub.handle.Cancel()
		}
		close(sub.done)
		select {
		case sub.wake <- struct{}{}:
		default:
		}
	})
}

// push is the radio callback. It must not block, so frames go onto the
// queue and the dispatcher is woken.
func (sub *Subscription) push(data []byte) {
	frame := make([]byte, len(data))
	copy(frame, data)

	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	sub.seq++
	sub.queue = append(sub.queue, Notification{
		Characteristic: sub.char,
		Data:           frame,
		At:             time.Now(),
		Seq:            sub.seq,
	})
	sub.mu.Unlock()

	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

// dispatch feeds queued frames to Updates in order and closes the
// channel when the subscription ends.
func (sub *Subscription) dispatch() {
	defer close(sub.updates)
	for {
		sub.mu.Lock()
		if len(sub.queue) == 0 {
			closed := sub.closed
			sub.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-sub.wake:
			case <-sub.done:
			}
			continue
		}
		next := sub.queue[0]
		sub.queue = sub.queue[1:]
		sub.mu.Unlock()

		select {
		case sub.updates <- next:
		case <-sub.done:
			return
		}
	}
}
