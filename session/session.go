// Package session implements the GATT client session: a state machine
// wrapping one connection to one peripheral, with service resolution,
// serialized read/write exchanges, and notification subscriptions.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/sgrd/blemsg/internal/gatt"
)

// State is the session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateServicesResolved
	StateBusy
	StateDisconnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateServicesResolved:
		return "services-resolved"
	case StateBusy:
		return "busy"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DefaultConnectTimeout bounds Open when the caller passes no timeout.
const DefaultConnectTimeout = 10 * time.Second

// Session drives one connection to one peripheral. A session starts Idle,
// moves through Connecting to Connected on Open, caches resolved services
// in ServicesResolved, serializes exchanges through Busy, and ends in
// Disconnected. A failed Open leaves the session in Failed, from which
// Open may be retried; Disconnected is terminal.
//
// All methods are safe for concurrent use. Exactly one of the exchange
// methods runs at a time; concurrent attempts fail fast with
// gatt.ErrSessionBusy instead of queueing.
type Session struct {
	adapter gatt.Adapter
	logger  *logrus.Logger

	mu      sync.Mutex
	state   State
	conn    gatt.Conn
	address string
	reason  error
	gen     int // connection generation, invalidates stale watchers

	services *orderedmap.OrderedMap[string, *gatt.Service]
	subs     []*Subscription
}

// New creates an Idle session on the given adapter.
func New(adapter gatt.Adapter, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	return &Session{
		adapter: adapter,
		logger:  logger,
		state:   StateIdle,
	}
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Address reports the peripheral address of the current or last attempt.
func (s *Session) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// Reason reports why the session is Failed or Disconnected; nil for a
// clean Close.
func (s *Session) Reason() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Open connects to the peripheral at address. Allowed only from Idle or
// Failed; on success the session is Connected, on failure it is Failed
// with a classified reason and may be retried.
func (s *Session) Open(ctx context.Context, address string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	s.mu.Lock()
	if s.state != StateIdle && s.state != StateFailed {
		st := s.state
		s.mu.Unlock()
		return gatt.Errorf(gatt.InvalidState, "cannot open from state %q", st)
	}
	s.state = StateConnecting
	s.address = address
	s.reason = nil
	s.mu.Unlock()

	log := s.logger.WithField("address", address)
	log.Debug("Connecting")

	conn, err := s.adapter.Connect(ctx, address, timeout)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		// Close raced the connect attempt.
		if conn != nil {
			_ = conn.Close()
		}
		return gatt.Errorf(gatt.InvalidState, "session closed while connecting to %s", address)
	}
	if err != nil {
		s.state = StateFailed
		s.reason = err
		log.WithError(err).Debug("Connect failed")
		return err
	}

	s.conn = conn
	s.state = StateConnected
	s.services = nil
	s.gen++
	go s.watch(conn, s.gen)

	log.Debug("Connected")
	return nil
}

// watch turns a dropped link into session teardown. One watcher runs per
// connection; the generation counter keeps a stale watcher from touching
// a newer connection.
func (s *Session) watch(conn gatt.Conn, gen int) {
	<-conn.Disconnected()

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.state == StateDisconnected {
		return
	}
	s.logger.WithField("address", s.address).Warn("Link lost")
	s.teardownLocked(gatt.Errorf(gatt.LinkLost, "link to %s lost", s.address))
}

// Resolve discovers the peripheral's services and characteristics.
// Discovery runs once per connection; later calls return the cached
// result. Allowed from Connected, ServicesResolved, and Busy.
func (s *Session) Resolve(ctx context.Context) ([]*gatt.Service, error) {
	s.mu.Lock()
	switch s.state {
	case StateServicesResolved, StateBusy:
		cached := s.servicesLocked()
		s.mu.Unlock()
		return cached, nil
	case StateConnected:
	default:
		st := s.state
		s.mu.Unlock()
		return nil, gatt.Errorf(gatt.InvalidState, "cannot resolve services from state %q", st)
	}
	conn := s.conn
	gen := s.gen
	s.mu.Unlock()

	services, err := conn.ResolveServices(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.state == StateDisconnected {
		return nil, gatt.Errorf(gatt.LinkLost, "link to %s lost", s.address)
	}
	if err != nil {
		if gatt.IsKind(err, gatt.LinkLost) {
			s.teardownLocked(err)
		}
		return nil, err
	}

	s.services = orderedmap.New[string, *gatt.Service]()
	for _, svc := range services {
		s.services.Set(svc.UUID, svc)
	}
	s.state = StateServicesResolved

	s.logger.WithFields(logrus.Fields{
		"address":  s.address,
		"services": len(services),
	}).Debug("Services resolved")
	return services, nil
}

// Services returns the cached resolved services in discovery order, or nil
// before Resolve.
func (s *Session) Services() []*gatt.Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.servicesLocked()
}

// Service looks up a cached service by UUID in any accepted form.
func (s *Session) Service(uuid string) (*gatt.Service, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.services == nil {
		return nil, false
	}
	return s.services.Get(gatt.NormalizeUUID(uuid))
}

func (s *Session) servicesLocked() []*gatt.Service {
	if s.services == nil {
		return nil
	}
	out := make([]*gatt.Service, 0, s.services.Len())
	for pair := s.services.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Close tears the session down: subscriptions end, the connection is
// released exactly once, and the state becomes Disconnected. Close is
// idempotent; on a never-opened session it is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle, StateDisconnected:
		return nil
	}
	s.teardownLocked(nil)
	return nil
}

// teardownLocked ends every subscription, closes the connection, and
// moves the session to Disconnected. Callers hold s.mu.
func (s *Session) teardownLocked(reason error) {
	for _, sub := range s.subs {
		sub.terminate(reason)
	}
	s.subs = nil

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.WithError(err).Debug("Connection close reported an error")
		}
		s.conn = nil
	}
	s.state = StateDisconnected
	s.reason = reason
}

// noteLinkLost is called by exchange paths that observed a link-loss
// error before the watcher did.
func (s *Session) noteLinkLost(gen int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.state == StateDisconnected {
		return
	}
	s.teardownLocked(err)
}

// beginExchange claims the session for one exchange, moving
// ServicesResolved to Busy. It fails fast when another exchange holds the
// session.
func (s *Session) beginExchange() (gatt.Conn, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateBusy:
		return nil, 0, gatt.Errorf(gatt.SessionBusy, "another exchange is in progress on %s", s.address)
	case StateServicesResolved:
	default:
		return nil, 0, gatt.Errorf(gatt.InvalidState, "cannot start an exchange from state %q", s.state)
	}
	s.state = StateBusy
	return s.conn, s.gen, nil
}

// endExchange releases the Busy claim. A link-loss failure tears the
// session down; any other outcome returns it to ServicesResolved.
func (s *Session) endExchange(gen int, err error) {
	if err != nil && gatt.IsKind(err, gatt.LinkLost) {
		s.noteLinkLost(gen, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.state != StateBusy {
		return
	}
	s.state = StateServicesResolved
}
