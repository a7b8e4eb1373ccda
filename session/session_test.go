package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/sgrd/blemsg/internal/gatt"
	"github.com/sgrd/blemsg/internal/testutils"
)

// GOAL: Verify the session state machine end to end against the fake
// radio: lifecycle transitions, exchange serialization, link-loss
// handling, and the no-leaked-connections guarantee.
type SessionTestSuite struct {
	testutils.FakeRadioSuite
}

func TestSessionTestSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}

const echoAddr = "EE:00"

// echoPeripheral registers a peripheral whose write characteristic
// reflects the last written value back on reads.
func (s *SessionTestSuite) echoPeripheral() *testutils.FakePeripheral {
	return s.Adapter.Peripheral(echoAddr).
		WithService("180d").
		WithCharacteristic("2a39", "read,write,write-without-response,notify", nil).
		EchoWrites()
}

func (s *SessionTestSuite) openResolved() *Session {
	s.echoPeripheral()
	sess := New(s.Adapter, s.Logger)
	s.Require().NoError(sess.Open(context.Background(), echoAddr, time.Second))
	_, err := sess.Resolve(context.Background())
	s.Require().NoError(err)
	return sess
}

// TEST SCENARIO: The happy-path lifecycle. Every state is observed in
// order and a closed session leaves the adapter with zero open
// connections and paired connect/disconnect counts.
func (s *SessionTestSuite) TestLifecycle() {
	s.echoPeripheral()
	sess := New(s.Adapter, s.Logger)
	s.Equal(StateIdle, sess.State())

	s.Require().NoError(sess.Open(context.Background(), echoAddr, time.Second))
	s.Equal(StateConnected, sess.State())
	s.Equal(echoAddr, sess.Address())

	services, err := sess.Resolve(context.Background())
	s.Require().NoError(err)
	s.Require().Len(services, 1)
	s.Equal(StateServicesResolved, sess.State())

	s.Require().NoError(sess.Close())
	s.Equal(StateDisconnected, sess.State())
	s.NoError(sess.Reason())

	s.Equal(0, s.Adapter.ActiveConnections())
	s.Equal(s.Adapter.ConnectCalls, s.Adapter.DisconnectCalls)
}

// TEST SCENARIO: Close is idempotent; a second Close must not issue a
// second disconnect.
func (s *SessionTestSuite) TestCloseIdempotent() {
	sess := s.openResolved()

	s.Require().NoError(sess.Close())
	disconnects := s.Adapter.DisconnectCalls
	s.Require().NoError(sess.Close())
	s.Equal(disconnects, s.Adapter.DisconnectCalls)

	// Closing a never-opened session is a no-op, not a transition.
	fresh := New(s.Adapter, s.Logger)
	s.NoError(fresh.Close())
	s.Equal(StateIdle, fresh.State())
}

func (s *SessionTestSuite) TestOpenFromWrongState() {
	sess := s.openResolved()
	defer sess.Close()

	err := sess.Open(context.Background(), "EE:99", time.Second)
	s.ErrorIs(err, gatt.ErrInvalidState)
	s.Equal(StateServicesResolved, sess.State())
}

// TEST SCENARIO: A refused connect leaves the session in Failed with the
// classified reason, and Open may be retried from there.
func (s *SessionTestSuite) TestFailedOpenAllowsRetry() {
	p := s.echoPeripheral().RefuseConnections(
		gatt.Errorf(gatt.ConnectRefused, "peer rejected"))

	sess := New(s.Adapter, s.Logger)
	err := sess.Open(context.Background(), echoAddr, time.Second)
	s.ErrorIs(err, gatt.ErrConnectRefused)
	s.Equal(StateFailed, sess.State())
	s.ErrorIs(sess.Reason(), gatt.ErrConnectRefused)

	p.RefuseConnections(nil)
	s.Require().NoError(sess.Open(context.Background(), echoAddr, time.Second))
	s.Equal(StateConnected, sess.State())
	s.NoError(sess.Close())
}

func (s *SessionTestSuite) TestConnectTimeout() {
	s.echoPeripheral().WithConnectDelay(time.Second)

	sess := New(s.Adapter, s.Logger)
	err := sess.Open(context.Background(), echoAddr, 30*time.Millisecond)
	s.ErrorIs(err, gatt.ErrConnectTimeout)
	s.Equal(StateFailed, sess.State())
}

/// TEST SCENARIO: A second session on a radio that supports a single
// outbound connection fails fast with a capacity error instead of
// blocking, and succeeds once the first session releases its slot.
func (s *SessionTestSuite) TestSecondSessionExceedsAdapterCapacity() {
	s.Require().Equal(1, s.Adapter.Capacity())
	s.echoPeripheral()
	s.Adapter.Peripheral("EE:01").
		WithService("180f").
		WithCharacteristic("2a19", "read", []byte{0x64})

	first := New(s.Adapter, s.Logger)
	s.Require().NoError(first.Open(context.Background(), echoAddr, time.Second))

	second := New(s.Adapter, s.Logger)
	err := second.Open(context.Background(), "EE:01", time.Second)
	s.ErrorIs(err, gatt.ErrCapacityExceeded)
	s.Equal(StateFailed, second.State())
	s.Equal(1, s.Adapter.ActiveConnections())

	s.Require().NoError(first.Close())
	s.Require().NoError(second.Open(context.Background(), "EE:01", time.Second))
	s.Equal(StateConnected, second.State())
	s.NoError(second.Close())
}

// TEST SCENARIO: Resolve runs discovery once per connection; repeated
// calls return the same cached profile.
func (s *SessionTestSuite) TestResolveIsCached() {
	sess := s.openResolved()
	defer sess.Close()

	first, err := sess.Resolve(context.Background())
	s.Require().NoError(err)
	second, err := sess.Resolve(context.Background())
	s.Require().NoError(err)

	s.Require().Len(first, 1)
	s.Require().Len(second, 1)
	s.Same(first[0], second[0])

	svc, ok := sess.Service("180D")
	s.True(ok, "lookup must accept any UUID form")
	s.Same(first[0], svc)
}

func (s *SessionTestSuite) TestExchangeRequiresResolvedState() {
	s.echoPeripheral()
	sess := New(s.Adapter, s.Logger)
	s.Require().NoError(sess.Open(context.Background(), echoAddr, time.Second))
	defer sess.Close()

	char := &gatt.Characteristic{
		UUID:         "2a39",
		Capabilities: gatt.CapWrite,
		Service:      &gatt.Service{UUID: "180d"},
	}
	err := sess.Write(context.Background(), char, TextPayload("hi"), true)
	s.ErrorIs(err, gatt.ErrInvalidState)
}

// TEST SCENARIO: Write a text payload, read it back through the echoing
// peripheral, then do the same with a hex payload carrying separators.
func (s *SessionTestSuite) TestEchoRoundTrip() {
	sess := s.openResolved()
	defer sess.Close()

	char, err := SelectCharacteristic(sess.Services(), gatt.CapWrite)
	s.Require().NoError(err)

	s.Require().NoError(sess.Write(context.Background(), char, TextPayload("ping"), true))
	value, err := sess.Read(context.Background(), char)
	s.Require().NoError(err)
	s.Equal([]byte("ping"), value)

	s.Require().NoError(sess.Write(context.Background(), char, HexPayload("48:65:6c:6c:6f"), true))
	value, err = sess.Read(context.Background(), char)
	s.Require().NoError(err)
	s.Equal([]byte("Hello"), value)

	s.Equal(StateServicesResolved, sess.State())
}

func (s *SessionTestSuite) TestWriteWithoutResponse() {
	sess := s.openResolved()
	defer sess.Close()

	char, err := SelectCharacteristic(sess.Services(), gatt.CapWriteNoResponse)
	s.Require().NoError(err)

	s.Require().NoError(sess.Write(context.Background(), char, RawPayload{0x01, 0x02}, false))
	writes := s.Adapter.Peripheral(echoAddr).Writes("180d", "2a39")
	s.Require().Len(writes, 1)
	s.Equal([]byte{0x01, 0x02}, writes[0])
}

func (s *SessionTestSuite) TestMalformedHexPayload() {
	sess := s.openResolved()
	defer sess.Close()

	char, err := SelectCharacteristic(sess.Services(), gatt.CapWrite)
	s.Require().NoError(err)

	err = sess.Write(context.Background(), char, HexPayload("48656"), true)
	s.ErrorIs(err, gatt.ErrMalformedPayload)
	err = sess.Write(context.Background(), char, HexPayload("zz"), true)
	s.ErrorIs(err, gatt.ErrMalformedPayload)

	// A rejected payload never reaches the radio and never claims Busy.
	s.Empty(s.Adapter.Peripheral(echoAddr).Writes("180d", "2a39"))
	s.Equal(StateServicesResolved, sess.State())
}

// TEST SCENARIO: While one exchange holds the session, a second fails
// fast with SessionBusy instead of queueing; after the first completes
// the session accepts exchanges again.
func (s *SessionTestSuite) TestConcurrentExchangeFailsFast() {
	s.echoPeripheral().WithReadDelay("180d", "2a39", 150*time.Millisecond)
	sess := New(s.Adapter, s.Logger)
	s.Require().NoError(sess.Open(context.Background(), echoAddr, time.Second))
	defer sess.Close()
	_, err := sess.Resolve(context.Background())
	s.Require().NoError(err)

	char, err := SelectCharacteristic(sess.Services(), gatt.CapRead)
	s.Require().NoError(err)

	readDone := make(chan error, 1)
	go func() {
		_, err := sess.Read(context.Background(), char)
		readDone <- err
	}()

	s.Eventually(func() bool { return sess.State() == StateBusy },
		time.Second, 5*time.Millisecond)

	err = sess.Write(context.Background(), char, TextPayload("nope"), true)
	s.ErrorIs(err, gatt.ErrSessionBusy)

	s.NoError(<-readDone)
	s.Equal(StateServicesResolved, sess.State())
	s.NoError(sess.Write(context.Background(), char, TextPayload("now"), true))
}

// TEST SCENARIO: Peer-side link loss moves the session to Disconnected,
// records the reason, and still releases the adapter slot exactly once.
func (s *SessionTestSuite) TestLinkLossTearsDown() {
	sess := s.openResolved()

	s.Adapter.Peripheral(echoAddr).DropLink()

	s.Eventually(func() bool { return sess.State() == StateDisconnected },
		time.Second, 5*time.Millisecond)
	s.ErrorIs(sess.Reason(), gatt.ErrLinkLost)

	char, err := SelectCharacteristic(sess.Services(), gatt.CapWrite)
	s.Require().NoError(err)
	err = sess.Write(context.Background(), char, TextPayload("late"), true)
	s.ErrorIs(err, gatt.ErrInvalidState)

	// Close after link loss must not double-release.
	s.NoError(sess.Close())
	s.Equal(0, s.Adapter.ActiveConnections())
	s.Equal(s.Adapter.ConnectCalls, s.Adapter.DisconnectCalls)
}

func (s *SessionTestSuite) TestWriteRejectedIsRecoverable() {
	s.echoPeripheral().WithWriteError("180d", "2a39",
		gatt.Errorf(gatt.WriteRejected, "value out of range"))
	sess := New(s.Adapter, s.Logger)
	s.Require().NoError(sess.Open(context.Background(), echoAddr, time.Second))
	defer sess.Close()
	_, err := sess.Resolve(context.Background())
	s.Require().NoError(err)

	char, err := SelectCharacteristic(sess.Services(), gatt.CapWrite)
	s.Require().NoError(err)

	err = sess.Write(context.Background(), char, TextPayload("x"), true)
	s.ErrorIs(err, gatt.ErrWriteRejected)
	s.Equal(StateServicesResolved, sess.State(),
		"a rejected write must leave the session usable")

	_, err = sess.Read(context.Background(), char)
	s.NoError(err)
}

// TEST SCENARIO: The full user journey on the fake radio: discover the
// peripheral, open a session, resolve, pick a writable characteristic,
// send, and read the echo back.
func (s *SessionTestSuite) TestSendAndReadBackJourney() {
	s.echoPeripheral()

	sess := New(s.Adapter, s.Logger)
	s.Require().NoError(sess.Open(context.Background(), echoAddr, time.Second))
	defer sess.Close()

	_, err := sess.Resolve(context.Background())
	s.Require().NoError(err)

	char, matched, err := SelectWithFallback(sess.Services(),
		[]gatt.Capability{gatt.CapWrite, gatt.CapWriteNoResponse})
	s.Require().NoError(err)
	s.Equal(gatt.CapWrite, matched)

	s.Require().NoError(sess.Write(context.Background(), char, TextPayload("hello there"), true))
	value, err := sess.Read(context.Background(), char)
	s.Require().NoError(err)
	s.Equal("hello there", string(value))
}
