package testutils

import (
	"sync"
	"time"

	"github.com/sgrd/blemsg/internal/gatt"
)

// FakePeripheral is the GATT server side of the fake adapter: a service
// table, per-characteristic values, and behavior knobs. Built fluently:
//
//	a.Peripheral("AA:BB").
//	    WithService("180d").
//	    WithCharacteristic("2a37", "notify", nil).
//	    WithCharacteristic("2a39", "write", nil)
type FakePeripheral struct {
	adapter *FakeAdapter
	address string

	mu           sync.Mutex
	services     []*gatt.Service
	values       map[string][]byte // key: service/char
	readErrs     map[string]error
	writeErrs    map[string]error
	readDelays   map[string]time.Duration
	writes       map[string][][]byte
	echo         bool
	connectErr   error
	connectDelay time.Duration
	conns        []*FakeConn
}

func newFakePeripheral(a *FakeAdapter, address string) *FakePeripheral {
	return &FakePeripheral{
		adapter:    a,
		address:    address,
		values:     make(map[string][]byte),
		readErrs:   make(map[string]error),
		writeErrs:  make(map[string]error),
		readDelays: make(map[string]time.Duration),
		writes:     make(map[string][][]byte),
	}
}

// WithService appends a service; subsequent WithCharacteristic calls
// attach to it.
func (p *FakePeripheral) WithService(uuid string) *FakePeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.services = append(p.services, &gatt.Service{UUID: gatt.NormalizeUUID(uuid)})
	return p
}

// WithCharacteristic appends a characteristic to the most recent service.
// props uses the comma-separated capability names ("read,notify").
func (p *FakePeripheral) WithCharacteristic(uuid, props string, value []byte) *FakePeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.services) == 0 {
		panic("testutils: WithCharacteristic before WithService")
	}
	svc := p.services[len(p.services)-1]
	char := &gatt.Characteristic{
		UUID:         gatt.NormalizeUUID(uuid),
		Capabilities: gatt.ParseCapabilities(props),
		Service:      svc,
	}
	svc.Characteristics = append(svc.Characteristics, char)
	if value != nil {
		p.values[charKey(svc.UUID, char.UUID)] = value
	}
	return p
}

// RefuseConnections makes Connect fail with err (classified by the caller
// of the builder).
func (p *FakePeripheral) RefuseConnections(err error) *FakePeripheral {
	p.connectErr = err
	return p
}

// WithConnectDelay delays Connect; combine with a short timeout to force
// ErrConnectTimeout.
func (p *FakePeripheral) WithConnectDelay(d time.Duration) *FakePeripheral {
	p.connectDelay = d
	return p
}

// EchoWrites stores every written value as the characteristic's readable
// value, emulating an echo peripheral.
func (p *FakePeripheral) EchoWrites() *FakePeripheral {
	p.echo = true
	return p
}

// WithReadError fails reads of the given characteristic.
func (p *FakePeripheral) WithReadError(svcUUID, charUUID string, err error) *FakePeripheral {
	p.mu.Lock()
	p.readErrs[charKey(gatt.NormalizeUUID(svcUUID), gatt.NormalizeUUID(charUUID))] = err
	p.mu.Unlock()
	return p
}

// WithWriteError fails writes to the given characteristic.
func (p *FakePeripheral) WithWriteError(svcUUID, charUUID string, err error) *FakePeripheral {
	p.mu.Lock()
	p.writeErrs[charKey(gatt.NormalizeUUID(svcUUID), gatt.NormalizeUUID(charUUID))] = err
	p.mu.Unlock()
	return p
}

// WithReadDelay delays reads of the given characteristic.
func (p *FakePeripheral) WithReadDelay(svcUUID, charUUID string, d time.Duration) *FakePeripheral {
	p.mu.Lock()
	p.readDelays[charKey(gatt.NormalizeUUID(svcUUID), gatt.NormalizeUUID(charUUID))] = d
	p.mu.Unlock()
	return p
}

// Writes returns the recorded write payloads for a characteristic.
func (p *FakePeripheral) Writes(svcUUID, charUUID string) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes[charKey(gatt.NormalizeUUID(svcUUID), gatt.NormalizeUUID(charUUID))]
}

// Notify pushes a notification frame to every live subscription on the
// characteristic, across all open connections.
func (p *FakePeripheral) Notify(svcUUID, charUUID string, data []byte) {
	key := charKey(gatt.NormalizeUUID(svcUUID), gatt.NormalizeUUID(charUUID))
	p.mu.Lock()
	conns := make([]*FakeConn, len(p.conns))
	copy(conns, p.conns)
	p.mu.Unlock()
	for _, c := range conns {
		c.notify(key, data)
	}
}

// DropLink simulates peer-side link loss on every open connection.
func (p *FakePeripheral) DropLink() {
	p.mu.Lock()
	conns := make([]*FakeConn, len(p.conns))
	copy(conns, p.conns)
	p.mu.Unlock()
	for _, c := range conns {
		c.dropLink()
	}
}

// LastConn returns the most recently opened connection, or nil.
func (p *FakePeripheral) LastConn() *FakeConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.conns) == 0 {
		return nil
	}
	return p.conns[len(p.conns)-1]
}

func (p *FakePeripheral) addConn(c *FakeConn) {
	p.mu.Lock()
	p.conns = append(p.conns, c)
	p.mu.Unlock()
}

func charKey(svcUUID, charUUID string) string {
	return svcUUID + "/" + charUUID
}
