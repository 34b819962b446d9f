package core

import (
	"sync"
	"time"

	"github.com/promoreira/freelan/engine"
	"github.com/promoreira/freelan/fabric"
	"github.com/promoreira/freelan/netaddr"
)

// fakeEngine is a minimal engine.Engine recording every outbound call the
// coordinator makes, so scenario tests can assert on them directly (spec.md
// §8's literal S1-S6 scenarios).
type fakeEngine struct {
	mu sync.Mutex

	cb engine.Callbacks

	greeted      []netaddr.PeerAddress
	introduced   []netaddr.PeerAddress
	sessionReqs  []netaddr.PeerAddress
	contactAlls  [][]engine.Hash
	sentData     []sentDatum

	greetResult func(addr netaddr.PeerAddress) (error, time.Duration)
}

type sentDatum struct {
	addr    netaddr.PeerAddress
	channel uint16
	payload []byte
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{}
}

func (e *fakeEngine) Open(netaddr.PeerAddress) error { return nil }
func (e *fakeEngine) Close() error                   { return nil }
func (e *fakeEngine) SetCipherCapabilities([]engine.Cap) {}

func (e *fakeEngine) SetCallbacks(cb engine.Callbacks) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cb = cb
}

func (e *fakeEngine) AsyncGreet(addr netaddr.PeerAddress, cb func(err error, latency time.Duration)) {
	e.mu.Lock()
	e.greeted = append(e.greeted, addr)
	result := e.greetResult
	e.mu.Unlock()
	if result != nil {
		err, latency := result(addr)
		cb(err, latency)
		return
	}
	cb(nil, 10*time.Millisecond)
}

func (e *fakeEngine) AsyncIntroduceTo(addr netaddr.PeerAddress, cb func(err error)) {
	e.mu.Lock()
	e.introduced = append(e.introduced, addr)
	e.mu.Unlock()
	cb(nil)
}

func (e *fakeEngine) AsyncRequestSession(addr netaddr.PeerAddress, cb func(err error)) {
	e.mu.Lock()
	e.sessionReqs = append(e.sessionReqs, addr)
	e.mu.Unlock()
	cb(nil)
}

func (e *fakeEngine) AsyncSendContactRequestToAll(hashes []engine.Hash, cb func(results map[netaddr.PeerAddress]error)) {
	e.mu.Lock()
	e.contactAlls = append(e.contactAlls, hashes)
	e.mu.Unlock()
	cb(map[netaddr.PeerAddress]error{})
}

func (e *fakeEngine) AsyncSendData(addr netaddr.PeerAddress, channel uint16, payload []byte, cb func(err error)) {
	e.mu.Lock()
	e.sentData = append(e.sentData, sentDatum{addr: addr, channel: channel, payload: payload})
	e.mu.Unlock()
	cb(nil)
}

func (e *fakeEngine) callbacks() engine.Callbacks {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cb
}

func (e *fakeEngine) introducedTo(addr netaddr.PeerAddress) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, a := range e.introduced {
		if a == addr {
			return true
		}
	}
	return false
}

func (e *fakeEngine) requestedSessionWith(addr netaddr.PeerAddress) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, a := range e.sessionReqs {
		if a == addr {
			return true
		}
	}
	return false
}

// fakeFabric records port registration/deregistration, used for invariant 2
// and scenario S5.
type fakeFabric struct {
	mu          sync.Mutex
	nextHandle  int
	registered  map[fabric.Handle]fabric.Port
	registerCnt int
	unregCnt    int
}

func newFakeFabric() *fakeFabric {
	return &fakeFabric{registered: make(map[fabric.Handle]fabric.Port)}
}

func (f *fakeFabric) RegisterPort(port fabric.Port, group string) (fabric.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextHandle++
	handle := f.nextHandle
	f.registered[handle] = port
	f.registerCnt++
	return handle, nil
}

func (f *fakeFabric) UnregisterPort(handle fabric.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.registered, handle)
	f.unregCnt++
	return nil
}

func (f *fakeFabric) liveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.registered)
}

// fakeEthSink and fakeIPSink record delivered buffers for the demultiplexer
// tests (spec.md §4.6).
type fakeEthSink struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *fakeEthSink) Deliver(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return nil
}

func (s *fakeEthSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

type fakeIPSink struct {
	mu      sync.Mutex
	packets [][]byte
}

func (s *fakeIPSink) Deliver(packet []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets = append(s.packets, packet)
	return nil
}

func (s *fakeIPSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.packets)
}
