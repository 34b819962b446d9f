package main

import (
	"errors"
	"time"

	"github.com/pborman/uuid"

	"github.com/promoreira/freelan/engine"
	"github.com/promoreira/freelan/fabric"
	"github.com/promoreira/freelan/netaddr"
)

// loopbackEngine is a minimal engine.Engine that accepts every hello and
// session request and never produces real traffic. It lets freelan-node
// run standalone for exercising the coordinator without wiring a real
// secure channel implementation, which spec.md §6 treats as an external
// collaborator outside this repo's scope.
type loopbackEngine struct {
	callbacks engine.Callbacks
}

func newLoopbackEngine() *loopbackEngine {
	return &loopbackEngine{}
}

func (e *loopbackEngine) Open(listenAddr netaddr.PeerAddress) error { return nil }
func (e *loopbackEngine) Close() error                              { return nil }

func (e *loopbackEngine) SetCipherCapabilities(caps []engine.Cap) {}

func (e *loopbackEngine) SetCallbacks(cb engine.Callbacks) {
	e.callbacks = cb
}

func (e *loopbackEngine) AsyncGreet(addr netaddr.PeerAddress, cb func(err error, latency time.Duration)) {
	go cb(nil, 0)
}

func (e *loopbackEngine) AsyncIntroduceTo(addr netaddr.PeerAddress, cb func(err error)) {
	go cb(nil)
}

func (e *loopbackEngine) AsyncRequestSession(addr netaddr.PeerAddress, cb func(err error)) {
	go cb(nil)
}

func (e *loopbackEngine) AsyncSendContactRequestToAll(hashes []engine.Hash, cb func(results map[netaddr.PeerAddress]error)) {
	go cb(map[netaddr.PeerAddress]error{})
}

func (e *loopbackEngine) AsyncSendData(addr netaddr.PeerAddress, channel uint16, payload []byte, cb func(err error)) {
	go cb(errors.New("loopback engine: no transport configured"))
}

// loopbackFabric registers ports by generating a uuid handle and otherwise
// does nothing with them, the same "accept every registration" shape as
// loopbackEngine.
type loopbackFabric struct{}

func newLoopbackFabric() *loopbackFabric { return &loopbackFabric{} }

func (f *loopbackFabric) RegisterPort(port fabric.Port, group string) (fabric.Handle, error) {
	return uuid.NewRandom().String(), nil
}

func (f *loopbackFabric) UnregisterPort(handle fabric.Handle) error {
	return nil
}
