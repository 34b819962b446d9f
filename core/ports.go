package core

import (
	"fmt"
	"sync"

	"github.com/promoreira/freelan/engine"
	"github.com/promoreira/freelan/fabric"
	"github.com/promoreira/freelan/netaddr"
)

// portRegistry tracks at most one fabric port per peer, keyed by address
// (spec.md §4.7, invariant 3: "a peer has at most one registered port at
// any time"). It keeps a single map for whichever fabric it was given; it
// does not keep separate switch and router maps.
type portRegistry struct {
	mu     sync.Mutex
	fabric fabric.Fabric
	ports  map[netaddr.PeerAddress]fabric.Handle
}

func newPortRegistry(f fabric.Fabric) *portRegistry {
	return &portRegistry{
		fabric: f,
		ports:  make(map[netaddr.PeerAddress]fabric.Handle),
	}
}

// register opens a port for addr whose Egress closure forwards data to the
// peer over eng's authenticated channel-0 send (spec.md §4.7). It is a
// no-op, returning the existing handle, if addr already has a port.
func (r *portRegistry) register(addr netaddr.PeerAddress, eng engine.Engine) (fabric.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.ports[addr]; ok {
		return h, nil
	}

	port := fabric.Port{
		ID: fmt.Sprintf("peer-%s", addr.String()),
		Egress: func(frame []byte) error {
			eng.AsyncSendData(addr, 0, frame, func(error) {})
			return nil
		},
	}
	handle, err := r.fabric.RegisterPort(port, fabric.EndpointsGroup)
	if err != nil {
		return nil, err
	}
	r.ports[addr] = handle
	return handle, nil
}

// unregister removes addr's port, if any (spec.md §4.7, called on
// SessionLost).
func (r *portRegistry) unregister(addr netaddr.PeerAddress) error {
	r.mu.Lock()
	handle, ok := r.ports[addr]
	if ok {
		delete(r.ports, addr)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return r.fabric.UnregisterPort(handle)
}

// has reports whether addr currently has a registered port.
func (r *portRegistry) has(addr netaddr.PeerAddress) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ports[addr]
	return ok
}

// unregisterAll tears down every remaining port, used by Core.Close
// (spec.md §5).
func (r *portRegistry) unregisterAll() {
	r.mu.Lock()
	handles := make([]fabric.Handle, 0, len(r.ports))
	for addr, h := range r.ports {
		handles = append(handles, h)
		delete(r.ports, addr)
	}
	r.mu.Unlock()
	for _, h := range handles {
		_ = r.fabric.UnregisterPort(h)
	}
}
