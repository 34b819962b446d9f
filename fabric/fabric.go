// Package fabric declares the switch-or-router fabric interface the port
// registry binds per-peer ports to (spec.md §4.7, §6: "Fabric (switch in
// L2 mode, router in L3 mode)").
package fabric

// EndpointsGroup is the fabric group every per-peer port is registered
// under (spec.md §4.7).
const EndpointsGroup = "endpoints"

// Port is a direction of traffic to one peer: an endpoint of the local
// fabric whose Egress closure injects a frame into the secure channel on
// channel 0 (GLOSSARY "Port").
type Port struct {
	// ID names the port for logging and fabric bookkeeping.
	ID string
	// Egress is called by the fabric to send a frame to this port's peer.
	Egress func(frame []byte) error
}

// Handle is an opaque reference returned by RegisterPort, required to
// later unregister the same port (spec.md §3, PortHandle).
type Handle interface{}

// Fabric is the L2 switch or L3 router above the virtual network adapter
// (spec.md §1, out-of-scope external collaborator).
type Fabric interface {
	RegisterPort(port Port, group string) (Handle, error)
	UnregisterPort(handle Handle) error
}
