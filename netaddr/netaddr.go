// Package netaddr holds the address and endpoint value types shared by the
// coordinator (core), the secure channel engine's callback surface
// (engine), and the resolver (spec.md §3: PeerAddress, Endpoint).
//
// It is a deliberately tiny, dependency-free leaf package: core and engine
// both need PeerAddress in their exported signatures, and giving it its own
// package avoids a core<->engine import cycle (mirrors the teacher's own
// habit of hoisting a small address/ID type used on both sides of a
// boundary, e.g. enode.ID in network/p2p/server.go).
package netaddr

import (
	"fmt"
	"net"
	"strconv"
)

// Family selects a resolution protocol preference (spec.md §3,
// Configuration.resolution protocol preference).
type Family int

const (
	// Any accepts either IPv4 or IPv6 results.
	Any Family = iota
	IPv4
	IPv6
)

func (f Family) String() string {
	switch f {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	default:
		return "any"
	}
}

// PeerAddress is a resolved transport address: an IPv4 or IPv6 host plus a
// UDP port. It is comparable and hashable by (family, bytes, port), so it
// can be used directly as a map key (spec.md §3).
type PeerAddress struct {
	Family Family
	IP     [16]byte // IPv4 addresses are stored in the first 4 bytes, family disambiguates
	Port   uint16
}

// NewPeerAddress builds a PeerAddress from a net.IP and port, normalizing
// the family according to whether the IP has a 4-byte representation.
func NewPeerAddress(ip net.IP, port int) PeerAddress {
	var a PeerAddress
	a.Port = uint16(port)
	if ip4 := ip.To4(); ip4 != nil {
		a.Family = IPv4
		copy(a.IP[:4], ip4)
	} else {
		a.Family = IPv6
		copy(a.IP[:], ip.To16())
	}
	return a
}

// IPAddr reconstructs the net.IP this address carries.
func (a PeerAddress) IPAddr() net.IP {
	if a.Family == IPv4 {
		return net.IP(a.IP[:4])
	}
	ip := make(net.IP, 16)
	copy(ip, a.IP[:])
	return ip
}

// UDPAddr returns the equivalent *net.UDPAddr.
func (a PeerAddress) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: a.IPAddr(), Port: int(a.Port)}
}

func (a PeerAddress) String() string {
	return net.JoinHostPort(a.IPAddr().String(), strconv.Itoa(int(a.Port)))
}

// IsZero reports whether a is the zero PeerAddress.
func (a PeerAddress) IsZero() bool {
	return a == PeerAddress{}
}

// Endpoint is a user-supplied peer locator: either a literal address or a
// (hostname, service) pair to be resolved (spec.md §3, tagged variant).
type Endpoint struct {
	literal  PeerAddress
	isLit    bool
	hostname string
	service  string
}

// LiteralEndpoint wraps an already-resolved address.
func LiteralEndpoint(addr PeerAddress) Endpoint {
	return Endpoint{literal: addr, isLit: true}
}

// HostEndpoint builds an endpoint that must be resolved via DNS. If service
// is empty the engine's default service identifier applies (spec.md §6).
func HostEndpoint(hostname, service string) Endpoint {
	return Endpoint{hostname: hostname, service: service}
}

// IsLiteral reports whether e already carries a concrete PeerAddress.
func (e Endpoint) IsLiteral() bool {
	return e.isLit
}

// Literal returns the wrapped address; valid only if IsLiteral is true.
func (e Endpoint) Literal() PeerAddress {
	return e.literal
}

// Host returns the (hostname, service) pair; valid only if IsLiteral is false.
func (e Endpoint) Host() (hostname, service string) {
	return e.hostname, e.service
}

func (e Endpoint) String() string {
	if e.isLit {
		return e.literal.String()
	}
	if e.service == "" {
		return e.hostname
	}
	return fmt.Sprintf("%s:%s", e.hostname, e.service)
}
