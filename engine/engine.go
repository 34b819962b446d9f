// Package engine declares the secure channel protocol engine's interface as
// consumed by the node coordinator (spec.md §1, §6: "out of scope and
// treated as an external collaborator with a specified interface only").
//
// Per the §9 re-architecture note ("engine-to-core callbacks as
// member-function pointers with explicit `this`: model as a trait/interface
// object or a set of function-valued fields on a configuration struct
// passed to the engine"), the core never hands the engine a pointer to
// itself; it hands it a Callbacks value — a struct of function fields the
// engine treats as an opaque capability provider.
package engine

import (
	"time"

	"github.com/promoreira/freelan/netaddr"
)

// DefaultServicePort is the UDP port assumed for an endpoint that does not
// name one explicitly (spec.md §6).
const DefaultServicePort = 12000

// Cap names one capability (cipher suite, protocol) a peer advertises
// during the protocol handshake.
type Cap struct {
	Name    string
	Version uint
}

// Hash is a dynamic-contact key, i.e. a certificate fingerprint, opaque to
// the engine.
type Hash [32]byte

// Engine is the secure channel protocol engine's operational surface: the
// handshake/session/datagram layer beneath the coordinator (GLOSSARY).
// Exactly one Engine is held by an open core (spec.md §6).
type Engine interface {
	// Open starts listening for inbound datagrams on listenAddr.
	Open(listenAddr netaddr.PeerAddress) error
	// Close stops the engine and releases its resources.
	Close() error

	// SetCipherCapabilities advertises the node's supported cipher suites.
	SetCipherCapabilities(caps []Cap)
	// SetCallbacks registers the coordinator's callback surface. It must be
	// called before Open.
	SetCallbacks(cb Callbacks)

	// AsyncGreet sends a "hello" to addr and reports the round-trip latency
	// or an error (spec.md §4.2, §6).
	AsyncGreet(addr netaddr.PeerAddress, cb func(err error, latency time.Duration))
	// AsyncIntroduceTo sends an "introduce-to" message to addr.
	AsyncIntroduceTo(addr netaddr.PeerAddress, cb func(err error))
	// AsyncRequestSession begins session negotiation with addr.
	AsyncRequestSession(addr netaddr.PeerAddress, cb func(err error))
	// AsyncSendContactRequestToAll asks every currently known peer whether
	// it knows an address for any of hashes, invoking cb once with the
	// per-peer outcome after all replies (or timeouts) are in.
	AsyncSendContactRequestToAll(hashes []Hash, cb func(results map[netaddr.PeerAddress]error))
	// AsyncSendData sends an authenticated payload to addr on channel.
	AsyncSendData(addr netaddr.PeerAddress, channel uint16, payload []byte, cb func(err error))
}

// Callbacks is the function-valued-fields capability surface the
// coordinator hands the engine (spec.md §4.3's event table, §9's
// re-architecture note). Any field left nil is treated as "take the
// engine's default," matching spec.md's "Policy defaults" note.
type Callbacks struct {
	// HelloReceived is invoked when a hello arrives. defaultAccept is the
	// engine's own admission recommendation; the callback's returned bool
	// overrides it.
	HelloReceived func(sender netaddr.PeerAddress, defaultAccept bool) bool

	// ContactRequestReceived is invoked when a peer asks whether this node
	// knows an address for the certificate identified by hash.
	ContactRequestReceived func(sender netaddr.PeerAddress, cert Hash, answer netaddr.PeerAddress) bool

	// ContactReceived is invoked when a contact-request reply names answer
	// as the address of the peer identified by hash.
	ContactReceived func(sender netaddr.PeerAddress, hash Hash, answer netaddr.PeerAddress)

	// PresentationReceived is invoked when a peer reveals its certificates.
	// isNew indicates the peer has no prior relationship with this node.
	PresentationReceived func(sender netaddr.PeerAddress, sigCert, encCert []byte, isNew bool) bool

	// SessionRequestReceived is invoked when a peer proposes cipher
	// capabilities for a new session.
	SessionRequestReceived func(sender netaddr.PeerAddress, cipherCaps []Cap, defaultAccept bool) bool

	// SessionReceived is invoked when a peer confirms the cipher suite
	// chosen for a new session.
	SessionReceived func(sender netaddr.PeerAddress, chosenCipher Cap, defaultAccept bool) bool

	// SessionEstablished is invoked once a session with host is up.
	// isNew is true only on the first establishment after a None->SessionUp
	// transition (spec.md §4.3 "is-new semantics").
	SessionEstablished func(host netaddr.PeerAddress, isNew bool, localAlgos, remoteAlgos []Cap)

	// SessionFailed is invoked when session negotiation with host fails.
	SessionFailed func(host netaddr.PeerAddress, isNew bool, localAlgos, remoteAlgos []Cap)

	// SessionLost is invoked once per paired SessionEstablished(isNew=true)
	// when the session with host ends (spec.md §3, invariant 3).
	SessionLost func(host netaddr.PeerAddress)

	// DataReceived is invoked when an authenticated payload arrives on
	// channel from sender. buffer is valid only for the duration of the
	// call unless the coordinator explicitly retains a copy (spec.md §4.6).
	DataReceived func(sender netaddr.PeerAddress, channel uint16, buffer []byte)
}
