package core

import (
	"time"

	"github.com/promoreira/freelan/fabric"
	"github.com/promoreira/freelan/internal/mclock"
	"github.com/promoreira/freelan/netaddr"
)

// sessionState is the per-peer state machine the core observes, driven by
// callbacks from the secure channel engine (spec.md §4.3):
//
//	None -> Greeted -> Presented -> SessionUp <-> SessionRenewing -> None
type sessionState int

const (
	stateNone sessionState = iota
	stateGreeted
	statePresented
	stateSessionUp
	stateSessionRenewing
)

func (s sessionState) String() string {
	switch s {
	case stateGreeted:
		return "greeted"
	case statePresented:
		return "presented"
	case stateSessionUp:
		return "session-up"
	case stateSessionRenewing:
		return "session-renewing"
	default:
		return "none"
	}
}

// PeerRecord is the per-peer dynamic state the core keeps while the secure
// channel engine holds any state for that peer (spec.md §3, invariant 1).
type PeerRecord struct {
	Address netaddr.PeerAddress

	state sessionState

	LastContact time.Time
	Latency     time.Duration
	created     mclock.AbsTime

	// port is non-nil only while an active session has a registered
	// switch or router port (spec.md §3, invariant 2).
	port       fabric.Handle
	hasSession bool // true from the first SessionEstablished(isNew) until SessionLost
}

// PortHandle aliases fabric.Handle: spec.md §3 names it as the opaque
// reference the registry must present on deregistration.
type PortHandle = fabric.Handle
