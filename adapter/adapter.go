// Package adapter declares the virtual network adapter sinks the data
// demultiplexer delivers channel-0 traffic to (spec.md §4.6, §1: "the
// virtual network adapter (TAP/TUN) ... out of scope").
package adapter

// Mode selects whether the coordinator bridges L2 frames or L3 packets
// (spec.md §3, Configuration.adapter mode).
type Mode int

const (
	// SwitchMode bridges Ethernet frames to an L2 switch fabric.
	SwitchMode Mode = iota
	// RouterMode bridges IP packets to an L3 router fabric.
	RouterMode
)

func (m Mode) String() string {
	if m == RouterMode {
		return "router"
	}
	return "switch"
}

// EthernetSink receives full Ethernet frames in L2 (switch) mode.
type EthernetSink interface {
	Deliver(frame []byte) error
}

// IPSink receives raw IP packets in L3 (router) mode.
type IPSink interface {
	Deliver(packet []byte) error
}
