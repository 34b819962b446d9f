package core

import (
	"github.com/drep-project/binary"

	"github.com/promoreira/freelan/adapter"
	"github.com/promoreira/freelan/netaddr"
)

// Reserved data channels (spec.md §4.6).
const (
	// ChannelData carries Ethernet frames or IP packets, depending on the
	// configured adapter mode.
	ChannelData uint16 = 0
	// ChannelControl carries a ControlMessage.
	ChannelControl uint16 = 1
)

// ControlMessageKind discriminates the small set of in-band control
// messages the coordinator understands on channel 1 (spec.md §4.6).
type ControlMessageKind uint8

const (
	ControlKeepalive ControlMessageKind = iota
	ControlLatencyProbe
	ControlLatencyReply
)

// ControlMessage is the struct demultiplexed from channel 1. It is encoded
// with the teacher's own struct-to-bytes codec (drep-project/binary),
// already depended on by the teacher for exactly this job elsewhere in the
// tree (chain/store/stakestore.go, crypto/address.go) — chosen over
// golang/protobuf/proto because the retrieved pack carries no protoc
// output to build a real proto.Message from (DESIGN.md).
type ControlMessage struct {
	Kind  ControlMessageKind
	Nonce uint64
}

// demultiplexer routes inbound authenticated payloads by channel number
// (spec.md §4.6). Channel 0 goes to the adapter sink appropriate for the
// configured mode; channel 1 is parsed as a ControlMessage; any other
// channel is logged and dropped without affecting the session.
type demultiplexer struct {
	mode adapter.Mode
	eth  adapter.EthernetSink
	ip   adapter.IPSink

	onKeepalive     func(sender netaddr.PeerAddress)
	onLatencyProbe  func(sender netaddr.PeerAddress, nonce uint64)
	onLatencyReply  func(sender netaddr.PeerAddress, nonce uint64)
	onUnknownChannel func(sender netaddr.PeerAddress, channel uint16)
	onMalformed     func(sender netaddr.PeerAddress, err error)
}

func (d *demultiplexer) handle(sender netaddr.PeerAddress, channel uint16, payload []byte) {
	switch channel {
	case ChannelData:
		d.handleData(payload)
	case ChannelControl:
		d.handleControl(sender, payload)
	default:
		if d.onUnknownChannel != nil {
			d.onUnknownChannel(sender, channel)
		}
	}
}

func (d *demultiplexer) handleData(payload []byte) {
	switch d.mode {
	case adapter.RouterMode:
		if d.ip != nil {
			_ = d.ip.Deliver(payload)
		}
	default:
		if d.eth != nil {
			_ = d.eth.Deliver(payload)
		}
	}
}

// handleControl parses payload as a ControlMessage. A parse failure is
// logged and the payload dropped; it never disconnects the peer (spec.md
// §4.6, edge case: "a malformed control message on channel 1 is dropped,
// not treated as a protocol violation").
func (d *demultiplexer) handleControl(sender netaddr.PeerAddress, payload []byte) {
	var msg ControlMessage
	if err := binary.Unmarshal(payload, &msg); err != nil {
		if d.onMalformed != nil {
			d.onMalformed(sender, err)
		}
		return
	}

	switch msg.Kind {
	case ControlKeepalive:
		if d.onKeepalive != nil {
			d.onKeepalive(sender)
		}
	case ControlLatencyProbe:
		if d.onLatencyProbe != nil {
			d.onLatencyProbe(sender, msg.Nonce)
		}
	case ControlLatencyReply:
		if d.onLatencyReply != nil {
			d.onLatencyReply(sender, msg.Nonce)
		}
	}
}

// encodeControl marshals msg with the same codec handleControl decodes
// with.
func encodeControl(msg ControlMessage) ([]byte, error) {
	return binary.Marshal(msg)
}
