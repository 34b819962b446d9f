package core

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promoreira/freelan/adapter"
	"github.com/promoreira/freelan/engine"
	"github.com/promoreira/freelan/internal/netutil"
	"github.com/promoreira/freelan/netaddr"
)

// newTestCore opens a Core against fakeEngine/fakeFabric, with sane
// defaults a test can override before calling Open via cfgFn.
func newTestCore(t *testing.T, cfgFn func(cfg *Configuration)) (*Core, *fakeEngine, *fakeFabric) {
	t.Helper()
	cert, _ := selfSignedCert(t, "node under test")

	cfg := &Configuration{
		ListenLocator:         netaddr.LiteralEndpoint(netaddr.NewPeerAddress(net.IPv4zero, 0)),
		AcceptContactRequests: true,
		AcceptContacts:        true,
		TrustPolicy:           TrustNone,
		AdapterMode:           adapter.SwitchMode,
	}
	cfg.Identity.SignCert = cert
	if cfgFn != nil {
		cfgFn(cfg)
	}

	eng := newFakeEngine()
	fab := newFakeFabric()
	c := New(cfg, eng, fab)
	require.NoError(t, c.Open())
	t.Cleanup(func() { _ = c.Close() })
	return c, eng, fab
}

func literalAddr(a, b, cc, d byte, port int) netaddr.PeerAddress {
	return netaddr.NewPeerAddress(netaddrIPv4(a, b, cc, d), port)
}

func netaddrIPv4(a, b, cc, d byte) []byte {
	return []byte{a, b, cc, d}
}

// S1: a static contact resolves, gets greeted, the reply triggers an
// introduce-to, and a subsequent valid presentation triggers a
// request-session (spec.md §8 S1).
func TestStaticContactSuccess(t *testing.T) {
	target := literalAddr(203, 0, 113, 7, 12000)
	c, eng, _ := newTestCore(t, func(cfg *Configuration) {
		cfg.StaticContacts = []netaddr.Endpoint{netaddr.LiteralEndpoint(target)}
	})

	c.runStaticContacts()

	require.Eventually(t, func() bool {
		eng.mu.Lock()
		defer eng.mu.Unlock()
		return len(eng.greeted) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, target, eng.greeted[0])
	assert.True(t, eng.introducedTo(target))

	_, sigCertDER := selfSignedCert(t, "peer")
	accepted := c.onPresentationReceived(target, sigCertDER, sigCertDER, true)
	assert.True(t, accepted)
	assert.True(t, eng.requestedSessionWith(target))
}

// S2: an inbound hello from a banned address is denied and never produces
// an introduce-to (spec.md §8 S2).
func TestBannedPeerHelloDenied(t *testing.T) {
	banned := literalAddr(203, 0, 113, 9, 12000)
	list, err := netutil.ParseNetlist("203.0.113.0/24")
	require.NoError(t, err)

	c, eng, _ := newTestCore(t, func(cfg *Configuration) {
		cfg.NeverContact = list
	})

	accepted := c.onHelloReceived(banned, true)
	assert.False(t, accepted)
	assert.False(t, eng.introducedTo(banned))
}

// S3: a contact-received reply names an unbanned address, which is greeted
// (spec.md §8 S3; "contact" is realized as a greet, the only peer-contact
// primitive the engine exposes).
func TestContactRelay(t *testing.T) {
	answer := literalAddr(198, 51, 100, 5, 12000)
	c, eng, _ := newTestCore(t, nil)

	c.onContactReceived(netaddr.PeerAddress{}, engine.Hash{}, answer)

	require.Eventually(t, func() bool {
		eng.mu.Lock()
		defer eng.mu.Unlock()
		return len(eng.greeted) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, answer, eng.greeted[0])
}

// S4: the same contact-received reply is dropped when the answer is
// banned (spec.md §8 S4).
func TestContactRelayBlocked(t *testing.T) {
	answer := literalAddr(198, 51, 100, 5, 12000)
	list, err := netutil.ParseNetlist("198.51.100.0/24")
	require.NoError(t, err)

	c, eng, _ := newTestCore(t, func(cfg *Configuration) {
		cfg.NeverContact = list
	})

	c.onContactReceived(netaddr.PeerAddress{}, engine.Hash{}, answer)

	eng.mu.Lock()
	n := len(eng.greeted)
	eng.mu.Unlock()
	assert.Equal(t, 0, n)
}

// S5: a new session registers exactly one switch port; losing it
// deregisters exactly once, and a repeated session-lost is a no-op
// (spec.md §8 S5, invariants 1-2).
func TestSessionUpThenLost(t *testing.T) {
	host := literalAddr(10, 0, 0, 5, 12000)
	c, _, fab := newTestCore(t, func(cfg *Configuration) {
		cfg.AdapterMode = adapter.SwitchMode
	})

	c.onSessionEstablished(host, true, nil, nil)
	assert.Equal(t, 1, fab.registerCnt)
	assert.Equal(t, 1, fab.liveCount())

	c.onSessionLost(host)
	assert.Equal(t, 1, fab.unregCnt)
	assert.Equal(t, 0, fab.liveCount())

	c.onSessionLost(host)
	assert.Equal(t, 1, fab.unregCnt, "repeated session-lost must be a no-op")
}

// S6: a presentation that fails chain verification is denied and never
// reaches request-session (spec.md §8 S6).
func TestPresentationCertificateInvalid(t *testing.T) {
	pool, _ := chainOfTrust(t)
	_, untrustedLeafDER := chainOfTrust(t) // signed by a different, untrusted root

	sender := literalAddr(10, 0, 0, 9, 12000)
	c, eng, _ := newTestCore(t, func(cfg *Configuration) {
		cfg.TrustPolicy = TrustChainVerify
		cfg.TrustedCAs = pool
	})

	accepted := c.onPresentationReceived(sender, untrustedLeafDER, untrustedLeafDER, true)
	assert.False(t, accepted)
	assert.False(t, eng.requestedSessionWith(sender))
}

// Invariant 6: channel 0 routes to the adapter sink matching the
// configured mode; channel 1 parses as a control message or is dropped;
// any other channel is dropped (spec.md §8 invariant 6, §4.6).
func TestDemultiplexerRouting(t *testing.T) {
	eth := &fakeEthSink{}
	c, _, _ := newTestCore(t, func(cfg *Configuration) {
		cfg.AdapterMode = adapter.SwitchMode
		cfg.EthernetSink = eth
	})

	sender := literalAddr(10, 0, 0, 1, 12000)
	c.onDataReceived(sender, ChannelData, []byte{1, 2, 3})
	assert.Equal(t, 1, eth.count())

	msg, err := encodeControl(ControlMessage{Kind: ControlKeepalive, Nonce: 7})
	require.NoError(t, err)

	var gotKeepalive bool
	c.demux.onKeepalive = func(netaddr.PeerAddress) { gotKeepalive = true }
	c.onDataReceived(sender, ChannelControl, msg)
	assert.True(t, gotKeepalive)

	c.onDataReceived(sender, 2, []byte{9})
}

// Invariant 3: every inbound event touching a banned address is denied or
// discarded (spec.md §8 invariant 3), exercised across all three admission
// call sites.
func TestAdmissionAppliesToAllInboundPaths(t *testing.T) {
	list, err := netutil.ParseNetlist("203.0.113.0/24")
	require.NoError(t, err)
	banned := literalAddr(203, 0, 113, 4, 12000)

	c, eng, _ := newTestCore(t, func(cfg *Configuration) {
		cfg.NeverContact = list
	})

	assert.False(t, c.onHelloReceived(banned, true))

	c.onContactReceived(netaddr.PeerAddress{}, engine.Hash{}, banned)
	eng.mu.Lock()
	greeted := len(eng.greeted)
	eng.mu.Unlock()
	assert.Equal(t, 0, greeted)

	_, sigCertDER := selfSignedCert(t, "banned peer")
	assert.False(t, c.onPresentationReceived(banned, sigCertDER, sigCertDER, true))
}
