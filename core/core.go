// Package core implements the coordination core of a peer-to-peer virtual
// private network node (spec.md §1): the resolver adapter, contact
// scheduler, session lifecycle handler, trust evaluator, admission filter,
// port registry and data demultiplexer, wired together behind the Core
// type below.
//
// The design mirrors network/p2p/server.go's Server: a single run() event
// loop owns all mutable peer state and is fed by channels, so every
// structural change to the peer table happens on one goroutine without
// locking (spec.md §5, GLOSSARY "single-writer event loop").
package core

import (
	"context"
	"crypto/x509"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/promoreira/freelan/engine"
	"github.com/promoreira/freelan/fabric"
	"github.com/promoreira/freelan/internal/event"
	"github.com/promoreira/freelan/internal/mclock"
	"github.com/promoreira/freelan/internal/xlog"
	"github.com/promoreira/freelan/netaddr"
)

// SessionEvent is the payload of the optional notification feeds a caller
// may subscribe to via SubscribeSessionEstablished/Failed/Lost (spec.md
// §6, mirrors the teacher's own peerFeed event.Feed pattern).
type SessionEvent struct {
	Peer        netaddr.PeerAddress
	IsNew       bool
	LocalAlgos  []engine.Cap
	RemoteAlgos []engine.Cap
}

// peerOpFunc is posted to Core.run to read the peer table from outside the
// loop goroutine, mirroring the teacher's peerOpFunc (network/p2p/server.go).
type peerOpFunc func(map[netaddr.PeerAddress]*PeerRecord)

// Core is the node coordinator (spec.md §1, §3). Exactly one Engine and one
// Fabric are bound to a Core for its lifetime.
type Core struct {
	cfg *Configuration
	eng engine.Engine
	fab fabric.Fabric

	admission *admissionFilter
	trust     *trustEvaluator
	registry  *verificationRegistry
	ports     *portRegistry
	strands   *strandRegistry
	scheduler *contactScheduler
	demux     *demultiplexer

	establishedFeed event.Feed
	failedFeed      event.Feed
	lostFeed        event.Feed

	clock mclock.Clock

	peerOp     chan peerOpFunc
	peerOpDone chan struct{}
	quit       chan struct{}
	loopWG     sync.WaitGroup

	mu     sync.Mutex
	open   bool
	peers  map[netaddr.PeerAddress]*PeerRecord
	listen netaddr.PeerAddress

	log *logrus.Entry
}

// New constructs an unopened Core bound to eng and fab. cfg is retained for
// the lifetime of the returned Core (spec.md §3: "Configuration is
// immutable for the lifetime of an opened core").
func New(cfg *Configuration, eng engine.Engine, fab fabric.Fabric) *Core {
	log := cfg.Logger
	if log == nil {
		log = xlog.New("core")
	}
	return &Core{
		cfg:    cfg,
		eng:    eng,
		fab:    fab,
		clock:  mclock.System{},
		peers:  make(map[netaddr.PeerAddress]*PeerRecord),
		log:    log,
	}
}

// Open resolves the listen locator, opens the engine, and starts the
// contact scheduler (spec.md §4.1, §4.2). Open is not reentrant; calling it
// twice on the same Core returns ErrAlreadyOpen.
func (c *Core) Open() error {
	c.mu.Lock()
	if c.open {
		c.mu.Unlock()
		return ErrAlreadyOpen
	}
	if c.cfg.Identity.SignCert == nil {
		c.mu.Unlock()
		return ErrIdentityRequired
	}
	if c.cfg.TrustPolicy == TrustChainVerify && c.cfg.TrustedCAs == nil {
		c.mu.Unlock()
		return ErrNoCertificateAuthorities
	}
	c.mu.Unlock()

	listenAddr, err := resolveLocal(c.cfg.ListenLocator, c.cfg.ResolutionPreference)
	if err != nil {
		return err
	}

	c.admission = newAdmissionFilter(c.cfg.NeverContact)
	c.registry = newVerificationRegistry()
	c.trust = newTrustEvaluator(c.cfg, c.registry)
	c.ports = newPortRegistry(c.fab)
	c.strands = newStrandRegistry()
	c.demux = &demultiplexer{
		mode: c.cfg.AdapterMode,
		eth:  c.cfg.EthernetSink,
		ip:   c.cfg.IPSink,
		onUnknownChannel: func(sender netaddr.PeerAddress, channel uint16) {
			c.log.WithField("peer", sender.String()).WithField("channel", channel).Warn("dropped data on unknown channel")
		},
		onMalformed: func(sender netaddr.PeerAddress, err error) {
			c.log.WithField("peer", sender.String()).WithError(err).Warn("dropped malformed control message")
		},
	}

	c.peerOp = make(chan peerOpFunc)
	c.peerOpDone = make(chan struct{})
	c.quit = make(chan struct{})

	c.eng.SetCipherCapabilities(c.cfg.CipherCapabilities)
	c.eng.SetCallbacks(c.callbacks())

	if err := c.eng.Open(listenAddr); err != nil {
		return err
	}

	c.mu.Lock()
	c.open = true
	c.listen = listenAddr
	c.mu.Unlock()

	c.scheduler = newContactScheduler(
		StaticContactInterval,
		DynamicContactInterval,
		c.runStaticContacts,
		c.runDynamicContacts,
	)
	c.scheduler.start()

	c.loopWG.Add(1)
	go c.run()

	c.log.WithField("listen", listenAddr.String()).Info("core opened")
	return nil
}

// Close stops the scheduler, fences off every strand and in-flight trust
// verification, tears down every registered port, closes the engine, and
// stops the event loop (spec.md §5: "close() is a fence: once it returns,
// no further handler invocation touches the core's state").
func (c *Core) Close() error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return ErrNotOpen
	}
	c.open = false
	c.mu.Unlock()

	c.scheduler.close()
	c.registry.clear()
	c.strands.closeAll()
	c.ports.unregisterAll()

	err := c.eng.Close()

	close(c.quit)
	c.loopWG.Wait()

	c.log.Info("core closed")
	return err
}

// run is the single event loop owning the peer table, modeled on the
// teacher's Server.run (network/p2p/server.go).
func (c *Core) run() {
	defer c.loopWG.Done()
	for {
		select {
		case op := <-c.peerOp:
			op(c.peers)
			c.peerOpDone <- struct{}{}
		case <-c.quit:
			return
		}
	}
}

// withPeers runs fn against the live peer table on the event loop goroutine
// and blocks until it completes, mirroring Server.Peers/PeerCount.
func (c *Core) withPeers(fn func(map[netaddr.PeerAddress]*PeerRecord)) {
	select {
	case c.peerOp <- fn:
		<-c.peerOpDone
	case <-c.quit:
	}
}

// ListenAddress reports the resolved local listen address (spec.md §4.1).
// Valid only once Open has returned successfully.
func (c *Core) ListenAddress() netaddr.PeerAddress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listen
}

// PeerCount reports the number of peers the core currently tracks state for
// (spec.md §3).
func (c *Core) PeerCount() int {
	var n int
	c.withPeers(func(peers map[netaddr.PeerAddress]*PeerRecord) { n = len(peers) })
	return n
}

// Peers returns a snapshot of the currently tracked peer records.
func (c *Core) Peers() []PeerRecord {
	var out []PeerRecord
	c.withPeers(func(peers map[netaddr.PeerAddress]*PeerRecord) {
		out = make([]PeerRecord, 0, len(peers))
		for _, p := range peers {
			out = append(out, *p)
		}
	})
	return out
}

func (c *Core) peerRecord(addr netaddr.PeerAddress) *PeerRecord {
	var rec *PeerRecord
	c.withPeers(func(peers map[netaddr.PeerAddress]*PeerRecord) {
		p, ok := peers[addr]
		if !ok {
			p = &PeerRecord{Address: addr, created: c.clock.Now()}
			peers[addr] = p
		}
		rec = p
	})
	return rec
}

func (c *Core) removePeerRecord(addr netaddr.PeerAddress) {
	c.withPeers(func(peers map[netaddr.PeerAddress]*PeerRecord) {
		delete(peers, addr)
	})
}

// SubscribeSessionEstablished lets an embedder observe session-established
// events without implementing the full engine.Callbacks surface itself
// (spec.md §6, mirrors Server.SubscribeEvents).
func (c *Core) SubscribeSessionEstablished(ch chan SessionEvent) event.Subscription {
	return c.establishedFeed.Subscribe(ch)
}

// SubscribeSessionFailed mirrors SubscribeSessionEstablished for failures.
func (c *Core) SubscribeSessionFailed(ch chan SessionEvent) event.Subscription {
	return c.failedFeed.Subscribe(ch)
}

// SubscribeSessionLost mirrors SubscribeSessionEstablished for losses.
func (c *Core) SubscribeSessionLost(ch chan netaddr.PeerAddress) event.Subscription {
	return c.lostFeed.Subscribe(ch)
}

// callbacks assembles the engine.Callbacks surface from Core's methods, per
// SPEC_FULL.md §9's re-architecture note (function-valued fields, never a
// raw back-pointer into Core handed to the engine directly).
func (c *Core) callbacks() engine.Callbacks {
	return engine.Callbacks{
		HelloReceived:          c.onHelloReceived,
		ContactRequestReceived: c.onContactRequestReceived,
		ContactReceived:        c.onContactReceived,
		PresentationReceived:   c.onPresentationReceived,
		SessionRequestReceived: c.onSessionRequestReceived,
		SessionReceived:        c.onSessionReceived,
		SessionEstablished:     c.onSessionEstablished,
		SessionFailed:          c.onSessionFailed,
		SessionLost:            c.onSessionLost,
		DataReceived:           c.onDataReceived,
	}
}

// onHelloReceived applies the admission filter on top of the engine's own
// recommendation (spec.md §4.3, §4.5).
func (c *Core) onHelloReceived(sender netaddr.PeerAddress, defaultAccept bool) bool {
	if !c.admission.allowed(sender) {
		c.log.WithField("peer", sender.String()).Warn("hello denied: banned address")
		return false
	}
	rec := c.peerRecord(sender)
	accept := c.strands.get(sender).Ask(func() bool {
		rec.LastContact = time.Now()
		return defaultAccept
	})
	if accept {
		c.introduceTo(sender)
	}
	return accept
}

// onContactRequestReceived applies cfg.AcceptContactRequests as the policy
// default (spec.md §4.3, §3's "Policy defaults").
func (c *Core) onContactRequestReceived(sender netaddr.PeerAddress, cert engine.Hash, answer netaddr.PeerAddress) bool {
	return c.cfg.AcceptContactRequests
}

// onContactReceived schedules a greet toward the newly learned answer if
// cfg.AcceptContacts allows it (spec.md §4.3, §4.2).
func (c *Core) onContactReceived(sender netaddr.PeerAddress, hash engine.Hash, answer netaddr.PeerAddress) {
	if !c.cfg.AcceptContacts || answer.IsZero() {
		return
	}
	if !c.admission.allowed(answer) {
		c.log.WithField("peer", answer.String()).Warn("contact relay denied: banned address")
		return
	}
	c.greet(answer)
}

// onPresentationReceived is the trust evaluator's entry point (spec.md
// §4.3, §4.4). Each certificate is verified on a background goroutine
// (trust.go) and the engine's calling goroutine blocks on that verdict,
// exactly as a synchronous callback would.
func (c *Core) onPresentationReceived(sender netaddr.PeerAddress, sigCert, encCert []byte, isNew bool) bool {
	if !c.admission.allowed(sender) {
		c.log.WithField("peer", sender.String()).Warn("presentation denied: banned address")
		return false
	}

	sigX509, err := x509.ParseCertificate(sigCert)
	if err != nil {
		c.log.WithField("peer", sender.String()).WithError(err).Warn("presentation rejected: unparseable signature certificate")
		return false
	}
	encX509, err := x509.ParseCertificate(encCert)
	if err != nil {
		c.log.WithField("peer", sender.String()).WithError(err).Warn("presentation rejected: unparseable cipherment certificate")
		return false
	}

	if !c.verifyPresentedCert(sender, sigX509, "signature") {
		return false
	}
	if !c.verifyPresentedCert(sender, encX509, "cipherment") {
		return false
	}

	rec := c.peerRecord(sender)
	c.strands.get(sender).Tell(func() {
		rec.state = statePresented
	})
	c.eng.AsyncRequestSession(sender, func(err error) {
		if err != nil {
			c.log.WithField("peer", sender.String()).WithError(err).Warn("request-session failed")
		}
	})
	return true
}

// verifyPresentedCert runs one of the two presented certificates (signature
// or cipherment) through the trust evaluator and logs the verdict. Both
// certificates must independently pass chain/CRL verification before a
// presentation is accepted (spec.md §4.3, §4.4).
func (c *Core) verifyPresentedCert(sender netaddr.PeerAddress, cert *x509.Certificate, kind string) bool {
	result := make(chan bool, 1)
	c.trust.verifyAsync(c, cert, nil, func(accepted bool) {
		result <- accepted
	})
	if !<-result {
		c.log.WithField("peer", sender.String()).Warn("presentation rejected: " + kind + " certificate failed trust evaluation")
		return false
	}
	return true
}

// onSessionRequestReceived returns the engine's defaultAccept unchanged
// (spec.md §4.3); the offered cipher capabilities are not consulted.
func (c *Core) onSessionRequestReceived(sender netaddr.PeerAddress, cipherCaps []engine.Cap, defaultAccept bool) bool {
	return defaultAccept
}

// onSessionReceived mirrors onSessionRequestReceived for the replying side.
func (c *Core) onSessionReceived(sender netaddr.PeerAddress, chosenCipher engine.Cap, defaultAccept bool) bool {
	return defaultAccept
}

// onSessionEstablished registers a fabric port for host when isNew is true
// (renewals leave the existing port alone) and emits the optional
// notification (spec.md §3 invariant 2, §4.3's is-new semantics,
// §4.7).
func (c *Core) onSessionEstablished(host netaddr.PeerAddress, isNew bool, localAlgos, remoteAlgos []engine.Cap) {
	rec := c.peerRecord(host)
	c.strands.get(host).Tell(func() {
		rec.state = stateSessionUp
		rec.hasSession = true
	})

	if isNew {
		if _, err := c.ports.register(host, c.eng); err != nil {
			c.log.WithField("peer", host.String()).WithError(err).Warn("port registration failed")
		}
	}

	c.establishedFeed.Send(SessionEvent{Peer: host, IsNew: isNew, LocalAlgos: localAlgos, RemoteAlgos: remoteAlgos})
}

// onSessionFailed emits the optional failure notification (spec.md §4.3).
// No port was ever registered for a session that never reached
// established, so there is nothing to unwind here (invariant 2).
func (c *Core) onSessionFailed(host netaddr.PeerAddress, isNew bool, localAlgos, remoteAlgos []engine.Cap) {
	c.failedFeed.Send(SessionEvent{Peer: host, IsNew: isNew, LocalAlgos: localAlgos, RemoteAlgos: remoteAlgos})
}

// onSessionLost unregisters host's port, drops its strand, and emits the
// optional loss notification (spec.md §3 invariant 3, §4.7).
func (c *Core) onSessionLost(host netaddr.PeerAddress) {
	if err := c.ports.unregister(host); err != nil {
		c.log.WithField("peer", host.String()).WithError(err).Warn("port deregistration failed")
	}
	c.strands.drop(host)
	c.removePeerRecord(host)
	c.lostFeed.Send(host)
}

// onDataReceived demultiplexes channel-0/1 traffic (spec.md §4.6).
func (c *Core) onDataReceived(sender netaddr.PeerAddress, channel uint16, buffer []byte) {
	payload := make([]byte, len(buffer))
	copy(payload, buffer)
	c.demux.handle(sender, channel, payload)
}

// greet asynchronously greets addr; on a successful reply it records the
// round-trip latency and schedules introduce-to the same address (spec.md
// §4.2: "on hello reply, log latency and emit an introduce-to"). It races
// the reply against the configured hello timeout, since
// engine.Engine.AsyncGreet reports only a terminal error and has no timeout
// parameter of its own. A hello timeout is a distinguished error kind,
// logged at debug with the configured timeout value, separate from any
// other send error the engine reports (spec.md §7 "Hello timeout").
func (c *Core) greet(addr netaddr.PeerAddress) {
	rec := c.peerRecord(addr)
	timeout := c.cfg.helloTimeout()

	var once sync.Once
	timer := time.AfterFunc(timeout, func() {
		once.Do(func() {
			c.log.WithField("peer", addr.String()).WithField("timeout", timeout).Debug("hello timeout")
		})
	})

	c.eng.AsyncGreet(addr, func(err error, latency time.Duration) {
		fired := false
		once.Do(func() { fired = true })
		timer.Stop()
		if !fired {
			// The timeout already logged and moved on; a late reply no
			// longer affects peer state.
			return
		}
		if err != nil {
			c.log.WithField("peer", addr.String()).WithError(err).Debug("greet failed")
			return
		}
		c.strands.get(addr).Tell(func() {
			rec.state = stateGreeted
			rec.LastContact = time.Now()
			rec.Latency = latency
		})
		c.introduceTo(addr)
	})
}

// introduceTo emits an introduce-to for addr, logging a send failure at
// warning (spec.md §7 "Send error").
func (c *Core) introduceTo(addr netaddr.PeerAddress) {
	c.eng.AsyncIntroduceTo(addr, func(err error) {
		if err != nil {
			c.log.WithField("peer", addr.String()).WithError(err).Warn("introduce-to failed")
		}
	})
}

// runStaticContacts greets every configured static contact (spec.md §4.2).
func (c *Core) runStaticContacts() {
	for _, ep := range c.cfg.StaticContacts {
		ep := ep
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.dialTimeout())
		resultCh := make(chan asyncResolveResult, 1)
		asyncResolve(ctx, ep, c.cfg.ResolutionPreference, resultCh)
		go func() {
			defer cancel()
			res := <-resultCh
			if res.err != nil {
				c.log.WithField("endpoint", ep.String()).WithError(res.err).Debug("static contact resolution failed")
				return
			}
			if !c.admission.allowed(res.addr) {
				return
			}
			c.greet(res.addr)
		}()
	}
}

// runDynamicContacts asks every currently connected peer whether it knows
// an address for any of the configured dynamic contacts (spec.md §4.2).
func (c *Core) runDynamicContacts() {
	hashes := c.cfg.dynamicFingerprints()
	if len(hashes) == 0 {
		return
	}
	engineHashes := make([]engine.Hash, len(hashes))
	for i, h := range hashes {
		engineHashes[i] = engine.Hash(h)
	}
	c.eng.AsyncSendContactRequestToAll(engineHashes, func(results map[netaddr.PeerAddress]error) {
		for addr, err := range results {
			if err != nil {
				c.log.WithField("peer", addr.String()).WithError(err).Debug("contact-request-to-all failed for peer")
			}
		}
	})
}
