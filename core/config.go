package core

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/promoreira/freelan/adapter"
	"github.com/promoreira/freelan/engine"
	"github.com/promoreira/freelan/fingerprint"
	"github.com/promoreira/freelan/internal/netutil"
	"github.com/promoreira/freelan/netaddr"
)

// CRLPolicy selects how aggressively the trust evaluator checks
// certificate revocation (spec.md §3, §4.4).
type CRLPolicy int

const (
	CRLNone CRLPolicy = iota
	CRLLeafOnly
	CRLFullChain
)

// TrustPolicy selects whether certificates undergo chain verification at
// all (spec.md §3, §4.4).
type TrustPolicy int

const (
	TrustChainVerify TrustPolicy = iota
	TrustNone
)

// Identity is the node's own signing key and certificate, required to
// open the core (spec.md §3, §7 "Configuration error").
type Identity struct {
	SignKey  interface{} // crypto.Signer; concrete type left to the embedder (ECDSA/RSA)
	SignCert *x509.Certificate
}

// AcceptPredicate lets the embedder broaden or narrow the trust
// evaluator's chain-verification decision (spec.md §4.4, step 5).
type AcceptPredicate func(core *Core, cert *x509.Certificate) bool

// Configuration holds everything that is immutable for the lifetime of an
// opened core (spec.md §3).
type Configuration struct {
	// ResolutionPreference constrains which address families async_resolve
	// may return.
	ResolutionPreference netaddr.Family

	// ListenLocator is resolved synchronously at Open time.
	ListenLocator netaddr.Endpoint

	// StaticContacts is the ordered list of endpoints the static contact
	// loop greets every tick (spec.md §4.2).
	StaticContacts []netaddr.Endpoint

	// DynamicContacts projects to fingerprints sent with every
	// contact-request-to-all (spec.md §4.2).
	DynamicContacts []*x509.Certificate

	// NeverContact is the never-contact (ban) list (spec.md §3, §4.5).
	NeverContact *netutil.Netlist

	// AcceptContactRequests controls the contact-request-received default
	// (spec.md §4.3).
	AcceptContactRequests bool
	// AcceptContacts controls whether contact-received schedules a contact
	// (spec.md §4.3).
	AcceptContacts bool

	Identity Identity

	TrustPolicy TrustPolicy
	CRLPolicy   CRLPolicy
	TrustedCAs  *x509.CertPool
	CRLs        []*pkix.CertificateList
	Accept      AcceptPredicate

	AdapterMode adapter.Mode
	// EthernetSink receives channel-0 traffic when AdapterMode is
	// SwitchMode; IPSink receives it when AdapterMode is RouterMode
	// (spec.md §4.6).
	EthernetSink adapter.EthernetSink
	IPSink       adapter.IPSink

	CipherCapabilities []engine.Cap

	// DialTimeout bounds a single static-contact async_resolve attempt; the
	// greet that follows is bounded by HelloTimeout.
	DialTimeout time.Duration
	// HelloTimeout is the configured timeout logged on a hello timeout
	// (spec.md §7, distinguished from other send errors).
	HelloTimeout time.Duration

	Logger *logrus.Entry
}

// StaticContactInterval is the static contact loop's period (spec.md §4.2).
const StaticContactInterval = 30 * time.Second

// DynamicContactInterval is the dynamic contact loop's period (spec.md §4.2).
const DynamicContactInterval = 45 * time.Second

func (c *Configuration) dialTimeout() time.Duration {
	if c.DialTimeout > 0 {
		return c.DialTimeout
	}
	return 15 * time.Second
}

func (c *Configuration) helloTimeout() time.Duration {
	if c.HelloTimeout > 0 {
		return c.HelloTimeout
	}
	return 5 * time.Second
}

func (c *Configuration) dynamicFingerprints() []fingerprint.Fingerprint {
	out := make([]fingerprint.Fingerprint, 0, len(c.DynamicContacts))
	for _, cert := range c.DynamicContacts {
		out = append(out, fingerprint.Of(cert))
	}
	return out
}
