package core

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/promoreira/freelan/fingerprint"
)

// trustEvaluator decides whether a presented certificate is accepted
// (spec.md §4.4). It verifies the X.509 chain against the configured
// trusted CAs, consults the configured CRLs, and finally gives the
// embedder's AcceptPredicate the last word.
//
// Verifications are dispatched to a background goroutine so a slow or
// hostile peer cannot stall the coordinator's single event loop (spec.md
// §4.4, §5). The callback closure historically held a raw pointer back
// into the core; per SPEC_FULL.md §9's re-architecture note, it instead
// carries an opaque token into a verificationRegistry, so a verification
// that completes after close() finds its token gone and fails safely
// rather than dereferencing a core that may have torn down its state.
type trustEvaluator struct {
	policy     TrustPolicy
	crlPolicy  CRLPolicy
	pool       *x509.CertPool
	crls       []*pkix.CertificateList
	accept     AcceptPredicate
	registry   *verificationRegistry
}

func newTrustEvaluator(cfg *Configuration, registry *verificationRegistry) *trustEvaluator {
	return &trustEvaluator{
		policy:    cfg.TrustPolicy,
		crlPolicy: cfg.CRLPolicy,
		pool:      cfg.TrustedCAs,
		crls:      cfg.CRLs,
		accept:    cfg.Accept,
		registry:  registry,
	}
}

// verificationRegistry hands out int32 tokens for in-flight verifications
// and lets the owner that started them answer the question "is core still
// open" without the verification goroutine holding a *Core directly
// (SPEC_FULL.md §9).
type verificationRegistry struct {
	next    int32
	entries sync.Map // int32 -> *Core
}

func newVerificationRegistry() *verificationRegistry {
	return &verificationRegistry{}
}

func (r *verificationRegistry) register(c *Core) int32 {
	token := atomic.AddInt32(&r.next, 1)
	r.entries.Store(token, c)
	return token
}

func (r *verificationRegistry) resolve(token int32) (*Core, bool) {
	v, ok := r.entries.Load(token)
	if !ok {
		return nil, false
	}
	return v.(*Core), true
}

func (r *verificationRegistry) forget(token int32) {
	r.entries.Delete(token)
}

// clear invalidates every outstanding token, used by Core.Close so that any
// verification still running when close() returns fails safely instead of
// touching a torn-down core (spec.md §5, SPEC_FULL.md §9).
func (r *verificationRegistry) clear() {
	r.entries.Range(func(key, _ interface{}) bool {
		r.entries.Delete(key)
		return true
	})
}

// verifyAsync runs the trust evaluation for cert off the event loop and
// invokes done(accepted) once a verdict is reached. done is always invoked
// exactly once, even if the core closes mid-verification (in which case the
// verdict is false, per the safe-failure-mode note above).
func (t *trustEvaluator) verifyAsync(core *Core, cert *x509.Certificate, chain []*x509.Certificate, done func(accepted bool)) {
	token := t.registry.register(core)
	go func() {
		c, ok := t.registry.resolve(token)
		if !ok {
			done(false)
			return
		}
		accepted := t.verify(c, cert, chain)
		if _, stillOpen := t.registry.resolve(token); !stillOpen {
			done(false)
			return
		}
		t.registry.forget(token)
		done(accepted)
	}()
}

func (t *trustEvaluator) verify(core *Core, cert *x509.Certificate, chain []*x509.Certificate) bool {
	if t.policy == TrustNone {
		return t.runAccept(core, cert)
	}

	if t.pool == nil {
		return false
	}

	intermediates := x509.NewCertPool()
	for _, c := range chain {
		intermediates.AddCert(c)
	}

	chains, err := cert.Verify(x509.VerifyOptions{
		Roots:         t.pool,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil || len(chains) == 0 {
		return false
	}

	if t.crlPolicy != CRLNone {
		for _, verifiedChain := range chains {
			if t.revoked(verifiedChain, t.crlPolicy == CRLFullChain) {
				return false
			}
		}
	}

	return t.runAccept(core, cert)
}

func (t *trustEvaluator) runAccept(core *Core, cert *x509.Certificate) bool {
	if t.accept == nil {
		return true
	}
	return t.accept(core, cert)
}

// revoked checks the leaf (and, if fullChain, every issuer above it) of
// verifiedChain against the configured CRLs (spec.md §4.4).
func (t *trustEvaluator) revoked(verifiedChain []*x509.Certificate, fullChain bool) bool {
	limit := 1
	if fullChain {
		limit = len(verifiedChain)
	}
	for i := 0; i < limit && i < len(verifiedChain); i++ {
		if t.certRevoked(verifiedChain[i]) {
			return true
		}
	}
	return false
}

func (t *trustEvaluator) certRevoked(cert *x509.Certificate) bool {
	for _, crl := range t.crls {
		if crl.TBSCertList.Issuer.CommonName != cert.Issuer.CommonName {
			continue
		}
		for _, revoked := range crl.TBSCertList.RevokedCertificates {
			if revokedSerialMatches(revoked.SerialNumber, cert.SerialNumber) {
				return true
			}
		}
	}
	return false
}

func revokedSerialMatches(a, b *big.Int) bool {
	return a != nil && b != nil && a.Cmp(b) == 0
}

// fingerprintOf is a small convenience wrapper around fingerprint.Of
// (spec.md §3).
func fingerprintOf(cert *x509.Certificate) fingerprint.Fingerprint {
	return fingerprint.Of(cert)
}
