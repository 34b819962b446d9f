// Package fingerprint provides a fixed-size certificate digest used as a
// dynamic-contact key (spec.md §3, CertificateFingerprint).
package fingerprint

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
)

const Length = sha256.Size

// Fingerprint is the SHA-256 digest of a certificate's DER encoding.
type Fingerprint [Length]byte

// Of hashes the DER encoding of cert.
func Of(cert *x509.Certificate) Fingerprint {
	return Bytes(sha256.Sum256(cert.Raw))
}

// Bytes wraps a 32-byte digest that was computed elsewhere.
func Bytes(b [Length]byte) Fingerprint {
	return Fingerprint(b)
}

func (f Fingerprint) IsEmpty() bool {
	return f == Fingerprint{}
}

func (f *Fingerprint) SetBytes(b []byte) {
	var start int
	if len(b) > len(f) {
		start = len(b) - Length
	}
	copy(f[Length-(len(b)-start):], b[start:])
}

func (f Fingerprint) Bytes() []byte {
	return f[:]
}

func (f Fingerprint) Hex() string {
	return hex.EncodeToString(f[:])
}

func (f Fingerprint) String() string {
	return f.Hex()
}

// MarshalText returns the hex representation of f.
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.Hex()), nil
}

// UnmarshalText parses a fingerprint in hex syntax.
func (f *Fingerprint) UnmarshalText(input []byte) error {
	b, err := hex.DecodeString(string(input))
	if err != nil {
		return err
	}
	f.SetBytes(b)
	return nil
}

// FromHex parses a hex-encoded fingerprint, returning the zero value on error.
func FromHex(s string) Fingerprint {
	var f Fingerprint
	b, err := hex.DecodeString(s)
	if err != nil {
		return f
	}
	f.SetBytes(b)
	return f
}
