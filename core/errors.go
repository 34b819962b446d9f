package core

import "errors"

// Sentinel errors returned by the coordinator, in the teacher's own flat
// var-block idiom (chain/errors.go).
var (
	ErrIdentityRequired     = errors.New("core: configuration has no identity, cannot open")
	ErrAlreadyOpen          = errors.New("core: already open")
	ErrNotOpen              = errors.New("core: not open")
	ErrBanned               = errors.New("core: peer address is on the never-contact list")
	ErrUntrustedCertificate = errors.New("core: certificate failed trust evaluation")
	ErrNoCertificateAuthorities = errors.New("core: chain-verify trust policy configured with no trusted CAs")
)
