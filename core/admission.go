package core

import (
	"github.com/promoreira/freelan/internal/netutil"
	"github.com/promoreira/freelan/netaddr"
)

// admissionFilter is the never-contact (ban) list check applied before any
// outbound or inbound contact is pursued (spec.md §4.5). It is grounded on
// the teacher's own use of a Netlist-shaped prefix list in
// network/p2p/server.go's NetRestrict field, reconstructed in
// internal/netutil since the upstream package source was not retrieved
// (DESIGN.md).
type admissionFilter struct {
	neverContact *netutil.Netlist
}

func newAdmissionFilter(neverContact *netutil.Netlist) *admissionFilter {
	return &admissionFilter{neverContact: neverContact}
}

// allowed reports whether addr may be contacted or accepted. A nil or empty
// never-contact list allows everything (spec.md §4.5, edge case: "an empty
// never-contact list admits every address").
func (f *admissionFilter) allowed(addr netaddr.PeerAddress) bool {
	if f == nil || f.neverContact == nil {
		return true
	}
	return !f.neverContact.Contains(addr.IPAddr())
}
