// Package netutil reconstructs the call sites the teacher's
// (unretrieved) network/p2p/netutil package left behind in
// network/p2p/server.go: `NetRestrict *netutil.Netlist` and
// `srv.NetRestrict.Contains(ip)`. Here it backs the coordinator's
// admission filter (spec.md §4.5), which bans peers by address or
// network prefix.
package netutil

import (
	"fmt"
	"net"
	"strings"
)

// Netlist is a list of IP networks.
type Netlist []net.IPNet

// ParseNetlist parses a comma-separated list of CIDR masks or single IPs.
// Single IPs are treated as the smallest matching prefix (/32 or /128).
func ParseNetlist(s string) (*Netlist, error) {
	var list Netlist
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if !strings.Contains(f, "/") {
			if ip := net.ParseIP(f); ip != nil {
				f = hostCIDR(ip)
			}
		}
		_, n, err := net.ParseCIDR(f)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR mask %q: %v", f, err)
		}
		list = append(list, *n)
	}
	return &list, nil
}

func hostCIDR(ip net.IP) string {
	if ip4 := ip.To4(); ip4 != nil {
		return fmt.Sprintf("%s/32", ip4.String())
	}
	return fmt.Sprintf("%s/128", ip.String())
}

// Contains reports whether the given IP is contained in the list.
func (l *Netlist) Contains(ip net.IP) bool {
	if l == nil {
		return false
	}
	for _, n := range *l {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// String implements the Stringer interface.
func (l *Netlist) String() string {
	if l == nil {
		return "<nil>"
	}
	parts := make([]string, len(*l))
	for i, n := range *l {
		parts[i] = n.String()
	}
	return strings.Join(parts, ",")
}

// MarshalText implements encoding.TextMarshaler.
func (l Netlist) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Netlist) UnmarshalText(text []byte) error {
	parsed, err := ParseNetlist(string(text))
	if err != nil {
		return err
	}
	*l = *parsed
	return nil
}

// IsTemporaryError checks whether the given error should be considered
// temporary, mirroring the teacher's netutil.IsTemporaryError used by
// network/p2p/server.go's listenLoop to decide whether to retry Accept.
func IsTemporaryError(err error) bool {
	tempErr, ok := err.(interface{ Temporary() bool })
	return ok && tempErr.Temporary() || isPacketTooBig(err)
}

func isPacketTooBig(err error) bool {
	opErr, ok := err.(*net.OpError)
	return ok && opErr.Err != nil && strings.Contains(opErr.Err.Error(), "message too long")
}
