package core

import (
	"context"
	"net"
	"strconv"

	"github.com/promoreira/freelan/engine"
	"github.com/promoreira/freelan/netaddr"
)

// resolveLocal resolves the listen locator synchronously at Open time
// (spec.md §4.1: "the local listen endpoint is resolved synchronously
// during open(), since open() already blocks the caller"). It mirrors the
// teacher's own bare net.ResolveUDPAddr/net.Listen usage in
// network/p2p/server.go's listenLoop rather than reaching for an async-DNS
// library the teacher never imports.
func resolveLocal(ep netaddr.Endpoint, pref netaddr.Family) (netaddr.PeerAddress, error) {
	if ep.IsLiteral() {
		return ep.Literal(), nil
	}
	host, service := ep.Host()
	return resolveHostname(context.Background(), host, service, pref)
}

// asyncResolveResult is posted to the caller's result channel once an
// asynchronous resolution of a peer endpoint completes (spec.md §4.1).
type asyncResolveResult struct {
	endpoint netaddr.Endpoint
	addr     netaddr.PeerAddress
	err      error
}

// asyncResolve resolves ep in its own goroutine and posts the result to
// resultCh, never blocking the caller. Literal endpoints still round-trip
// through the goroutine so callers have one uniform completion signal
// regardless of whether ep was literal or a hostname (spec.md §4.1: "a
// literal endpoint still completes asynchronously, so callers never need to
// special-case it").
func asyncResolve(ctx context.Context, ep netaddr.Endpoint, pref netaddr.Family, resultCh chan<- asyncResolveResult) {
	go func() {
		if ep.IsLiteral() {
			resultCh <- asyncResolveResult{endpoint: ep, addr: ep.Literal()}
			return
		}
		host, service := ep.Host()
		addr, err := resolveHostname(ctx, host, service, pref)
		resultCh <- asyncResolveResult{endpoint: ep, addr: addr, err: err}
	}()
}

// resolveHostname resolves host against net.DefaultResolver, constrained to
// pref, and keeps the first matching answer (spec.md §9 Open Question:
// "multiple DNS answers -> keep the first answer of the preferred family").
func resolveHostname(ctx context.Context, host, service string, pref netaddr.Family) (netaddr.PeerAddress, error) {
	if service == "" {
		service = strconv.Itoa(engine.DefaultServicePort)
	}
	port, err := net.DefaultResolver.LookupPort(ctx, "udp", service)
	if err != nil {
		port = 0
		if p, perr := strconv.Atoi(service); perr == nil {
			port = p
		}
	}

	network := "ip"
	switch pref {
	case netaddr.IPv4:
		network = "ip4"
	case netaddr.IPv6:
		network = "ip6"
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, network, host)
	if err != nil {
		return netaddr.PeerAddress{}, err
	}
	if len(ips) == 0 {
		return netaddr.PeerAddress{}, &net.DNSError{Err: "no addresses found", Name: host}
	}

	return netaddr.NewPeerAddress(ips[0], port), nil
}
