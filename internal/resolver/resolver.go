// Package resolver resolves hostnames to IPv4 addresses.
package resolver

import (
	"context"
	"fmt"
	"net"
	"sort"
)

// NetResolver looks up A records using the system resolver.
type NetResolver struct {
	r *net.Resolver
}

// New creates a resolver backed by net.DefaultResolver.
func New() *NetResolver {
	return &NetResolver{r: net.DefaultResolver}
}

// LookupA returns the sorted, de-duplicated IPv4 addresses for host.
func (n *NetResolver) LookupA(ctx context.Context, host string) ([]string, error) {
	ips, err := n.r.LookupIP(ctx, "ip4", host)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", host, err)
	}

	addrs := make([]string, 0, len(ips))
	for _, ip := range ips {
		addrs = append(addrs, ip.String())
	}
	return Normalize(addrs), nil
}

// Normalize de-duplicates and sorts addresses in place.
func Normalize(addrs []string) []string {
	if len(addrs) == 0 {
		return []string{}
	}
	sort.Strings(addrs)
	out := addrs[:1]
	for _, a := range addrs[1:] {
		if a != out[len(out)-1] {
			out = append(out, a)
		}
	}
	return out
}
