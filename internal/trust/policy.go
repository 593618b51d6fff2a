// Package trust classifies network addresses against a static CIDR
// allow-list and per-account trusted address sets. It is pure policy:
// no I/O, no clock, no failure modes beyond "address absent", which is
// always treated as suspicious (fail-closed).
package trust

import (
	"fmt"
	"net"
)

// Class is the outcome of classifying a network address.
type Class int

const (
	// ClassSuspicious means the address is outside the static allow-list
	// (or could not be determined) and a step-up factor is required unless
	// the account already trusts it.
	ClassSuspicious Class = iota

	// ClassTrusted means the address falls inside the static allow-list.
	ClassTrusted
)

// String returns the class name for logging.
func (c Class) String() string {
	if c == ClassTrusted {
		return "trusted"
	}
	return "suspicious"
}

// CIDRSet is a parsed set of network prefixes supporting membership checks.
// Shared with the proxy middleware, which uses it to decide whether a peer
// is a trusted reverse proxy.
type CIDRSet struct {
	nets []*net.IPNet
}

// ParseCIDRSet parses the given CIDR strings into a set. A bare IP (no
// prefix length) is accepted as a /32 or /128. Invalid entries fail the
// whole parse; trust boundaries should not be built from half a config.
func ParseCIDRSet(cidrs []string) (*CIDRSet, error) {
	set := &CIDRSet{}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			// Allow bare addresses as single-host prefixes.
			ip := net.ParseIP(cidr)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted network %q: %w", cidr, err)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			network = &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}
		}
		set.nets = append(set.nets, network)
	}
	return set, nil
}

// Contains reports whether the given address falls inside any prefix in
// the set. Unparseable or empty addresses are never contained.
func (s *CIDRSet) Contains(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, network := range s.nets {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// Len returns the number of prefixes in the set.
func (s *CIDRSet) Len() int {
	return len(s.nets)
}

// Policy evaluates addresses against the deployment's static allow-list.
type Policy struct {
	static *CIDRSet
}

// NewPolicy builds a trust policy from the static CIDR allow-list.
func NewPolicy(networks []string) (*Policy, error) {
	set, err := ParseCIDRSet(networks)
	if err != nil {
		return nil, err
	}
	return &Policy{static: set}, nil
}

// Classify maps an address to Trusted or Suspicious. An address that could
// not be determined (empty or unparseable) classifies as Suspicious: origin
// resolution failure degrades to the safe side, never the convenient one.
func (p *Policy) Classify(addr string) Class {
	if p.static.Contains(addr) {
		return ClassTrusted
	}
	return ClassSuspicious
}

// IsKnown reports whether addr is a member of the account's trusted address
// set. Exact string match on the normalized address; an absent address is
// never known.
func (p *Policy) IsKnown(trusted []string, addr string) bool {
	if addr == "" {
		return false
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	normalized := ip.String()
	for _, t := range trusted {
		if tip := net.ParseIP(t); tip != nil && tip.String() == normalized {
			return true
		}
	}
	return false
}
