// Package aggregate holds the classified prefix sets that describe the
// desired filtering state, and the on-disk snapshot format they are
// exchanged in.
package aggregate

import (
	"fmt"
	"net/netip"
)

// Family is an IP address family.
type Family int

const (
	IPv4 Family = iota
	IPv6
)

// Families lists every family in processing order.
var Families = []Family{IPv4, IPv6}

func (f Family) String() string {
	switch f {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

// FamilyOf returns the family of p.
func FamilyOf(p netip.Prefix) Family {
	if p.Addr().Is4() {
		return IPv4
	}
	return IPv6
}

// Entry is a prefix range tagged with an optional kind. An empty Kind
// means the range is unclassified.
type Entry struct {
	Range netip.Prefix `json:"range"`
	Kind  string       `json:"kind,omitempty"`
}

func (e Entry) String() string {
	if e.Kind == "" {
		return e.Range.String()
	}
	return e.Range.String() + " (" + e.Kind + ")"
}

// ComparePrefix orders prefixes by address, then by prefix length.
func ComparePrefix(a, b netip.Prefix) int {
	if c := a.Addr().Compare(b.Addr()); c != 0 {
		return c
	}
	return a.Bits() - b.Bits()
}

// Less orders entries by their range.
func (e Entry) Less(o Entry) bool {
	return ComparePrefix(e.Range, o.Range) < 0
}
