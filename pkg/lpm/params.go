// Package lpm models the capacity of the dataplane's DPDK LPM tables.
//
// It estimates how many rules and tbl8 groups a prefix set needs, reads
// back what each table replica currently has allocated, and decides
// whether a table can be patched in place or must be rebuilt.
package lpm

import (
	"fmt"
	"net/netip"

	"github.com/psaab/gtctl/pkg/aggregate"
)

// IPv4 tables resolve the first 24 bits in the root table.
const ipv4RootDepth = 24

// IPv6 tables resolve the first 24 bits in the root table and then
// step 8 bits per tbl8 level.
const (
	ipv6RootDepth = 24
	ipv6Stride    = 8
)

// Params is the size of one LPM table: rule slots and tbl8 groups.
type Params struct {
	Family   aggregate.Family `json:"-"`
	NumRules int              `json:"num_rules"`
	NumTbl8s int              `json:"num_tbl8s"`
}

func (p Params) String() string {
	return fmt.Sprintf("rules=%d, tbl8s=%d", p.NumRules, p.NumTbl8s)
}

// Less orders params lexicographically by (NumRules, NumTbl8s).
func (p Params) Less(o Params) bool {
	if p.NumRules != o.NumRules {
		return p.NumRules < o.NumRules
	}
	return p.NumTbl8s < o.NumTbl8s
}

// Exceeds reports whether p is strictly greater than o.
func (p Params) Exceeds(o Params) bool {
	return o.Less(p)
}

// Estimate returns the table size needed to hold prefixes.
func Estimate(family aggregate.Family, prefixes []netip.Prefix) Params {
	if family == aggregate.IPv6 {
		return EstimateIPv6(prefixes)
	}
	return EstimateIPv4(prefixes)
}

// EstimateIPv4 mirrors rte_lpm: every distinct /24 that covers a prefix
// longer than /24 needs one tbl8 group.
func EstimateIPv4(prefixes []netip.Prefix) Params {
	return estimate(aggregate.IPv4, prefixes, lpmAddTables)
}

// EstimateIPv6 mirrors rte_lpm6: a prefix needs one tbl8 group for every
// 8-bit level between the root and its own length, shared with any other
// prefix that already passes through the same level.
func EstimateIPv6(prefixes []netip.Prefix) Params {
	return estimate(aggregate.IPv6, prefixes, lpm6AddTables)
}

type addTablesFunc func(p netip.Prefix, seen map[netip.Prefix]struct{}) int

func estimate(family aggregate.Family, prefixes []netip.Prefix, add addTablesFunc) Params {
	seen := make(map[netip.Prefix]struct{})
	params := Params{Family: family}
	for _, p := range prefixes {
		params.NumRules++
		params.NumTbl8s += add(p, seen)
	}
	return params
}

func lpmAddTables(p netip.Prefix, seen map[netip.Prefix]struct{}) int {
	if p.Bits() <= ipv4RootDepth {
		return 0
	}
	parent := netip.PrefixFrom(p.Addr(), ipv4RootDepth).Masked()
	if _, ok := seen[parent]; ok {
		return 0
	}
	seen[parent] = struct{}{}
	return 1
}

func lpm6AddTables(p netip.Prefix, seen map[netip.Prefix]struct{}) int {
	n := 0
	for depth := ipv6RootDepth; depth < p.Bits(); depth += ipv6Stride {
		level := netip.PrefixFrom(p.Addr(), depth).Masked()
		if _, ok := seen[level]; ok {
			continue
		}
		seen[level] = struct{}{}
		n++
	}
	return n
}
