package aggregate

import "sort"

// Grouping splits an aggregate by family and kind. It is built once per
// run and not modified afterwards.
type Grouping struct {
	IPv4 map[string]*EntrySet
	IPv6 map[string]*EntrySet
}

// NewGrouping groups the entries of a.
func NewGrouping(a *Aggregate) *Grouping {
	g := &Grouping{
		IPv4: groupByKind(a.IPv4),
		IPv6: groupByKind(a.IPv6),
	}
	return g
}

func groupByKind(entries []Entry) map[string]*EntrySet {
	m := make(map[string]*EntrySet)
	for _, e := range entries {
		s, ok := m[e.Kind]
		if !ok {
			s = NewEntrySet()
			m[e.Kind] = s
		}
		s.Insert(e)
	}
	return m
}

// Family returns the kind map for f.
func (g *Grouping) Family(f Family) map[string]*EntrySet {
	if f == IPv6 {
		return g.IPv6
	}
	return g.IPv4
}

// Kinds returns the kinds present for f, sorted.
func (g *Grouping) Kinds(f Family) []string {
	m := g.Family(f)
	kinds := make([]string, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Get returns the set for (f, kind), or an empty set.
func (g *Grouping) Get(f Family, kind string) *EntrySet {
	if s, ok := g.Family(f)[kind]; ok {
		return s
	}
	return NewEntrySet()
}

// Changes is the work for one (family, kind) table.
type Changes struct {
	Insert []Entry `json:"insert"`
	Remove []Entry `json:"remove"`
}

// Empty reports whether there is nothing to apply.
func (c Changes) Empty() bool {
	return len(c.Insert) == 0 && len(c.Remove) == 0
}

// Len returns the total number of ranges touched.
func (c Changes) Len() int {
	return len(c.Insert) + len(c.Remove)
}

// Full returns changes that load every entry of next into an empty table.
func Full(next *EntrySet) Changes {
	return Changes{Insert: next.Entries()}
}

// Diff returns the changes that turn prev into next.
func Diff(prev, next *EntrySet) Changes {
	return Changes{
		Insert: next.Difference(prev),
		Remove: prev.Difference(next),
	}
}
