package aggregate

import (
	"net/netip"

	"github.com/google/btree"
)

const btreeDegree = 32

// EntrySet is an ordered set of entries keyed by range.
type EntrySet struct {
	tree *btree.BTreeG[Entry]
}

// NewEntrySet returns a set holding entries. Later duplicates of a range
// replace earlier ones.
func NewEntrySet(entries ...Entry) *EntrySet {
	s := &EntrySet{tree: btree.NewG(btreeDegree, Entry.Less)}
	for _, e := range entries {
		s.Insert(e)
	}
	return s
}

// Insert adds e, reporting whether its range was not already present.
func (s *EntrySet) Insert(e Entry) bool {
	_, replaced := s.tree.ReplaceOrInsert(e)
	return !replaced
}

// Has reports whether the set holds a range equal to e's.
func (s *EntrySet) Has(e Entry) bool {
	return s.tree.Has(e)
}

// Len returns the number of entries.
func (s *EntrySet) Len() int {
	if s == nil || s.tree == nil {
		return 0
	}
	return s.tree.Len()
}

// Entries returns the entries in order.
func (s *EntrySet) Entries() []Entry {
	out := make([]Entry, 0, s.Len())
	s.Ascend(func(e Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}

// Ranges returns the ranges in order.
func (s *EntrySet) Ranges() []netip.Prefix {
	out := make([]netip.Prefix, 0, s.Len())
	s.Ascend(func(e Entry) bool {
		out = append(out, e.Range)
		return true
	})
	return out
}

// Ascend calls fn for each entry in order until fn returns false.
func (s *EntrySet) Ascend(fn func(Entry) bool) {
	if s.Len() == 0 {
		return
	}
	s.tree.Ascend(btree.ItemIteratorG[Entry](fn))
}

// Difference returns the entries of s whose range is not in o.
func (s *EntrySet) Difference(o *EntrySet) []Entry {
	var out []Entry
	s.Ascend(func(e Entry) bool {
		if o.Len() == 0 || !o.Has(e) {
			out = append(out, e)
		}
		return true
	})
	return out
}
