// Package party defines the identifiers used for the replicas of a
// subnet, and small helpers for working with sorted sets of them.
package party

import "sort"

// ID is the unique identifier of a replica. IDs are opaque strings;
// the protocol only ever compares them for equality and sorts them
// lexicographically when a replica-agreed order is required.
type ID string

// String implements fmt.Stringer.
func (id ID) String() string { return string(id) }

// IDSlice is a sorted slice of IDs without duplicates.
type IDSlice []ID

// NewIDSlice returns a sorted, deduplicated copy of the given IDs.
func NewIDSlice(ids []ID) IDSlice {
	out := make(IDSlice, 0, len(ids))
	seen := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Contains reports whether all the given IDs are in the slice.
func (s IDSlice) Contains(ids ...ID) bool {
	for _, id := range ids {
		i := sort.Search(len(s), func(i int) bool { return s[i] >= id })
		if i == len(s) || s[i] != id {
			return false
		}
	}
	return true
}

// Copy returns a copy of the slice.
func (s IDSlice) Copy() IDSlice {
	out := make(IDSlice, len(s))
	copy(out, s)
	return out
}

// Remove returns a copy of the slice with the given ID removed.
func (s IDSlice) Remove(id ID) IDSlice {
	out := make(IDSlice, 0, len(s))
	for _, x := range s {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
