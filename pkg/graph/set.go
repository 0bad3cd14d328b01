package graph

import "slices"

// Set is an unordered set of vertices
type Set[V comparable] map[V]struct{}

// NewSet creates a set holding the given vertices
func NewSet[V comparable](vs ...V) Set[V] {
	s := make(Set[V], len(vs))
	for _, v := range vs {
		s.Add(v)
	}
	return s
}

// Add inserts v into the set
func (s Set[V]) Add(v V) {
	s[v] = struct{}{}
}

// Remove deletes v from the set
func (s Set[V]) Remove(v V) {
	delete(s, v)
}

// Contains returns true if v is in the set
func (s Set[V]) Contains(v V) bool {
	_, ok := s[v]
	return ok
}

// Len returns the number of elements
func (s Set[V]) Len() int {
	return len(s)
}

// Copy returns an independent copy of the set
func (s Set[V]) Copy() Set[V] {
	c := make(Set[V], len(s))
	for v := range s {
		c[v] = struct{}{}
	}
	return c
}

// Slice returns the elements in unspecified order
func (s Set[V]) Slice() []V {
	result := make([]V, 0, len(s))
	for v := range s {
		result = append(result, v)
	}
	return result
}

// Sorted returns the elements ordered by cmp (for deterministic output)
func (s Set[V]) Sorted(cmp func(a, b V) int) []V {
	result := s.Slice()
	slices.SortFunc(result, cmp)
	return result
}
