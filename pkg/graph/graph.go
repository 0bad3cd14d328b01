// Package graph provides the undirected adjacency structure shared by the
// interference graph and the move graph.
//
// A vertex missing from the graph behaves exactly like an isolated vertex:
// it has no neighbors and removing it is a no-op.
package graph

import (
	"fmt"
	"iter"
	"slices"

	"go.uber.org/multierr"
)

// Graph is a symmetric adjacency map without self loops
type Graph[V comparable] struct {
	adj map[V]Set[V]
}

// New creates an empty graph
func New[V comparable]() *Graph[V] {
	return &Graph[V]{adj: make(map[V]Set[V])}
}

// AddVertex adds v to the graph if it is not already present
func (g *Graph[V]) AddVertex(v V) {
	if g.adj[v] == nil {
		g.adj[v] = NewSet[V]()
	}
}

// AddEdge connects u and v in both directions
func (g *Graph[V]) AddEdge(u, v V) {
	if u == v {
		return // No self-edges
	}
	g.AddVertex(u)
	g.AddVertex(v)
	g.adj[u].Add(v)
	g.adj[v].Add(u)
}

// Remove deletes v and every edge incident to it
func (g *Graph[V]) Remove(v V) {
	for neighbor := range g.adj[v] {
		if s, ok := g.adj[neighbor]; ok {
			s.Remove(v)
		}
	}
	delete(g.adj, v)
}

// Has returns true if v is a vertex of the graph
func (g *Graph[V]) Has(v V) bool {
	_, ok := g.adj[v]
	return ok
}

// HasEdge returns true if u and v are adjacent
func (g *Graph[V]) HasEdge(u, v V) bool {
	if s, ok := g.adj[u]; ok {
		return s.Contains(v)
	}
	return false
}

// Neighbors returns a copy of the neighbor set of v.
// The result is never nil.
func (g *Graph[V]) Neighbors(v V) Set[V] {
	if s, ok := g.adj[v]; ok {
		return s.Copy()
	}
	return NewSet[V]()
}

// Degree returns the number of neighbors of v
func (g *Graph[V]) Degree(v V) int {
	return len(g.adj[v])
}

// Len returns the number of vertices
func (g *Graph[V]) Len() int {
	return len(g.adj)
}

// Vertices yields every vertex exactly once. The sequence can be ranged
// over again to restart it; order is unspecified.
func (g *Graph[V]) Vertices() iter.Seq[V] {
	return func(yield func(V) bool) {
		for v := range g.adj {
			if !yield(v) {
				return
			}
		}
	}
}

// Sorted returns the vertices ordered by cmp
func (g *Graph[V]) Sorted(cmp func(a, b V) int) []V {
	result := slices.Collect(g.Vertices())
	slices.SortFunc(result, cmp)
	return result
}

// Clone returns a deep copy of the graph
func (g *Graph[V]) Clone() *Graph[V] {
	c := &Graph[V]{adj: make(map[V]Set[V], len(g.adj))}
	for v, s := range g.adj {
		c.adj[v] = s.Copy()
	}
	return c
}

// Validate checks the symmetry and no-self-loop invariants.
// Every violation found is reported.
func (g *Graph[V]) Validate() error {
	var err error
	for v, s := range g.adj {
		for n := range s {
			if n == v {
				err = multierr.Append(err, fmt.Errorf("self loop on %v", v))
				continue
			}
			if !g.HasEdge(n, v) {
				err = multierr.Append(err, fmt.Errorf("edge %v -> %v has no reverse edge", v, n))
			}
		}
	}
	return err
}
