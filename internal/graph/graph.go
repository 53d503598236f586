// Package graph implements the dependency graph used to order imports.
//
// An edge added with AddEdge(from, to) means "from depends on to": to must be
// processed before from. Internally each node keeps the list of nodes that
// depend on it, so a node that no other node points at has no outstanding
// dependency and is safe to process next.
package graph

import (
	"errors"
	"fmt"
	"iter"
	"slices"
)

// ErrCyclicGraph is returned when sorting finds a round with no leaves while
// nodes remain.
var ErrCyclicGraph = errors.New("cyclic graph")

// Graph is a mutable directed graph over comparable nodes.
type Graph[N comparable] struct {
	nodes []N       // insertion order, used as the tie-break
	edges map[N][]N // dependency -> dependents
}

// New returns an empty graph.
func New[N comparable]() *Graph[N] {
	return &Graph[N]{edges: make(map[N][]N)}
}

// AddNode registers n. Adding an existing node is a no-op.
func (g *Graph[N]) AddNode(n N) {
	if slices.Contains(g.nodes, n) {
		return
	}
	g.nodes = append(g.nodes, n)
}

// AddEdge records that from depends on to, adding both nodes if needed.
// Repeated pairs are kept once and self-loops are ignored.
func (g *Graph[N]) AddEdge(from, to N) {
	g.AddNode(from)
	g.AddNode(to)
	if from == to {
		return
	}
	if slices.Contains(g.edges[to], from) {
		return
	}
	g.edges[to] = append(g.edges[to], from)
}

// Len returns the number of nodes still in the graph.
func (g *Graph[N]) Len() int {
	return len(g.nodes)
}

// Nodes returns a copy of the remaining nodes in insertion order.
func (g *Graph[N]) Nodes() []N {
	return slices.Clone(g.nodes)
}

// Leaves yields every node that no other node points at, in insertion order.
func (g *Graph[N]) Leaves() iter.Seq[N] {
	return func(yield func(N) bool) {
		pointed := make(map[N]bool)
		for _, dependents := range g.edges {
			for _, d := range dependents {
				pointed[d] = true
			}
		}
		for _, n := range g.nodes {
			if pointed[n] {
				continue
			}
			if !yield(n) {
				return
			}
		}
	}
}

// Remove deletes n and strips it from every edge list.
func (g *Graph[N]) Remove(n N) {
	g.nodes = slices.DeleteFunc(g.nodes, func(x N) bool { return x == n })
	delete(g.edges, n)
	for from, dependents := range g.edges {
		if slices.Contains(dependents, n) {
			g.edges[from] = slices.DeleteFunc(dependents, func(x N) bool { return x == n })
		}
	}
}

// Sort yields the nodes in dependency order and empties the graph. If the
// remaining nodes contain a cycle, Sort yields ErrCyclicGraph and stops.
func (g *Graph[N]) Sort() iter.Seq2[N, error] {
	return func(yield func(N, error) bool) {
		for len(g.nodes) > 0 {
			// Snapshot the round so removals don't promote dependents early.
			leaves := slices.Collect(g.Leaves())
			if len(leaves) == 0 {
				var zero N
				yield(zero, fmt.Errorf("%w: %d nodes left unsorted: %v", ErrCyclicGraph, len(g.nodes), g.nodes))
				return
			}
			for _, n := range leaves {
				g.Remove(n)
				if !yield(n, nil) {
					return
				}
			}
		}
	}
}

// Order collects Sort into a slice. On a cycle it returns the error and no
// partial order.
func (g *Graph[N]) Order() ([]N, error) {
	var order []N
	for n, err := range g.Sort() {
		if err != nil {
			return nil, err
		}
		order = append(order, n)
	}
	return order, nil
}
