// SPDX-License-Identifier: MPL-2.0

// Package dag provides the directed-graph operations behind the module
// engine's queries: hulls (reachability including the start node), edge
// inversion for "who depends on me" questions, and topological ordering
// for dependency-first listings.
package dag

import (
	"fmt"
	"slices"
	"strings"
)

type (
	// CycleError indicates that the graph contains a cycle, preventing topological ordering.
	CycleError struct {
		// Cycle contains the nodes left with unresolved in-edges; enough to
		// identify the problem, not necessarily a minimal cycle.
		Cycle []string
	}

	// Graph is a directed graph keyed by string ids. An edge from A to B
	// reads "A depends on B" when built from module dependencies.
	Graph struct {
		// adjacency maps each node to its outgoing neighbors, deduplicated, in insertion order.
		adjacency map[string][]string
		// nodes tracks all nodes in insertion order for deterministic output.
		nodes   []string
		nodeSet map[string]bool
	}
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		adjacency: make(map[string][]string),
		nodeSet:   make(map[string]bool),
	}
}

// FromMap builds a graph from an adjacency map. Keys are added in sorted
// order so results do not depend on map iteration.
func FromMap(adj map[string][]string) *Graph {
	g := New()
	keys := make([]string, 0, len(adj))
	for k := range adj {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		g.AddNode(k)
		for _, to := range adj[k] {
			g.AddEdge(k, to)
		}
	}
	return g
}

// AddNode adds a node to the graph. If the node already exists, this is a no-op.
func (g *Graph) AddNode(name string) {
	if g.nodeSet[name] {
		return
	}
	g.nodeSet[name] = true
	g.nodes = append(g.nodes, name)
}

// AddEdge adds a directed edge from -> to. Both nodes are implicitly added;
// duplicate edges are ignored.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	if slices.Contains(g.adjacency[from], to) {
		return
	}
	g.adjacency[from] = append(g.adjacency[from], to)
}

// Has reports whether name is a node.
func (g *Graph) Has(name string) bool { return g.nodeSet[name] }

// Successors returns the outgoing neighbors of name.
func (g *Graph) Successors(name string) []string { return slices.Clone(g.adjacency[name]) }

// Invert returns a new graph with every edge reversed.
func (g *Graph) Invert() *Graph {
	inv := New()
	for _, n := range g.nodes {
		inv.AddNode(n)
	}
	for _, from := range g.nodes {
		for _, to := range g.adjacency[from] {
			inv.AddEdge(to, from)
		}
	}
	return inv
}

// Hull returns every node reachable from start, start included, in
// breadth-first order. A start node that is not in the graph yields just
// itself.
func (g *Graph) Hull(start string) []string {
	seen := map[string]bool{start: true}
	out := []string{start}
	for queue := []string{start}; len(queue) > 0; {
		node := queue[0]
		queue = queue[1:]
		for _, next := range g.adjacency[node] {
			if seen[next] {
				continue
			}
			seen[next] = true
			out = append(out, next)
			queue = append(queue, next)
		}
	}
	return out
}

// TopologicalSort returns an order in which every node precedes its
// successors, using Kahn's algorithm. Returns CycleError if the graph
// contains a cycle. Nodes at the same level keep insertion order.
func (g *Graph) TopologicalSort() ([]string, error) {
	if len(g.nodes) == 0 {
		return nil, nil
	}

	inDegree := make(map[string]int, len(g.nodes))
	for _, neighbors := range g.adjacency {
		for _, neighbor := range neighbors {
			inDegree[neighbor]++
		}
	}

	var queue []string
	for _, node := range g.nodes {
		if inDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	var result []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)
		for _, neighbor := range g.adjacency[node] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				queue = append(queue, neighbor)
			}
		}
	}

	if len(result) != len(g.nodes) {
		var cycleNodes []string
		for _, node := range g.nodes {
			if inDegree[node] > 0 {
				cycleNodes = append(cycleNodes, node)
			}
		}
		return nil, &CycleError{Cycle: cycleNodes}
	}
	return result, nil
}
