package callgraph

import (
	"sort"

	"mapdetect/pkg/models"
)

// EdgeKey identifies one parallel edge. Key is an endpoint in the
// fine-grained graph and a user in the by-user graph.
type EdgeKey struct {
	From string
	To   string
	Key  string
}

// CallGraph is a directed multigraph of service calls. Every edge carries a
// positive weight; absent edges have weight zero.
type CallGraph struct {
	nodes map[string]struct{}
	edges map[EdgeKey]int
}

// New creates an empty call graph.
func New() *CallGraph {
	return &CallGraph{
		nodes: make(map[string]struct{}),
		edges: make(map[EdgeKey]int),
	}
}

// AddNode adds a service node.
func (g *CallGraph) AddNode(name string) {
	g.nodes[name] = struct{}{}
}

// AddEdge adds weight to the (from, to, key) edge, creating nodes as needed.
// Non-positive weights are ignored.
func (g *CallGraph) AddEdge(from, to, key string, weight int) {
	if weight <= 0 {
		return
	}
	g.AddNode(from)
	g.AddNode(to)
	g.edges[EdgeKey{From: from, To: to, Key: key}] += weight
}

// Weight returns the weight of one edge, zero when absent.
func (g *CallGraph) Weight(from, to, key string) int {
	return g.edges[EdgeKey{From: from, To: to, Key: key}]
}

// Nodes returns node names in sorted order.
func (g *CallGraph) Nodes() []string {
	out := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Edges returns every weighted edge sorted by (from, to, key).
func (g *CallGraph) Edges() []models.EdgeRow {
	out := make([]models.EdgeRow, 0, len(g.edges))
	for k, w := range g.edges {
		out = append(out, models.EdgeRow{From: k.From, To: k.To, Key: k.Key, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		if out[i].To != out[j].To {
			return out[i].To < out[j].To
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// NumNodes returns the number of nodes.
func (g *CallGraph) NumNodes() int {
	return len(g.nodes)
}

// NumEdges returns the number of keyed edges.
func (g *CallGraph) NumEdges() int {
	return len(g.edges)
}

// TotalWeight sums all edge weights.
func (g *CallGraph) TotalWeight() int {
	n := 0
	for _, w := range g.edges {
		n += w
	}
	return n
}

// Simple collapses parallel edges into a simple directed graph. Only the
// presence of each (from, to) pair survives.
func (g *CallGraph) Simple() *Digraph {
	d := NewDigraph()
	for _, n := range g.Nodes() {
		d.AddNode(n)
	}
	for k := range g.edges {
		d.AddEdge(k.From, k.To)
	}
	return d
}
