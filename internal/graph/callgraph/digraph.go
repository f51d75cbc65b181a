package callgraph

import "sort"

// Digraph is a simple directed graph: at most one edge per ordered pair.
type Digraph struct {
	succ map[string]map[string]struct{}
	pred map[string]map[string]struct{}
}

// NewDigraph creates an empty simple digraph.
func NewDigraph() *Digraph {
	return &Digraph{
		succ: make(map[string]map[string]struct{}),
		pred: make(map[string]map[string]struct{}),
	}
}

// AddNode adds a node without edges.
func (d *Digraph) AddNode(n string) {
	if _, ok := d.succ[n]; !ok {
		d.succ[n] = make(map[string]struct{})
		d.pred[n] = make(map[string]struct{})
	}
}

// AddEdge adds the from->to edge once; repeats are no-ops.
func (d *Digraph) AddEdge(from, to string) {
	d.AddNode(from)
	d.AddNode(to)
	d.succ[from][to] = struct{}{}
	d.pred[to][from] = struct{}{}
}

// Nodes returns nodes in sorted order.
func (d *Digraph) Nodes() []string {
	out := make([]string, 0, len(d.succ))
	for n := range d.succ {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// InDegree returns the number of distinct predecessors of n.
func (d *Digraph) InDegree(n string) int {
	return len(d.pred[n])
}

// OutDegree returns the number of distinct successors of n.
func (d *Digraph) OutDegree(n string) int {
	return len(d.succ[n])
}

// Predecessors returns the distinct callers of n in sorted order.
func (d *Digraph) Predecessors(n string) []string {
	return sortedKeys(d.pred[n])
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
