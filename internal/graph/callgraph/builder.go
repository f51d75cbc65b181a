package callgraph

import (
	"mapdetect/internal/aggregate"
	"mapdetect/pkg/models"
)

// Build creates an endpoint-keyed graph from one tally's counters.
func Build(counts map[models.CallKey]int) *CallGraph {
	g := New()
	for k, w := range counts {
		g.AddEdge(k.From, k.To, k.Endpoint, w)
	}
	return g
}

// BuildAll creates one endpoint-keyed graph per attribution key.
func BuildAll(acc *aggregate.Accumulator) map[string]*CallGraph {
	keys := acc.Keys()
	out := make(map[string]*CallGraph, len(keys))
	for _, key := range keys {
		t, _ := acc.Tally(key)
		out[key] = Build(t.Counts)
	}
	return out
}

// BuildByUser creates the cross-user graph: edges keyed by user with
// endpoints dropped and their weights summed. It is meant for output, not
// detection.
func BuildByUser(acc *aggregate.Accumulator) *CallGraph {
	g := New()
	for _, user := range acc.Users() {
		t, ok := acc.Tally(user)
		if !ok {
			continue
		}
		for k, w := range t.Counts {
			g.AddEdge(k.From, k.To, user, w)
		}
	}
	return g
}
