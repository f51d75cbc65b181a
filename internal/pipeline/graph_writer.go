package pipeline

import "mapdetect/internal/graph/callgraph"

// GraphWriter persists the call graph of one attribution key.
type GraphWriter interface {
	WriteGraph(key string, g *callgraph.CallGraph) error
	Close() error
}
