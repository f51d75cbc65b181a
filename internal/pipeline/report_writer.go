package pipeline

import (
	"mapdetect/internal/analyzer"
	"mapdetect/internal/graph/callgraph"
)

// ReportWriter publishes one key's detector report with the graph it was
// computed on.
type ReportWriter interface {
	WriteReport(rep analyzer.Report, g *callgraph.CallGraph) error
	Close() error
}
