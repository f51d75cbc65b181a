package reporthttp

import (
	"mapdetect/internal/analyzer"
	"mapdetect/internal/graph/callgraph"
	"mapdetect/pkg/models"
)

// Payload is the body posted for one attribution key: one node graph per
// pattern plus the key's findings.
type Payload struct {
	Key        string           `json:"key"`
	Frontend   View             `json:"frontend_integration"`
	IHR        View             `json:"information_holder_resource"`
	Bundles    View             `json:"request_bundle"`
	Findings   []models.Finding `json:"findings"`
	Violations int              `json:"violations"`
}

// View is a node graph for a node-graph panel. Each node carries an arc__
// fraction per display class of the pattern, summing to 1; each edge carries
// its call count as mainStat.
type View struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node is a service with its arc__ fields flattened into the JSON object.
type Node map[string]any

// Edge is one weighted (from, to, endpoint) call edge.
type Edge struct {
	ID       int    `json:"id"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	MainStat int    `json:"mainStat"`
}

type arc struct {
	class string
	field string
}

// Arc fields per pattern, in panel order.
var (
	frontendArcs = []arc{
		{analyzer.ClassNormal, "arc__frontend_normal"},
		{analyzer.ClassFrontendCandidate, "arc__frontend_candidate"},
		{analyzer.ClassFrontendViolator, "arc__frontend_violator"},
		{analyzer.ClassFrontendHealthy, "arc__frontend_healthy"},
	}
	ihrArcs = []arc{
		{analyzer.ClassNormal, "arc__db_normal"},
		{analyzer.ClassIHRCandidate, "arc__ihr_candidate"},
		{analyzer.ClassIHRViolator, "arc__ihr_violator"},
		{analyzer.ClassDatabaseViolator, "arc__db_violator"},
		{analyzer.ClassDatabaseNoIHR, "arc__db_no_ihr"},
		{analyzer.ClassDatabaseHealthy, "arc__db_healthy"},
	}
	bundleArcs = []arc{
		{analyzer.ClassBundleViolator, "arc__rb_v"},
		{analyzer.ClassNormal, "arc__rb_n"},
	}
)

// NewPayload renders a report and the graph it was computed on. g may be nil.
func NewPayload(rep analyzer.Report, g *callgraph.CallGraph) Payload {
	edges := viewEdges(g)
	return Payload{
		Key:        rep.Key,
		Frontend:   View{Nodes: viewNodes(rep.Overlays.Frontend, frontendArcs), Edges: edges},
		IHR:        View{Nodes: viewNodes(rep.Overlays.IHR, ihrArcs), Edges: edges},
		Bundles:    View{Nodes: viewNodes(rep.Overlays.Bundles, bundleArcs), Edges: edges},
		Findings:   rep.Findings(),
		Violations: rep.Violations(),
	}
}

// viewNodes splits each node evenly across its classes. Classes the pattern
// has no arc for are ignored.
func viewNodes(overlays []analyzer.NodeOverlay, arcs []arc) []Node {
	fieldOf := make(map[string]string, len(arcs))
	for _, a := range arcs {
		fieldOf[a.class] = a.field
	}

	nodes := make([]Node, 0, len(overlays))
	for _, o := range overlays {
		n := Node{"id": o.ID, "title": o.ID}
		for _, a := range arcs {
			n[a.field] = 0.0
		}
		if len(o.Classes) > 0 {
			share := 1.0 / float64(len(o.Classes))
			for _, c := range o.Classes {
				if field, ok := fieldOf[c]; ok {
					n[field] = n[field].(float64) + share
				}
			}
		}
		nodes = append(nodes, n)
	}
	return nodes
}

func viewEdges(g *callgraph.CallGraph) []Edge {
	if g == nil {
		return []Edge{}
	}
	rows := g.Edges()
	edges := make([]Edge, 0, len(rows))
	for i, e := range rows {
		edges = append(edges, Edge{ID: i, Source: e.From, Target: e.To, MainStat: e.Weight})
	}
	return edges
}
