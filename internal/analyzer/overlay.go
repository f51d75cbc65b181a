package analyzer

import (
	"sort"

	"mapdetect/internal/graph/callgraph"
)

// Node classes for visualization overlays.
const (
	ClassNormal            = "normal"
	ClassFrontendCandidate = "frontend_candidate"
	ClassFrontendViolator  = "frontend_violator"
	ClassFrontendHealthy   = "frontend_healthy"
	ClassIHRCandidate      = "ihr_candidate"
	ClassIHRViolator       = "ihr_violator"
	ClassDatabaseViolator  = "db_violator"
	ClassDatabaseNoIHR     = "db_no_ihr"
	ClassDatabaseHealthy   = "db_healthy"
	ClassBundleViolator    = "rb_violator"
)

// NodeOverlay assigns display classes to one service. A database that both
// calls out and lacks an IHR carries two classes.
type NodeOverlay struct {
	ID      string   `json:"id"`
	Classes []string `json:"classes"`
}

// FrontendOverlay classifies every node for the Frontend Integration view.
// Designated frontends are reported as healthy rather than as candidates.
func FrontendOverlay(g *callgraph.Digraph, res FrontendResult, frontends []string) []NodeOverlay {
	designated := toSet(frontends)
	candidates := toSet(res.Candidates)
	violators := toSet(res.Violators)

	nodes := g.Nodes()
	out := make([]NodeOverlay, 0, len(nodes))
	for _, n := range nodes {
		_, isFrontend := designated[n]
		class := ClassNormal
		if _, ok := candidates[n]; ok && !isFrontend {
			class = ClassFrontendCandidate
		} else if _, ok := violators[n]; ok {
			class = ClassFrontendViolator
		} else if isFrontend {
			class = ClassFrontendHealthy
		}
		out = append(out, NodeOverlay{ID: n, Classes: []string{class}})
	}
	return out
}

// IHROverlay classifies every node for the Information Holder Resource view.
// Holders are marked by the first service of each pair.
func IHROverlay(g *callgraph.Digraph, res IHRResult, databases []string) []NodeOverlay {
	dbs := toSet(databases)
	callOut := toSet(res.DatabaseCallViolators)
	noIHR := toSet(res.DatabaseNoIHRViolators)
	holders := make(map[string]struct{}, len(res.Candidates))
	for _, p := range res.Candidates {
		holders[p.From] = struct{}{}
	}
	sharedHolders := make(map[string]struct{}, len(res.Violators))
	for _, p := range res.Violators {
		sharedHolders[p.From] = struct{}{}
	}

	nodes := g.Nodes()
	out := make([]NodeOverlay, 0, len(nodes))
	for _, n := range nodes {
		var classes []string
		if _, ok := dbs[n]; ok {
			_, calls := callOut[n]
			_, missing := noIHR[n]
			switch {
			case calls && missing:
				classes = []string{ClassDatabaseViolator, ClassDatabaseNoIHR}
			case calls:
				classes = []string{ClassDatabaseViolator}
			case missing:
				classes = []string{ClassDatabaseNoIHR}
			default:
				classes = []string{ClassDatabaseHealthy}
			}
		} else if _, ok := holders[n]; ok {
			classes = []string{ClassIHRCandidate}
		} else if _, ok := sharedHolders[n]; ok {
			classes = []string{ClassIHRViolator}
		} else {
			classes = []string{ClassNormal}
		}
		out = append(out, NodeOverlay{ID: n, Classes: classes})
	}
	return out
}

// BundleOverlay marks every service taking part in an endpoint-level bundle.
// Services only seen in bundles are included as well.
func BundleOverlay(g *callgraph.Digraph, res BundleResult) []NodeOverlay {
	involved := make(map[string]struct{})
	for _, b := range res.Endpoint {
		involved[b.From] = struct{}{}
		involved[b.To] = struct{}{}
	}
	all := toSet(g.Nodes())
	for n := range involved {
		all[n] = struct{}{}
	}
	nodes := make([]string, 0, len(all))
	for n := range all {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	out := make([]NodeOverlay, 0, len(nodes))
	for _, n := range nodes {
		class := ClassNormal
		if _, ok := involved[n]; ok {
			class = ClassBundleViolator
		}
		out = append(out, NodeOverlay{ID: n, Classes: []string{class}})
	}
	return out
}
