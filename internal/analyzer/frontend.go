package analyzer

import (
	"mapdetect/internal/graph/callgraph"
	"mapdetect/pkg/models"
)

// FrontendOptions controls Frontend Integration detection.
type FrontendOptions struct {
	// Services are designated frontends that must never receive calls.
	Services []string
	// Key names the user or instance in diagnostics.
	Key string
}

// FrontendResult holds the Frontend Integration classification.
type FrontendResult struct {
	Candidates []string `json:"candidates"`
	Violators  []string `json:"violators"`
}

// DetectFrontendIntegration finds pure callers (in-degree 0, out-degree > 0)
// and designated frontends that receive calls. Isolated nodes are neither.
func DetectFrontendIntegration(g *callgraph.Digraph, opts FrontendOptions) FrontendResult {
	res := FrontendResult{Candidates: []string{}, Violators: []string{}}
	if g == nil {
		return res
	}
	frontends := toSet(opts.Services)

	for _, node := range g.Nodes() {
		in := g.InDegree(node)
		if in == 0 {
			if g.OutDegree(node) > 0 {
				res.Candidates = append(res.Candidates, node)
				logFinding(opts.Key, models.PatternFrontendIntegration).
					Infof("Potential frontend service '%s' found", node)
			}
			continue
		}
		if _, ok := frontends[node]; ok {
			res.Violators = append(res.Violators, node)
			logFinding(opts.Key, models.PatternFrontendIntegration).
				Warnf("Service '%s' is designated as frontend service but has incoming calls (in-degree = %d)", node, in)
		}
	}
	return res
}
