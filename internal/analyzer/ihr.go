package analyzer

import (
	"sort"

	"mapdetect/internal/graph/callgraph"
	"mapdetect/pkg/models"
)

// IHROptions controls Information Holder Resource detection.
type IHROptions struct {
	// Databases are designated resources that should be wrapped by exactly
	// one caller and never call outward.
	Databases []string
	Key       string
}

// IHRResult holds the Information Holder Resource classification. Pairs are
// (holder, resource).
type IHRResult struct {
	Candidates             []models.ServicePair `json:"candidates"`
	Violators              []models.ServicePair `json:"violators"`
	DatabaseCallViolators  []string             `json:"database_call_violators"`
	DatabaseNoIHRViolators []string             `json:"database_no_ihr_violators"`
}

// DetectInformationHolderResource inspects every sink node and every
// designated database. A node with exactly one predecessor p yields (p, n) as
// a candidate when p calls nothing else and as a violator otherwise; nodes
// with zero or several predecessors are not classified.
func DetectInformationHolderResource(g *callgraph.Digraph, opts IHROptions) IHRResult {
	res := IHRResult{
		Candidates:             []models.ServicePair{},
		Violators:              []models.ServicePair{},
		DatabaseCallViolators:  []string{},
		DatabaseNoIHRViolators: []string{},
	}
	databases := toSet(opts.Databases)
	pending := toSet(opts.Databases)

	if g != nil {
		for _, node := range g.Nodes() {
			out := g.OutDegree(node)
			_, isDatabase := databases[node]

			if out == 0 || isDatabase {
				if preds := g.Predecessors(node); len(preds) == 1 {
					holder := preds[0]
					pair := models.ServicePair{From: holder, To: node}
					if g.OutDegree(holder) == 1 {
						res.Candidates = append(res.Candidates, pair)
						logFinding(opts.Key, models.PatternInformationHolderResource).
							Infof("'%s' is a potential IHR for '%s'", holder, node)
					} else {
						res.Violators = append(res.Violators, pair)
						logFinding(opts.Key, models.PatternInformationHolderResource).
							Warnf("'%s' is only accessed through '%s', but '%s' calls other services as well", node, holder, holder)
					}
					delete(pending, node)
				}
			}
			if out > 0 && isDatabase {
				res.DatabaseCallViolators = append(res.DatabaseCallViolators, node)
				logFinding(opts.Key, models.PatternInformationHolderResource).
					Warnf("'%s' is designated as database service but has outgoing calls (out-degree = %d)", node, out)
			}
		}
	}

	for service := range pending {
		res.DatabaseNoIHRViolators = append(res.DatabaseNoIHRViolators, service)
	}
	sort.Strings(res.DatabaseNoIHRViolators)
	for _, service := range res.DatabaseNoIHRViolators {
		logFinding(opts.Key, models.PatternInformationHolderResource).
			Warnf("'%s' is designated as database service but no IHR detected", service)
	}
	return res
}
