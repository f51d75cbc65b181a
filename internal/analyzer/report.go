package analyzer

import (
	"sync"

	"mapdetect/internal/graph/callgraph"
	"mapdetect/pkg/models"
)

// Report is the detector output for one attribution key.
type Report struct {
	Key      string         `json:"key"`
	Frontend FrontendResult `json:"frontend_integration"`
	IHR      IHRResult      `json:"information_holder_resource"`
	Bundles  BundleResult   `json:"request_bundle"`
	Overlays Overlays       `json:"overlays"`
}

// Overlays are per-pattern node classifications of the analyzed graph.
type Overlays struct {
	Frontend []NodeOverlay `json:"frontend_integration"`
	IHR      []NodeOverlay `json:"information_holder_resource"`
	Bundles  []NodeOverlay `json:"request_bundle"`
}

// Analyze runs the three detectors over one key's graph and pipeline. The
// detectors only read their inputs and run concurrently.
func Analyze(key string, g *callgraph.CallGraph, pipeline []models.ServiceCallEvent, opts Options) Report {
	opts = opts.WithDefaults()
	if g == nil {
		g = callgraph.New()
	}
	simple := g.Simple()

	report := Report{Key: key}
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		report.Frontend = DetectFrontendIntegration(simple, FrontendOptions{Services: opts.FrontendServices, Key: key})
	}()
	go func() {
		defer wg.Done()
		report.IHR = DetectInformationHolderResource(simple, IHROptions{Databases: opts.DatabaseServices, Key: key})
	}()
	go func() {
		defer wg.Done()
		report.Bundles = DetectRequestBundle(pipeline, BundleOptions{
			ServiceThreshold:  opts.ServiceThreshold,
			EndpointThreshold: opts.EndpointThreshold,
			Key:               key,
		})
	}()
	wg.Wait()

	report.Overlays = Overlays{
		Frontend: FrontendOverlay(simple, report.Frontend, opts.FrontendServices),
		IHR:      IHROverlay(simple, report.IHR, opts.DatabaseServices),
		Bundles:  BundleOverlay(simple, report.Bundles),
	}
	return report
}

// Findings flattens the report into sink rows, pattern by pattern.
func (r Report) Findings() []models.Finding {
	out := make([]models.Finding, 0,
		len(r.Frontend.Candidates)+len(r.Frontend.Violators)+
			len(r.IHR.Candidates)+len(r.IHR.Violators)+
			len(r.IHR.DatabaseCallViolators)+len(r.IHR.DatabaseNoIHRViolators)+
			len(r.Bundles.Service)+len(r.Bundles.Endpoint))

	single := func(pattern, kind, service string) models.Finding {
		return models.Finding{Key: r.Key, Pattern: pattern, Kind: kind, Services: []string{service}}
	}
	for _, s := range r.Frontend.Candidates {
		out = append(out, single(models.PatternFrontendIntegration, models.KindFrontendCandidate, s))
	}
	for _, s := range r.Frontend.Violators {
		out = append(out, single(models.PatternFrontendIntegration, models.KindFrontendViolator, s))
	}
	for _, p := range r.IHR.Candidates {
		out = append(out, models.Finding{Key: r.Key, Pattern: models.PatternInformationHolderResource, Kind: models.KindIHRCandidate, Services: []string{p.From, p.To}})
	}
	for _, p := range r.IHR.Violators {
		out = append(out, models.Finding{Key: r.Key, Pattern: models.PatternInformationHolderResource, Kind: models.KindIHRViolator, Services: []string{p.From, p.To}})
	}
	for _, s := range r.IHR.DatabaseCallViolators {
		out = append(out, single(models.PatternInformationHolderResource, models.KindDatabaseCallsOut, s))
	}
	for _, s := range r.IHR.DatabaseNoIHRViolators {
		out = append(out, single(models.PatternInformationHolderResource, models.KindDatabaseWithoutIHR, s))
	}
	for _, b := range r.Bundles.Service {
		out = append(out, models.Finding{Key: r.Key, Pattern: models.PatternRequestBundle, Kind: models.KindServiceBundle, Services: []string{b.From, b.To}, Count: b.Count})
	}
	for _, b := range r.Bundles.Endpoint {
		out = append(out, models.Finding{Key: r.Key, Pattern: models.PatternRequestBundle, Kind: models.KindEndpointBundle, Services: []string{b.From, b.To}, Endpoint: b.Endpoint, Count: b.Count})
	}
	return out
}

// Violations counts findings that flag a violation.
func (r Report) Violations() int {
	n := 0
	for _, f := range r.Findings() {
		if f.Violation() {
			n++
		}
	}
	return n
}
