package analyzer

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"mapdetect/internal/graph/callgraph"
	"mapdetect/pkg/models"
)

func sampleGraph() *callgraph.CallGraph {
	g := callgraph.New()
	g.AddEdge("ui", "orders", "/api/v1/orderservice", 4)
	g.AddEdge("ui", "orders", "/api/v1/orderservice/order", 1)
	g.AddEdge("orders", "orders-mongo", "/", 7)
	return g
}

func TestAnalyzeFlattensFindings(t *testing.T) {
	p := pipeline(
		[3]string{"ui", "orders", "/a"},
		[3]string{"ui", "orders", "/a"},
		[3]string{"orders", "orders-mongo", "/"},
	)
	report := Analyze("alice", sampleGraph(), p, Options{
		FrontendServices: []string{"ui"},
		DatabaseServices: []string{"orders-mongo"},
	})

	if !reflect.DeepEqual(report.Frontend.Candidates, []string{"ui"}) {
		t.Fatalf("unexpected frontend candidates %v", report.Frontend.Candidates)
	}
	if !reflect.DeepEqual(report.IHR.Candidates, []models.ServicePair{{From: "orders", To: "orders-mongo"}}) {
		t.Fatalf("unexpected IHR candidates %v", report.IHR.Candidates)
	}

	findings := report.Findings()
	kinds := make([]string, 0, len(findings))
	for _, f := range findings {
		if f.Key != "alice" {
			t.Fatalf("unexpected key %q", f.Key)
		}
		kinds = append(kinds, f.Kind)
	}
	want := []string{models.KindFrontendCandidate, models.KindIHRCandidate, models.KindServiceBundle, models.KindEndpointBundle}
	if !reflect.DeepEqual(kinds, want) {
		t.Fatalf("expected kinds %v, got %v", want, kinds)
	}
	if report.Violations() != 2 {
		t.Fatalf("expected 2 violations (both bundles), got %d", report.Violations())
	}
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	g := sampleGraph()
	opts := Options{DatabaseServices: []string{"orders-mongo", "ghost"}}
	first := Analyze("k", g, nil, opts)
	for i := 0; i < 5; i++ {
		if again := Analyze("k", g, nil, opts); !reflect.DeepEqual(first, again) {
			t.Fatalf("analysis differs between runs: %+v vs %+v", first, again)
		}
	}
}

func TestAnalyzeEmptyGraph(t *testing.T) {
	report := Analyze("empty", nil, nil, Options{})
	if len(report.Findings()) != 0 {
		t.Fatalf("expected no findings, got %v", report.Findings())
	}
}

func TestOverlays(t *testing.T) {
	g := callgraph.NewDigraph()
	g.AddEdge("ui", "orders")
	g.AddEdge("admin", "orders")
	g.AddEdge("orders", "orders-mongo")
	g.AddEdge("orders-mongo", "audit")
	g.AddEdge("ui", "payments")
	g.AddEdge("payments", "payments-mongo")
	g.AddEdge("payments", "cache")

	fe := DetectFrontendIntegration(g, FrontendOptions{Services: []string{"ui", "orders"}})
	feOverlay := classes(FrontendOverlay(g, fe, []string{"ui", "orders"}))
	if feOverlay["ui"][0] != ClassFrontendHealthy || feOverlay["admin"][0] != ClassFrontendCandidate || feOverlay["orders"][0] != ClassFrontendViolator || feOverlay["cache"][0] != ClassNormal {
		t.Fatalf("unexpected frontend overlay %v", feOverlay)
	}

	dbs := []string{"orders-mongo", "payments-mongo", "ghost"}
	ihr := DetectInformationHolderResource(g, IHROptions{Databases: dbs})
	ihrOverlay := classes(IHROverlay(g, ihr, dbs))
	if !reflect.DeepEqual(ihrOverlay["orders-mongo"], []string{ClassDatabaseViolator}) {
		t.Fatalf("unexpected orders-mongo classes %v", ihrOverlay["orders-mongo"])
	}
	if !reflect.DeepEqual(ihrOverlay["payments-mongo"], []string{ClassDatabaseHealthy}) {
		t.Fatalf("unexpected payments-mongo classes %v", ihrOverlay["payments-mongo"])
	}
	if ihrOverlay["payments"][0] != ClassIHRViolator || ihrOverlay["orders-mongo"][0] == ClassIHRCandidate {
		t.Fatalf("unexpected holder classes %v", ihrOverlay)
	}

	rb := BundleResult{Endpoint: []EndpointBundle{{From: "ui", To: "orders", Endpoint: "/x", Count: 3}}}
	rbOverlay := classes(BundleOverlay(g, rb))
	if rbOverlay["ui"][0] != ClassBundleViolator || rbOverlay["payments"][0] != ClassNormal {
		t.Fatalf("unexpected bundle overlay %v", rbOverlay)
	}
}

func classes(in []NodeOverlay) map[string][]string {
	out := make(map[string][]string, len(in))
	for _, n := range in {
		out[n.ID] = n.Classes
	}
	return out
}

func TestLoadOptionsAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detection.yml")
	body := "frontend_services: [ts-ui-dashboard, ' ts-ui-dashboard ']\ndatabase_services:\n  - ts-order-mongo\nendpoint_threshold: 3\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	opts, err := LoadOptions(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(opts.FrontendServices, []string{"ts-ui-dashboard"}) {
		t.Fatalf("expected deduplicated frontends, got %v", opts.FrontendServices)
	}
	if opts.ServiceThreshold != DefaultBundleThreshold || opts.EndpointThreshold != 3 {
		t.Fatalf("unexpected thresholds %d/%d", opts.ServiceThreshold, opts.EndpointThreshold)
	}
}

func TestParseServiceList(t *testing.T) {
	if got := ParseServiceList("a, b,,a"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("unexpected list %v", got)
	}
}
