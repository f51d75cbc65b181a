package analyzer

import (
	"reflect"
	"testing"
	"time"

	"mapdetect/internal/graph/callgraph"
	"mapdetect/pkg/models"
)

func digraph(edges ...[2]string) *callgraph.Digraph {
	d := callgraph.NewDigraph()
	for _, e := range edges {
		d.AddEdge(e[0], e[1])
	}
	return d
}

func TestFrontendCandidateForPureCaller(t *testing.T) {
	res := DetectFrontendIntegration(digraph([2]string{"A", "B"}, [2]string{"A", "C"}), FrontendOptions{})
	if !reflect.DeepEqual(res.Candidates, []string{"A"}) {
		t.Fatalf("expected candidates [A], got %v", res.Candidates)
	}
	if len(res.Violators) != 0 {
		t.Fatalf("expected no violators, got %v", res.Violators)
	}
}

func TestFrontendDesignatedServiceWithIncomingCallsViolates(t *testing.T) {
	g := digraph([2]string{"ui", "gateway"}, [2]string{"gateway", "ui"}, [2]string{"gateway", "orders"})
	res := DetectFrontendIntegration(g, FrontendOptions{Services: []string{"ui", "orders"}})
	if !reflect.DeepEqual(res.Violators, []string{"orders", "ui"}) {
		t.Fatalf("expected violators [orders ui], got %v", res.Violators)
	}
	if len(res.Candidates) != 0 {
		t.Fatalf("expected no candidates in a cycle, got %v", res.Candidates)
	}
}

func TestFrontendCandidateRegardlessOfDesignation(t *testing.T) {
	res := DetectFrontendIntegration(digraph([2]string{"ui", "b"}), FrontendOptions{Services: []string{"ui"}})
	if !reflect.DeepEqual(res.Candidates, []string{"ui"}) || len(res.Violators) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestFrontendIsolatedNodeIsNeither(t *testing.T) {
	g := callgraph.NewDigraph()
	g.AddNode("alone")
	res := DetectFrontendIntegration(g, FrontendOptions{Services: []string{"alone"}})
	if len(res.Candidates) != 0 || len(res.Violators) != 0 {
		t.Fatalf("expected empty result for isolated node, got %+v", res)
	}
}

func TestIHRSharedHolderIsViolator(t *testing.T) {
	res := DetectInformationHolderResource(digraph([2]string{"A", "X"}, [2]string{"A", "Y"}), IHROptions{})
	want := []models.ServicePair{{From: "A", To: "X"}, {From: "A", To: "Y"}}
	if !reflect.DeepEqual(res.Violators, want) {
		t.Fatalf("expected violators %v, got %v", want, res.Violators)
	}
	if len(res.Candidates) != 0 {
		t.Fatalf("expected no candidates, got %v", res.Candidates)
	}
}

func TestIHRExclusiveHolderIsCandidate(t *testing.T) {
	res := DetectInformationHolderResource(digraph([2]string{"A", "X"}), IHROptions{})
	if !reflect.DeepEqual(res.Candidates, []models.ServicePair{{From: "A", To: "X"}}) {
		t.Fatalf("expected candidate (A,X), got %v", res.Candidates)
	}
}

func TestIHRSkipsSinksWithSeveralPredecessors(t *testing.T) {
	res := DetectInformationHolderResource(digraph([2]string{"A", "X"}, [2]string{"B", "X"}), IHROptions{Databases: []string{"X"}})
	if len(res.Candidates) != 0 || len(res.Violators) != 0 {
		t.Fatalf("expected no IHR classification, got %+v", res)
	}
	if !reflect.DeepEqual(res.DatabaseNoIHRViolators, []string{"X"}) {
		t.Fatalf("expected X without IHR, got %v", res.DatabaseNoIHRViolators)
	}
}

func TestIHRDatabaseChecks(t *testing.T) {
	g := digraph(
		[2]string{"orders", "orders-mongo"},
		[2]string{"users", "users-mongo"},
		[2]string{"users-mongo", "audit"},
	)
	res := DetectInformationHolderResource(g, IHROptions{Databases: []string{"orders-mongo", "users-mongo", "ghost-mongo"}})

	if !reflect.DeepEqual(res.DatabaseCallViolators, []string{"users-mongo"}) {
		t.Fatalf("expected users-mongo to call out, got %v", res.DatabaseCallViolators)
	}
	if !reflect.DeepEqual(res.DatabaseNoIHRViolators, []string{"ghost-mongo"}) {
		t.Fatalf("expected ghost-mongo without IHR, got %v", res.DatabaseNoIHRViolators)
	}
	// Pairs follow the sorted order of the resource node.
	wantCandidates := []models.ServicePair{
		{From: "users-mongo", To: "audit"},
		{From: "orders", To: "orders-mongo"},
		{From: "users", To: "users-mongo"},
	}
	if !reflect.DeepEqual(res.Candidates, wantCandidates) {
		t.Fatalf("expected candidates %v, got %v", wantCandidates, res.Candidates)
	}
}

func pipeline(calls ...[3]string) []models.ServiceCallEvent {
	t0 := time.Date(2021, 5, 4, 10, 0, 0, 0, time.UTC)
	out := make([]models.ServiceCallEvent, 0, len(calls))
	for i, c := range calls {
		out = append(out, models.ServiceCallEvent{Timestamp: t0.Add(time.Duration(i) * time.Second), From: c[0], To: c[1], Endpoint: c[2]})
	}
	return out
}

func TestRequestBundleFlushedByDifferingCall(t *testing.T) {
	res := DetectRequestBundle(pipeline(
		[3]string{"A", "B", "e"},
		[3]string{"A", "B", "e"},
		[3]string{"C", "D", "e"},
	), BundleOptions{ServiceThreshold: 2})
	if !reflect.DeepEqual(res.Service, []ServiceBundle{{From: "A", To: "B", Count: 2}}) {
		t.Fatalf("expected one service bundle (A,B,2), got %v", res.Service)
	}
	if !reflect.DeepEqual(res.Endpoint, []EndpointBundle{{From: "A", To: "B", Endpoint: "e", Count: 2}}) {
		t.Fatalf("expected one endpoint bundle, got %v", res.Endpoint)
	}
}

func TestRequestBundleBelowThreshold(t *testing.T) {
	res := DetectRequestBundle(pipeline([3]string{"A", "B", "e"}, [3]string{"C", "D", "e"}), BundleOptions{ServiceThreshold: 2})
	if len(res.Service) != 0 || len(res.Endpoint) != 0 {
		t.Fatalf("expected no bundles, got %+v", res)
	}
}

// The last run is never reported because no differing call ends it.
func TestRequestBundleTrailingRunIsNotFlushed(t *testing.T) {
	res := DetectRequestBundle(pipeline(
		[3]string{"C", "D", "e"},
		[3]string{"A", "B", "e"},
		[3]string{"A", "B", "e"},
		[3]string{"A", "B", "e"},
	), BundleOptions{})
	if len(res.Service) != 0 || len(res.Endpoint) != 0 {
		t.Fatalf("expected trailing run to stay unreported, got %+v", res)
	}
}

func TestRequestBundleServiceAndEndpointRunsAreIndependent(t *testing.T) {
	res := DetectRequestBundle(pipeline(
		[3]string{"A", "B", "/x"},
		[3]string{"A", "B", "/y"},
		[3]string{"A", "B", "/y"},
		[3]string{"A", "B", "/y"},
		[3]string{"C", "D", "/z"},
	), BundleOptions{ServiceThreshold: 4, EndpointThreshold: 3})
	if !reflect.DeepEqual(res.Service, []ServiceBundle{{From: "A", To: "B", Count: 4}}) {
		t.Fatalf("unexpected service bundles %v", res.Service)
	}
	if !reflect.DeepEqual(res.Endpoint, []EndpointBundle{{From: "A", To: "B", Endpoint: "/y", Count: 3}}) {
		t.Fatalf("unexpected endpoint bundles %v", res.Endpoint)
	}
}

func TestDetectorsOnEmptyInput(t *testing.T) {
	empty := callgraph.New().Simple()
	if res := DetectFrontendIntegration(empty, FrontendOptions{}); len(res.Candidates)+len(res.Violators) != 0 {
		t.Fatalf("expected empty frontend result, got %+v", res)
	}
	if res := DetectInformationHolderResource(empty, IHROptions{}); len(res.Candidates)+len(res.Violators)+len(res.DatabaseCallViolators)+len(res.DatabaseNoIHRViolators) != 0 {
		t.Fatalf("expected empty IHR result, got %+v", res)
	}
	if res := DetectRequestBundle(nil, BundleOptions{}); len(res.Service)+len(res.Endpoint) != 0 {
		t.Fatalf("expected empty bundle result, got %+v", res)
	}
}
