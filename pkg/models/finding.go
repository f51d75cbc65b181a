package models

// Pattern names.
const (
	PatternFrontendIntegration       = "frontend_integration"
	PatternInformationHolderResource = "information_holder_resource"
	PatternRequestBundle             = "request_bundle"
)

// Finding kinds.
const (
	KindFrontendCandidate  = "frontend_candidate"
	KindFrontendViolator   = "frontend_violator"
	KindIHRCandidate       = "ihr_candidate"
	KindIHRViolator        = "ihr_violator"
	KindDatabaseCallsOut   = "database_call_violator"
	KindDatabaseWithoutIHR = "database_no_ihr_violator"
	KindServiceBundle      = "service_bundle"
	KindEndpointBundle     = "endpoint_bundle"
)

// Finding is one advisory detector result row.
type Finding struct {
	Key      string   `json:"key"`
	Pattern  string   `json:"pattern"`
	Kind     string   `json:"kind"`
	Services []string `json:"services"`
	Endpoint string   `json:"endpoint,omitempty"`
	Count    int      `json:"count,omitempty"`
}

// Violation reports whether the finding flags a pattern violation rather than
// a candidate.
func (f Finding) Violation() bool {
	switch f.Kind {
	case KindFrontendCandidate, KindIHRCandidate:
		return false
	}
	return true
}
