package analyzer

import "mapdetect/pkg/models"

// DefaultBundleThreshold is the minimum run length reported as a bundle.
const DefaultBundleThreshold = 2

// BundleOptions controls Request Bundle detection. Non-positive thresholds
// fall back to DefaultBundleThreshold.
type BundleOptions struct {
	ServiceThreshold  int
	EndpointThreshold int
	Key               string
}

// ServiceBundle is a run of consecutive calls between the same services.
type ServiceBundle struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int    `json:"count"`
}

// EndpointBundle is a run of consecutive calls to the same endpoint.
type EndpointBundle struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Endpoint string `json:"endpoint"`
	Count    int    `json:"count"`
}

// BundleResult lists detected bundles in pipeline order.
type BundleResult struct {
	Service  []ServiceBundle  `json:"service"`
	Endpoint []EndpointBundle `json:"endpoint"`
}

// DetectRequestBundle scans a time-ordered pipeline once with independent
// service-level and endpoint-level run counters. A run is reported only when
// a differing call ends it, so a run still open at the end of the pipeline is
// never reported.
func DetectRequestBundle(pipeline []models.ServiceCallEvent, opts BundleOptions) BundleResult {
	if opts.ServiceThreshold <= 0 {
		opts.ServiceThreshold = DefaultBundleThreshold
	}
	if opts.EndpointThreshold <= 0 {
		opts.EndpointThreshold = DefaultBundleThreshold
	}

	res := BundleResult{Service: []ServiceBundle{}, Endpoint: []EndpointBundle{}}
	if len(pipeline) == 0 {
		return res
	}

	lastPair := pipeline[0].Pair()
	lastKey := pipeline[0].Key()
	serviceRun, endpointRun := 1, 1

	for _, ev := range pipeline[1:] {
		if pair := ev.Pair(); pair == lastPair {
			serviceRun++
		} else {
			if serviceRun >= opts.ServiceThreshold {
				res.Service = append(res.Service, ServiceBundle{From: lastPair.From, To: lastPair.To, Count: serviceRun})
				logFinding(opts.Key, models.PatternRequestBundle).
					Infof("Service-level request bundle detected between %s and %s with count %d", lastPair.From, lastPair.To, serviceRun)
			}
			serviceRun = 1
			lastPair = pair
		}

		if key := ev.Key(); key == lastKey {
			endpointRun++
		} else {
			if endpointRun >= opts.EndpointThreshold {
				res.Endpoint = append(res.Endpoint, EndpointBundle{From: lastKey.From, To: lastKey.To, Endpoint: lastKey.Endpoint, Count: endpointRun})
				logFinding(opts.Key, models.PatternRequestBundle).
					Infof("Endpoint-level request bundle detected between %s and %s%s with count %d", lastKey.From, lastKey.To, lastKey.Endpoint, endpointRun)
			}
			endpointRun = 1
			lastKey = key
		}
	}
	return res
}
