package models

import "time"

// ServiceCallEvent is one outbound call observed in a service's trace log.
type ServiceCallEvent struct {
	Timestamp time.Time `json:"ts"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Endpoint  string    `json:"endpoint"`
}

// Key returns the (from, to, endpoint) tuple the event is counted under.
func (e ServiceCallEvent) Key() CallKey {
	return CallKey{From: e.From, To: e.To, Endpoint: e.Endpoint}
}

// Pair returns the service-level (from, to) pair of the event.
func (e ServiceCallEvent) Pair() ServicePair {
	return ServicePair{From: e.From, To: e.To}
}

// CallKey identifies a weighted edge of the fine-grained call graph.
type CallKey struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Endpoint string `json:"endpoint"`
}

// ServicePair is a directed (caller, callee) pair.
type ServicePair struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// CallEventRow is a flat call event row for time-series sinks.
type CallEventRow struct {
	Timestamp time.Time `json:"ts"`
	Key       string    `json:"key"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Endpoint  string    `json:"endpoint"`
}
