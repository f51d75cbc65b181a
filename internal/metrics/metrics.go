package metrics

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds batch-run diagnostics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry         *prometheus.Registry
	traceLines       prometheus.Counter
	accepted         prometheus.Counter
	dropped          *prometheus.CounterVec
	sessionsLoaded   prometheus.Counter
	sessionsExcluded prometheus.Counter
	findings         *prometheus.CounterVec
	graphs           prometheus.Gauge
}

// New registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		traceLines: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mapdetect_trace_lines_total",
			Help: "Trace log lines read.",
		}),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mapdetect_events_accepted_total",
			Help: "Outbound call events attributed to a user.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mapdetect_events_dropped_total",
			Help: "Trace lines that did not become call events, by reason.",
		}, []string{"reason"}),
		sessionsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mapdetect_sessions_loaded_total",
			Help: "User sessions parsed from load-generator logs.",
		}),
		sessionsExcluded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mapdetect_sessions_excluded_total",
			Help: "Users excluded because of malformed load-generator logs.",
		}),
		findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mapdetect_findings_total",
			Help: "Detector findings, by pattern and kind.",
		}, []string{"pattern", "kind"}),
		graphs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mapdetect_call_graphs",
			Help: "Call graphs built in the last run.",
		}),
	}
	m.registry.MustRegister(m.traceLines, m.accepted, m.dropped, m.sessionsLoaded, m.sessionsExcluded, m.findings, m.graphs)
	return m
}

// ObserveSessions records the session loading outcome.
func (m *Metrics) ObserveSessions(loaded, excluded int) {
	if m == nil {
		return
	}
	m.sessionsLoaded.Add(float64(loaded))
	m.sessionsExcluded.Add(float64(excluded))
}

// ObserveIngest records trace ingestion counters.
func (m *Metrics) ObserveIngest(lines, accepted int, dropped map[string]int) {
	if m == nil {
		return
	}
	m.traceLines.Add(float64(lines))
	m.accepted.Add(float64(accepted))
	for reason, n := range dropped {
		m.dropped.WithLabelValues(reason).Add(float64(n))
	}
}

// ObserveFinding counts one detector finding.
func (m *Metrics) ObserveFinding(pattern, kind string) {
	if m == nil {
		return
	}
	m.findings.WithLabelValues(pattern, kind).Inc()
}

// SetGraphs records how many call graphs were built.
func (m *Metrics) SetGraphs(n int) {
	if m == nil {
		return
	}
	m.graphs.Set(float64(n))
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextFile dumps the current values in text format.
func (m *Metrics) WriteTextFile(path string) error {
	if m == nil {
		return nil
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics file: %w", err)
	}
	return nil
}
